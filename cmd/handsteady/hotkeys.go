package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// hotkeyAction maps a key press to an operator action. Releases, repeats and
// unbound keys map to nil.
func hotkeyAction(ev inputEvent) Event {
	if ev.Type != EV_KEY || ev.Value != evValuePress {
		return nil
	}
	switch ev.Code {
	case KEY_F9:
		return ToggleMirror{}
	case KEY_F10:
		return ToggleSwap{}
	case KEY_F11:
		return ToggleTracking{}
	case KEY_F12:
		return Reinitialize{}
	default:
		return nil
	}
}

// runHotkeys reads the given evdev devices and forwards mapped actions to
// events until ctx is canceled or a device fails.
func runHotkeys(ctx context.Context, devices []string, events chan<- Event, logger *slog.Logger) error {
	if len(devices) == 0 {
		return nil
	}

	files := make([]*os.File, 0, len(devices))
	defer func() {
		for _, f := range files {
			_ = f.Close()
		}
	}()
	for _, dev := range devices {
		f, err := os.Open(ExpandPath(dev))
		if err != nil {
			return fmt.Errorf("open input device %s: %w", dev, err)
		}
		files = append(files, f)
	}
	logger.Info("hotkeys enabled", "devices", devices)

	inputs := make(chan inputEvent, 64)
	readErr := make(chan error, len(files)+1)
	done := make(chan struct{})
	defer close(done)

	go readDevices(files, inputs, readErr, done)

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-readErr:
			return fmt.Errorf("input reader stopped: %w", err)

		case ev := <-inputs:
			act := hotkeyAction(ev)
			if act == nil {
				continue
			}
			logger.Debug("hotkey", "code", ev.Code, "action", fmt.Sprintf("%T", act))
			select {
			case events <- act:
			default:
				logger.Warn("event queue full; dropping hotkey", "code", ev.Code)
			}
		}
	}
}
