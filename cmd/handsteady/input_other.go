//go:build !linux

package main

import (
	"fmt"
	"os"
)

// readDevices starts one blocking reader per device and forwards their events.
// Readers blocked in read() exit when the caller closes the files.
func readDevices(files []*os.File, events chan<- inputEvent, readErr chan<- error, done <-chan struct{}) {
	if len(files) == 0 {
		readErr <- fmt.Errorf("no input devices provided")
		return
	}
	for _, f := range files {
		go readInputEvents(f, events, readErr)
	}
	<-done
}
