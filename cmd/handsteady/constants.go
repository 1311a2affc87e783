package main

// Linux input event types and codes (from <linux/input.h>)
const (
	EV_KEY = 0x01

	KEY_F9  = 67
	KEY_F10 = 68
	KEY_F11 = 87
	KEY_F12 = 88
)

// Input event value constants
const (
	evValueRelease = 0
	evValuePress   = 1
	evValueRepeat  = 2
)

// Daemon defaults
const (
	defaultUpdateHz      = 90 // engine tick rate (Hz), typical headset refresh
	defaultReadTimeoutMS = 2000
	defaultIPCSocket     = "/tmp/handsteady.sock"
	defaultHTTPPort      = 3011
	defaultSensorWsURL   = "ws://127.0.0.1:6437/v7.json"

	// Ticks skipped after start and after a reinitialize without an explicit count.
	defaultSkipFrames = 4
)
