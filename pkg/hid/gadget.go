//go:build !tinygo

package hid

import (
	"fmt"
	"os"
	"time"
)

const (
	// DefaultGadget is the first HID gadget device on Linux.
	DefaultGadget = "/dev/hidg0"
	// DefaultWriteTimeout bounds a report write when no host is reading.
	DefaultWriteTimeout = 5 * time.Millisecond
)

// Gadget writes reports to a Linux USB HID gadget device.
type Gadget struct {
	f       *os.File
	timeout time.Duration
}

// OpenGadget opens the gadget device for writing.
func OpenGadget(path string) (*Gadget, error) {
	if path == "" {
		path = DefaultGadget
	}
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open HID gadget %s: %w", path, err)
	}
	return &Gadget{f: f, timeout: DefaultWriteTimeout}, nil
}

// Write writes one report. Without a host reading the endpoint the write
// would block forever, so it is bounded by a deadline where the device
// supports one.
func (g *Gadget) Write(p []byte) (int, error) {
	_ = g.f.SetWriteDeadline(time.Now().Add(g.timeout))
	return g.f.Write(p)
}

// Close closes the device.
func (g *Gadget) Close() error {
	return g.f.Close()
}
