// Package link is the host side of the diagnostics protocol: it talks to a
// keypad over a serial port, or to an in-process simulated keypad, and turns
// its output into messages.
package link

import (
	"time"

	"github.com/rice5941/nakuru/pkg/diag"
	"github.com/rice5941/nakuru/pkg/keys"
)

// Device defines the interface for keypads (real or simulated).
type Device interface {
	Connect() error
	Close() error
	Messages() <-chan Message
	IsConnected() bool
}

// Message is one decoded line from the keypad. Besides the JSON protocol it
// carries the keypad's text reports: a finished calibration for one key, or
// the one-off scan rate.
type Message struct {
	Received time.Time
	diag.Message

	Calibration *keys.Calibration
	ScanRate    float64 // Hz
}

// Ensure Serial implements Device.
var _ Device = (*Serial)(nil)

// Ensure Loopback implements Device.
var _ Device = (*Loopback)(nil)
