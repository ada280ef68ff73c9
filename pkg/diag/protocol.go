// Package diag implements the line oriented diagnostics protocol: commands
// come in as newline terminated ASCII, status objects and analog snapshots go
// out as one JSON object per line.
package diag

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Commands accepted by the device.
const (
	CmdStart     = "START_ANALOG"
	CmdStop      = "STOP_ANALOG"
	CmdHeartbeat = "HEARTBEAT"
)

// Status values reported by the device.
const (
	StatusStarted = "started"
	StatusStopped = "stopped"
	StatusTimeout = "timeout"
)

// FrameType is the "type" of a periodic analog snapshot.
const FrameType = "analog_values"

// ErrUnknownMessage is returned by Parse for a JSON line that is neither a
// status object nor an analog snapshot.
var ErrUnknownMessage = errors.New("unknown diagnostics message")

// Status is the object emitted on start, stop and heartbeat timeout.
type Status struct {
	Status string `json:"status"`
}

// KeyReading is one key of an analog snapshot. Pressed is the raw threshold
// comparison for AD, not the debounced state.
type KeyReading struct {
	ID      int    `json:"id"`
	AD      uint16 `json:"ad"`
	Pressed bool   `json:"pressed"`
}

// Frame is a periodic analog snapshot. Timestamp is in milliseconds since
// the device started.
type Frame struct {
	Type      string       `json:"type"`
	Timestamp uint64       `json:"timestamp"`
	Keys      []KeyReading `json:"keys"`
}

// Message is a decoded line from the device: exactly one of Status or Frame
// is set.
type Message struct {
	Status string
	Frame  *Frame
}

// Parse decodes one output line. Lines that are not JSON, such as the
// calibration report, return an error and are expected to be skipped.
func Parse(line []byte) (Message, error) {
	var raw struct {
		Status    string       `json:"status"`
		Type      string       `json:"type"`
		Timestamp uint64       `json:"timestamp"`
		Keys      []KeyReading `json:"keys"`
	}
	if err := json.Unmarshal(line, &raw); err != nil {
		return Message{}, fmt.Errorf("decode diagnostics line: %w", err)
	}

	switch {
	case raw.Status != "":
		return Message{Status: raw.Status}, nil
	case raw.Type == FrameType:
		return Message{Frame: &Frame{
			Type:      raw.Type,
			Timestamp: raw.Timestamp,
			Keys:      raw.Keys,
		}}, nil
	default:
		return Message{}, ErrUnknownMessage
	}
}
