// Package publish bridges keypad telemetry to an MQTT broker: key edges,
// throttled frames, calibration results and stream status.
package publish

import (
	"encoding/json"
	"time"

	"github.com/rice5941/nakuru/pkg/diag"
	"github.com/rice5941/nakuru/pkg/keys"
)

// Topic suffixes under the configured base topic.
const (
	TopicKeys        = "keys"
	TopicFrames      = "frames"
	TopicCalibration = "calibration"
	TopicStatus      = "status"
)

// Online and Offline are the retained payloads of the status topic; Offline
// is also the broker's last will.
const (
	Online  = "online"
	Offline = "offline"
)

// Publisher publishes keypad events.
type Publisher interface {
	// PublishEdge sends one key press or release.
	PublishEdge(e Edge) error
	// PublishFrame sends a telemetry frame.
	PublishFrame(f diag.Frame) error
	// PublishCalibration sends the calibration of one key, retained.
	PublishCalibration(c keys.Calibration) error
	// PublishStatus sends the stream status, retained.
	PublishStatus(s Status) error
	Close() error
}

// ConnectionStatus reports whether the broker connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Edge is a change of the pressed state of one key seen in the frames.
type Edge struct {
	Key     int
	Pressed bool
	AD      uint16
	Uptime  time.Duration // keypad clock
	At      time.Time     // host clock
}

// Status is the keypad stream status.
type Status struct {
	At     time.Time
	Status string // diag status, Online or Offline
}

// EdgePayload is the JSON body of a key edge.
type EdgePayload struct {
	Timestamp string `json:"timestamp"`
	Key       int    `json:"key"`
	Event     string `json:"event"`
	AD        uint16 `json:"ad"`
	UptimeMS  int64  `json:"uptime_ms"`
}

// CalibrationPayload is the JSON body of a calibration result.
type CalibrationPayload struct {
	Key          int     `json:"key"`
	TopDead      uint16  `json:"top_dead"`
	BottomDead   uint16  `json:"bottom_dead"`
	DistanceRate float32 `json:"distance_rate"`
	Threshold    uint16  `json:"threshold"`
	Valid        bool    `json:"valid"`
	Error        string  `json:"error,omitempty"`
}

// StatusPayload is the JSON body of a status update.
type StatusPayload struct {
	Timestamp string `json:"timestamp"`
	Status    string `json:"status"`
}

// FormatEdge creates the JSON payload for a key edge.
func FormatEdge(e Edge) ([]byte, error) {
	event := "RELEASE"
	if e.Pressed {
		event = "PRESS"
	}
	return json.Marshal(EdgePayload{
		Timestamp: e.At.UTC().Format(time.RFC3339Nano),
		Key:       e.Key,
		Event:     event,
		AD:        e.AD,
		UptimeMS:  e.Uptime.Milliseconds(),
	})
}

// FormatFrame creates the JSON payload for a frame, in the keypad's own
// wire format.
func FormatFrame(f diag.Frame) ([]byte, error) {
	return json.Marshal(f)
}

// FormatCalibration creates the JSON payload for a calibration result.
func FormatCalibration(c keys.Calibration) ([]byte, error) {
	p := CalibrationPayload{
		Key:          c.ID,
		TopDead:      c.TopDead,
		BottomDead:   c.BottomDead,
		DistanceRate: c.DistanceRate,
		Threshold:    c.Threshold,
		Valid:        c.Err == nil,
	}
	if c.Err != nil {
		p.Error = c.Err.Error()
	}
	return json.Marshal(p)
}

// FormatStatus creates the JSON payload for a status update.
func FormatStatus(s Status) ([]byte, error) {
	return json.Marshal(StatusPayload{
		Timestamp: s.At.UTC().Format(time.RFC3339),
		Status:    s.Status,
	})
}

// join builds a full topic from the base and a suffix.
func join(base, suffix string) string {
	if base == "" {
		return suffix
	}
	return base + "/" + suffix
}
