package publish

import (
	"sync"

	"github.com/rice5941/nakuru/pkg/diag"
	"github.com/rice5941/nakuru/pkg/keys"
)

// FakePublisher records published events for test assertions.
type FakePublisher struct {
	mu sync.Mutex

	Edges        []Edge
	Frames       []diag.Frame
	Calibrations []keys.Calibration
	Statuses     []Status

	// Payloads contains every JSON payload, in publish order.
	Payloads [][]byte

	// PublishError, if set, is returned by every Publish method.
	PublishError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

var (
	_ Publisher        = (*FakePublisher)(nil)
	_ ConnectionStatus = (*FakePublisher)(nil)
)

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// PublishEdge records the edge.
func (f *FakePublisher) PublishEdge(e Edge) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Edges = append(f.Edges, e)
	return f.record(FormatEdge(e))
}

// PublishFrame records the frame.
func (f *FakePublisher) PublishFrame(fr diag.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Frames = append(f.Frames, fr)
	return f.record(FormatFrame(fr))
}

// PublishCalibration records the calibration.
func (f *FakePublisher) PublishCalibration(c keys.Calibration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Calibrations = append(f.Calibrations, c)
	return f.record(FormatCalibration(c))
}

// PublishStatus records the status.
func (f *FakePublisher) PublishStatus(s Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Statuses = append(f.Statuses, s)
	return f.record(FormatStatus(s))
}

func (f *FakePublisher) record(payload []byte, err error) error {
	if err != nil {
		return err
	}
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// Snapshot returns copies of the recorded edges and frames.
func (f *FakePublisher) Snapshot() ([]Edge, []diag.Frame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Edge(nil), f.Edges...), append([]diag.Frame(nil), f.Frames...)
}
