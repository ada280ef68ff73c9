package publish

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/rice5941/nakuru/pkg/diag"
	"github.com/rice5941/nakuru/pkg/link"
)

// DefaultFrameInterval throttles the frames topic.
const DefaultFrameInterval = 100 * time.Millisecond

// Bridge turns link messages into published events. Publish failures are
// logged and counted but never stop the bridge.
type Bridge struct {
	pub           Publisher
	frameInterval time.Duration

	pressed   map[int]bool
	lastFrame time.Duration
	sent      bool
	failures  uint64
}

// NewBridge creates a bridge. A negative frameInterval disables frame
// publishing; zero takes the default.
func NewBridge(pub Publisher, frameInterval time.Duration) *Bridge {
	if frameInterval == 0 {
		frameInterval = DefaultFrameInterval
	}
	return &Bridge{
		pub:           pub,
		frameInterval: frameInterval,
		pressed:       make(map[int]bool),
	}
}

// Run handles messages until in is closed or ctx is done. The keypad is
// reported online first.
func (b *Bridge) Run(ctx context.Context, in <-chan link.Message) {
	b.check(b.pub.PublishStatus(Status{At: time.Now(), Status: Online}), "status")

	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-in:
			if !ok {
				return
			}
			b.Handle(m)
		}
	}
}

// Handle publishes whatever one message carries.
func (b *Bridge) Handle(m link.Message) {
	switch {
	case m.Frame != nil:
		b.frame(m.Received, m.Frame)
	case m.Status != "":
		if m.Status != diag.StatusStarted {
			b.pressed = make(map[int]bool)
		}
		b.check(b.pub.PublishStatus(Status{At: m.Received, Status: string(m.Status)}), "status")
	case m.Calibration != nil:
		b.check(b.pub.PublishCalibration(*m.Calibration), "calibration")
	}
}

// Failures returns the number of failed publishes.
func (b *Bridge) Failures() uint64 {
	return b.failures
}

func (b *Bridge) frame(at time.Time, f *diag.Frame) {
	uptime := time.Duration(f.Timestamp) * time.Millisecond

	for _, k := range f.Keys {
		if b.pressed[k.ID] == k.Pressed {
			continue
		}
		b.pressed[k.ID] = k.Pressed
		b.check(b.pub.PublishEdge(Edge{Key: k.ID, Pressed: k.Pressed, AD: k.AD, Uptime: uptime, At: at}), "edge")
	}

	if b.frameInterval < 0 {
		return
	}
	if b.sent && uptime >= b.lastFrame && uptime-b.lastFrame < b.frameInterval {
		return
	}
	b.sent = true
	b.lastFrame = uptime
	b.check(b.pub.PublishFrame(*f), "frame")
}

func (b *Bridge) check(err error, what string) {
	if err == nil {
		return
	}
	b.failures++
	log.WithError(err).WithField("event", what).Warn("publish failed")
}
