package diag

import (
	"bytes"
	"encoding/json"
	"io"
	"time"

	"github.com/rice5941/nakuru/pkg/keys"
)

const (
	// DefaultTelemetryInterval is the period between analog snapshots.
	DefaultTelemetryInterval = 10 * time.Millisecond
	// DefaultHeartbeatTimeout disables streaming when no HEARTBEAT arrives.
	DefaultHeartbeatTimeout = 10 * time.Second
	// DefaultMaxLine bounds the command buffer.
	DefaultMaxLine = 64
)

// Options configures a Channel. Zero fields take the defaults.
type Options struct {
	TelemetryInterval time.Duration
	HeartbeatTimeout  time.Duration
	MaxLine           int
}

func (o *Options) ensureDefaults() {
	if o.TelemetryInterval <= 0 {
		o.TelemetryInterval = DefaultTelemetryInterval
	}
	if o.HeartbeatTimeout <= 0 {
		o.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if o.MaxLine <= 0 {
		o.MaxLine = DefaultMaxLine
	}
}

// Channel is the device side of the diagnostics protocol. It reads the board
// and the analog source but never changes key state.
//
// A Channel is driven from a single goroutine (the main loop): Feed hands it
// received bytes, Poll lets it emit timeouts and snapshots. It is not safe for
// concurrent use. Writes to out are best effort; wrap slow sinks in a
// DropWriter so they never stall the caller.
type Channel struct {
	board *keys.Board
	src   keys.AnalogSource
	out   io.Writer
	opts  Options
	start time.Time

	line     []byte
	overflow bool

	streaming     bool
	lastHeartbeat time.Time
	lastFrame     time.Time

	frame Frame
	buf   bytes.Buffer
}

// NewChannel creates a Channel. start is the reference for frame timestamps.
func NewChannel(b *keys.Board, src keys.AnalogSource, out io.Writer, opts Options, start time.Time) *Channel {
	opts.ensureDefaults()
	return &Channel{
		board: b,
		src:   src,
		out:   out,
		opts:  opts,
		start: start,
		line:  make([]byte, 0, opts.MaxLine),
		frame: Frame{
			Type: FrameType,
			Keys: make([]KeyReading, 0, b.Len()),
		},
	}
}

// Streaming reports whether periodic snapshots are enabled.
func (c *Channel) Streaming() bool {
	return c.streaming
}

// Feed consumes received bytes. Complete lines are executed as commands;
// unknown commands are ignored. The line buffer is cleared at every
// terminator, and a line longer than MaxLine is discarded as a whole.
func (c *Channel) Feed(p []byte, now time.Time) {
	for _, b := range p {
		if b == '\n' {
			if !c.overflow {
				c.Command(string(bytes.TrimSpace(c.line)), now)
			}
			c.line = c.line[:0]
			c.overflow = false
			continue
		}
		if c.overflow {
			continue
		}
		if len(c.line) >= c.opts.MaxLine {
			c.overflow = true
			continue
		}
		c.line = append(c.line, b)
	}
}

// Command executes a single trimmed command line and reports whether it was
// recognised.
func (c *Channel) Command(cmd string, now time.Time) bool {
	switch cmd {
	case CmdStart:
		c.streaming = true
		c.lastHeartbeat = now
		c.lastFrame = time.Time{}
		c.status(StatusStarted)
	case CmdStop:
		c.streaming = false
		c.status(StatusStopped)
	case CmdHeartbeat:
		c.lastHeartbeat = now
	default:
		return false
	}
	return true
}

// Poll runs the heartbeat watchdog and emits a snapshot when one is due. The
// first snapshot after START_ANALOG is due immediately.
func (c *Channel) Poll(now time.Time) {
	if !c.streaming {
		return
	}
	if now.Sub(c.lastHeartbeat) > c.opts.HeartbeatTimeout {
		c.streaming = false
		c.status(StatusTimeout)
		return
	}
	if !c.lastFrame.IsZero() && now.Sub(c.lastFrame) < c.opts.TelemetryInterval {
		return
	}
	c.lastFrame = now
	c.snapshot(now)
}

func (c *Channel) snapshot(now time.Time) {
	c.frame.Timestamp = uint64(now.Sub(c.start).Milliseconds())
	c.frame.Keys = c.frame.Keys[:0]
	for id := 0; id < c.board.Len(); id++ {
		level, err := c.src.Read(id)
		if err != nil {
			continue
		}
		c.frame.Keys = append(c.frame.Keys, KeyReading{
			ID:      id,
			AD:      level,
			Pressed: c.board.Key(id).Triggered(level),
		})
	}
	c.emit(&c.frame)
}

func (c *Channel) status(s string) {
	c.emit(Status{Status: s})
}

func (c *Channel) emit(v any) {
	c.buf.Reset()
	// Encoder.Encode appends the line terminator.
	if err := json.NewEncoder(&c.buf).Encode(v); err != nil {
		return
	}
	_, _ = c.out.Write(c.buf.Bytes())
}
