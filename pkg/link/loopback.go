package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rice5941/nakuru/pkg/analog"
	"github.com/rice5941/nakuru/pkg/config"
	"github.com/rice5941/nakuru/pkg/diag"
	"github.com/rice5941/nakuru/pkg/engine"
	"github.com/rice5941/nakuru/pkg/keys"
)

// Loopback runs a complete keypad engine in process against simulated
// sensors and talks to it over in-memory pipes, for development without
// hardware.
type Loopback struct {
	cfg  *config.Config
	hid  keys.HID
	opts Options

	mu        sync.RWMutex
	connected bool
	stream    *stream
	engine    *engine.Engine
	cancel    context.CancelFunc
	done      chan error
	out       *diag.DropWriter
	pw        *io.PipeWriter
}

// NewLoopback creates a simulated keypad. Edges go to hid, which may be nil.
func NewLoopback(cfg *config.Config, hid keys.HID, opts Options) *Loopback {
	if cfg == nil {
		cfg = config.Default()
	}
	if hid == nil {
		hid = nopHID{}
	}
	opts.ensureDefaults()

	return &Loopback{
		cfg:    cfg,
		hid:    hid,
		opts:   opts,
		stream: newStream(opts, "loopback"),
	}
}

// SimConfig converts the mock section of the configuration.
func SimConfig(cfg *config.Config) analog.SimConfig {
	return analog.SimConfig{
		Keys:          cfg.Keys.Count,
		Top:           cfg.Mock.Top,
		Bottom:        cfg.Mock.Bottom,
		Noise:         cfg.Mock.Noise,
		PressPeriod:   cfg.Mock.PressPeriod,
		PressDuration: cfg.Mock.PressDuration,
		Seed:          cfg.Mock.Seed,
	}
}

// Connect starts the engine and streaming. Calibration runs first, so frames
// arrive after the configured settle time.
func (l *Loopback) Connect() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.connected {
		return fmt.Errorf("already connected")
	}

	sim := analog.NewSim(SimConfig(l.cfg))
	pr, pw := io.Pipe()
	out := diag.NewDropWriter(pw, l.cfg.Diagnostics.OutputBuffer)

	cal := keys.NewCalibrator(l.cfg.Calibration.StrokeMM, l.cfg.Calibration.ActivationMM, l.cfg.Calibration.Settle)
	cal.Prompt = sim.Prompt

	l.engine = engine.New(keys.NewBoard(l.cfg.Keys.Count), sim, l.hid, engine.Options{
		ResolvePeriod:   l.cfg.Timing.ResolvePeriod,
		ScanInterval:    l.cfg.Timing.ScanInterval,
		ScanReportAfter: l.cfg.Timing.ScanReportAfter,
		Diagnostics: diag.Options{
			TelemetryInterval: l.cfg.Diagnostics.TelemetryInterval,
			HeartbeatTimeout:  l.cfg.Diagnostics.HeartbeatTimeout,
		},
		Calibrator: cal,
		Observer:   engine.NewTextObserver(out, l.cfg.Analog.VRef, l.cfg.Analog.Resolution),
	})

	in := make(chan []byte, engine.DefaultInputBuffer)
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan error, 1)
	l.out = out
	l.pw = pw

	go func() {
		l.done <- l.engine.Run(ctx, in, out)
	}()

	l.connected = true
	return l.stream.start(pr, chanWriter(in))
}

// Close stops the engine and streaming.
func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.connected {
		return nil
	}

	l.stream.stop()
	l.cancel()
	err := <-l.done
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	l.out.Close()
	l.pw.Close()
	l.stream.finish()
	l.connected = false

	return err
}

// Messages returns the channel of decoded messages.
func (l *Loopback) Messages() <-chan Message {
	return l.stream.messages
}

// IsConnected returns whether the loopback is running.
func (l *Loopback) IsConnected() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.connected
}

// Engine returns the running engine, nil before Connect.
func (l *Loopback) Engine() *engine.Engine {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.engine
}

// chanWriter hands each write to the engine's input without blocking.
type chanWriter chan<- []byte

func (c chanWriter) Write(p []byte) (int, error) {
	b := make([]byte, len(p))
	copy(b, p)
	select {
	case c <- b:
	default:
	}
	return len(p), nil
}

type nopHID struct{}

func (nopHID) Press(int)   {}
func (nopHID) Release(int) {}
