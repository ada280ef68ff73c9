// Package engine wires the key pipeline together: calibration once, then a
// cooperative main loop that samples keys and serves diagnostics, and a
// resolver goroutine on a fixed tick.
package engine

import (
	"context"
	"errors"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rice5941/nakuru/pkg/diag"
	"github.com/rice5941/nakuru/pkg/keys"
)

const (
	// DefaultScanInterval is the pause between aggregator passes.
	DefaultScanInterval = 100 * time.Microsecond
	// DefaultScanReportAfter is when the one-off scan rate report is made.
	DefaultScanReportAfter = 5 * time.Second
)

// ErrStarted is returned by Run when the engine has already been run.
var ErrStarted = errors.New("engine already started")

// ScanReport is the one-off measurement of aggregator throughput.
type ScanReport struct {
	Passes  uint64
	Elapsed time.Duration
}

// Hz returns passes per second.
func (r ScanReport) Hz() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Passes) / r.Elapsed.Seconds()
}

// Observer receives informational events. None of them affect behaviour.
type Observer interface {
	keys.Reporter
	ScanRate(r ScanReport)
}

// Options configures an Engine. Zero durations take the defaults.
type Options struct {
	ResolvePeriod   time.Duration
	ScanInterval    time.Duration // negative yields the processor instead of sleeping
	ScanReportAfter time.Duration
	Diagnostics     diag.Options

	Calibrator *keys.Calibrator
	Observer   Observer
}

func (o *Options) ensureDefaults() {
	if o.ResolvePeriod <= 0 {
		o.ResolvePeriod = keys.DefaultResolvePeriod
	}
	if o.ScanInterval == 0 {
		o.ScanInterval = DefaultScanInterval
	}
	if o.ScanReportAfter <= 0 {
		o.ScanReportAfter = DefaultScanReportAfter
	}
	if o.Calibrator == nil {
		o.Calibrator = keys.NewCalibrator(keys.DefaultStroke, keys.DefaultActivation, keys.DefaultSettle)
	}
	if o.Observer != nil && o.Calibrator.Reporter == nil {
		o.Calibrator.Reporter = o.Observer
	}
}

// Engine owns one board and runs it against an analog source and a HID.
type Engine struct {
	board *keys.Board
	src   keys.AnalogSource
	hid   keys.HID
	opts  Options

	agg keys.Aggregator
	res keys.Resolver

	started    atomic.Bool
	calibrated chan struct{}
	now        func() time.Time
}

// New creates an Engine for the board.
func New(b *keys.Board, src keys.AnalogSource, hid keys.HID, opts Options) *Engine {
	opts.ensureDefaults()
	return &Engine{
		board:      b,
		src:        src,
		hid:        hid,
		opts:       opts,
		calibrated: make(chan struct{}),
		now:        time.Now,
	}
}

// Board returns the board driven by the engine.
func (e *Engine) Board() *keys.Board {
	return e.board
}

// Calibrated is closed once calibration has finished and sampling starts.
func (e *Engine) Calibrated() <-chan struct{} {
	return e.calibrated
}

// Passes returns the number of aggregator passes so far.
func (e *Engine) Passes() uint64 {
	return e.agg.Passes()
}

// ReadErrors returns the number of failed analog reads while sampling.
func (e *Engine) ReadErrors() uint64 {
	return e.agg.Errors()
}

// Releases returns the number of release edges so far.
func (e *Engine) Releases() uint64 {
	return e.res.Releases()
}

// Run calibrates the board and then runs until ctx is cancelled. Diagnostics
// commands are read from in, which may be nil, and replies go to out. Run
// returns an error only when calibration is interrupted. An Engine runs once;
// later calls return ErrStarted.
func (e *Engine) Run(ctx context.Context, in <-chan []byte, out io.Writer) error {
	if !e.started.CompareAndSwap(false, true) {
		return ErrStarted
	}
	if err := e.opts.Calibrator.Calibrate(ctx, e.board, e.src); err != nil {
		return err
	}
	close(e.calibrated)

	if out == nil {
		out = io.Discard
	}
	start := e.now()
	ch := diag.NewChannel(e.board, e.src, out, e.opts.Diagnostics, start)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.resolve(ctx)
	}()
	defer wg.Wait()

	reported := false
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		e.agg.Sample(e.board, e.src)

		now := e.now()
		in = drain(in, ch, now)
		ch.Poll(now)

		if !reported && now.Sub(start) >= e.opts.ScanReportAfter {
			reported = true
			if e.opts.Observer != nil {
				e.opts.Observer.ScanRate(ScanReport{Passes: e.agg.Passes(), Elapsed: now.Sub(start)})
			}
		}

		if e.opts.ScanInterval > 0 {
			time.Sleep(e.opts.ScanInterval)
		} else {
			runtime.Gosched()
		}
	}
}

func (e *Engine) resolve(ctx context.Context) {
	ticker := time.NewTicker(e.opts.ResolvePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.res.Resolve(e.board, e.hid)
		}
	}
}

// drain feeds everything already received to the channel without blocking.
// It returns nil once in is closed so later passes skip it.
func drain(in <-chan []byte, ch *diag.Channel, now time.Time) <-chan []byte {
	for in != nil {
		select {
		case p, ok := <-in:
			if !ok {
				return nil
			}
			ch.Feed(p, now)
		default:
			return in
		}
	}
	return nil
}
