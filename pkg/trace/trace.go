// Package trace keeps a time window of keypad telemetry for display: per-key
// level series, the pressed spans (strokes) found in them and the latest
// calibration of every key.
package trace

import (
	"sort"
	"sync"
	"time"

	"github.com/rice5941/nakuru/pkg/diag"
	"github.com/rice5941/nakuru/pkg/keys"
	"github.com/rice5941/nakuru/pkg/link"
)

// DefaultWindow is how much history a Recorder keeps.
const DefaultWindow = 5 * time.Second

// Point is one key reading from a telemetry frame.
type Point struct {
	At      time.Duration // keypad uptime
	AD      uint16
	Pressed bool
}

// Stroke is a span during which a key was reported pressed.
type Stroke struct {
	Key   int
	Start time.Duration
	End   time.Duration
	Peak  uint16 // lowest level seen, the deepest point of travel
	Open  bool   // still pressed at the latest frame
}

// Duration returns how long the key has been held.
func (s Stroke) Duration() time.Duration {
	return s.End - s.Start
}

// Snapshot is a copy of the recorder state handed to callbacks.
type Snapshot struct {
	Keys         []int // sorted key ids
	Series       map[int][]Point
	Strokes      []Stroke
	Calibrations map[int]keys.Calibration
	Status       string
	ScanRate     float64
	Latest       time.Duration
}

// Recorder consumes link messages and maintains the window.
type Recorder struct {
	window time.Duration

	mu           sync.RWMutex
	series       map[int][]Point
	strokes      []Stroke
	open         map[int]int // key id -> index into strokes
	calibrations map[int]keys.Calibration
	status       string
	scanRate     float64
	latest       time.Duration
	frames       uint64
	restarts     uint64

	// Shutdown control
	shutdown bool

	callbacks []func(Snapshot)
	cbMu      sync.RWMutex
}

// New creates a Recorder keeping the given window; zero takes the default.
func New(window time.Duration) *Recorder {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Recorder{
		window:       window,
		series:       make(map[int][]Point),
		open:         make(map[int]int),
		calibrations: make(map[int]keys.Calibration),
	}
}

// ProcessMessages consumes input until it is closed. No callbacks are made
// after that.
func (r *Recorder) ProcessMessages(input <-chan link.Message) {
	for m := range input {
		if r.Add(m) {
			r.notifyCallbacks()
		}
	}
	r.mu.Lock()
	r.shutdown = true
	r.mu.Unlock()
}

// Add records one message. It reports whether callbacks should run.
func (r *Recorder) Add(m link.Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case m.Frame != nil:
		r.addFrame(m.Frame)
	case m.Status != "":
		r.status = m.Status
		if m.Status != diag.StatusStarted {
			r.closeStrokes()
		}
	case m.Calibration != nil:
		r.calibrations[m.Calibration.ID] = *m.Calibration
	case m.ScanRate > 0:
		r.scanRate = m.ScanRate
	default:
		return false
	}
	return !r.shutdown
}

func (r *Recorder) addFrame(f *diag.Frame) {
	at := time.Duration(f.Timestamp) * time.Millisecond
	if r.frames > 0 && at < r.latest {
		// the keypad restarted
		r.resetLocked()
		r.restarts++
	}
	r.frames++
	r.latest = at

	for _, k := range f.Keys {
		r.series[k.ID] = append(r.series[k.ID], Point{At: at, AD: k.AD, Pressed: k.Pressed})
		r.track(k, at)
	}

	r.trim(at - r.window)
}

// track extends or closes the stroke of one key.
func (r *Recorder) track(k diag.KeyReading, at time.Duration) {
	idx, open := r.open[k.ID]
	switch {
	case k.Pressed && open:
		s := &r.strokes[idx]
		s.End = at
		if k.AD < s.Peak {
			s.Peak = k.AD
		}
	case k.Pressed:
		r.open[k.ID] = len(r.strokes)
		r.strokes = append(r.strokes, Stroke{Key: k.ID, Start: at, End: at, Peak: k.AD, Open: true})
	case open:
		r.strokes[idx].End = at
		r.strokes[idx].Open = false
		delete(r.open, k.ID)
	}
}

func (r *Recorder) closeStrokes() {
	for id, idx := range r.open {
		r.strokes[idx].Open = false
		delete(r.open, id)
	}
}

// trim drops points and finished strokes older than cutoff.
func (r *Recorder) trim(cutoff time.Duration) {
	for id, pts := range r.series {
		i := sort.Search(len(pts), func(i int) bool { return pts[i].At >= cutoff })
		if i > 0 {
			r.series[id] = append(pts[:0], pts[i:]...)
		}
	}

	kept := r.strokes[:0]
	for _, s := range r.strokes {
		if s.Open || s.End >= cutoff {
			kept = append(kept, s)
		}
	}
	r.strokes = kept

	for i, s := range r.strokes {
		if s.Open {
			r.open[s.Key] = i
		}
	}
}

func (r *Recorder) resetLocked() {
	r.series = make(map[int][]Point)
	r.strokes = r.strokes[:0]
	r.open = make(map[int]int)
}

// Reset clears the history, keeping calibrations.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetLocked()
	r.frames = 0
	r.latest = 0
}

// Series returns a copy of the points of one key.
func (r *Recorder) Series(id int) []Point {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pts := r.series[id]
	result := make([]Point, len(pts))
	copy(result, pts)
	return result
}

// Strokes returns a copy of the strokes within the window.
func (r *Recorder) Strokes() []Stroke {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Stroke, len(r.strokes))
	copy(result, r.strokes)
	return result
}

// Frames returns the number of frames recorded and how many times the keypad
// clock went backwards.
func (r *Recorder) Frames() (frames, restarts uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frames, r.restarts
}

// Snapshot returns a copy of the current state.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Snapshot{
		Keys:         make([]int, 0, len(r.series)),
		Series:       make(map[int][]Point, len(r.series)),
		Strokes:      make([]Stroke, len(r.strokes)),
		Calibrations: make(map[int]keys.Calibration, len(r.calibrations)),
		Status:       r.status,
		ScanRate:     r.scanRate,
		Latest:       r.latest,
	}
	for id, pts := range r.series {
		s.Keys = append(s.Keys, id)
		s.Series[id] = append([]Point(nil), pts...)
	}
	sort.Ints(s.Keys)
	copy(s.Strokes, r.strokes)
	for id, c := range r.calibrations {
		s.Calibrations[id] = c
	}
	return s
}

// OnUpdate registers a callback run after every recorded message. The
// callback receives its own copy and should return quickly.
func (r *Recorder) OnUpdate(callback func(Snapshot)) {
	r.cbMu.Lock()
	defer r.cbMu.Unlock()
	r.callbacks = append(r.callbacks, callback)
}

// ResetShutdown allows callbacks again before a new ProcessMessages.
func (r *Recorder) ResetShutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shutdown = false
}

func (r *Recorder) notifyCallbacks() {
	r.cbMu.RLock()
	callbacks := make([]func(Snapshot), len(r.callbacks))
	copy(callbacks, r.callbacks)
	r.cbMu.RUnlock()

	if len(callbacks) == 0 {
		return
	}
	snap := r.Snapshot()
	for _, cb := range callbacks {
		if cb != nil {
			cb(snap)
		}
	}
}
