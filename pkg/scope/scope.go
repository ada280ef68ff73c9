// Package scope is a fyne widget that draws keypad telemetry like an
// oscilloscope: one trace per key, its calibrated threshold, and markers for
// the spans the key was pressed.
package scope

import (
	"image/color"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"

	"github.com/rice5941/nakuru/pkg/keys"
	"github.com/rice5941/nakuru/pkg/trace"
)

// DefaultMaxPoints limits the points drawn per trace.
const DefaultMaxPoints = 600

// ScopeWidget is a custom Fyne widget that displays per-key level traces.
type ScopeWidget struct {
	widget.BaseWidget

	window time.Duration
	full   uint16 // converter full scale

	// Data (protected by mu)
	mu           sync.RWMutex
	keys         []int
	series       map[int][]trace.Point
	strokes      []trace.Stroke
	calibrations map[int]keys.Calibration
	hidden       map[int]bool
	status       string

	// Auto-scaling
	yMin, yMax float64
	xMin, xMax time.Duration

	maxPoints int
}

// New creates a scope showing the given window of a converter with the given
// resolution in bits.
func New(window time.Duration, resolution uint8) *ScopeWidget {
	if window <= 0 {
		window = trace.DefaultWindow
	}
	if resolution == 0 || resolution > 16 {
		resolution = 10
	}
	s := &ScopeWidget{
		window:       window,
		full:         uint16(1<<resolution - 1),
		series:       make(map[int][]trace.Point),
		calibrations: make(map[int]keys.Calibration),
		hidden:       make(map[int]bool),
		maxPoints:    DefaultMaxPoints,
	}
	s.updateAutoScale()
	s.ExtendBaseWidget(s)
	return s
}

// UpdateData replaces the displayed data. Call it from the recorder callback
// through fyne.Do.
func (s *ScopeWidget) UpdateData(snap trace.Snapshot) {
	s.mu.Lock()

	s.keys = snap.Keys
	for _, id := range snap.Keys {
		s.series[id] = trace.Downsample(s.series[id], snap.Series[id], s.maxPoints)
	}
	s.strokes = snap.Strokes
	s.calibrations = snap.Calibrations
	s.status = string(snap.Status)
	s.updateAutoScale()

	s.mu.Unlock()

	// Refresh outside the lock
	s.Refresh()
}

// SetVisible shows or hides the trace of one key.
func (s *ScopeWidget) SetVisible(id int, visible bool) {
	s.mu.Lock()
	s.hidden[id] = !visible
	s.updateAutoScale()
	s.mu.Unlock()

	s.Refresh()
}

// updateAutoScale fits the Y axis to the visible traces and thresholds and
// the X axis to the window ending at the newest point.
func (s *ScopeWidget) updateAutoScale() {
	lo, hi := float64(s.full), 0.0
	var latest time.Duration
	for _, id := range s.keys {
		if s.hidden[id] {
			continue
		}
		for _, p := range s.series[id] {
			lo = min(lo, float64(p.AD))
			hi = max(hi, float64(p.AD))
			latest = max(latest, p.At)
		}
		if c, ok := s.calibrations[id]; ok && c.Err == nil {
			lo = min(lo, float64(c.Threshold), float64(c.BottomDead))
			hi = max(hi, float64(c.Threshold), float64(c.TopDead))
		}
	}

	if hi < lo {
		lo, hi = 0, float64(s.full)
	}

	// Add 10% margin
	span := hi - lo
	if span == 0 {
		span = float64(s.full) / 10
	}
	margin := span * 0.1
	s.yMin = max(lo-margin, 0)
	s.yMax = min(hi+margin, float64(s.full))

	s.xMax = max(latest, s.window)
	s.xMin = s.xMax - s.window
}

// CreateRenderer creates the widget renderer.
func (s *ScopeWidget) CreateRenderer() fyne.WidgetRenderer {
	bg := canvas.NewRectangle(color.RGBA{R: 20, G: 20, B: 20, A: 255})
	return &scopeRenderer{
		scope:   s,
		bg:      bg,
		objects: []fyne.CanvasObject{bg},
	}
}
