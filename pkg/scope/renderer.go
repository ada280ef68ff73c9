package scope

import (
	"fmt"
	"image/color"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"

	"github.com/rice5941/nakuru/pkg/keys"
	"github.com/rice5941/nakuru/pkg/trace"
)

var (
	gridColor  = color.RGBA{R: 40, G: 40, B: 40, A: 255}
	labelColor = color.RGBA{R: 150, G: 150, B: 150, A: 255}

	palette = []color.RGBA{
		{R: 255, G: 165, B: 0, A: 255},
		{R: 100, G: 200, B: 255, A: 255},
		{R: 120, G: 220, B: 120, A: 255},
		{R: 255, G: 105, B: 180, A: 255},
		{R: 240, G: 230, B: 140, A: 255},
		{R: 186, G: 140, B: 255, A: 255},
		{R: 255, G: 99, B: 71, A: 255},
		{R: 64, G: 224, B: 208, A: 255},
	}
)

// KeyColor returns the trace color of a key.
func KeyColor(id int) color.RGBA {
	if id < 0 {
		id = -id
	}
	return palette[id%len(palette)]
}

func dim(c color.RGBA) color.RGBA {
	c.A = 110
	return c
}

// plot maps keypad time and levels to positions inside the plot area.
type plot struct {
	x, y, w, h float32
	yMin, yMax float64
	xMin, xMax time.Duration
}

func (p plot) pos(at time.Duration, level float64) fyne.Position {
	return fyne.NewPos(p.xPos(at), p.yPos(level))
}

func (p plot) xPos(at time.Duration) float32 {
	span := p.xMax - p.xMin
	if span <= 0 {
		return p.x
	}
	return p.x + float32(float64(at-p.xMin)/float64(span))*p.w
}

func (p plot) yPos(level float64) float32 {
	span := p.yMax - p.yMin
	if span <= 0 {
		return p.y + p.h
	}
	return p.y + p.h - float32((level-p.yMin)/span)*p.h
}

// scopeRenderer renders the scope widget.
type scopeRenderer struct {
	scope *ScopeWidget

	bg      *canvas.Rectangle
	objects []fyne.CanvasObject

	lastSize fyne.Size
}

// MinSize returns the minimum size of the widget.
func (r *scopeRenderer) MinSize() fyne.Size {
	return fyne.NewSize(400, 300)
}

// Layout arranges the widget components.
func (r *scopeRenderer) Layout(size fyne.Size) {
	r.bg.Resize(size)

	if r.lastSize != size {
		r.lastSize = size
		r.scope.BaseWidget.Refresh()
	}
}

// Refresh rebuilds every canvas object from the widget data.
func (r *scopeRenderer) Refresh() {
	s := r.scope
	s.mu.RLock()
	ids := s.keys
	series := make(map[int][]trace.Point, len(ids))
	for _, id := range ids {
		if !s.hidden[id] {
			series[id] = s.series[id]
		}
	}
	strokes := s.strokes
	calibrations := s.calibrations
	status := s.status
	p := plot{yMin: s.yMin, yMax: s.yMax, xMin: s.xMin, xMax: s.xMax}
	s.mu.RUnlock()

	size := s.Size()
	r.objects = []fyne.CanvasObject{r.bg}
	if size.Width == 0 || size.Height == 0 {
		return
	}

	const (
		marginLeft   = 50
		marginRight  = 20
		marginTop    = 20
		marginBottom = 40
	)
	p.x, p.y = marginLeft, marginTop
	p.w = size.Width - marginLeft - marginRight
	p.h = size.Height - marginTop - marginBottom

	r.drawGrid(p)
	for _, id := range ids {
		pts, ok := series[id]
		if !ok {
			continue
		}
		if c, ok := calibrations[id]; ok {
			r.drawCalibration(p, c)
		}
		r.drawTrace(p, id, pts)
	}
	for _, st := range strokes {
		if _, ok := series[st.Key]; ok {
			r.drawStroke(p, st)
		}
	}
	r.drawLegend(p, ids, series, calibrations, status)
}

// drawGrid draws the grid with level and time labels.
func (r *scopeRenderer) drawGrid(p plot) {
	const rows, cols = 8, 10
	for i := 0; i < rows+1; i++ {
		level := p.yMax - float64(i)*(p.yMax-p.yMin)/rows
		y := p.yPos(level)
		r.line(gridColor, 1, fyne.NewPos(p.x, y), fyne.NewPos(p.x+p.w, y))
		r.text(fmt.Sprintf("%.0f", level), labelColor, 10, fyne.TextAlignTrailing, fyne.NewPos(p.x-5, y-6))
	}
	for i := 0; i < cols+1; i++ {
		at := p.xMin + time.Duration(i)*(p.xMax-p.xMin)/cols
		x := p.xPos(at)
		r.line(gridColor, 1, fyne.NewPos(x, p.y), fyne.NewPos(x, p.y+p.h))
		r.text(formatTime(at), labelColor, 10, fyne.TextAlignCenter, fyne.NewPos(x-20, p.y+p.h+5))
	}
}

// drawTrace draws one key's levels; pressed segments are drawn thicker.
func (r *scopeRenderer) drawTrace(p plot, id int, pts []trace.Point) {
	c := KeyColor(id)
	for i := 0; i+1 < len(pts); i++ {
		if pts[i+1].At < p.xMin {
			continue
		}
		width := float32(1.5)
		if pts[i].Pressed && pts[i+1].Pressed {
			width = 3
		}
		r.line(c, width, p.pos(pts[i].At, float64(pts[i].AD)), p.pos(pts[i+1].At, float64(pts[i+1].AD)))
	}
}

// drawCalibration draws the threshold of a calibrated key across the plot.
func (r *scopeRenderer) drawCalibration(p plot, c keys.Calibration) {
	if c.Err != nil {
		return
	}
	y := p.yPos(float64(c.Threshold))
	r.line(dim(KeyColor(c.ID)), 1, fyne.NewPos(p.x, y), fyne.NewPos(p.x+p.w, y))
}

// drawStroke marks a pressed span along the bottom of the plot and labels
// how long it lasted.
func (r *scopeRenderer) drawStroke(p plot, st trace.Stroke) {
	start := max(st.Start, p.xMin)
	if st.End < start {
		return
	}
	c := KeyColor(st.Key)
	y := p.y + p.h - 4 - float32(st.Key%len(palette))*4
	r.line(c, 3, fyne.NewPos(p.xPos(start), y), fyne.NewPos(p.xPos(st.End), y))
	if !st.Open {
		r.text(formatTime(st.Duration()), c, 10, fyne.TextAlignCenter,
			fyne.NewPos(p.xPos(start+(st.End-start)/2)-20, p.yPos(float64(st.Peak))+4))
	}
}

// drawLegend lists the keys with their calibration and the stream status.
func (r *scopeRenderer) drawLegend(p plot, ids []int, series map[int][]trace.Point, calibrations map[int]keys.Calibration, status string) {
	y := p.y + 4
	if status != "" {
		r.text(status, labelColor, 11, fyne.TextAlignLeading, fyne.NewPos(p.x+8, y))
		y += 14
	}
	for _, id := range ids {
		if _, ok := series[id]; !ok {
			continue
		}
		r.text(legend(id, calibrations, series[id]), KeyColor(id), 11, fyne.TextAlignLeading, fyne.NewPos(p.x+8, y))
		y += 14
	}
}

// legend describes one key. A calibrated key also shows the travel of its
// latest sample in millimetres above bottom dead.
func legend(id int, calibrations map[int]keys.Calibration, pts []trace.Point) string {
	c, ok := calibrations[id]
	switch {
	case !ok:
		return fmt.Sprintf("key %d", id)
	case c.Err != nil:
		return fmt.Sprintf("key %d: not calibrated", id)
	case len(pts) == 0:
		return fmt.Sprintf("key %d: threshold %d (%.1f/mm)", id, c.Threshold, c.DistanceRate)
	default:
		return fmt.Sprintf("key %d: %.2fmm, threshold %d (%.1f/mm)", id, c.Travel(pts[len(pts)-1].AD), c.Threshold, c.DistanceRate)
	}
}

func (r *scopeRenderer) line(c color.Color, width float32, from, to fyne.Position) {
	l := canvas.NewLine(c)
	l.Position1 = from
	l.Position2 = to
	l.StrokeWidth = width
	r.objects = append(r.objects, l)
}

func (r *scopeRenderer) text(s string, c color.Color, size float32, align fyne.TextAlign, at fyne.Position) {
	t := canvas.NewText(s, c)
	t.TextSize = size
	t.Alignment = align
	t.Move(at)
	r.objects = append(r.objects, t)
}

// Objects returns all canvas objects for rendering.
func (r *scopeRenderer) Objects() []fyne.CanvasObject {
	return r.objects
}

// Destroy cleans up resources.
func (r *scopeRenderer) Destroy() {}

func formatTime(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}
