package engine

import (
	"fmt"
	"io"

	"github.com/rice5941/nakuru/pkg/keys"
)

// TextObserver prints calibration results and the scan rate as plain text
// lines, the way the keypad reports them on its diagnostics port. Host tools
// skip these lines when parsing frames.
type TextObserver struct {
	w    io.Writer
	vref float32
	bits uint8
}

var _ Observer = (*TextObserver)(nil)

// NewTextObserver writes to w; levels are also shown in volts for a
// converter with reference vref and the given resolution.
func NewTextObserver(w io.Writer, vref float32, bits uint8) *TextObserver {
	return &TextObserver{w: w, vref: vref, bits: bits}
}

func (o *TextObserver) Calibrated(c keys.Calibration) {
	fmt.Fprintf(o.w, "(key:%d) topDead:%d (%.3fV) bottomDead:%d (%.3fV)\n",
		c.ID, c.TopDead, keys.Volts(c.TopDead, o.vref, o.bits), c.BottomDead, keys.Volts(c.BottomDead, o.vref, o.bits))
	if c.Err != nil {
		fmt.Fprintf(o.w, "(key:%d) calibration failed: %v\n", c.ID, c.Err)
		return
	}
	fmt.Fprintf(o.w, "(key:%d) distanceRate:%.2f threshold:%d\n", c.ID, c.DistanceRate, c.Threshold)
}

func (o *TextObserver) ScanRate(r ScanReport) {
	fmt.Fprintf(o.w, "ScanRate: %.1fHz\n", r.Hz())
}
