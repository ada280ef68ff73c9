package keys

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/chewxy/math32"
)

const (
	// DefaultStroke is the total switch travel in millimetres.
	DefaultStroke = 2.5
	// DefaultActivation is the actuation point in millimetres above bottom dead.
	DefaultActivation = 1.0
	// DefaultSettle is how long the operator has to bottom out every key.
	DefaultSettle = 5 * time.Second
)

// ErrCalibrationInconsistent is reported for a key whose top dead level is
// missing, whose bottom dead level is missing, or whose top dead level is not
// above its bottom dead level.
var ErrCalibrationInconsistent = errors.New("calibration inconsistent")

// Phase identifies a step of the calibration routine.
type Phase uint8

const (
	PhaseTopDead Phase = iota
	PhaseSettle
	PhaseBottomDead
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseTopDead:
		return "top-dead"
	case PhaseSettle:
		return "settle"
	case PhaseBottomDead:
		return "bottom-dead"
	default:
		return "done"
	}
}

// Calibration is the outcome of calibrating one key.
type Calibration struct {
	ID           int
	TopDead      uint16
	BottomDead   uint16
	DistanceRate float32
	Threshold    uint16
	Err          error // wraps ErrCalibrationInconsistent for an invalid key
}

// Travel converts a raw level into millimetres above bottom dead. It returns
// 0 for a failed calibration.
func (c Calibration) Travel(level uint16) float32 {
	if c.Err != nil || c.DistanceRate == 0 {
		return 0
	}
	return (float32(level) - float32(c.BottomDead)) / c.DistanceRate
}

// Reporter receives one Calibration per key. Reporting is informational and
// never changes behaviour.
type Reporter interface {
	Calibrated(c Calibration)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(c Calibration)

func (f ReporterFunc) Calibrated(c Calibration) { f(c) }

// Calibrator runs the one-shot two phase calibration.
type Calibrator struct {
	Stroke     float32 // total travel, mm
	Activation float32 // actuation point above bottom dead, mm
	Settle     time.Duration

	// Wait blocks for the settle delay. Defaults to a context aware sleep.
	Wait func(ctx context.Context, d time.Duration) error
	// Prompt, if set, is called when each phase begins.
	Prompt   func(p Phase)
	Reporter Reporter
}

// NewCalibrator creates a Calibrator with the given geometry and settle delay.
func NewCalibrator(stroke, activation float32, settle time.Duration) *Calibrator {
	return &Calibrator{
		Stroke:     stroke,
		Activation: activation,
		Settle:     settle,
	}
}

// Calibrate reads top dead levels, waits for the operator to bottom out every
// switch, reads bottom dead levels and derives thresholds. Keys that fail the
// consistency check are left invalid and reported; the others stay usable.
// The only error returned is a cancellation during the settle wait, in which
// case every key is left invalid.
func (c *Calibrator) Calibrate(ctx context.Context, b *Board, src AnalogSource) error {
	c.prompt(PhaseTopDead)
	for i := range b.keys {
		b.keys[i].TopDead = readLevel(src, i)
	}

	c.prompt(PhaseSettle)
	wait := c.Wait
	if wait == nil {
		wait = sleep
	}
	if err := wait(ctx, c.Settle); err != nil {
		for i := range b.keys {
			b.keys[i].Valid = false
		}
		return fmt.Errorf("calibration settle: %w", err)
	}

	c.prompt(PhaseBottomDead)
	for i := range b.keys {
		k := &b.keys[i]
		k.BottomDead = readLevel(src, i)
		err := k.Derive(c.Stroke, c.Activation)
		if c.Reporter != nil {
			cal := k.Calibration()
			cal.Err = err
			c.Reporter.Calibrated(cal)
		}
	}
	c.prompt(PhaseDone)

	return nil
}

func (c *Calibrator) prompt(p Phase) {
	if c.Prompt != nil {
		c.Prompt(p)
	}
}

// Derive computes DistanceRate, Threshold and Valid from TopDead and
// BottomDead. stroke is the full travel and activation the actuation point
// above bottom dead, both in millimetres.
func (k *Key) Derive(stroke, activation float32) error {
	if k.TopDead == 0 || k.BottomDead == 0 || k.TopDead <= k.BottomDead || stroke <= 0 {
		k.Valid = false
		k.DistanceRate = 0
		k.Threshold = 0
		return fmt.Errorf("key %d: top %d bottom %d: %w", k.ID, k.TopDead, k.BottomDead, ErrCalibrationInconsistent)
	}

	k.DistanceRate = float32(k.TopDead-k.BottomDead) / stroke
	level := math32.Floor(float32(k.BottomDead) + activation*k.DistanceRate)
	level = math32.Max(0, math32.Min(level, math.MaxUint16))
	k.Threshold = uint16(level)
	k.Valid = true

	return nil
}

// readLevel reads one sample; a failed read counts as the "unset" level 0,
// which fails the consistency check later.
func readLevel(src AnalogSource, id int) uint16 {
	v, err := src.Read(id)
	if err != nil {
		return 0
	}
	return v
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
