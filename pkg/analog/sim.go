package analog

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rice5941/nakuru/pkg/keys"
)

// SimConfig describes the simulated keypad.
type SimConfig struct {
	Keys          int
	Top           uint16        // level of a released key
	Bottom        uint16        // level of a bottomed out key
	Noise         uint16        // peak noise added to every sample
	PressPeriod   time.Duration // time between presses of the same key
	PressDuration time.Duration // how long one press lasts
	Seed          int64
}

// DefaultSimConfig returns a seven key pad pressing one key at a time.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		Keys:          7,
		Top:           620,
		Bottom:        380,
		Noise:         3,
		PressPeriod:   1400 * time.Millisecond,
		PressDuration: 150 * time.Millisecond,
		Seed:          1,
	}
}

// Sim simulates Hall-effect switches travelling on a fixed schedule. Presses
// are staggered so that key i goes down i/Keys of a period after key 0.
type Sim struct {
	cfg SimConfig

	mu    sync.Mutex
	rng   *rand.Rand
	start time.Time
	hold  bool

	now func() time.Time
}

var _ keys.AnalogSource = (*Sim)(nil)

// NewSim creates a simulated keypad. Zero fields take DefaultSimConfig values.
func NewSim(cfg SimConfig) *Sim {
	def := DefaultSimConfig()
	if cfg.Keys <= 0 {
		cfg.Keys = def.Keys
	}
	if cfg.Top == 0 {
		cfg.Top = def.Top
	}
	if cfg.Bottom == 0 {
		cfg.Bottom = def.Bottom
	}
	if cfg.PressPeriod <= 0 {
		cfg.PressPeriod = def.PressPeriod
	}
	if cfg.PressDuration <= 0 {
		cfg.PressDuration = def.PressDuration
	}

	return &Sim{
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(cfg.Seed)),
		start: time.Now(),
		now:   time.Now,
	}
}

// Hold bottoms out every key until released with Hold(false). Calibration
// uses it to stand in for the operator.
func (s *Sim) Hold(v bool) {
	s.mu.Lock()
	s.hold = v
	if !v {
		s.start = s.now()
	}
	s.mu.Unlock()
}

// Prompt follows the calibration phases: keys are held down during the
// settle wait and released once calibration is done.
func (s *Sim) Prompt(p keys.Phase) {
	switch p {
	case keys.PhaseSettle:
		s.Hold(true)
	case keys.PhaseDone:
		s.Hold(false)
	}
}

// Read returns the simulated level of a key.
func (s *Sim) Read(id int) (uint16, error) {
	if id < 0 || id >= s.cfg.Keys {
		return 0, fmt.Errorf("key %d: out of range", id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	depth := 1.0
	if !s.hold {
		depth = s.depth(id, s.now().Sub(s.start))
	}
	level := float64(s.cfg.Top) - depth*float64(int(s.cfg.Top)-int(s.cfg.Bottom))
	if s.cfg.Noise > 0 {
		level += float64(s.rng.Intn(2*int(s.cfg.Noise)+1) - int(s.cfg.Noise))
	}
	return uint16(math.Max(0, math.Min(level, math.MaxUint16))), nil
}

// depth returns how far the key is pressed, 0 released and 1 bottomed out.
// A press follows half a sine wave.
func (s *Sim) depth(id int, elapsed time.Duration) float64 {
	offset := s.cfg.PressPeriod * time.Duration(id) / time.Duration(s.cfg.Keys)
	phase := (elapsed + s.cfg.PressPeriod - offset) % s.cfg.PressPeriod
	if phase >= s.cfg.PressDuration {
		return 0
	}
	return math.Sin(math.Pi * float64(phase) / float64(s.cfg.PressDuration))
}
