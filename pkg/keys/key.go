// Package keys turns raw Hall-effect sensor levels into debounced key states.
//
// A Board owns one Key per physical switch. A Calibrator seeds the keys once
// at startup, an Aggregator collects threshold votes as fast as the analog
// source allows, and a Resolver turns those votes into press/release edges on
// a fixed period. The package has no dependency on logging, I/O or hardware so
// it builds for TinyGo targets as well as Linux hosts.
package keys

import (
	"sync/atomic"
)

// State is the debounced state of a key.
type State uint8

const (
	Released State = iota
	Pressed
)

func (s State) String() string {
	if s == Pressed {
		return "pressed"
	}
	return "released"
}

// Key holds calibration and runtime state for one switch.
//
// TopDead, BottomDead, DistanceRate, Threshold and Valid are written once by
// the Calibrator before sampling starts and are read-only afterwards. The vote
// counters and the state are shared between the sampling loop and the
// resolver tick and are therefore atomic.
type Key struct {
	ID int

	TopDead      uint16  // level with the switch fully released
	BottomDead   uint16  // level with the switch fully pressed
	DistanceRate float32 // counts per millimetre of travel
	Threshold    uint16  // level at or below which the switch counts as pressed
	Valid        bool

	pressed    atomic.Bool
	trueVotes  atomic.Uint32
	falseVotes atomic.Uint32
}

// State returns the current debounced state.
func (k *Key) State() State {
	if k.pressed.Load() {
		return Pressed
	}
	return Released
}

// Triggered reports whether a raw level is at or past the press threshold.
// Lower levels mean the switch travelled further. An invalid key never
// triggers.
func (k *Key) Triggered(level uint16) bool {
	return k.Valid && level <= k.Threshold
}

// votes returns the votes accumulated since the last resolution without
// resetting them.
func (k *Key) votes() (pressed, released uint32) {
	return k.trueVotes.Load(), k.falseVotes.Load()
}

// Calibration returns the calibrated values of the key. Err is left nil.
func (k *Key) Calibration() Calibration {
	return Calibration{
		ID:           k.ID,
		TopDead:      k.TopDead,
		BottomDead:   k.BottomDead,
		DistanceRate: k.DistanceRate,
		Threshold:    k.Threshold,
	}
}

func (k *Key) vote(level uint16) {
	if k.Triggered(level) {
		k.trueVotes.Add(1)
	} else {
		k.falseVotes.Add(1)
	}
}

// Board is the fixed set of keys of one device, indexed by key id.
type Board struct {
	keys []Key
}

// NewBoard creates n released, uncalibrated keys with ids 0..n-1.
func NewBoard(n int) *Board {
	b := &Board{keys: make([]Key, n)}
	for i := range b.keys {
		b.keys[i].ID = i
	}
	return b
}

// Len returns the number of keys.
func (b *Board) Len() int {
	return len(b.keys)
}

// Key returns the key with the given id. It panics if id is out of range.
func (b *Board) Key(id int) *Key {
	return &b.keys[id]
}

// States returns a copy of all debounced states, indexed by key id.
func (b *Board) States() []State {
	out := make([]State, len(b.keys))
	for i := range b.keys {
		out[i] = b.keys[i].State()
	}
	return out
}
