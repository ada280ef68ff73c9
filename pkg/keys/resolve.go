package keys

import (
	"sync/atomic"
	"time"
)

// DefaultResolvePeriod is the resolver tick of the reference hardware.
const DefaultResolvePeriod = time.Millisecond

// Resolver turns accumulated votes into debounced states and fires edges.
type Resolver struct {
	releases atomic.Uint64
}

// Majority decides the proposed state from a vote count. A tie, including
// no votes at all, keeps the current state.
func Majority(pressed, released uint32, current State) State {
	switch {
	case released < pressed:
		return Pressed
	case pressed < released:
		return Released
	default:
		return current
	}
}

// Resolve runs one tick: for every key it takes the votes gathered since the
// previous tick, applies the majority and calls hid on a state change.
//
// Votes are taken with an atomic swap, so a vote cast concurrently by the
// Aggregator ends up in either this tick or the next one and is never lost.
func (r *Resolver) Resolve(b *Board, hid HID) {
	for i := range b.keys {
		k := &b.keys[i]

		pressed := k.trueVotes.Swap(0)
		released := k.falseVotes.Swap(0)

		current := k.State()
		next := Majority(pressed, released, current)
		if next == current {
			continue
		}

		k.pressed.Store(next == Pressed)
		if next == Pressed {
			hid.Press(k.ID)
		} else {
			hid.Release(k.ID)
			r.releases.Add(1)
		}
	}
}

// Releases returns the total number of Pressed to Released edges across all
// keys since start.
func (r *Resolver) Releases() uint64 {
	return r.releases.Load()
}
