package keys

import "sync/atomic"

// Aggregator samples every key once per pass and accumulates threshold
// votes. It never changes key state and never resets votes.
type Aggregator struct {
	passes atomic.Uint64
	errors atomic.Uint64
}

// Sample performs one pass over the board. A key whose read fails gets no
// vote for this pass.
func (a *Aggregator) Sample(b *Board, src AnalogSource) {
	for i := range b.keys {
		level, err := src.Read(i)
		if err != nil {
			a.errors.Add(1)
			continue
		}
		b.keys[i].vote(level)
	}
	a.passes.Add(1)
}

// Passes returns the number of completed passes.
func (a *Aggregator) Passes() uint64 {
	return a.passes.Load()
}

// Errors returns the number of failed reads.
func (a *Aggregator) Errors() uint64 {
	return a.errors.Load()
}
