package analog

import (
	"fmt"
	"sync"

	"github.com/rice5941/nakuru/pkg/keys"
)

// Script is a test double returning scripted levels. Each key consumes its
// own queue; once a queue is down to its last value that value repeats.
type Script struct {
	mu     sync.Mutex
	queues [][]uint16
	errs   []error
	reads  []int
}

var _ keys.AnalogSource = (*Script)(nil)

// NewScript creates a script for n keys, all reading 0 until set.
func NewScript(n int) *Script {
	return &Script{
		queues: make([][]uint16, n),
		errs:   make([]error, n),
		reads:  make([]int, n),
	}
}

// Push appends levels to the key's queue.
func (s *Script) Push(id int, levels ...uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[id] = append(s.queues[id], levels...)
}

// Set replaces the key's queue.
func (s *Script) Set(id int, levels ...uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[id] = append([]uint16(nil), levels...)
}

// SetAll makes every key read level from now on.
func (s *Script) SetAll(level uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.queues {
		s.queues[i] = []uint16{level}
	}
}

// Fail makes every following read of the key return err; nil clears it.
func (s *Script) Fail(id int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[id] = err
}

// Reads returns how many times the key was read.
func (s *Script) Reads(id int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads[id]
}

// Read returns the next scripted level.
func (s *Script) Read(id int) (uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id < 0 || id >= len(s.queues) {
		return 0, fmt.Errorf("key %d: out of range", id)
	}
	s.reads[id]++
	if err := s.errs[id]; err != nil {
		return 0, err
	}

	q := s.queues[id]
	if len(q) == 0 {
		return 0, nil
	}
	if len(q) > 1 {
		s.queues[id] = q[1:]
	}
	return q[0], nil
}
