package diag

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

// DefaultOutputBuffer is the number of pending writes a DropWriter holds.
const DefaultOutputBuffer = 64

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("diagnostics writer closed")

// DropWriter forwards writes to an underlying writer from its own goroutine.
// Write never blocks: when the queue is full the data is dropped and counted.
type DropWriter struct {
	w     io.Writer
	queue chan []byte
	done  chan struct{}

	mu     sync.Mutex
	closed bool

	dropped atomic.Uint64
	failed  atomic.Uint64
}

// NewDropWriter starts a DropWriter holding up to size pending writes.
func NewDropWriter(w io.Writer, size int) *DropWriter {
	if size <= 0 {
		size = DefaultOutputBuffer
	}
	d := &DropWriter{
		w:     w,
		queue: make(chan []byte, size),
		done:  make(chan struct{}),
	}
	go d.run()
	return d
}

// Write queues a copy of p. It always reports len(p) unless the writer is
// closed.
func (d *DropWriter) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, ErrClosed
	}

	buf := make([]byte, len(p))
	copy(buf, p)

	select {
	case d.queue <- buf:
	default:
		d.dropped.Add(1)
	}
	return len(p), nil
}

// Dropped returns the number of writes discarded because the queue was full.
func (d *DropWriter) Dropped() uint64 {
	return d.dropped.Load()
}

// Failed returns the number of writes the underlying writer rejected.
func (d *DropWriter) Failed() uint64 {
	return d.failed.Load()
}

// Close flushes pending writes and stops the forwarding goroutine. It does
// not close the underlying writer.
func (d *DropWriter) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	<-d.done
	return nil
}

func (d *DropWriter) run() {
	defer close(d.done)
	for buf := range d.queue {
		if _, err := d.w.Write(buf); err != nil {
			d.failed.Add(1)
		}
	}
}
