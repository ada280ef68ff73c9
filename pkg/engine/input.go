package engine

import (
	"context"
	"io"
)

// DefaultInputBuffer is the number of received chunks Pump can hold.
const DefaultInputBuffer = 16

// Pump reads r in its own goroutine and delivers each chunk on the returned
// channel, so the main loop never blocks on input. The channel is closed when
// r returns an error or ctx is done.
func Pump(ctx context.Context, r io.Reader, size int) <-chan []byte {
	if size <= 0 {
		size = DefaultInputBuffer
	}
	ch := make(chan []byte, size)

	go func() {
		defer close(ch)
		buf := make([]byte, 256)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				p := make([]byte, n)
				copy(p, buf[:n])
				select {
				case ch <- p:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	return ch
}
