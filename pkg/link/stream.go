package link

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/rice5941/nakuru/pkg/diag"
)

const (
	// DefaultBufferSize is the default size for the messages channel buffer.
	DefaultBufferSize = 100
	// DefaultHeartbeatInterval keeps the keypad well inside its watchdog.
	DefaultHeartbeatInterval = 3 * time.Second
)

// Options configures the host side of a link.
type Options struct {
	BufferSize        int
	HeartbeatInterval time.Duration
	// Strict validates every JSON line against the message schema and drops
	// lines that do not conform.
	Strict bool
}

func (o *Options) ensureDefaults() {
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = DefaultHeartbeatInterval
	}
}

// stream runs the protocol over a reader/writer pair: it starts streaming,
// keeps the keypad's watchdog fed and decodes its output.
type stream struct {
	opts     Options
	messages chan Message
	log      *log.Entry
	reports  reports

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	wmu sync.Mutex
	w   io.Writer
}

func newStream(opts Options, name string) *stream {
	opts.ensureDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &stream{
		opts:     opts,
		messages: make(chan Message, opts.BufferSize),
		log:      log.WithField("device", name),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// start launches the reader and heartbeat goroutines and asks the keypad to
// start streaming.
func (s *stream) start(r io.Reader, w io.Writer) error {
	s.wmu.Lock()
	s.w = w
	s.wmu.Unlock()

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.read(r)
	}()
	go func() {
		defer s.wg.Done()
		s.keepAlive()
	}()

	return s.send(diag.CmdStart)
}

// stop asks the keypad to stop streaming and ends the heartbeat. The caller
// then closes the transport and calls finish.
func (s *stream) stop() {
	if err := s.send(diag.CmdStop); err != nil {
		s.log.WithError(err).Debug("failed to send stop")
	}
	s.cancel()
}

// finish waits for the goroutines and closes the messages channel.
func (s *stream) finish() {
	s.wg.Wait()
	close(s.messages)
}

func (s *stream) send(cmd string) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	if _, err := io.WriteString(s.w, cmd+"\n"); err != nil {
		return fmt.Errorf("failed to send %s: %w", cmd, err)
	}
	return nil
}

func (s *stream) keepAlive() {
	ticker := time.NewTicker(s.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.send(diag.CmdHeartbeat); err != nil {
				s.log.WithError(err).Warn("heartbeat failed")
			}
		}
	}
}

// read decodes lines until r is exhausted.
func (s *stream) read(r io.Reader) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("panic in read: %v", r)
		}
	}()

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		msg, ok := s.decode(line)
		if !ok {
			continue
		}

		// Send message to channel (non-blocking)
		select {
		case s.messages <- msg:
		default:
			s.log.Debug("messages channel full, dropping message")
		}
	}
	if err := scanner.Err(); err != nil && s.ctx.Err() == nil {
		s.log.WithError(err).Warn("read failed")
	}
}

func (s *stream) decode(line []byte) (Message, bool) {
	if line[0] != '{' {
		s.log.Info(string(line))
		m, ok := s.reports.parse(string(line))
		m.Received = time.Now()
		return m, ok
	}
	if s.opts.Strict {
		if err := Validate(line); err != nil {
			s.log.WithError(err).Warn("dropping malformed message")
			return Message{}, false
		}
	}
	m, err := diag.Parse(line)
	if err != nil {
		s.log.WithError(err).Debugf("failed to parse line %q", line)
		return Message{}, false
	}
	return Message{Received: time.Now(), Message: m}, true
}
