package relay

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

// sender moves frames from the cycle to the transport on its own goroutine
// so a slow link never stalls the cycle. Frames that arrive while a write
// is in flight are concatenated and go out together in the next write;
// the frame markers keep them apart on the wire. Once maxPending bytes are
// waiting, further frames are dropped.
type sender struct {
	w          io.Writer
	maxPending int
	logger     *slog.Logger

	mu      sync.Mutex
	pending []byte
	spare   []byte

	wake chan struct{}
	quit chan struct{}
	done chan struct{}

	sent    atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

func newSender(w io.Writer, maxPending int, logger *slog.Logger) *sender {
	s := &sender{
		w:          w,
		maxPending: maxPending,
		logger:     logger,
		wake:       make(chan struct{}, 1),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go s.loop()
	return s
}

// send copies frame into the pending buffer. It never blocks on I/O.
func (s *sender) send(frame []byte) bool {
	s.mu.Lock()
	if len(s.pending) > 0 && len(s.pending)+len(frame) > s.maxPending {
		s.mu.Unlock()
		if n := s.dropped.Add(1); n == 1 || n%1000 == 0 {
			s.logger.Warn("serial: transport behind, frames dropped", "dropped", n, "pending_bytes", s.maxPending)
		}
		return false
	}
	s.pending = append(s.pending, frame...)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

func (s *sender) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.quit:
			return
		case <-s.wake:
		}

		s.mu.Lock()
		out := s.pending
		s.pending = s.spare[:0]
		s.mu.Unlock()

		if len(out) > 0 {
			s.write(out)
		}

		s.mu.Lock()
		s.spare = out[:0]
		s.mu.Unlock()
	}
}

func (s *sender) write(out []byte) {
	n, err := s.w.Write(out)
	if err != nil {
		if f := s.failed.Add(1); f == 1 || f%1000 == 0 {
			s.logger.Error("serial: write error", "err", err, "failures", f)
		}
		return
	}
	s.sent.Add(1)
	s.logger.Debug("serial: frames sent", "bytes", n)
}

// stop discards whatever is pending and closes c, which must be the
// sender's writer or nil.
func (s *sender) stop(c io.Closer) {
	close(s.quit)
	if c != nil {
		if err := c.Close(); err != nil {
			s.logger.Warn("serial: close failed", "err", err)
		}
	}
	<-s.done
}
