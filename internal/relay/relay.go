// Package relay runs the timed cycle that carries OPL3 register writes to a
// RetroWave board: each period the engine clock is advanced, the writes it
// produced (plus any from live MIDI input) are packed into one frame and
// sent, and the buffer starts over.
package relay

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chase3718/opl3relay/internal/opl"
	"github.com/chase3718/opl3relay/internal/retrowave"
)

var ErrRunning = errors.New("relay: already running")

// -------------------- Collaborators --------------------

// Transport carries framed messages to the board.
type Transport interface {
	io.Writer
	io.Closer
}

// TransportOpener opens the board link on Start.
type TransportOpener func() (Transport, error)

// Input delivers raw MIDI messages from a driver goroutine.
type Input interface {
	Listen(onMsg func(raw []byte), onErr func(err error)) error
	Close() error
}

// InputOpener opens the MIDI source on Start. A nil opener runs the relay
// without input.
type InputOpener func() (Input, error)

// Engine is the synthesizer that decides which registers change. Every
// method is called with the relay lock held.
type Engine interface {
	Init(w opl.RegisterWriter) error
	Advance(samples int)
	ParseEvent(raw []byte) (opl.Event, error)
	Dispatch(track int, ev opl.Event)
	Close() error
}

// -------------------- Relay --------------------

// State is the relay lifecycle state.
type State int32

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

const (
	DefaultPeriod      = time.Millisecond
	DefaultStepSamples = 2 // interleaved stereo: one engine frame per cycle
	DefaultMaxPending  = 64 << 10
)

// Options configures a Relay. Zero values take the defaults above.
type Options struct {
	Protocol    retrowave.Protocol
	Period      time.Duration
	StepSamples int
	MaxPending  int // bytes held back while the transport is busy

	OpenTransport TransportOpener
	OpenInput     InputOpener // nil runs without live input
	Engine        Engine

	Logger *slog.Logger
}

// Stats counts relay activity. Cycle, write and input counters run since
// New; frame counters cover the latest Start.
type Stats struct {
	Cycles        uint64
	Writes        uint64
	Inputs        uint64
	Dropped       uint64 // input messages the engine could not parse
	Sent          uint64 // transport writes; coalesced frames share one
	FramesDropped uint64
	SendErrors    uint64
}

// Relay owns the write buffer and the engine. Two goroutines touch them:
// the scheduler started by Start and whatever goroutine the Input calls
// OnMessage from. Both go through mu.
type Relay struct {
	opts   Options
	logger *slog.Logger

	lifecycle sync.Mutex // serializes Start and Stop

	mu    sync.Mutex // guards everything below
	state State
	buf   *retrowave.Buffer
	frame []byte

	transport Transport
	input     Input
	sender    *sender
	stopC     chan struct{}
	doneC     chan struct{}

	cycles  atomic.Uint64
	writes  atomic.Uint64
	inputs  atomic.Uint64
	dropped atomic.Uint64
}

// New returns an idle relay. Nothing is opened until Start.
func New(opts Options) *Relay {
	if opts.Protocol == (retrowave.Protocol{}) {
		opts.Protocol = retrowave.DefaultProtocol
	}
	if opts.Period <= 0 {
		opts.Period = DefaultPeriod
	}
	if opts.StepSamples <= 0 {
		opts.StepSamples = DefaultStepSamples
	}
	if opts.MaxPending <= 0 {
		opts.MaxPending = DefaultMaxPending
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		opts:   opts,
		logger: logger,
		buf:    retrowave.NewBuffer(opts.Protocol),
	}
}

func (r *Relay) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Relay) Stats() Stats {
	s := Stats{
		Cycles:  r.cycles.Load(),
		Writes:  r.writes.Load(),
		Inputs:  r.inputs.Load(),
		Dropped: r.dropped.Load(),
	}
	r.mu.Lock()
	snd := r.sender
	r.mu.Unlock()
	if snd != nil {
		s.Sent = snd.sent.Load()
		s.FramesDropped = snd.dropped.Load()
		s.SendErrors = snd.failed.Load()
	}
	return s
}

// Start opens the transport, initialises the engine, opens the input and
// arms the periodic flush. Any failure undoes the steps already taken and
// leaves the relay Idle.
func (r *Relay) Start() error {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	if r.State() == Running {
		return ErrRunning
	}
	if r.opts.OpenTransport == nil || r.opts.Engine == nil {
		return errors.New("relay: transport and engine are required")
	}

	tr, err := r.opts.OpenTransport()
	if err != nil {
		return fmt.Errorf("relay: open transport: %w", err)
	}
	snd := newSender(tr, r.opts.MaxPending, r.logger)

	// engine init writes land in the first cycle's buffer
	r.mu.Lock()
	r.buf.Reset()
	if err := r.opts.Engine.Init(r); err != nil {
		r.buf.Reset()
		r.mu.Unlock()
		snd.stop(tr)
		return fmt.Errorf("relay: engine init: %w", err)
	}
	r.transport = tr
	r.sender = snd
	r.state = Running
	r.mu.Unlock()

	if r.opts.OpenInput != nil {
		in, err := r.openInput()
		if err != nil {
			r.teardown()
			return err
		}
		r.input = in
	}

	r.stopC = make(chan struct{})
	r.doneC = make(chan struct{})
	go r.run(r.stopC, r.doneC)

	r.logger.Info("relay: started",
		"period", r.opts.Period,
		"step_samples", r.opts.StepSamples,
		"max_pending", r.opts.MaxPending,
	)
	return nil
}

func (r *Relay) openInput() (Input, error) {
	in, err := r.opts.OpenInput()
	if err != nil {
		return nil, fmt.Errorf("relay: open input: %w", err)
	}
	if err := in.Listen(r.OnMessage, r.OnError); err != nil {
		_ = in.Close()
		return nil, fmt.Errorf("relay: listen: %w", err)
	}
	return in, nil
}

// Stop cancels the periodic flush and releases input, engine and transport.
// Writes queued since the last flush are discarded. Stop on an idle relay
// does nothing.
func (r *Relay) Stop() {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	if r.State() != Running {
		return
	}

	close(r.stopC)
	<-r.doneC
	r.stopC, r.doneC = nil, nil

	if r.input != nil {
		if err := r.input.Close(); err != nil {
			r.logger.Warn("relay: input close failed", "err", err)
		}
		r.input = nil
	}
	r.teardown()

	st := r.Stats()
	r.logger.Info("relay: stopped",
		"cycles", st.Cycles,
		"writes", st.Writes,
		"inputs", st.Inputs,
		"frames_dropped", st.FramesDropped,
		"send_errors", st.SendErrors,
	)
}

// teardown closes engine and transport and returns to Idle.
func (r *Relay) teardown() {
	r.mu.Lock()
	r.state = Idle
	if err := r.opts.Engine.Close(); err != nil {
		r.logger.Warn("relay: engine close failed", "err", err)
	}
	r.buf.Reset()
	snd, tr := r.sender, r.transport
	r.transport = nil
	r.mu.Unlock()

	// the sender may be blocked in Write; closing the transport releases it
	snd.stop(tr)
}

// -------------------- Flush Scheduler --------------------

func (r *Relay) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	t := time.NewTicker(r.opts.Period)
	defer t.Stop()

	for {
		select {
		case <-stop:
			return
		case <-t.C:
			r.cycle()
		}
	}
}

// cycle is one period: advance the engine, send the frame, start a new
// buffer. It is the only place the buffer is packed or reset while Running.
func (r *Relay) cycle() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != Running {
		return
	}
	r.opts.Engine.Advance(r.opts.StepSamples)

	r.frame = r.buf.AppendFrame(r.frame[:0])
	r.sender.send(r.frame)
	r.buf.Reset()
	r.cycles.Add(1)
}

// WriteReg queues one register write into the open cycle. It is the
// engine's RegisterWriter and only runs inside the relay's critical
// sections, so it takes no lock.
func (r *Relay) WriteReg(addr uint16, value uint8) {
	r.buf.Queue(addr, value)
	r.writes.Add(1)
}

// -------------------- Input Event Bridge --------------------

// OnMessage parses and plays one raw MIDI message right away. Register
// writes it causes join the cycle currently being filled. Messages the
// engine cannot parse are dropped.
func (r *Relay) OnMessage(raw []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != Running {
		return
	}
	ev, err := r.opts.Engine.ParseEvent(raw)
	if err != nil {
		r.dropped.Add(1)
		r.logger.Debug("relay: input dropped", "err", err)
		return
	}
	r.inputs.Add(1)
	r.opts.Engine.Dispatch(0, ev)
}

// OnError records a driver error. The relay keeps running.
func (r *Relay) OnError(err error) {
	r.logger.Warn("relay: input error", "err", err)
}
