// Package midiin opens a MIDI input through rtmidi and forwards raw
// messages to a callback on the driver's goroutine.
package midiin

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

var ErrNotFound = errors.New("midiin: input not found")

// EXCLUDED_PATTERNS: system ports that are skipped when matching by name.
var EXCLUDED_PATTERNS = []string{"Midi Through", "Through Port", "Dummy"}

const DefaultVirtualName = "OPL3 Relay MIDI"

// Config selects the input. An empty Port opens a virtual input named
// VirtualName that other applications can connect to. Otherwise Port is a
// port index as listed by List, or a case-insensitive name fragment.
type Config struct {
	Port        string
	VirtualName string
}

// Port is one open MIDI input.
type Port struct {
	mu     sync.Mutex
	drv    *rtmididrv.Driver
	in     drivers.In
	stopFn func()
	name   string
	logger *slog.Logger
}

// Open initialises the rtmidi driver and opens the configured input.
func Open(cfg Config, logger *slog.Logger) (*Port, error) {
	if logger == nil {
		logger = slog.Default()
	}
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("rtmididrv: %w", err)
	}

	in, err := openIn(drv, cfg)
	if err != nil {
		drv.Close()
		return nil, err
	}
	logger.Info("midi: connected", "device", in.String())
	return &Port{drv: drv, in: in, name: in.String(), logger: logger}, nil
}

func openIn(drv *rtmididrv.Driver, cfg Config) (drivers.In, error) {
	if cfg.Port == "" {
		name := cfg.VirtualName
		if name == "" {
			name = DefaultVirtualName
		}
		in, err := drv.OpenVirtualIn(name)
		if err != nil {
			return nil, fmt.Errorf("midiin: open virtual %q: %w", name, err)
		}
		return in, nil
	}

	ins, err := drv.Ins()
	if err != nil {
		return nil, fmt.Errorf("midiin: list inputs: %w", err)
	}
	names := make([]string, len(ins))
	for i, in := range ins {
		names[i] = in.String()
	}
	idx, err := selectPort(names, cfg.Port)
	if err != nil {
		return nil, err
	}
	found := ins[idx]
	if err := found.Open(); err != nil {
		return nil, fmt.Errorf("midiin: open %q: %w", names[idx], err)
	}
	return found, nil
}

// selectPort resolves want against the port names: an index first, then an
// exact name, then the first non-excluded name containing want.
func selectPort(names []string, want string) (int, error) {
	if i, err := strconv.Atoi(want); err == nil {
		if i < 0 || i >= len(names) {
			return 0, fmt.Errorf("%w: index %d (have %d)", ErrNotFound, i, len(names))
		}
		return i, nil
	}
	for i, n := range names {
		if n == want {
			return i, nil
		}
	}
	for i, n := range names {
		if excluded(n) {
			continue
		}
		if containsCI(n, want) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrNotFound, want)
}

// Listen starts delivering messages. onMsg and onErr run on the driver's
// goroutine.
func (p *Port) Listen(onMsg func(raw []byte), onErr func(err error)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	stop, err := midi.ListenTo(p.in, func(msg midi.Message, _ int32) {
		onMsg(msg)
	}, midi.HandleError(func(listenErr error) {
		p.logger.Warn("midi: listener error", "device", p.name, "err", listenErr)
		if onErr != nil {
			onErr(listenErr)
		}
	}))
	if err != nil {
		return fmt.Errorf("midiin: listen %q: %w", p.name, err)
	}
	p.stopFn = stop
	return nil
}

// Close stops listening and shuts down the port and the driver.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopFn != nil {
		p.stopFn()
		p.stopFn = nil
	}
	var err error
	if p.in != nil {
		err = p.in.Close()
		p.in = nil
	}
	if p.drv != nil {
		p.drv.Close()
		p.drv = nil
	}
	p.logger.Info("midi: closed", "device", p.name)
	return err
}

// List returns the names of the MIDI inputs on this host, in index order.
func List() ([]string, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("rtmididrv: %w", err)
	}
	defer drv.Close()

	ins, err := drv.Ins()
	if err != nil {
		return nil, fmt.Errorf("midiin: list inputs: %w", err)
	}
	names := make([]string, len(ins))
	for i, in := range ins {
		names[i] = in.String()
	}
	return names, nil
}

// -------------------- utility --------------------

func excluded(name string) bool {
	for _, pat := range EXCLUDED_PATTERNS {
		if containsCI(name, pat) {
			return true
		}
	}
	return false
}

func containsCI(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
