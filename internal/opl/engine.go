// Package opl drives an OPL3 chip from MIDI: it turns channel voice
// messages into register writes and reports each write to a RegisterWriter.
// It never renders audio; the chip on the far side of the writer does.
package opl

import (
	"log/slog"
	"math"
)

// RegisterWriter receives every register change the engine decides on.
// addr is 9 bits wide; bit 8 selects the second port group.
type RegisterWriter interface {
	WriteReg(addr uint16, value uint8)
}

// chipInit resets the timers and IRQ, enables OPL3 mode and waveform select.
var chipInit = []struct {
	addr  uint16
	value uint8
}{
	{0x004, 96},
	{0x004, 128},
	{0x105, 0x00},
	{0x105, 0x01},
	{0x105, 0x00},
	{0x001, 32},
	{0x105, 0x01},
}

const (
	bendRange   = 2.0 // semitones at full pitch-bend deflection
	vibratoHz   = 5.0
	vibratoSemi = 0.5 // depth at modulation wheel 127
)

type Options struct {
	SampleRate  int
	Bank        int
	VolumeModel VolumeModel
	SoftPan     bool
	Logger      *slog.Logger
}

type channelState struct {
	program    uint8
	volume     uint8
	expression uint8
	pan        uint8
	modulation uint8
	sustain    bool
	bend       float64 // semitones
}

func defaultChannel() channelState {
	return channelState{volume: 100, expression: 127, pan: 64}
}

// Engine is not safe for concurrent use; callers hold their own lock around
// every method.
type Engine struct {
	opts   Options
	logger *slog.Logger

	w      RegisterWriter
	bank   *Bank
	voices *voiceSet
	ch     [16]channelState

	clock uint64 // stereo frames advanced since Init
	half  int    // odd interleaved sample carried to the next Advance
	seq   uint64 // note event counter, orders voice ages
}

func New(opts Options) *Engine {
	if opts.SampleRate <= 0 {
		opts.SampleRate = 1000
	}
	if opts.VolumeModel == "" {
		opts.VolumeModel = VolumeGeneric
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{opts: opts, logger: logger}
}

// Init validates the configuration, programs the chip into OPL3 mode through
// w and silences every channel.
func (e *Engine) Init(w RegisterWriter) error {
	bank, err := LookupBank(e.opts.Bank)
	if err != nil {
		return err
	}
	if _, err := ParseVolumeModel(string(e.opts.VolumeModel)); err != nil {
		return err
	}

	e.w = w
	e.bank = bank
	e.voices = newVoiceSet()
	for i := range e.ch {
		e.ch[i] = defaultChannel()
	}
	e.clock, e.half, e.seq = 0, 0, 0

	for _, r := range chipInit {
		e.write(r.addr, r.value)
	}
	e.silenceAll()

	e.logger.Info("opl: engine initialised",
		"bank", bank.Name,
		"volume_model", e.opts.VolumeModel,
		"sample_rate", e.opts.SampleRate,
		"soft_pan", e.opts.SoftPan,
	)
	return nil
}

// Close detaches the writer. Nothing is written to the chip.
func (e *Engine) Close() error {
	e.w = nil
	e.voices = nil
	return nil
}

func (e *Engine) write(addr uint16, value uint8) {
	if e.w != nil {
		e.w.WriteReg(addr, value)
	}
}

func (e *Engine) silenceAll() {
	for i := range e.voices.v {
		v := &e.voices.v[i]
		e.write(v.chanReg(0xb0), 0x00)
		e.write(v.modReg(0x40), 0x3f)
		e.write(v.carReg(0x40), 0x3f)
	}
}

// ParseEvent parses a raw MIDI message into an Event.
func (e *Engine) ParseEvent(raw []byte) (Event, error) {
	return ParseEvent(raw)
}

// -------------------- Clock --------------------

// Advance moves the engine clock forward by the given number of
// interleaved stereo samples, two per frame at the configured sample rate.
// Voices on channels with modulation get their vibrato updated, which
// writes new frequencies.
func (e *Engine) Advance(samples int) {
	if e.voices == nil || samples <= 0 {
		return
	}
	e.half += samples
	e.clock += uint64(e.half / 2)
	e.half %= 2

	e.voices.each(func(v *voice) bool {
		if v.keyOn && e.ch[v.id.channel].modulation > 0 {
			e.updatePitch(v)
		}
		return true
	})
}

func (e *Engine) vibrato(ch *channelState) float64 {
	if ch.modulation == 0 {
		return 0
	}
	t := float64(e.clock) / float64(e.opts.SampleRate)
	depth := vibratoSemi * float64(ch.modulation) / 127
	return depth * math.Sin(2*math.Pi*vibratoHz*t)
}

// updatePitch writes 0xA0/0xB0 when the voice's frequency changed.
func (e *Engine) updatePitch(v *voice) {
	ch := &e.ch[v.id.channel]
	fnum, block := fnumBlock(v.pitch + ch.bend + e.vibrato(ch))
	if fnum == v.fnum && block == v.block {
		return
	}
	v.fnum, v.block = fnum, block
	e.write(v.chanReg(0xa0), uint8(fnum))
	e.write(v.chanReg(0xb0), e.b0(v))
}

func (e *Engine) b0(v *voice) uint8 {
	val := v.block<<2 | uint8(v.fnum>>8)&0x03
	if v.keyOn {
		val |= 0x20
	}
	return val
}

// -------------------- Dispatch --------------------

// Dispatch plays ev immediately. track namespaces notes so that two sources
// using the same MIDI channel do not release each other's keys.
func (e *Engine) Dispatch(track int, ev Event) {
	if e.voices == nil {
		return
	}
	ch := ev.Channel & 0x0f
	switch ev.Kind {
	case NoteOn:
		if ev.Velocity == 0 {
			e.noteOff(noteID{track, ch, ev.Key})
			return
		}
		e.noteOn(noteID{track, ch, ev.Key}, ev.Velocity)
	case NoteOff:
		e.noteOff(noteID{track, ch, ev.Key})
	case ControlChange:
		e.controlChange(ch, ev.Controller, ev.Value)
	case ProgramChange:
		e.ch[ch].program = ev.Value & 0x7f
	case PitchBend:
		e.ch[ch].bend = float64(ev.Bend) / 8192 * bendRange
		e.forChannel(ch, func(v *voice) {
			if v.keyOn {
				e.updatePitch(v)
			}
		})
	}
}

func (e *Engine) forChannel(ch uint8, fn func(v *voice)) {
	e.voices.each(func(v *voice) bool {
		if v.assigned && v.id.channel == ch {
			fn(v)
		}
		return true
	})
}

func (e *Engine) noteOn(id noteID, vel uint8) {
	e.seq++

	// retrigger: the same key is released before it sounds again
	if old := e.voices.find(id); old != nil {
		e.release(old)
	}

	patch := e.bank.Melodic(e.ch[id.channel].program)
	if id.channel == 9 {
		patch = &e.bank.Percussion
	}

	v, stolen := e.voices.pick(e.seq)
	if stolen {
		e.logger.Debug("opl: stealing voice", "voice", v.idx, "victim_key", v.id.key, "victim_ch", v.id.channel, "key", id.key)
	}
	if v.keyOn {
		v.keyOn = false
		e.write(v.chanReg(0xb0), e.b0(v))
	}

	*v = voice{
		idx:       v.idx,
		id:        id,
		assigned:  true,
		patch:     patch,
		velocity:  vel,
		pitch:     float64(id.key),
		startedAt: e.seq,
	}
	if patch.FixedKey != 0 {
		v.pitch = float64(patch.FixedKey)
	}

	e.loadPatch(v)
	e.updateLevel(v)

	v.keyOn = true
	v.fnum, v.block = fnumBlock(v.pitch + e.ch[id.channel].bend + e.vibrato(&e.ch[id.channel]))
	e.write(v.chanReg(0xa0), uint8(v.fnum))
	e.write(v.chanReg(0xb0), e.b0(v))
}

func (e *Engine) noteOff(id noteID) {
	v := e.voices.find(id)
	if v == nil {
		return
	}
	if e.ch[id.channel].sustain {
		v.sustained = true
		return
	}
	e.seq++
	e.release(v)
}

// release keys the voice off and frees it for reuse; the chip keeps playing
// the release phase of the envelope.
func (e *Engine) release(v *voice) {
	v.assigned = false
	v.sustained = false
	v.releasedAt = e.seq
	if v.keyOn {
		v.keyOn = false
		e.write(v.chanReg(0xb0), e.b0(v))
	}
}

func (e *Engine) loadPatch(v *voice) {
	p := v.patch
	for _, op := range []struct {
		reg func(uint16) uint16
		o   Operator
	}{
		{v.modReg, p.Mod},
		{v.carReg, p.Car},
	} {
		e.write(op.reg(0x20), op.o.Char)
		e.write(op.reg(0x60), op.o.AttackDecay)
		e.write(op.reg(0x80), op.o.SustainRelease)
		e.write(op.reg(0xe0), op.o.Wave)
	}
	e.write(v.chanReg(0xc0), e.panBits(v.id.channel)|p.FeedConn&0x0f)
}

func (e *Engine) panBits(ch uint8) uint8 {
	if !e.opts.SoftPan {
		return 0x30
	}
	switch pan := e.ch[ch].pan; {
	case pan < 43:
		return 0x10
	case pan > 85:
		return 0x20
	}
	return 0x30
}

// updateLevel writes the total level of the audible operators.
func (e *Engine) updateLevel(v *voice) {
	ch := &e.ch[v.id.channel]
	att := e.opts.VolumeModel.attenuation(v.velocity, ch.volume, ch.expression)
	p := v.patch

	e.write(v.carReg(0x40), scaleLevel(p.Car.Level, att))
	if p.Additive() {
		e.write(v.modReg(0x40), scaleLevel(p.Mod.Level, att))
	} else {
		e.write(v.modReg(0x40), p.Mod.Level)
	}
}

// scaleLevel adds att to the 6-bit total level, keeping the KSL bits.
func scaleLevel(level, att uint8) uint8 {
	tl := uint16(level&0x3f) + uint16(att)
	if tl > 0x3f {
		tl = 0x3f
	}
	return level&0xc0 | uint8(tl)
}

// -------------------- Controllers --------------------

func (e *Engine) controlChange(ch, cc, val uint8) {
	c := &e.ch[ch]
	switch cc {
	case 1:
		c.modulation = val
		if val == 0 {
			e.forChannel(ch, func(v *voice) {
				if v.keyOn {
					e.updatePitch(v)
				}
			})
		}
	case 7, 11:
		if cc == 7 {
			c.volume = val
		} else {
			c.expression = val
		}
		e.forChannel(ch, func(v *voice) {
			if v.keyOn {
				e.updateLevel(v)
			}
		})
	case 10:
		c.pan = val
		e.forChannel(ch, func(v *voice) {
			e.write(v.chanReg(0xc0), e.panBits(ch)|v.patch.FeedConn&0x0f)
		})
	case 64:
		c.sustain = val >= 64
		if !c.sustain {
			e.forChannel(ch, func(v *voice) {
				if v.sustained {
					e.seq++
					e.release(v)
				}
			})
		}
	case 120:
		// released voices still ring; cut them too
		e.voices.each(func(v *voice) bool {
			if v.id.channel == ch && v.startedAt != 0 {
				e.release(v)
				e.write(v.modReg(0x40), 0x3f)
				e.write(v.carReg(0x40), 0x3f)
			}
			return true
		})
	case 121:
		c.modulation = 0
		c.expression = 127
		c.bend = 0
		c.sustain = false
		e.forChannel(ch, func(v *voice) {
			if v.sustained {
				e.seq++
				e.release(v)
			} else if v.keyOn {
				e.updatePitch(v)
				e.updateLevel(v)
			}
		})
	case 123:
		e.seq++
		e.forChannel(ch, e.release)
	default:
		e.logger.Debug("opl: unhandled controller", "ch", ch, "cc", cc, "value", val)
	}
}
