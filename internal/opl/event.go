package opl

import (
	"errors"
	"fmt"

	"gitlab.com/gomidi/midi/v2"
)

// ErrUnknownEvent is returned by ParseEvent for messages the engine does not
// play: system messages, truncated messages and running-status data bytes.
var ErrUnknownEvent = errors.New("opl: unknown event")

type EventKind uint8

const (
	NoteOff EventKind = iota
	NoteOn
	ControlChange
	ProgramChange
	PitchBend
)

func (k EventKind) String() string {
	switch k {
	case NoteOff:
		return "NOTE_OFF"
	case NoteOn:
		return "NOTE_ON"
	case ControlChange:
		return "CONTROL_CHANGE"
	case ProgramChange:
		return "PROGRAM_CHANGE"
	case PitchBend:
		return "PITCH_BEND"
	}
	return "UNKNOWN"
}

// Event is one channel voice message ready for Dispatch.
type Event struct {
	Kind    EventKind
	Channel uint8

	Key      uint8 // NoteOn / NoteOff
	Velocity uint8 // NoteOn

	Controller uint8 // ControlChange
	Value      uint8 // ControlChange, ProgramChange

	Bend int16 // PitchBend, -8192..8191
}

// statusLen is the full message length for each channel voice status nibble.
var statusLen = map[byte]int{
	0x80: 3, 0x90: 3, 0xa0: 3, 0xb0: 3, 0xc0: 2, 0xd0: 2, 0xe0: 3,
}

// ParseEvent turns one raw MIDI message into an Event.
func ParseEvent(raw []byte) (Event, error) {
	if len(raw) == 0 {
		return Event{}, fmt.Errorf("%w: empty message", ErrUnknownEvent)
	}
	n, ok := statusLen[raw[0]&0xf0]
	if !ok {
		return Event{}, fmt.Errorf("%w: status %#02x", ErrUnknownEvent, raw[0])
	}
	if len(raw) < n {
		return Event{}, fmt.Errorf("%w: truncated %d/%d bytes", ErrUnknownEvent, len(raw), n)
	}

	msg := midi.Message(raw[:n])
	var ch, a, b uint8
	var rel int16
	var abs uint16

	switch {
	case msg.GetNoteStart(&ch, &a, &b):
		return Event{Kind: NoteOn, Channel: ch, Key: a, Velocity: b}, nil
	case msg.GetNoteEnd(&ch, &a):
		return Event{Kind: NoteOff, Channel: ch, Key: a}, nil
	case msg.GetControlChange(&ch, &a, &b):
		return Event{Kind: ControlChange, Channel: ch, Controller: a, Value: b}, nil
	case msg.GetProgramChange(&ch, &a):
		return Event{Kind: ProgramChange, Channel: ch, Value: a}, nil
	case msg.GetPitchBend(&ch, &rel, &abs):
		return Event{Kind: PitchBend, Channel: ch, Bend: rel}, nil
	}
	return Event{}, fmt.Errorf("%w: %s", ErrUnknownEvent, msg.String())
}
