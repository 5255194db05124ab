package opl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseEvent(t *testing.T) {
	tt := []struct {
		name     string
		raw      []byte
		expected Event
	}{
		{
			"note on",
			[]byte{0x93, 60, 100},
			Event{Kind: NoteOn, Channel: 3, Key: 60, Velocity: 100},
		},
		{
			"note on zero velocity",
			[]byte{0x90, 60, 0},
			Event{Kind: NoteOff, Channel: 0, Key: 60},
		},
		{
			"note off",
			[]byte{0x8f, 61, 64},
			Event{Kind: NoteOff, Channel: 15, Key: 61},
		},
		{
			"control change",
			[]byte{0xb1, 7, 90},
			Event{Kind: ControlChange, Channel: 1, Controller: 7, Value: 90},
		},
		{
			"program change",
			[]byte{0xc2, 33},
			Event{Kind: ProgramChange, Channel: 2, Value: 33},
		},
		{
			"pitch bend centre",
			[]byte{0xe0, 0x00, 0x40},
			Event{Kind: PitchBend, Channel: 0, Bend: 0},
		},
		{
			"pitch bend max",
			[]byte{0xe0, 0x7f, 0x7f},
			Event{Kind: PitchBend, Channel: 0, Bend: 8191},
		},
		{
			"trailing bytes ignored",
			[]byte{0x90, 64, 1, 0x00},
			Event{Kind: NoteOn, Channel: 0, Key: 64, Velocity: 1},
		},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := ParseEvent(tc.raw)
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, ev)
		})
	}
}

func TestParseEventRejects(t *testing.T) {
	tt := []struct {
		name string
		raw  []byte
	}{
		{"empty", nil},
		{"running status", []byte{60, 100}},
		{"truncated note", []byte{0x90, 60}},
		{"truncated program", []byte{0xc0}},
		{"sysex", []byte{0xf0, 0x7e, 0x7f, 0xf7}},
		{"clock", []byte{0xf8}},
		{"aftertouch", []byte{0xd0, 0x40}},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseEvent(tc.raw)
			assert.ErrorIs(t, err, ErrUnknownEvent)
		})
	}
}

func TestFnumBlock(t *testing.T) {
	tt := []struct {
		name  string
		key   float64
		fnum  uint16
		block uint8
	}{
		{"A4", 69, 580, 4},
		{"A5", 81, 580, 5},
		{"middle C", 60, 690, 3},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			fnum, block := fnumBlock(tc.key)
			assert.Equal(t, tc.fnum, fnum)
			assert.Equal(t, tc.block, block)
		})
	}
}

func TestAttenuation(t *testing.T) {
	assert.Equal(t, uint8(0), VolumeGeneric.attenuation(127, 127, 127))
	assert.Equal(t, uint8(0), VolumeLinear.attenuation(127, 127, 127))
	assert.Equal(t, uint8(63), VolumeGeneric.attenuation(0, 127, 127))
	assert.Equal(t, uint8(8), VolumeGeneric.attenuation(64, 127, 127))
	assert.Equal(t, uint8(31), VolumeLinear.attenuation(64, 127, 127))
}

func TestParseVolumeModel(t *testing.T) {
	m, err := ParseVolumeModel("linear")
	assert.NoError(t, err)
	assert.Equal(t, VolumeLinear, m)

	_, err = ParseVolumeModel("dmx")
	assert.ErrorIs(t, err, ErrVolumeModel)
}
