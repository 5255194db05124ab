package opl

import (
	"errors"
	"fmt"
)

var ErrBank = errors.New("opl: no such bank")

// Operator holds the five per-operator OPL3 registers, in register order:
// 0x20 (AM/VIB/EGT/KSR/MULT), 0x40 (KSL/TL), 0x60 (AR/DR), 0x80 (SL/RR),
// 0xE0 (waveform).
type Operator struct {
	Char           uint8
	Level          uint8
	AttackDecay    uint8
	SustainRelease uint8
	Wave           uint8
}

// Patch is a two-operator instrument.
type Patch struct {
	Name string
	Mod  Operator
	Car  Operator

	// FeedConn is the low nibble of register 0xC0: feedback<<1 | connection.
	FeedConn uint8

	// FixedKey plays every note at this MIDI key when non-zero (percussion).
	FixedKey uint8
}

// Additive reports whether both operators are audible (connection bit set).
func (p *Patch) Additive() bool { return p.FeedConn&0x01 != 0 }

// Bank maps General MIDI programs to patches: one patch per family of eight
// programs, plus a single patch for the percussion channel.
type Bank struct {
	Name       string
	Families   [16]Patch
	Percussion Patch
}

// Melodic returns the patch for a GM program number.
func (b *Bank) Melodic(program uint8) *Patch {
	return &b.Families[(program&0x7f)>>3]
}

// Banks are the embedded instrument banks, selected by index.
var Banks = []Bank{
	{
		Name: "General MIDI families",
		Families: [16]Patch{
			{Name: "Piano", Mod: Operator{0x01, 0x4f, 0xf1, 0x53, 0x00}, Car: Operator{0x11, 0x00, 0xd2, 0x74, 0x00}, FeedConn: 0x06},
			{Name: "Chromatic Percussion", Mod: Operator{0x07, 0x1c, 0xf2, 0x35, 0x00}, Car: Operator{0x12, 0x00, 0xf2, 0x72, 0x00}, FeedConn: 0x08},
			{Name: "Organ", Mod: Operator{0x32, 0x45, 0xf1, 0x0f, 0x00}, Car: Operator{0x31, 0x00, 0xf1, 0x0f, 0x00}, FeedConn: 0x01},
			{Name: "Guitar", Mod: Operator{0x03, 0x1a, 0xf3, 0x45, 0x00}, Car: Operator{0x11, 0x00, 0xf2, 0x56, 0x00}, FeedConn: 0x0a},
			{Name: "Bass", Mod: Operator{0x21, 0x18, 0xf5, 0x57, 0x00}, Car: Operator{0x21, 0x00, 0xf1, 0x9a, 0x00}, FeedConn: 0x0c},
			{Name: "Strings", Mod: Operator{0x61, 0x17, 0x75, 0x13, 0x00}, Car: Operator{0x61, 0x00, 0x62, 0x15, 0x00}, FeedConn: 0x0c},
			{Name: "Ensemble", Mod: Operator{0x71, 0x8b, 0x61, 0x12, 0x00}, Car: Operator{0x61, 0x00, 0x71, 0x17, 0x00}, FeedConn: 0x06},
			{Name: "Brass", Mod: Operator{0x21, 0x1a, 0x75, 0x16, 0x00}, Car: Operator{0x21, 0x00, 0x85, 0x19, 0x00}, FeedConn: 0x0e},
			{Name: "Reed", Mod: Operator{0x31, 0x19, 0x74, 0x1a, 0x00}, Car: Operator{0x32, 0x00, 0x52, 0x16, 0x00}, FeedConn: 0x0a},
			{Name: "Pipe", Mod: Operator{0xe1, 0x2a, 0x84, 0x24, 0x00}, Car: Operator{0xe1, 0x00, 0x62, 0x16, 0x00}, FeedConn: 0x0e},
			{Name: "Synth Lead", Mod: Operator{0x22, 0x16, 0xf1, 0x16, 0x02}, Car: Operator{0x21, 0x00, 0xf1, 0x19, 0x01}, FeedConn: 0x0c},
			{Name: "Synth Pad", Mod: Operator{0x61, 0x21, 0x42, 0x13, 0x00}, Car: Operator{0x62, 0x00, 0x41, 0x25, 0x00}, FeedConn: 0x0b},
			{Name: "Synth Effects", Mod: Operator{0x81, 0x25, 0x53, 0x4a, 0x02}, Car: Operator{0x41, 0x00, 0x61, 0x3a, 0x00}, FeedConn: 0x08},
			{Name: "Ethnic", Mod: Operator{0x05, 0x1f, 0xe3, 0x56, 0x00}, Car: Operator{0x01, 0x00, 0xe4, 0x56, 0x00}, FeedConn: 0x06},
			{Name: "Percussive", Mod: Operator{0x11, 0x0d, 0xf8, 0x65, 0x00}, Car: Operator{0x10, 0x00, 0xf6, 0x67, 0x00}, FeedConn: 0x0e},
			{Name: "Sound Effects", Mod: Operator{0x0e, 0x00, 0xf4, 0x05, 0x03}, Car: Operator{0x04, 0x00, 0xf6, 0x07, 0x00}, FeedConn: 0x0e},
		},
		Percussion: Patch{Name: "Kit", Mod: Operator{0x00, 0x0b, 0xa8, 0x4c, 0x00}, Car: Operator{0x00, 0x00, 0xd6, 0x4f, 0x00}, FeedConn: 0x0e, FixedKey: 36},
	},
	{
		Name:       "Drawbar organ",
		Families:   organFamilies(),
		Percussion: Patch{Name: "Click", Mod: Operator{0x0e, 0x00, 0xf8, 0xf7, 0x00}, Car: Operator{0x00, 0x00, 0xf8, 0xf7, 0x00}, FeedConn: 0x0e, FixedKey: 60},
	},
}

func organFamilies() (f [16]Patch) {
	for i := range f {
		f[i] = Patch{Name: "Drawbar", Mod: Operator{0x32, 0x44, 0xf8, 0x0f, 0x00}, Car: Operator{0x31, 0x00, 0xf8, 0x0f, 0x00}, FeedConn: 0x01}
	}
	return
}

// LookupBank returns the embedded bank at index i.
func LookupBank(i int) (*Bank, error) {
	if i < 0 || i >= len(Banks) {
		return nil, fmt.Errorf("%w: %d (have %d)", ErrBank, i, len(Banks))
	}
	return &Banks[i], nil
}
