package opl

// NumVoices is the number of two-operator melodic channels on one OPL3:
// nine on each port group.
const NumVoices = 18

var opOffset = [9]uint16{0x00, 0x01, 0x02, 0x08, 0x09, 0x0a, 0x10, 0x11, 0x12}

// -------------------- Data Model --------------------

type noteID struct {
	track   int
	channel uint8
	key     uint8
}

// voice is one OPL3 channel and the note currently assigned to it.
type voice struct {
	idx int

	id        noteID
	assigned  bool // a note owns this voice
	keyOn     bool // key-on bit is set on the chip
	sustained bool // note-off seen while the sustain pedal was down

	patch    *Patch
	velocity uint8
	pitch    float64 // key actually played, before bend and vibrato

	startedAt  uint64
	releasedAt uint64

	fnum  uint16
	block uint8
}

func (v *voice) base() uint16 { return uint16(v.idx/9) << 8 }

func (v *voice) modReg(reg uint16) uint16 { return v.base() | (reg + opOffset[v.idx%9]) }

func (v *voice) carReg(reg uint16) uint16 { return v.base() | (reg + opOffset[v.idx%9] + 3) }

func (v *voice) chanReg(reg uint16) uint16 { return v.base() | (reg + uint16(v.idx%9)) }

// -------------------- Allocation --------------------

// voiceSet assigns notes to OPL3 channels, stealing when all are in use.
type voiceSet struct {
	v [NumVoices]voice
}

func newVoiceSet() *voiceSet {
	s := &voiceSet{}
	for i := range s.v {
		s.v[i] = voice{idx: i}
	}
	return s
}

func (s *voiceSet) find(id noteID) *voice {
	for i := range s.v {
		if s.v[i].assigned && s.v[i].id == id {
			return &s.v[i]
		}
	}
	return nil
}

// stealScore ranks a voice for reuse; the lowest score is taken first.
// Idle voices that never played score lowest, then released voices by
// release age, then sounding voices by note age.
func stealScore(v *voice, now uint64) int64 {
	switch {
	case !v.assigned && v.startedAt == 0:
		return -1 << 62
	case !v.assigned:
		return -1<<40 - int64(now-v.releasedAt)
	default:
		return -int64(now - v.startedAt)
	}
}

// pick returns the voice to use for a new note and whether it was taken
// from a note that is still assigned.
func (s *voiceSet) pick(now uint64) (v *voice, stolen bool) {
	var best *voice
	var bestScore int64
	for i := range s.v {
		sc := stealScore(&s.v[i], now)
		if best == nil || sc < bestScore {
			best, bestScore = &s.v[i], sc
		}
	}
	return best, best.assigned
}

func (s *voiceSet) each(fn func(v *voice) bool) {
	for i := range s.v {
		if !fn(&s.v[i]) {
			return
		}
	}
}
