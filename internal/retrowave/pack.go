// Package retrowave implements the host side of the RetroWave serial bus:
// the 7-in-8 packing codec and the per-cycle register write buffer.
package retrowave

// Frame markers. Payload bytes are always odd, so neither can appear inside
// a frame.
const (
	FrameStart = 0x00
	FrameEnd   = 0x02
)

// PackedLen returns the framed length Pack produces for n input bytes.
func PackedLen(n int) int {
	k, r := n/7, n%7
	l := 8*k + 2
	if r > 0 {
		l += r + 1
	}
	return l
}

// Pack frames in for the serial link.
//
//	[0x00][payload: 7 input bits per byte, MSB first, bit 0 = 1][0x02]
//
// Every payload byte is odd, so neither marker can appear inside a frame.
func Pack(in []byte) []byte {
	return AppendPack(make([]byte, 0, PackedLen(len(in))), in)
}

// AppendPack appends the framed form of in to dst and returns the extended
// slice.
func AppendPack(dst, in []byte) []byte {
	dst = append(dst, FrameStart)

	var shift uint
	i := 0
	for i < len(in) {
		b := in[i] >> shift
		if i > 0 {
			// shift == 0 yields zero here: a uint8 shifted by 8 is empty
			b |= in[i-1] << (8 - shift)
		}
		dst = append(dst, b|0x01)

		shift++
		i++
		if shift > 7 {
			// 8 output bytes carry 7 input bytes; replay the same pair
			shift = 0
			i--
		}
	}

	if shift != 0 {
		dst = append(dst, in[i-1]<<(8-shift)|0x01)
	}

	return append(dst, FrameEnd)
}
