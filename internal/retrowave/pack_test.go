package retrowave

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackFixtures(t *testing.T) {
	tt := []struct {
		name     string
		in       []byte
		expected []byte
	}{
		{
			"empty",
			[]byte{},
			[]byte{0x00, 0x02},
		},
		{
			"nil",
			nil,
			[]byte{0x00, 0x02},
		},
		{
			"single 0xff",
			[]byte{0xff},
			[]byte{0x00, 0xff, 0x81, 0x02},
		},
		{
			"single zero",
			[]byte{0x00},
			[]byte{0x00, 0x01, 0x01, 0x02},
		},
		{
			"header",
			[]byte{0x42, 0x12},
			// 0x42>>0 | 1, 0x12>>1 | 0x42<<7, 0x12<<6
			[]byte{0x00, 0x43, 0x09, 0x81, 0x02},
		},
		{
			"seven ones",
			[]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
			[]byte{0x00, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x02},
		},
		{
			"eight bytes wraps",
			[]byte{0x80, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xaa},
			// the 8th input byte is emitted twice: once at shift 7, once at shift 0
			[]byte{0x00, 0x81, 0x01, 0x01, 0x01, 0x01, 0x01, 0x01, 0x01, 0xab, 0x01, 0x02},
		},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Pack(tc.in))
		})
	}
}

func TestPackLength(t *testing.T) {
	for l := 0; l <= 64; l++ {
		in := make([]byte, l)
		for i := range in {
			in[i] = byte(i*37 + 11)
		}
		out := Pack(in)
		k, r := l/7, l%7
		want := 2 + 8*k + r
		if r != 0 {
			want++
		}
		require.Len(t, out, want, "input length %d", l)
		assert.Equal(t, want, PackedLen(l), "input length %d", l)
	}
}

func TestPackFraming(t *testing.T) {
	for l := 0; l <= 50; l++ {
		in := make([]byte, l)
		for i := range in {
			// even values and both marker values in the input
			in[i] = byte(i * 2)
		}
		out := Pack(in)
		require.GreaterOrEqual(t, len(out), 2)
		assert.Equal(t, byte(FrameStart), out[0])
		assert.Equal(t, byte(FrameEnd), out[len(out)-1])
		for i, b := range out[1 : len(out)-1] {
			assert.Equal(t, byte(1), b&1, "payload byte %d of len %d is even", i, l)
		}
	}
}

// unpack is the receiving side's inverse, used to check that no payload bit
// is lost.
func unpack(frame []byte) []byte {
	payload := frame[1 : len(frame)-1]
	var out []byte
	var acc uint
	var bits uint
	for _, b := range payload {
		acc = acc<<7 | uint(b>>1)
		bits += 7
		if bits >= 8 {
			bits -= 8
			out = append(out, byte(acc>>bits))
			acc &= 1<<bits - 1
		}
	}
	return out
}

func TestPackRoundTrip(t *testing.T) {
	for l := 0; l <= 30; l++ {
		in := make([]byte, l)
		for i := range in {
			in[i] = byte(0xa5 ^ i*29)
		}
		got := append([]byte{}, unpack(Pack(in))[:l]...)
		assert.Equal(t, in, got, "input length %d", l)
	}
}

func TestAppendPackReusesDst(t *testing.T) {
	dst := make([]byte, 0, 64)
	dst = AppendPack(dst, []byte{0xff})
	dst = AppendPack(dst, nil)
	assert.Equal(t, []byte{0x00, 0xff, 0x81, 0x02, 0x00, 0x02}, dst)
}
