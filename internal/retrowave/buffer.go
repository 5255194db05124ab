package retrowave

// GroupLen is the number of bytes Queue appends for one register write.
const GroupLen = 6

// Protocol holds the firmware-specific bus constants. Index 0 of the latch
// pairs addresses port group 0 (registers 0x000-0x0FF), index 1 port group 1.
type Protocol struct {
	Header    [2]byte
	AddrLatch [2]byte
	DataLatch [2]byte
	Strobe    byte
}

// DefaultProtocol is the dual-bank OPL3 register-write transaction understood
// by RetroWave OPL3 boards.
var DefaultProtocol = Protocol{
	Header:    [2]byte{0x21 << 1, 0x12},
	AddrLatch: [2]byte{0xe1, 0xe5},
	DataLatch: [2]byte{0xe3, 0xe7},
	Strobe:    0xfb,
}

// Buffer accumulates one cycle's worth of register writes. It is not safe
// for concurrent use; the owner serializes access.
type Buffer struct {
	proto  Protocol
	buf    []byte
	writes int
}

// NewBuffer returns a Buffer already reset and holding the header.
func NewBuffer(p Protocol) *Buffer {
	b := &Buffer{proto: p, buf: make([]byte, 0, 256)}
	b.Reset()
	return b
}

// Reset discards queued writes and reseeds the transaction header.
func (b *Buffer) Reset() {
	b.buf = append(b.buf[:0], b.proto.Header[0], b.proto.Header[1])
	b.writes = 0
}

// Queue appends the latch sequence for one register write:
//
//	[addr latch][addr & 0xff][data latch][value][strobe][value]
//
// Bit 8 of addr selects the port group. Higher bits are ignored.
func (b *Buffer) Queue(addr uint16, value uint8) {
	p := (addr >> 8) & 1
	b.buf = append(b.buf,
		b.proto.AddrLatch[p],
		byte(addr),
		b.proto.DataLatch[p],
		value,
		b.proto.Strobe,
		value,
	)
	b.writes++
}

// Bytes returns the raw buffer contents. The slice is only valid until the
// next Reset or Queue.
func (b *Buffer) Bytes() []byte { return b.buf }

// Len is the number of bytes queued, header included.
func (b *Buffer) Len() int { return len(b.buf) }

// Writes reports how many register writes were queued since the last Reset.
func (b *Buffer) Writes() int { return b.writes }

// AppendFrame appends the packed buffer contents to dst.
func (b *Buffer) AppendFrame(dst []byte) []byte {
	return AppendPack(dst, b.buf)
}
