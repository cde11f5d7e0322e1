package wire

import "encoding/binary"

// Event is one decoded server message plus a read cursor over its body.
// Accessor methods consume arguments in protocol order; reading past the
// end yields zero values rather than panicking, matching how compositors
// are allowed to extend events with trailing arguments in later versions.
type Event struct {
	Object uint32
	Opcode uint16

	data []byte
	off  int
}

// Uint32 reads the next 32-bit unsigned argument.
func (e *Event) Uint32() uint32 {
	if e.off+4 > len(e.data) {
		e.off = len(e.data)
		return 0
	}
	v := binary.LittleEndian.Uint32(e.data[e.off:])
	e.off += 4
	return v
}

// Int32 reads the next 32-bit signed argument.
func (e *Event) Int32() int32 {
	return int32(e.Uint32())
}

// String reads the next string argument. The wire format is a 32-bit
// length including the NUL terminator, the bytes, then padding to a
// 32-bit boundary. A zero length encodes a null string and decodes to "".
func (e *Event) String() string {
	n := int(e.Uint32())
	if n == 0 {
		return ""
	}
	if e.off+n > len(e.data) {
		e.off = len(e.data)
		return ""
	}
	s := string(e.data[e.off : e.off+n-1]) // drop NUL
	e.off += n + pad4(n)
	return s
}

// Array reads the next array argument and returns its raw bytes.
func (e *Event) Array() []byte {
	n := int(e.Uint32())
	if n == 0 {
		return nil
	}
	if e.off+n > len(e.data) {
		e.off = len(e.data)
		return nil
	}
	a := e.data[e.off : e.off+n]
	e.off += n + pad4(n)
	return a
}

// pad4 returns the padding needed to align n to a 32-bit boundary.
func pad4(n int) int {
	return (4 - (n % 4)) % 4
}
