package codec

import (
	"errors"
	"io"
)

// maxVIntBytes bounds a var-int to 64 bits of payload.
const maxVIntBytes = 10

var errVIntOverflow = errors.New("var-int overflows 64 bits")

// writeVInt writes v seven bits at a time, least significant group first.
// Every byte but the last has its high bit set.
func writeVInt(w io.ByteWriter, v uint64) error {
	for v&^0x7f != 0 {
		if err := w.WriteByte(byte(v&0x7f) | 0x80); err != nil {
			return err
		}
		v >>= 7
	}
	return w.WriteByte(byte(v))
}

// readVInt is the inverse of writeVInt.
func readVInt(r io.ByteReader) (uint64, error) {
	var v uint64
	for i := 0; i < maxVIntBytes; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		v |= uint64(b&0x7f) << (7 * i)
		if b&0x80 == 0 {
			return v, nil
		}
	}
	return 0, errVIntOverflow
}

// vIntLen returns the number of bytes writeVInt uses for v.
func vIntLen(v uint64) int {
	n := 1
	for v&^0x7f != 0 {
		v >>= 7
		n++
	}
	return n
}
