package butterfly

import (
	"encoding/binary"
	"fmt"
)

// cursor is a bounds-checked, alignment-aware reader over a blob's
// bytes. It replaces the original C's raw pointer walks (see
// original_source/src/butterfly.c) with the typed-cursor design called
// for in spec.md §9's "Manual blob parsing via pointer walks" note:
// every read advances by a known type and width, and 16-byte alignment
// is enforced relative to the start of the byte slice the cursor was
// constructed over (Go slices carry no portable pointer-alignment
// guarantee, so alignment here is checked against file-relative byte
// offset, which is the faithful analogue available in Go).
type cursor struct {
	data []byte
	pos  int
}

func newCursor(data []byte) *cursor {
	return &cursor{data: data}
}

func (c *cursor) remaining() int { return len(c.data) - c.pos }

func (c *cursor) requireAligned16() error {
	if c.pos%16 != 0 {
		return fmt.Errorf("%w: offset %d is not 16-byte aligned", ErrMisaligned, c.pos)
	}
	return nil
}

func (c *cursor) need(n int) error {
	if n < 0 || c.remaining() < n {
		return fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrMalformed, n, c.pos, c.remaining())
	}
	return nil
}

func (c *cursor) int32() (int32, error) {
	if err := c.need(4); err != nil {
		return 0, err
	}
	v := int32(binary.LittleEndian.Uint32(c.data[c.pos:]))
	c.pos += 4
	return v, nil
}

func (c *cursor) int64() (int64, error) {
	if err := c.need(8); err != nil {
		return 0, err
	}
	v := int64(binary.LittleEndian.Uint64(c.data[c.pos:]))
	c.pos += 8
	return v, nil
}

func (c *cursor) skip(n int) error {
	if err := c.need(n); err != nil {
		return err
	}
	c.pos += n
	return nil
}

// padTo16 advances to the next 16-byte aligned offset, if not already.
func (c *cursor) padTo16() error {
	rem := c.pos % 16
	if rem == 0 {
		return nil
	}
	return c.skip(16 - rem)
}

func (c *cursor) bytes(n int) ([]byte, error) {
	if err := c.need(n); err != nil {
		return nil, err
	}
	b := c.data[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

// float64s reads n little-endian float64 values starting at the
// cursor's current (already 16-byte aligned) position.
func (c *cursor) float64s(n int) ([]float64, error) {
	if err := c.requireAligned16(); err != nil {
		return nil, err
	}
	raw, err := c.bytes(n * 8)
	if err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = decodeFloat64(raw[i*8:])
	}
	return out, nil
}
