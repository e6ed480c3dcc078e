// Package testresource builds synthetic, in-memory resource file images
// for tests elsewhere in this repo, in the same wire format
// resource.Load parses. Real resource files are produced by an offline
// compression pipeline this repo does not implement (see the butterfly
// package's doc comment); this builder stands in for that pipeline so
// unit tests never need to ship a real fixture file to disk.
package testresource

import (
	"encoding/binary"
)

// Builder accumulates (m, odd) -> blob assignments and renders them
// into a single resource file image.
type Builder struct {
	lmax, mmax, nside int
	blobs             map[[2]int][]byte
}

// New starts a builder for a resource file with the given header
// fields (spec.md §6).
func New(lmax, mmax, nside int) *Builder {
	return &Builder{lmax: lmax, mmax: mmax, nside: nside, blobs: map[[2]int][]byte{}}
}

func key(m int, odd bool) [2]int {
	o := 0
	if odd {
		o = 1
	}
	return [2]int{m, o}
}

// SetBlob assigns the already-encoded blob bytes (see the butterfly
// package's Encode* helpers) for the given (m, odd) slot.
func (b *Builder) SetBlob(m int, odd bool, blob []byte) {
	b.blobs[key(m, odd)] = blob
}

// Bytes renders the accumulated assignments into a full resource file
// image: a 24-byte header, an offset table of 4*(mmax+1) int64 fields
// (one (offset, length) pair per (m, parity) slot, offset 0 meaning
// "missing"), and the blobs
// themselves, each placed at a 16-byte aligned file offset.
func (b *Builder) Bytes() []byte {
	header := make([]byte, 24)
	binary.LittleEndian.PutUint64(header[0:8], uint64(b.lmax))
	binary.LittleEndian.PutUint64(header[8:16], uint64(b.mmax))
	binary.LittleEndian.PutUint64(header[16:24], uint64(b.nside))

	nFields := 4 * (b.mmax + 1) // two int64 fields (offset, length) per (m, parity) slot
	table := make([]byte, nFields*8)

	buf := append([]byte{}, header...)
	buf = append(buf, table...)
	buf = padTo16(buf)

	for m := 0; m <= b.mmax; m++ {
		for _, odd := range []bool{false, true} {
			blob, ok := b.blobs[key(m, odd)]
			if !ok {
				continue
			}
			buf = padTo16(buf)
			offset := int64(len(buf))
			buf = append(buf, blob...)
			length := int64(len(blob))

			idx := 4*m + 2*boolToInt(odd)
			entryAt := 24 + idx*8
			binary.LittleEndian.PutUint64(buf[entryAt:entryAt+8], uint64(offset))
			binary.LittleEndian.PutUint64(buf[entryAt+8:entryAt+16], uint64(length))
		}
	}
	return buf
}

func padTo16(buf []byte) []byte {
	for len(buf)%16 != 0 {
		buf = append(buf, 0)
	}
	return buf
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
