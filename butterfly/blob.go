// Package butterfly parses and applies the butterfly-compressed matrix
// blobs described by spec.md §3 and §4.1. A blob is a small tagged tree:
// a node is either an all-zero block, a dense (possibly leaf) block, a
// reserved-and-rejected horizontal stack, or a butterfly node carrying
// two interpolation operators and two child blobs. Construction of
// these trees (the offline rank-revealing compression itself) is out of
// scope here, as it is for spec.md's own "offline precomputation
// pipeline" boundary: this package only consumes blobs that some other
// process has already produced, mirroring the read-only traversal in
// original_source/src/butterfly.c.
package butterfly

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

type tag int32

const (
	tagZero tag = iota
	tagDense
	tagHStack
	tagButterfly
)

// Sentinel errors, per spec.md §7's corruption taxonomy.
var (
	ErrMalformed  = errors.New("butterfly: malformed blob")
	ErrMisaligned = errors.New("butterfly: sub-blob not 16-byte aligned")
	ErrReserved   = errors.New("butterfly: hstack node is reserved and unsupported")
	ErrCorruption = errors.New("butterfly: structural invariant violated")
)

const nodeHeaderSize = 16

func decodeFloat64(b []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

func readTag(data []byte) (tag, error) {
	c := newCursor(data)
	v, err := c.int32()
	if err != nil {
		return 0, err
	}
	return tag(v), nil
}

// butterflyHeader is the fixed-size record following the 16-byte node
// header of a tagged-butterfly node. leftChild/rightChild offsets are
// relative to the start of the node's own blob slice, matching the
// "offsets and lengths are byte positions within Data" convention this
// repo uses uniformly (see resource.File); the original's pointer-only
// layout has no equivalent of an explicit length, but an explicit
// length lets ApplyTranspose and Query bounds-check every sub-blob
// instead of trusting adjacency.
type butterflyHeader struct {
	kL, nL, kR int32

	leftIPOffset, leftIPLen   int64
	rightIPOffset, rightIPLen int64
	leftChildOffset, leftChildLen   int64
	rightChildOffset, rightChildLen int64
}

const butterflyHeaderSize = 4*4 + 8*8 // kL,nL,kR,pad + 8 int64 fields

func parseButterflyHeader(data []byte) (*butterflyHeader, error) {
	c := newCursor(data)
	c.pos = nodeHeaderSize
	h := &butterflyHeader{}
	var err error
	var kL, nL, kR, pad int32
	if kL, err = c.int32(); err != nil {
		return nil, err
	}
	if nL, err = c.int32(); err != nil {
		return nil, err
	}
	if kR, err = c.int32(); err != nil {
		return nil, err
	}
	if pad, err = c.int32(); err != nil {
		return nil, err
	}
	_ = pad
	h.kL, h.nL, h.kR = kL, nL, kR

	fields := []*int64{
		&h.leftIPOffset, &h.leftIPLen,
		&h.rightIPOffset, &h.rightIPLen,
		&h.leftChildOffset, &h.leftChildLen,
		&h.rightChildOffset, &h.rightChildLen,
	}
	for _, f := range fields {
		v, err := c.int64()
		if err != nil {
			return nil, err
		}
		*f = v
	}
	if h.kL < 0 || h.nL < 0 || h.kR < 0 {
		return nil, fmt.Errorf("%w: negative butterfly dimensions", ErrCorruption)
	}
	for _, off := range []int64{h.leftIPOffset, h.rightIPOffset, h.leftChildOffset, h.rightChildOffset} {
		if off != 0 && off%16 != 0 {
			return nil, fmt.Errorf("%w: child offset %d", ErrMisaligned, off)
		}
	}
	return h, nil
}

func (h *butterflyHeader) slice(data []byte, offset, length int64) ([]byte, error) {
	if offset < 0 || length < 0 || offset+length > int64(len(data)) {
		return nil, fmt.Errorf("%w: sub-blob [%d,%d) out of bounds (len %d)", ErrMalformed, offset, offset+length, len(data))
	}
	return data[offset : offset+length], nil
}

// Info summarizes a parsed blob without applying it, per spec.md §4.1's
// Query operation: callers use it to size the Arena and to compute the
// flop count of a Legendre application (spec.md §6).
type Info struct {
	KMax         int
	NBlocksMax   int
	ElementCount int64
}

// Query walks the blob measuring its shape, without invoking any leaf
// callback. nCols is the number of output columns (rings) the blob as a
// whole is responsible for, which the wire format itself does not
// store (see ApplyTranspose's doc comment); the caller always knows it
// from the grid/plan context that produced this m-value's matrix.
func Query(blob []byte, nCols int) (Info, error) {
	var info Info
	err := walkMeasure(blob, nCols, &info)
	return info, err
}

func walkMeasure(data []byte, nCols int, info *Info) error {
	t, err := readTag(data)
	if err != nil {
		return err
	}
	switch t {
	case tagZero:
		return nil
	case tagDense:
		info.NBlocksMax++
		rowStart, rowStop, err := readLeafRowRange(data)
		if err != nil {
			return err
		}
		info.ElementCount += (rowStop - rowStart) * int64(nCols)
		return nil
	case tagHStack:
		return fmt.Errorf("%w", ErrReserved)
	case tagButterfly:
		h, err := parseButterflyHeader(data)
		if err != nil {
			return err
		}
		if int(h.kL) > info.KMax {
			info.KMax = int(h.kL)
		}
		if int(h.kR) > info.KMax {
			info.KMax = int(h.kR)
		}
		if h.leftIPOffset != 0 {
			ipBytes, err := h.slice(data, h.leftIPOffset, h.leftIPLen)
			if err != nil {
				return err
			}
			if _, err := parseInterpolationOperator(ipBytes); err != nil {
				return err
			}
		}
		if h.rightIPOffset != 0 {
			ipBytes, err := h.slice(data, h.rightIPOffset, h.rightIPLen)
			if err != nil {
				return err
			}
			if _, err := parseInterpolationOperator(ipBytes); err != nil {
				return err
			}
		}
		if int(h.nL) > nCols {
			return fmt.Errorf("%w: n_L %d exceeds node column span %d", ErrCorruption, h.nL, nCols)
		}
		// Children are measured by their own k (the compressed row count
		// apply_transpose recurses them into), not by n_L/n_R (the
		// post-interpolation column span) — matching
		// applyButterflyChild's recursion basis in apply.go.
		left, err := h.slice(data, h.leftChildOffset, h.leftChildLen)
		if err != nil {
			return err
		}
		if err := walkMeasure(left, int(h.kL), info); err != nil {
			return err
		}
		right, err := h.slice(data, h.rightChildOffset, h.rightChildLen)
		if err != nil {
			return err
		}
		return walkMeasure(right, int(h.kR), info)
	default:
		return fmt.Errorf("%w: unknown tag %d", ErrMalformed, t)
	}
}

func readLeafRowRange(blob []byte) (rowStart, rowStop int64, err error) {
	c := newCursor(blob)
	if err = c.skip(nodeHeaderSize); err != nil {
		return
	}
	if rowStart, err = c.int64(); err != nil {
		return
	}
	rowStop, err = c.int64()
	return
}
