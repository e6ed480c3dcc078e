package butterfly

import (
	"encoding/binary"
	"math"
)

// The functions in this file build blob byte strings in the format
// blob.go parses. There is no production writer for this format (the
// offline compression pipeline that the original system's companion
// tool owns is out of scope, see the package doc comment), but both
// this package's own tests and resource/testresource need a faithful
// encoder to build synthetic fixtures, so it lives here rather than
// being duplicated per test file.

func appendInt32(buf []byte, v int32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(v))
	return append(buf, tmp[:]...)
}

func appendInt64(buf []byte, v int64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(v))
	return append(buf, tmp[:]...)
}

func appendFloat64(buf []byte, v float64) []byte {
	return appendInt64(buf, int64(math.Float64bits(v)))
}

func padTo16(buf []byte) []byte {
	for len(buf)%16 != 0 {
		buf = append(buf, 0)
	}
	return buf
}

func nodeHeader(t tag) []byte {
	buf := appendInt32(nil, int32(t))
	for len(buf) < nodeHeaderSize {
		buf = append(buf, 0)
	}
	return buf
}

// EncodeZero builds a zero-block node.
func EncodeZero() []byte {
	return nodeHeader(tagZero)
}

// EncodeDenseLeaf builds a dense-leaf node whose payload begins with
// (rowStart, rowStop) followed by tail, which a LeafFunc interprets.
func EncodeDenseLeaf(rowStart, rowStop int64, tail []byte) []byte {
	buf := nodeHeader(tagDense)
	buf = appendInt64(buf, rowStart)
	buf = appendInt64(buf, rowStop)
	return append(buf, tail...)
}

// EncodeDenseMatrixTail builds the leaf payload tail used by this
// package's own round-trip tests and by legendre's small-k path: a
// column-major (rows x cols) float64 matrix, already 16-byte aligned
// relative to the blob start because the header + row_start/row_stop
// prefix is exactly 32 bytes.
func EncodeDenseMatrixTail(rows, cols int, colMajor []float64) []byte {
	if len(colMajor) != rows*cols {
		panic("butterfly: EncodeDenseMatrixTail: colMajor length does not match rows*cols")
	}
	var buf []byte
	for _, v := range colMajor {
		buf = appendFloat64(buf, v)
	}
	return buf
}

// EncodeIdentityInterpolation builds a trivial (k == n) interpolation
// operator: every row passes straight through and the dense (k x 0)
// matrix is empty. Butterfly nodes built for exact (non-lossy) round
// trips use this so that nL == kL and nR == kR, giving a structurally
// valid but numerically lossless tree.
func EncodeIdentityInterpolation(n int32) []byte {
	buf := appendInt32(nil, n)
	buf = appendInt32(buf, n)
	buf = padTo16(buf)
	filter := make([]byte, n)
	buf = append(buf, filter...)
	buf = padTo16(buf)
	return buf
}

// EncodeInterpolation builds a general interpolation operator: filter
// must contain exactly k zero bytes and (n-k) one bytes, and matrix is
// the column-major k x (n-k) dense block multiplied against the
// one-tagged rows, per interpolationOperator's wire layout.
func EncodeInterpolation(k, n int32, filter []byte, matrix []float64) []byte {
	if len(filter) != int(n) {
		panic("butterfly: EncodeInterpolation: filter length does not match n")
	}
	if len(matrix) != int(k)*int(n-k) {
		panic("butterfly: EncodeInterpolation: matrix length does not match k*(n-k)")
	}
	buf := appendInt32(nil, k)
	buf = appendInt32(buf, n)
	buf = padTo16(buf)
	buf = append(buf, filter...)
	buf = padTo16(buf)
	for _, v := range matrix {
		buf = appendFloat64(buf, v)
	}
	return buf
}

// EncodeButterflyNode assembles a butterfly node from its already-encoded
// parts, laying each out at a 16-byte aligned offset relative to the
// node's own start and filling in the header's offset/length fields.
func EncodeButterflyNode(kL, nL, kR int32, leftIP, rightIP, leftChild, rightChild []byte) []byte {
	buf := nodeHeader(tagButterfly)
	buf = appendInt32(buf, kL)
	buf = appendInt32(buf, nL)
	buf = appendInt32(buf, kR)
	buf = appendInt32(buf, 0)

	// Reserve space for the eight int64 offset/length fields; they are
	// patched in below once every section's final placement is known.
	headerFieldsAt := len(buf)
	for i := 0; i < 8; i++ {
		buf = appendInt64(buf, 0)
	}
	buf = padTo16(buf)

	placeSection := func(section []byte) (offset, length int64) {
		if len(section) == 0 {
			return 0, 0
		}
		buf = append(buf, section...)
		offset = int64(len(buf) - len(section))
		length = int64(len(section))
		buf = padTo16(buf)
		return
	}

	leftIPOff, leftIPLen := placeSection(leftIP)
	rightIPOff, rightIPLen := placeSection(rightIP)
	leftChildOff, leftChildLen := placeSection(leftChild)
	rightChildOff, rightChildLen := placeSection(rightChild)

	offsets := []int64{
		leftIPOff, leftIPLen,
		rightIPOff, rightIPLen,
		leftChildOff, leftChildLen,
		rightChildOff, rightChildLen,
	}
	for i, v := range offsets {
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], uint64(v))
		copy(buf[headerFieldsAt+i*8:headerFieldsAt+i*8+8], tmp[:])
	}
	return buf
}
