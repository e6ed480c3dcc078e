package butterfly

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

// denseRoundTripLeaf implements LeafFunc for a plain dense matrix
// round-trip: payload is (row_start, row_stop) followed by a
// column-major (rows x cols) matrix, and out receives A_leaf^T * x for
// the ctx-supplied global vector x (nvecs == 1).
func denseRoundTripLeaf(out []float64, payload []byte, nvecs int, ctx any) error {
	x := ctx.([]float64)
	c := newCursor(payload)
	rowStart, err := c.int64()
	if err != nil {
		return err
	}
	rowStop, err := c.int64()
	if err != nil {
		return err
	}
	nk := int(rowStop - rowStart)
	cols := len(out) / nvecs
	matrix, err := c.float64s(nk * cols)
	if err != nil {
		return err
	}
	for col := 0; col < cols; col++ {
		var acc float64
		for r := 0; r < nk; r++ {
			acc += matrix[r+col*nk] * x[int(rowStart)+r]
		}
		out[col*nvecs] = acc
	}
	return nil
}

func TestApplyTransposeZero(t *testing.T) {
	blob := EncodeZero()
	out := make([]float64, 3)
	for i := range out {
		out[i] = 42
	}
	require.NoError(t, ApplyTranspose(blob, 3, 1, denseRoundTripLeaf, out, []float64{1, 2, 3}, nil))
	require.Equal(t, []float64{0, 0, 0}, out)
}

func TestApplyTransposeDenseLeaf(t *testing.T) {
	// A is 2 rows x 3 cols; x is the 2-entry input vector.
	// A (row-major logical): [[1,2,3],[4,5,6]]; column-major storage.
	a := []float64{1, 4, 2, 5, 3, 6} // col0=(1,4) col1=(2,5) col2=(3,6)
	tail := EncodeDenseMatrixTail(2, 3, a)
	blob := EncodeDenseLeaf(0, 2, tail)

	x := []float64{10, 100}
	out := make([]float64, 3)
	require.NoError(t, ApplyTranspose(blob, 3, 1, denseRoundTripLeaf, out, x, nil))

	want := []float64{1*10 + 4*100, 2*10 + 5*100, 3*10 + 6*100}
	require.InDeltaSlice(t, want, out, 1e-12)
}

func TestQueryDenseLeaf(t *testing.T) {
	a := []float64{1, 2, 3, 4}
	blob := EncodeDenseLeaf(0, 2, EncodeDenseMatrixTail(2, 2, a))
	info, err := Query(blob, 2)
	require.NoError(t, err)
	require.Equal(t, 1, info.NBlocksMax)
	require.EqualValues(t, 4, info.ElementCount)
}

// TestButterflyIdentityRoundTrip builds a two-leaf butterfly tree that
// splits a 2-row x 3-col A by columns: the left child owns column 0,
// the right child owns columns 1-2, and both sides use the identity
// interpolation (k == n for that side), so the split is an exact,
// lossless column partition. Property 6 (spec.md §8) requires
// apply_transpose(blob, callback, x) == A^T x to machine precision;
// this is the honest, not-lossy case of that property. See
// TestButterflyRankReducingRoundTrip for the k<n case this one cannot
// exercise by construction.
func TestButterflyIdentityRoundTrip(t *testing.T) {
	// A (row-major logical): [[1,2,3],[4,5,6]]; split columns 0 | 1,2.
	aLeft := []float64{1, 4}        // 2 rows x 1 col (column 0)
	aRight := []float64{2, 5, 3, 6} // 2 rows x 2 cols (columns 1,2), col-major

	leftLeaf := EncodeDenseLeaf(0, 2, EncodeDenseMatrixTail(2, 1, aLeft))
	rightLeaf := EncodeDenseLeaf(0, 2, EncodeDenseMatrixTail(2, 2, aRight))
	leftIP := EncodeIdentityInterpolation(1)
	rightIP := EncodeIdentityInterpolation(2)
	blob := EncodeButterflyNode(1, 1, 2, leftIP, rightIP, leftLeaf, rightLeaf)

	x := []float64{10, 100}
	out := make([]float64, 3)
	require.NoError(t, ApplyTranspose(blob, 3, 1, denseRoundTripLeaf, out, x, NewArena(2, 1)))

	want := []float64{1*10 + 4*100, 2*10 + 5*100, 3*10 + 6*100}
	require.InDeltaSlice(t, want, out, 1e-12)

	info, err := Query(blob, 3)
	require.NoError(t, err)
	// ElementCount sums each leaf's (rowStop-rowStart) * the column span
	// it was measured against: left leaf is 2 rows x kL=1, right leaf is
	// 2 rows x kR=2.
	if diff := cmp.Diff(Info{KMax: 2, NBlocksMax: 2, ElementCount: 2*1 + 2*2}, info); diff != "" {
		t.Errorf("Query(blob, 3) structural mismatch (-want +got):\n%s", diff)
	}
}

// TestButterflyRankReducingRoundTrip builds a node whose left side is a
// genuine rank-reducing split (k_L=2 < n_L=4, a nontrivial interpolation
// matrix, not a filter of all zeros) and whose right side passes through
// unchanged (k_R == n_R, no interpolation operator at all). It checks
// apply_transpose against a reference A^T x computed from the dense
// matrix that the leaf-matrix/interpolation-matrix composition is
// equivalent to, so it exercises exactly the path
// TestButterflyIdentityRoundTrip cannot: a child recursed into k-sized
// scratch that is then genuinely expanded (not just relabeled) by the
// interpolation operator's matrix multiply.
func TestButterflyRankReducingRoundTrip(t *testing.T) {
	x := []float64{2, 3, -1, 10}

	// Left leaf: 3 input rows (x[0:3]) compressed to k_L=2 scratch rows.
	leftM := []float64{1, 0, 1, 0, 1, 1} // col-major 3x2: col0=(1,0,1) col1=(0,1,1)
	leftLeaf := EncodeDenseLeaf(0, 3, EncodeDenseMatrixTail(3, 2, leftM))

	// Left interpolation: k=2, n=4, filter zero/one/zero/one, expanding
	// the 2-row scratch into 4 output rows via a genuine dense matrix
	// (not an identity passthrough).
	leftFilter := []byte{0, 1, 0, 1}
	leftMatrix := []float64{0.5, -0.5, 1.0, 2.0} // col-major 2x2: col0=(0.5,-0.5) col1=(1.0,2.0)
	leftIP := EncodeInterpolation(2, 4, leftFilter, leftMatrix)

	// Right leaf: 1 input row (x[3]), k_R == n_R == 1, no interpolation.
	rightLeaf := EncodeDenseLeaf(3, 4, EncodeDenseMatrixTail(1, 1, []float64{7}))

	blob := EncodeButterflyNode(2, 4, 1, leftIP, nil, leftLeaf, rightLeaf)

	out := make([]float64, 5)
	require.NoError(t, ApplyTranspose(blob, 5, 1, denseRoundTripLeaf, out, x, NewArena(2, 1)))

	// A is the 4x5 dense matrix equivalent to the composition above:
	// columns 0-3 come from the left leaf/interpolation pair (zero for
	// row 3, since the left leaf never reads x[3]); column 4 comes from
	// the right leaf alone (zero for rows 0-2).
	a := [][]float64{
		{1, 0.5, 0, 1.0, 0},
		{0, -0.5, 1, 2.0, 0},
		{1, 0, 1, 3.0, 0},
		{0, 0, 0, 0, 7},
	}
	want := make([]float64, 5)
	for col := 0; col < 5; col++ {
		var acc float64
		for row := 0; row < 4; row++ {
			acc += a[row][col] * x[row]
		}
		want[col] = acc
	}
	require.InDeltaSlice(t, want, out, 1e-12)

	info, err := Query(blob, 5)
	require.NoError(t, err)
	// Left leaf is 3 rows x kL=2, right leaf is 1 row x kR=1.
	if diff := cmp.Diff(Info{KMax: 2, NBlocksMax: 2, ElementCount: 3*2 + 1*1}, info); diff != "" {
		t.Errorf("Query(blob, 5) structural mismatch (-want +got):\n%s", diff)
	}
}

func TestHStackReserved(t *testing.T) {
	blob := nodeHeader(tagHStack)
	out := make([]float64, 1)
	err := ApplyTranspose(blob, 1, 1, denseRoundTripLeaf, out, []float64{0}, nil)
	require.ErrorIs(t, err, ErrReserved)

	_, err = Query(blob, 1)
	require.ErrorIs(t, err, ErrReserved)
}

func TestInterpolationOperatorFilterValidation(t *testing.T) {
	buf := appendInt32(nil, 1)
	buf = appendInt32(buf, 2)
	buf = padTo16(buf)
	buf = append(buf, 0, 2) // 2 is neither 0 nor 1
	buf = padTo16(buf)
	buf = appendFloat64(buf, 0)

	_, err := parseInterpolationOperator(buf)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestInterpolationOperatorApply(t *testing.T) {
	// n=3, k=2: filter = [0,1,0] so rows 0,2 pass through and row 1 is
	// the single one-tagged row, computed as matrix * (the 2 zero rows).
	op := &interpolationOperator{
		k:      2,
		n:      3,
		filter: []byte{0, 1, 0},
		matrix: []float64{2, 3}, // 2x1, col-major: row0=2, row1=3
	}
	in := []float64{5, 7} // the 2 zero-tagged input rows
	out := make([]float64, 3)
	op.apply(out, in, 1)
	require.Equal(t, 5.0, out[0])
	require.Equal(t, 2*5+3*7, out[1])
	require.Equal(t, 7.0, out[2])
}

func TestMisalignedChildOffsetRejected(t *testing.T) {
	blob := nodeHeader(tagButterfly)
	blob = appendInt32(blob, 1)
	blob = appendInt32(blob, 1)
	blob = appendInt32(blob, 1)
	blob = appendInt32(blob, 0)
	// Misaligned left-child offset (not a multiple of 16).
	blob = appendInt64(blob, 0)
	blob = appendInt64(blob, 0)
	blob = appendInt64(blob, 0)
	blob = appendInt64(blob, 0)
	blob = appendInt64(blob, 17)
	blob = appendInt64(blob, 16)
	blob = appendInt64(blob, 0)
	blob = appendInt64(blob, 0)

	_, err := Query(blob, 2)
	require.ErrorIs(t, err, ErrMisaligned)
}
