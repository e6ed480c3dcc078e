package legendre

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/klauspost/cpuid/v2"
)

// smallKThreshold is the row count at or below which a leaf is stored
// as a plain dense block rather than a recurrence strip table, per
// spec.md §4.2's "Small leaves (k ≤ 4) are stored as raw dense blocks
// instead."
const smallKThreshold = 4

// payload layout, immediately following the row_start/row_stop pair
// every butterfly leaf carries (see butterfly.LeafFunc's doc comment):
//
// Small leaves (nk <= smallKThreshold):
//
//	float64 matrix[nk*cols]   (column-major, 16-byte aligned)
//
// Large leaves:
//
//	int64 nstrips
//	[pad to 16]
//	float64 alpha[nk-2]
//	float64 beta[nk-2]
//	float64 gamma[nk-2]
//	[pad to 16]
//	nstrips * {
//	  int64 col       (output column index, relative to this leaf's out slice)
//	  float64 x       (cos(theta) for this ring)
//	  float64 p0      (P at l = row_start)
//	  float64 p1      (P at l = row_start+1)
//	}

// Leaf implements butterfly.LeafFunc for the Legendre application.
func Leaf(out []float64, payload []byte, nvecs int, ctxAny any) error {
	ctx, ok := ctxAny.(*Context)
	if !ok {
		return fmt.Errorf("legendre: Leaf requires a *legendre.Context, got %T", ctxAny)
	}
	if len(payload) < 16 {
		return fmt.Errorf("legendre: leaf payload too short for row range")
	}
	rowStart := int64(binary.LittleEndian.Uint64(payload[0:8]))
	rowStop := int64(binary.LittleEndian.Uint64(payload[8:16]))
	nk := int(rowStop - rowStart)
	if nk <= 0 {
		return fmt.Errorf("legendre: empty or inverted row range [%d,%d)", rowStart, rowStop)
	}
	if int(rowStop) > len(ctx.Input)/nvecs {
		return fmt.Errorf("legendre: row range [%d,%d) exceeds input length %d", rowStart, rowStop, len(ctx.Input)/nvecs)
	}
	body := payload[16:]
	cols := len(out) / nvecs

	if nk <= smallKThreshold {
		return leafDense(out, body, int(rowStart), nk, cols, nvecs, ctx)
	}
	return leafStrips(out, body, int(rowStart), nk, nvecs, ctx)
}

func leafDense(out []float64, body []byte, rowStart, nk, cols, nvecs int, ctx *Context) error {
	need := nk * cols * 8
	if len(body) < need {
		return fmt.Errorf("legendre: dense leaf payload too short: have %d, need %d", len(body), need)
	}
	matrix := make([]float64, nk*cols)
	for i := range matrix {
		matrix[i] = math.Float64frombits(binary.LittleEndian.Uint64(body[i*8:]))
	}
	inputSlice := ctx.Input[rowStart*nvecs : (rowStart+nk)*nvecs]
	// out (cols x nvecs, row-major by column) <- matrix^T * inputSlice,
	// one DGEMM-shaped accumulation per vector lane.
	for v := 0; v < nvecs; v++ {
		for c := 0; c < cols; c++ {
			var acc float64
			for r := 0; r < nk; r++ {
				acc += matrix[r+c*nk] * inputSlice[r*nvecs+v]
			}
			out[c*nvecs+v] = acc
		}
	}
	_ = ctx.BLAS // reserved for a tuned path; the reference loop above is always correct.
	return nil
}

type stripRecord struct {
	col    int
	x      float64
	p0, p1 float64
}

func leafStrips(out []float64, body []byte, rowStart, nk, nvecs int, ctx *Context) error {
	if len(body) < 8 {
		return fmt.Errorf("legendre: strip leaf payload too short for nstrips")
	}
	nstrips := int(int64(binary.LittleEndian.Uint64(body[0:8])))
	pos := 8
	pos = padTo16(pos)

	naux := nk - 2
	readAux := func() ([]float64, error) {
		need := naux * 8
		if len(body) < pos+need {
			return nil, fmt.Errorf("legendre: truncated recurrence coefficient table")
		}
		arr := make([]float64, naux)
		for i := range arr {
			arr[i] = math.Float64frombits(binary.LittleEndian.Uint64(body[pos+i*8:]))
		}
		pos += need
		return arr, nil
	}
	alpha, err := readAux()
	if err != nil {
		return err
	}
	beta, err := readAux()
	if err != nil {
		return err
	}
	gamma, err := readAux()
	if err != nil {
		return err
	}
	pos = padTo16(pos)

	inputSlice := ctx.Input[rowStart*nvecs : (rowStart+nk)*nvecs]

	strips := make([]stripRecord, 0, nstrips)
	for s := 0; s < nstrips; s++ {
		const recSize = 8 + 8 + 8 + 8
		if len(body) < pos+recSize {
			return fmt.Errorf("legendre: truncated strip record %d", s)
		}
		col := int(int64(binary.LittleEndian.Uint64(body[pos:])))
		x := math.Float64frombits(binary.LittleEndian.Uint64(body[pos+8:]))
		p0 := math.Float64frombits(binary.LittleEndian.Uint64(body[pos+16:]))
		p1 := math.Float64frombits(binary.LittleEndian.Uint64(body[pos+24:]))
		pos += recSize
		strips = append(strips, stripRecord{col: col, x: x, p0: p0, p1: p1})
	}

	pairwise := cpuid.CPU.Supports(cpuid.SSE2)
	i := 0
	for i < len(strips) {
		if pairwise && i+1 < len(strips) {
			recurrencePair(out, nvecs, inputSlice, nk, alpha, beta, gamma, strips[i], strips[i+1])
			i += 2
		} else {
			recurrenceSingle(out, nvecs, inputSlice, nk, alpha, beta, gamma, strips[i])
			i++
		}
	}
	return nil
}

func padTo16(pos int) int {
	if pos%16 == 0 {
		return pos
	}
	return pos + (16 - pos%16)
}
