package butterfly

import "fmt"

// interpolationOperator is the interpolation primitive described by
// spec.md §4.1, applied here in its transposed (expanding) direction:
// from k input rows it produces n output rows tagged by a 0/1 filter
// bitstream (k zeros, n-k ones). Each zero-tagged output row is the
// next input row unchanged; each one-tagged output row is the matching
// column of a dense (k x (n-k)) matrix dotted with the k input rows.
// The wire layout after the node header is:
//
//	int32 k
//	int32 n
//	[pad to 16 bytes]
//	byte filter[n]
//	[pad to 16 bytes]
//	float64 matrix[k*(n-k)]   (column-major, k rows, n-k cols)
type interpolationOperator struct {
	k, n    int
	filter  []byte
	matrix  []float64 // column-major, k x (n-k)
}

func parseInterpolationOperator(data []byte) (*interpolationOperator, error) {
	c := newCursor(data)
	k32, err := c.int32()
	if err != nil {
		return nil, err
	}
	n32, err := c.int32()
	if err != nil {
		return nil, err
	}
	k, n := int(k32), int(n32)
	if k < 0 || n < 0 || k > n {
		return nil, fmt.Errorf("%w: interpolation operator has k=%d n=%d", ErrCorruption, k, n)
	}
	if err := c.padTo16(); err != nil {
		return nil, err
	}
	filter, err := c.bytes(n)
	if err != nil {
		return nil, err
	}
	nZeros := 0
	for _, b := range filter {
		switch b {
		case 0:
			nZeros++
		case 1:
			// one-tagged row, routed through the dense matrix
		default:
			return nil, fmt.Errorf("%w: filter byte %d is neither 0 nor 1", ErrMalformed, b)
		}
	}
	if nZeros != k {
		return nil, fmt.Errorf("%w: filter has %d zeros, header declares k=%d", ErrCorruption, nZeros, k)
	}
	if err := c.padTo16(); err != nil {
		return nil, err
	}
	matrix, err := c.float64s(k * (n - k))
	if err != nil {
		return nil, err
	}
	return &interpolationOperator{k: k, n: n, filter: filter, matrix: matrix}, nil
}

// apply computes the n-row output of the operator from its k-row
// compressed input: zero-tagged output rows are copied straight from
// in, one-tagged output rows are accumulated as transpose(matrix) * in
// (one matrix column per one-tagged row), per vector lane. in has k*nvecs entries
// (column-major, k rows), out has n*nvecs entries.
func (op *interpolationOperator) apply(out, in []float64, nvecs int) {
	zeroRow, oneRow := 0, 0
	for i, tag := range op.filter {
		if tag == 0 {
			copy(out[i*nvecs:(i+1)*nvecs], in[zeroRow*nvecs:(zeroRow+1)*nvecs])
			zeroRow++
		} else {
			for v := 0; v < nvecs; v++ {
				var acc float64
				for r := 0; r < op.k; r++ {
					acc += op.matrix[r+oneRow*op.k] * in[r*nvecs+v]
				}
				out[i*nvecs+v] = acc
			}
			oneRow++
		}
	}
}
