package butterfly

import "fmt"

// LeafFunc is invoked once per dense leaf reached while applying a
// blob. out is the column-major (nvecs x leafCols) slice of the
// caller's output buffer owned by this leaf (leafCols == len(out)/nvecs).
// payload is the leaf's own bytes after the 16-byte node header,
// beginning with the (row_start, row_stop) pair every leaf carries (see
// spec.md §3's leaf payload note); the remainder is interpreted however
// the specific application (dense round-trip, Legendre synthesis)
// requires, exactly as pull_a_through_legendre_block does in
// original_source/src/wavemoth.c.
type LeafFunc func(out []float64, payload []byte, nvecs int, ctx any) error

// ApplyTranspose walks blob, a tagged tree as described in blob.go,
// computing the transpose application A^T of the matrix A the blob
// represents. nCols is the number of output columns (rows of the
// logical output, e.g. the ring count for a Legendre application); out
// must have length nCols*nvecs and is organized column-major (nvecs
// rows, nCols columns) to match the output slab convention used
// throughout this repo.
//
// The wire format's k_L/k_R give the row count of the scratch each
// child is applied into before its interpolation operator expands it
// to n_L/n_R output columns (see applyButterflyChild); row addressing into whatever global input vector a leaf
// needs is the leaf callback's own responsibility via the row_start/
// row_stop pair in its payload, matching how the original engine's
// leaf callback pulls directly from its ctx rather than from a
// vector threaded through the recursion.
func ApplyTranspose(blob []byte, nCols, nvecs int, leaf LeafFunc, out []float64, ctx any, arena *Arena) error {
	if len(out) != nCols*nvecs {
		return fmt.Errorf("%w: output buffer has %d entries, want %d", ErrMalformed, len(out), nCols*nvecs)
	}
	return applyNode(blob, out, nvecs, leaf, ctx, arena)
}

func applyNode(data []byte, out []float64, nvecs int, leaf LeafFunc, ctx any, arena *Arena) error {
	t, err := readTag(data)
	if err != nil {
		return err
	}
	switch t {
	case tagZero:
		for i := range out {
			out[i] = 0
		}
		return nil
	case tagDense:
		payload, err := denseLeafPayload(data)
		if err != nil {
			return err
		}
		return leaf(out, payload, nvecs, ctx)
	case tagHStack:
		return fmt.Errorf("%w", ErrReserved)
	case tagButterfly:
		nCols := len(out) / nvecs
		h, err := parseButterflyHeader(data)
		if err != nil {
			return err
		}
		if int(h.nL) > nCols {
			return fmt.Errorf("%w: n_L %d exceeds node column span %d", ErrCorruption, h.nL, nCols)
		}
		if arena != nil {
			arena.noteK(int(h.kL))
			arena.noteK(int(h.kR))
		}
		nL := int(h.nL)
		if err := applyButterflyChild(data, h, true, nL, out[:nL*nvecs], nvecs, leaf, ctx, arena); err != nil {
			return err
		}
		nR := nCols - nL
		return applyButterflyChild(data, h, false, nR, out[nL*nvecs:], nvecs, leaf, ctx, arena)
	default:
		return fmt.Errorf("%w: unknown tag %d", ErrMalformed, t)
	}
}

// applyButterflyChild recurses into one side of a butterfly node: the
// child blob produces a k-row compressed slab (k_L or k_R), which the
// side's interpolation operator then expands into the n-row slice of
// out this side owns (spec.md §4.1's "apply the left/right
// interpolation ... giving n_L/n_R output rows"). This is the step the
// earlier, interpolation-less version of this function skipped
// entirely, silently turning every butterfly node into a no-op column
// partition over leaves that read straight from ctx.
func applyButterflyChild(data []byte, h *butterflyHeader, isLeft bool, n int, out []float64, nvecs int, leaf LeafFunc, ctx any, arena *Arena) error {
	k := int(h.kL)
	ipOffset, ipLen := h.leftIPOffset, h.leftIPLen
	childOffset, childLen := h.leftChildOffset, h.leftChildLen
	if !isLeft {
		k = int(h.kR)
		ipOffset, ipLen = h.rightIPOffset, h.rightIPLen
		childOffset, childLen = h.rightChildOffset, h.rightChildLen
	}

	child, err := h.slice(data, childOffset, childLen)
	if err != nil {
		return err
	}

	var scratch []float64
	if arena != nil {
		scratch = arena.push(k)
		defer arena.pop(k)
	} else {
		scratch = make([]float64, k*nvecs)
	}

	if err := applyNode(child, scratch, nvecs, leaf, ctx, arena); err != nil {
		return err
	}

	if ipOffset == 0 {
		if k != n {
			return fmt.Errorf("%w: butterfly child has no interpolation operator but k=%d != n=%d", ErrCorruption, k, n)
		}
		copy(out, scratch)
		return nil
	}

	ipBytes, err := h.slice(data, ipOffset, ipLen)
	if err != nil {
		return err
	}
	op, err := parseInterpolationOperator(ipBytes)
	if err != nil {
		return err
	}
	if op.k != k || op.n != n {
		return fmt.Errorf("%w: interpolation operator (k=%d,n=%d) does not match node (k=%d,n=%d)", ErrCorruption, op.k, op.n, k, n)
	}
	op.apply(out, scratch, nvecs)
	return nil
}

func denseLeafPayload(data []byte) ([]byte, error) {
	c := newCursor(data)
	if err := c.skip(nodeHeaderSize); err != nil {
		return nil, err
	}
	return data[c.pos:], nil
}
