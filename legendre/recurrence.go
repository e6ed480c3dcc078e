package legendre

// recurrenceSingle evaluates the three-term associated-Legendre
// recurrence P_i = (alpha_i*x + gamma_i)*P_{i-1} + beta_i*P_{i-2} for
// l = rowStart..rowStart+nk-1 at one column's x, accumulating
// out[col*nvecs+v] += P_l * input[l*nvecs+v] as it goes so the nk
// P-values are never all held in memory at once, exactly the point of
// the strip representation (spec.md §4.2).
func recurrenceSingle(out []float64, nvecs int, input []float64, nk int, alpha, beta, gamma []float64, s stripRecord) {
	accumulate(out, s.col, nvecs, input, 0, s.p0)
	if nk == 1 {
		return
	}
	accumulate(out, s.col, nvecs, input, 1, s.p1)

	p0, p1 := s.p0, s.p1
	for i := 2; i < nk; i++ {
		p2 := (alpha[i-2]*s.x+gamma[i-2])*p1 + beta[i-2]*p0
		accumulate(out, s.col, nvecs, input, i, p2)
		p0, p1 = p1, p2
	}
}

// recurrencePair runs two strips' recurrences interleaved, the tight
// two-column-at-a-time loop shape spec.md §4.2 calls for when the
// hardware offers paired float64 SIMD stores (historically SSE2,
// checked once per leaf via klauspost/cpuid/v2 rather than per
// iteration). Go exposes no portable intrinsic for the original's raw
// `_mm_*` stores, so this is the same recurrence as recurrenceSingle
// run on both lanes inside one loop body, keeping the two strips'
// working state side by side the way a real vectorized version would.
func recurrencePair(out []float64, nvecs int, input []float64, nk int, alpha, beta, gamma []float64, a, b stripRecord) {
	accumulate(out, a.col, nvecs, input, 0, a.p0)
	accumulate(out, b.col, nvecs, input, 0, b.p0)
	if nk == 1 {
		return
	}
	accumulate(out, a.col, nvecs, input, 1, a.p1)
	accumulate(out, b.col, nvecs, input, 1, b.p1)

	pa0, pa1 := a.p0, a.p1
	pb0, pb1 := b.p0, b.p1
	for i := 2; i < nk; i++ {
		al, be, ga := alpha[i-2], beta[i-2], gamma[i-2]
		pa2 := (al*a.x+ga)*pa1 + be*pa0
		pb2 := (al*b.x+ga)*pb1 + be*pb0
		accumulate(out, a.col, nvecs, input, i, pa2)
		accumulate(out, b.col, nvecs, input, i, pb2)
		pa0, pa1 = pa1, pa2
		pb0, pb1 = pb1, pb2
	}
}

func accumulate(out []float64, col, nvecs int, input []float64, row int, p float64) {
	base := col * nvecs
	inBase := row * nvecs
	for v := 0; v < nvecs; v++ {
		out[base+v] += p * input[inBase+v]
	}
}

// packEveryOther extracts the even-index (or odd-index) entries of a
// packed (nvecs-wide) coefficient array, splitting a_{l,m} into its
// even-l and odd-l subsequences in the style of the original's
// pack_madds parity split. The planner does not call it; it does its
// own parity split with plan.packCoefficients.
func packEveryOther(src []float64, nvecs int, odd bool) []float64 {
	start := 0
	if odd {
		start = 1
	}
	n := len(src) / nvecs
	count := (n - start + 1) / 2
	if count < 0 {
		count = 0
	}
	out := make([]float64, count*nvecs)
	j := 0
	for i := start; i < n; i += 2 {
		copy(out[j*nvecs:(j+1)*nvecs], src[i*nvecs:(i+1)*nvecs])
		j++
	}
	return out
}
