package plan

// coefficientBlockOffset returns the float64 offset of the m-block
// within the packed coefficient array, per spec.md §3's "Coefficient
// layout (input)": nmaps*m*(2*lmax-m+3).
func coefficientBlockOffset(lmax, nmaps, m int) int {
	return nmaps * m * (2*lmax - m + 3)
}

// coefficientArrayLen returns the minimum length of the packed
// coefficient array for the given (lmax, mmax, nmaps): the offset of
// the one-past-the-end of the mmax block.
func coefficientArrayLen(lmax, mmax, nmaps int) int {
	return coefficientBlockOffset(lmax, nmaps, mmax+1)
}

// packCoefficients extracts the parity-selected a_{l,m} rows for one m
// out of the full packed coefficient array, in the row layout
// legendre.Context.Input expects: row i holds the 2*nmaps (real,imag)
// doubles for l = m+parityOffset+2*i, ascending.
func packCoefficients(data []float64, lmax, nmaps, m int, odd bool) []float64 {
	nvecs := 2 * nmaps
	base := coefficientBlockOffset(lmax, nmaps, m)
	nl := lmax - m + 1 // number of l values for this m

	startJ := 0
	count := (nl + 1) / 2
	if odd {
		startJ = 1
		count = nl / 2
	}

	out := make([]float64, count*nvecs)
	for i := 0; i < count; i++ {
		j := startJ + 2*i
		src := data[base+j*nvecs : base+(j+1)*nvecs]
		copy(out[i*nvecs:(i+1)*nvecs], src)
	}
	return out
}
