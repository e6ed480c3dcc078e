// Package numeric hosts the thin adaptors spec.md calls out as external
// collaborators: dense matrix-matrix multiplication and the per-ring
// inverse real FFT. Both are specified here as interfaces plus a
// pure-Go reference implementation; a production build would instead
// route BLAS to a tuned vendor library and the FFT to a planning-based
// FFT library, exactly as the original C routes through blas.h/FFTW3.
package numeric

// BLAS is the dense matrix-matrix multiply primitive used by the
// butterfly engine and the fast Legendre leaf callback.
type BLAS interface {
	// DGEMM computes C <- A*B + beta*C, where A is m-by-k, B is k-by-n,
	// and C is m-by-n, all stored column-major with the given leading
	// dimensions. This mirrors the original's dgemm_ccc convenience
	// wrapper (original_source/src/blas.h) rather than raw Fortran
	// dgemm, since every call site in this repo only ever needs the
	// column-major*column-major->column-major case.
	DGEMM(m, n, k int, a []float64, lda int, b []float64, ldb int, beta float64, c []float64, ldc int)
}

// NaiveBLAS is a reference BLAS implementation: correct, not tuned.
// It exists so shsynth has no mandatory cgo/vendor BLAS dependency; a
// deployment that cares about Legendre-stage throughput supplies its own
// BLAS implementation of this interface instead.
type NaiveBLAS struct{}

// DGEMM implements BLAS.
func (NaiveBLAS) DGEMM(m, n, k int, a []float64, lda int, b []float64, ldb int, beta float64, c []float64, ldc int) {
	if m == 0 || n == 0 {
		return
	}
	for j := 0; j < n; j++ {
		cCol := c[j*ldc : j*ldc+m]
		if beta == 0 {
			for i := range cCol[:m] {
				cCol[i] = 0
			}
		} else if beta != 1 {
			for i := range cCol[:m] {
				cCol[i] *= beta
			}
		}
		bCol := b[j*ldb : j*ldb+k]
		for p := 0; p < k; p++ {
			bpj := bCol[p]
			if bpj == 0 {
				continue
			}
			aCol := a[p*lda : p*lda+m]
			for i := 0; i < m; i++ {
				cCol[i] += aCol[i] * bpj
			}
		}
	}
}
