package numeric

import "math"

// FFT is a planner for the in-place inverse complex-to-real transform
// used once per ring by the assembly stage (spec.md §4.6 step 3). The
// buffer layout matches FFTW's in-place c2r convention used by the
// original C: n/2+1 complex bins (2*(n/2+1) float64s) in, n real
// samples out, written into the same backing slice.
type FFT interface {
	Plan(n int) FFTPlan
}

// FFTPlan performs the inverse real FFT for one fixed ring length.
type FFTPlan interface {
	// InverseRealFFT reads len(buf) == 2*(N/2+1) float64s as N/2+1
	// complex bins (real, imag interleaved) and overwrites the first N
	// float64s of buf with the N real samples. It is, deliberately,
	// unnormalized (no 1/N factor) to match the original's
	// fftw_execute_dft_c2r call, whose scaling is already accounted for
	// by the Legendre/phase-shift stage.
	InverseRealFFT(buf []float64)
}

// DFTPlanner is a reference FFT implementation built from a direct
// (non-factorized) inverse DFT summation. It is correct for any ring
// length, including the non-power-of-two equatorial-belt lengths
// (4*Nside) that a radix-2-only FFT could not handle, at the cost of
// O(n^2) work per ring — acceptable for the small problem sizes this
// module's own tests exercise (spec.md §8), and replaceable by a tuned
// FFT library behind the same FFT interface in production.
type DFTPlanner struct{}

// Plan implements FFT.
func (DFTPlanner) Plan(n int) FFTPlan {
	return newDFTPlan(n)
}

type dftPlan struct {
	n    int
	half int
	// cos/sin[k][j] = cos/sin(2*pi*j*k/n) for j in [0,half), k in [0,n)
	cos [][]float64
	sin [][]float64
}

func newDFTPlan(n int) *dftPlan {
	half := n/2 + 1
	p := &dftPlan{n: n, half: half}
	p.cos = make([][]float64, n)
	p.sin = make([][]float64, n)
	for k := 0; k < n; k++ {
		p.cos[k] = make([]float64, half)
		p.sin[k] = make([]float64, half)
		for j := 0; j < half; j++ {
			theta := 2 * math.Pi * float64(j) * float64(k) / float64(n)
			p.cos[k][j] = math.Cos(theta)
			p.sin[k][j] = math.Sin(theta)
		}
	}
	return p
}

// InverseRealFFT implements FFTPlan.
func (p *dftPlan) InverseRealFFT(buf []float64) {
	n, half := p.n, p.half
	re := make([]float64, half)
	im := make([]float64, half)
	for j := 0; j < half; j++ {
		re[j] = buf[2*j]
		im[j] = buf[2*j+1]
	}
	for k := 0; k < n; k++ {
		cosRow, sinRow := p.cos[k], p.sin[k]
		// j = 0 term contributes only its real part (a real DC bin).
		acc := re[0]
		for j := 1; j < half; j++ {
			c, s := cosRow[j], sinRow[j]
			term := 2 * (re[j]*c - im[j]*s)
			// The Nyquist bin (n even, j == n/2) has no mirrored
			// partner; the factor of two above would double-count it.
			if n%2 == 0 && j == half-1 {
				term = re[j] * c
			}
			acc += term
		}
		buf[k] = acc
	}
}
