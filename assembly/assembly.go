// Package assembly folds a ring's phase coefficients q_m (the output of
// the Legendre stage, for m = 0..mmax) into a real-valued pixel ring via
// aliasing and an inverse real FFT, mirroring
// original_source/src/wavemoth.c's perform_backward_ffts_thread.
package assembly

import (
	"fmt"

	"github.com/tensorwave/shsynth/internal/numeric"
)

// RingGeometry is the shape/azimuth information for one ring, carried
// separately from the shared Legendre evaluation. Each ring of a
// mirrored north/south pair gets its own RingGeometry, although the
// HEALPix grid gives both rings of a pair the same Len and Phi0.
type RingGeometry struct {
	Len  int
	Phi0 float64
}

// AssemblePair folds a north/south ring pair sharing one Legendre
// evaluation (qEven, qOdd — m = 0..mmax, interleaved re/im) into two
// real pixel rings. The even part is identical at mirrored colatitudes
// and the odd part flips sign, per the standard associated-Legendre
// parity relation P_l^m(-x) = (-1)^(l+m) P_l^m(x), so only one pair of
// coefficient arrays needs to be supplied for both rings.
func AssemblePair(qEven, qOdd []float64, north, south RingGeometry, mmax int, fft numeric.FFT) (northPix, southPix []float64, err error) {
	qNorth := combineParity(qEven, qOdd, mmax, +1)
	qSouth := combineParity(qEven, qOdd, mmax, -1)

	northPix, err = foldAndInvert(qNorth, mmax, north.Len, north.Phi0, fft)
	if err != nil {
		return nil, nil, err
	}
	southPix, err = foldAndInvert(qSouth, mmax, south.Len, south.Phi0, fft)
	if err != nil {
		return nil, nil, err
	}
	return northPix, southPix, nil
}

// combineParity returns re/im pairs for m = 0..mmax: even + sign*odd.
func combineParity(even, odd []float64, mmax int, sign float64) []float64 {
	out := make([]float64, 2*(mmax+1))
	for m := 0; m <= mmax; m++ {
		var evenR, evenI, oddR, oddI float64
		if 2*m+1 < len(even) {
			evenR, evenI = even[2*m], even[2*m+1]
		}
		if odd != nil && 2*m+1 < len(odd) {
			oddR, oddI = odd[2*m], odd[2*m+1]
		}
		out[2*m] = evenR + sign*oddR
		out[2*m+1] = evenI + sign*oddI
	}
	return out
}

// foldAndInvert aliases q (m = 0..mmax, interleaved re/im) into a
// half-spectrum buffer of ringLen/2+1 complex bins, applies the phi0
// phase shift, and inverts it into ringLen real pixel values.
func foldAndInvert(q []float64, mmax, ringLen int, phi0 float64, fft numeric.FFT) ([]float64, error) {
	if ringLen <= 0 {
		return nil, fmt.Errorf("assembly: non-positive ring length %d", ringLen)
	}
	half := ringLen/2 + 1
	bins := make([]float64, 2*half)

	phase := make([]float64, 2*(mmax+1))
	numeric.Cossin(phase, mmax+1, 0, phi0)

	nyquist := ringLen%2 == 0

	for m := 0; m <= mmax; m++ {
		qr, qi := q[2*m], q[2*m+1]
		pc, ps := phase[2*m], phase[2*m+1]
		// Multiply q_m by e^{i*m*phi0}: (qr+i qi)(pc+i ps).
		vr := qr*pc - qi*ps
		vi := qr*ps + qi*pc

		j1 := numeric.ModDivisorSign(m, ringLen)
		if j1 < half {
			// InverseRealFFT doubles every bin except 0 and (for even
			// ringLen) the Nyquist bin. Only the m == 0 coefficient is
			// correctly left undoubled; any m > 0 coefficient landing on
			// one of those two undoubled slots (m == ringLen/2 itself, or
			// a higher m aliased there) gets its conjugate-partner factor
			// of two applied here instead.
			if m != 0 && (j1 == 0 || (nyquist && j1 == half-1)) {
				vr *= 2
				vi *= 2
			}
			bins[2*j1] += vr
			bins[2*j1+1] += vi
		} else {
			j2 := numeric.ModDivisorSign(ringLen-m, ringLen)
			bins[2*j2] += vr
			bins[2*j2+1] += -vi
		}
	}

	plan := fft.Plan(ringLen)
	plan.InverseRealFFT(bins)
	return bins[:ringLen], nil
}
