// Package synth holds the dense O(lmax^2*npix) reference synthesizer
// used by this repo's own property tests (spec.md §8 Property 1) and
// the helpers needed to build small synthetic butterfly resource files
// whose dense leaves are directly the normalized associated Legendre
// functions, rather than a real rank-revealing compression. Neither
// original_source nor the teacher specifies this normalization; it is
// the standard one used throughout spherical-harmonic-transform
// literature (and implicitly fixed by spec.md's own scenario 2, which
// ties a_{0,0}=sqrt(4*pi) to a constant-1 map, i.e. Y_00 = 1/sqrt(4*pi)).
package synth

import (
	"math"

	"github.com/tensorwave/shsynth"
	"github.com/tensorwave/shsynth/grid"
)

// NormalizedLegendre evaluates the fully-normalized associated
// Legendre functions λ_l^m(x) (the real spherical harmonic radial
// factor, excluding the e^{i*m*phi} azimuthal part) for l = m..lmax,
// m = 0..mmax, at x = cos(theta), via the standard stable
// sectoral-seed + two-term recurrence. Returns lambda[m][l-m].
func NormalizedLegendre(lmax, mmax int, x float64) [][]float64 {
	out := make([][]float64, mmax+1)
	sinTheta := math.Sqrt(1 - x*x)
	sectoral := 1 / math.Sqrt(4*math.Pi) // lambda_0^0

	for m := 0; m <= mmax; m++ {
		if m > 0 {
			sectoral = -math.Sqrt(float64(2*m+1)/float64(2*m)) * sinTheta * sectoral
		}
		n := lmax - m + 1
		col := make([]float64, n)
		col[0] = sectoral
		if n > 1 {
			col[1] = math.Sqrt(float64(2*m+3)) * x * col[0]
		}
		for l := m + 2; l <= lmax; l++ {
			a := math.Sqrt(float64(2*l+1) * float64(2*l-1) / float64((l-m)*(l+m)))
			b := math.Sqrt(float64(2*l+1) * float64(l-m-1) * float64(l+m-1) / float64((2*l-3)*(l-m)*(l+m)))
			col[l-m] = a*x*col[l-1-m] - b*col[l-2-m]
		}
		out[m] = col
	}
	return out
}

// DenseReference evaluates coeffs onto g's pixelization directly,
// spending O(lmax^2) work per pixel instead of using the
// butterfly-compressed Legendre stage + FFT assembly. Property 1
// compares this against plan.Plan.Execute's output.
func DenseReference(coeffs *shsynth.Coefficients, g *grid.Descriptor) *shsynth.Map {
	out := shsynth.NewMap(g.Nside, coeffs.NMaps)
	npix := g.NPix

	for ipix := 0; ipix < npix; ipix++ {
		theta, phi, err := g.PixelAngle(ipix)
		if err != nil {
			panic(err) // ipix always in range here; a real violation is a programming error
		}
		lams := NormalizedLegendre(coeffs.LMax, coeffs.MMax, math.Cos(theta))

		for mapIdx := 0; mapIdx < coeffs.NMaps; mapIdx++ {
			var acc float64
			for m := 0; m <= coeffs.MMax; m++ {
				var qr, qi float64
				for l := m; l <= coeffs.LMax; l++ {
					re, im := coeffs.Get(l, m, mapIdx)
					lam := lams[m][l-m]
					qr += re * lam
					qi += im * lam
				}
				c, s := math.Cos(float64(m)*phi), math.Sin(float64(m)*phi)
				term := qr*c - qi*s
				if m > 0 {
					term *= 2
				}
				acc += term
			}
			out.Data[mapIdx*npix+ipix] = acc
		}
	}
	return out
}
