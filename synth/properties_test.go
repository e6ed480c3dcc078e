package synth_test

import (
	"context"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/montanaflynn/stats"
	"github.com/stretchr/testify/require"

	"github.com/tensorwave/shsynth"
	"github.com/tensorwave/shsynth/butterfly"
	"github.com/tensorwave/shsynth/grid"
	"github.com/tensorwave/shsynth/plan"
	"github.com/tensorwave/shsynth/resource/testresource"
	"github.com/tensorwave/shsynth/synth"
	"github.com/tensorwave/shsynth/topology"
)

// buildLegendreResourceFile builds a resource file whose every (m,odd)
// blob is a single small-k dense leaf holding the exact normalized
// associated Legendre functions evaluated at the half-sphere ring
// colatitudes — i.e. a lossless stand-in for a real rank-revealing
// butterfly compression, sufficient to test the engine's numerical
// behavior end to end (spec.md §8's Property 1 and friends) without
// this repo owning the offline compression pipeline.
func buildLegendreResourceFile(t *testing.T, g *grid.Descriptor, lmax, mmax int) string {
	t.Helper()
	nCols := g.MidRing + 1

	xs := make([]float64, nCols)
	for r := 0; r < nCols; r++ {
		theta, _, err := g.PixelAngle(int(g.RingOffsets[r]))
		require.NoError(t, err)
		xs[r] = math.Cos(theta)
	}
	lamsPerRing := make([][][]float64, nCols) // lamsPerRing[r][m][l-m]
	for r, x := range xs {
		lamsPerRing[r] = synth.NormalizedLegendre(lmax, mmax, x)
	}

	b := testresource.New(lmax, mmax, g.Nside)
	for m := 0; m <= mmax; m++ {
		nl := lmax - m + 1
		for _, odd := range []bool{false, true} {
			startJ := 0
			count := (nl + 1) / 2
			if odd {
				startJ = 1
				count = nl / 2
			}
			if count == 0 {
				b.SetBlob(m, odd, butterfly.EncodeZero())
				continue
			}
			matrix := make([]float64, count*nCols)
			for i := 0; i < count; i++ {
				l := m + startJ + 2*i
				for r := 0; r < nCols; r++ {
					matrix[i+r*count] = lamsPerRing[r][m][l-m]
				}
			}
			blob := butterfly.EncodeDenseLeaf(0, int64(count), butterfly.EncodeDenseMatrixTail(count, nCols, matrix))
			b.SetBlob(m, odd, blob)
		}
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "fixture.dat")
	require.NoError(t, os.WriteFile(path, b.Bytes(), 0o644))
	return path
}

func newTestPlan(t *testing.T, nside, lmax, mmax, nmaps, nthreads int) (*plan.Plan, *shsynth.Coefficients, *shsynth.Map) {
	t.Helper()
	g, err := grid.NewHEALPix(nside)
	require.NoError(t, err)

	path := buildLegendreResourceFile(t, g, lmax, mmax)

	coeffs := shsynth.NewCoefficients(lmax, mmax, nmaps)
	out := shsynth.NewMap(nside, nmaps)

	cfg := plan.Config{
		NSide: nside, LMax: lmax, MMax: mmax, NMaps: nmaps, NThreads: nthreads,
		Input: coeffs.Data, Output: out.Data,
		ResourcePath: path,
		Topology:     topology.SingleNode{NCPUs: nthreads},
	}
	p, err := plan.New(nil, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, p.Close()) })
	return p, coeffs, out
}

func randomCoefficients(t *testing.T, c *shsynth.Coefficients, rng *rand.Rand) {
	t.Helper()
	for m := 0; m <= c.MMax; m++ {
		for l := m; l <= c.LMax; l++ {
			for mapIdx := 0; mapIdx < c.NMaps; mapIdx++ {
				re := rng.NormFloat64()
				im := rng.NormFloat64()
				if m == 0 {
					im = 0 // a_{l,0} is real for a real-valued field
				}
				c.Set(l, m, mapIdx, re, im)
			}
		}
	}
}

// relativeRMS reports RMS(a-b) relative to RMS(b), via montanaflynn/stats
// (the teacher's statistics package of choice for summarizing sample
// error distributions).
func relativeRMS(t *testing.T, a, b []float64) float64 {
	t.Helper()
	sq := make([]float64, len(a))
	refSq := make([]float64, len(b))
	for i := range a {
		d := a[i] - b[i]
		sq[i] = d * d
		refSq[i] = b[i] * b[i]
	}
	meanSq, err := stats.Mean(sq)
	require.NoError(t, err)
	meanRefSq, err := stats.Mean(refSq)
	require.NoError(t, err)
	if meanRefSq == 0 {
		return math.Sqrt(meanSq)
	}
	return math.Sqrt(meanSq / meanRefSq)
}

// Property 1: execute must agree with the dense O(lmax^2*npix)
// reference synthesizer to 1e-10 relative RMS, for Nside in {2, 4}.
func TestProperty1SynthesisMatchesDenseReference(t *testing.T) {
	for _, nside := range []int{2, 4} {
		nside := nside
		t.Run(sizeName(nside), func(t *testing.T) {
			lmax := 2 * nside
			mmax := lmax
			p, coeffs, out := newTestPlan(t, nside, lmax, mmax, 1, 1)

			rng := rand.New(rand.NewSource(int64(nside)*7919 + 1))
			randomCoefficients(t, coeffs, rng)

			require.NoError(t, p.Execute(context.Background()))

			g, err := grid.NewHEALPix(nside)
			require.NoError(t, err)
			want := synth.DenseReference(coeffs, g)

			err2 := relativeRMS(t, out.Data, want.Data)
			require.Less(t, err2, 1e-10)
		})
	}
}

func sizeName(nside int) string {
	switch nside {
	case 2:
		return "nside2"
	case 4:
		return "nside4"
	default:
		return "nsideN"
	}
}

// Property 2: execute is linear in the coefficient array, up to 1e-12
// relative.
func TestProperty2Linearity(t *testing.T) {
	const nside = 2
	lmax, mmax := 4, 4
	p, coeffs, out := newTestPlan(t, nside, lmax, mmax, 1, 1)

	rng := rand.New(rand.NewSource(42))
	a := shsynth.NewCoefficients(lmax, mmax, 1)
	b := shsynth.NewCoefficients(lmax, mmax, 1)
	randomCoefficients(t, a, rng)
	randomCoefficients(t, b, rng)

	alpha, beta := 1.7, -0.3

	copy(coeffs.Data, a.Data)
	require.NoError(t, p.Execute(context.Background()))
	outA := append([]float64(nil), out.Data...)

	copy(coeffs.Data, b.Data)
	require.NoError(t, p.Execute(context.Background()))
	outB := append([]float64(nil), out.Data...)

	for i := range coeffs.Data {
		coeffs.Data[i] = alpha*a.Data[i] + beta*b.Data[i]
	}
	require.NoError(t, p.Execute(context.Background()))
	outCombined := out.Data

	want := make([]float64, len(outA))
	for i := range want {
		want[i] = alpha*outA[i] + beta*outB[i]
	}

	require.Less(t, relativeRMS(t, outCombined, want), 1e-12)
}

// Property 4: the equator ring's contribution from the odd-parity
// matrix is zero — execute must produce the same equator ring whether
// or not the odd-l coefficients are present.
func TestProperty4EquatorIndependentOfOddParity(t *testing.T) {
	const nside = 2
	lmax, mmax := 4, 4
	p, coeffs, out := newTestPlan(t, nside, lmax, mmax, 1, 1)

	rng := rand.New(rand.NewSource(7))
	randomCoefficients(t, coeffs, rng)
	require.NoError(t, p.Execute(context.Background()))

	g, err := grid.NewHEALPix(nside)
	require.NoError(t, err)
	equator := g.MidRing
	equatorStart := int(g.RingOffsets[equator])
	equatorLen := g.RingLen(equator)
	withOdd := append([]float64(nil), out.Data[equatorStart:equatorStart+equatorLen]...)

	// Zero every odd-(l-m) coefficient and rerun.
	for m := 0; m <= mmax; m++ {
		for l := m; l <= lmax; l++ {
			if (l-m)%2 != 1 {
				continue
			}
			coeffs.Set(l, m, 0, 0, 0)
		}
	}
	require.NoError(t, p.Execute(context.Background()))
	withoutOdd := out.Data[equatorStart : equatorStart+equatorLen]

	require.InDeltaSlice(t, withOdd, withoutOdd, 1e-9)
}

// Property 5: a single high-m mode that aliases exactly onto a ring's
// DC bin produces a constant value on that ring.
func TestProperty5AliasingFoldIsConstant(t *testing.T) {
	const nside = 2
	lmax, mmax := 4, 4
	p, coeffs, out := newTestPlan(t, nside, lmax, mmax, 1, 1)

	// m = 4 aliases onto bin 0 of the Nside=2 polar-cap ring (ringlen=4).
	coeffs.Set(4, 4, 0, 1, 0)
	require.NoError(t, p.Execute(context.Background()))

	g, err := grid.NewHEALPix(nside)
	require.NoError(t, err)
	ring := 0
	start := int(g.RingOffsets[ring])
	length := g.RingLen(ring)

	first := out.Data[start]
	for j := 0; j < length; j++ {
		require.InDelta(t, first, out.Data[start+j], 1e-9)
	}
}
