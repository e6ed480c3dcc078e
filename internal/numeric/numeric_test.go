package numeric_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tensorwave/shsynth/internal/numeric"
)

func TestCossinMatchesMathLib(t *testing.T) {
	n := 10
	x0, delta := 0.3, 0.17
	out := make([]float64, 2*n)
	numeric.Cossin(out, n, x0, delta)
	for i := 0; i < n; i++ {
		theta := x0 + float64(i)*delta
		require.InDelta(t, math.Cos(theta), out[2*i], 1e-9)
		require.InDelta(t, math.Sin(theta), out[2*i+1], 1e-9)
	}
}

func TestModDivisorSignCarriesDivisorSign(t *testing.T) {
	require.Equal(t, 2, numeric.ModDivisorSign(-1, 3))
	require.Equal(t, -1, numeric.ModDivisorSign(2, -3))
	require.Equal(t, 0, numeric.ModDivisorSign(6, 3))
}

func TestNaiveBLASDGEMM(t *testing.T) {
	// A (2x2) = [[1,2],[3,4]] col-major, B (2x1) = [5,6] col-major.
	a := []float64{1, 3, 2, 4}
	b := []float64{5, 6}
	c := make([]float64, 2)
	var blas numeric.NaiveBLAS
	blas.DGEMM(2, 1, 2, a, 2, b, 2, 0, c, 2)
	require.InDeltaSlice(t, []float64{1*5 + 2*6, 3*5 + 4*6}, c, 1e-12)
}

func TestNaiveBLASDGEMMAccumulates(t *testing.T) {
	a := []float64{1}
	b := []float64{2}
	c := []float64{10}
	var blas numeric.NaiveBLAS
	blas.DGEMM(1, 1, 1, a, 1, b, 1, 1, c, 1)
	require.InDelta(t, 12, c[0], 1e-12)
}

func TestDFTPlannerInverseRealFFT(t *testing.T) {
	n := 8
	plan := numeric.DFTPlanner{}.Plan(n)
	buf := make([]float64, 2*(n/2+1))
	buf[2] = 0.5 // re[1] = 0.5, im[1] = 0: a unit cosine mode at k=1
	plan.InverseRealFFT(buf)
	for i := 0; i < n; i++ {
		want := math.Cos(2 * math.Pi * float64(i) / float64(n))
		require.InDelta(t, want, buf[i], 1e-9)
	}
}
