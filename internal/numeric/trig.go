package numeric

import "math"

// Cossin fills out (length 2*n) with cos(x0+i*delta), sin(x0+i*delta)
// for i = 0..n-1, interleaved as (cos,sin) pairs. It uses the same
// angle-addition recurrence as the original's wavemoth_cossin (far
// cheaper than calling cos/sin at every step), generalized from its
// fixed-pairwise-SIMD form into a plain scalar loop.
func Cossin(out []float64, n int, x0, delta float64) {
	if n == 0 {
		return
	}
	a := math.Sin(0.5 * delta)
	a = 2 * a * a
	b := math.Sin(delta)
	cy, sy := math.Cos(x0), math.Sin(x0)
	out[0], out[1] = cy, sy
	for i := 1; i < n; i++ {
		tc, ts := -a*cy, -a*sy
		uc, us := -b*sy, b*cy // beta * rot90(y), matching the original's lane shuffle
		nc := cy + tc + uc
		ns := sy + ts + us
		cy, sy = nc, ns
		out[2*i], out[2*i+1] = cy, sy
	}
}

// ModDivisorSign is the "more useful mod function" from spec.md §9: the
// result carries the sign of the divisor rather than of the dividend,
// exactly mirroring original_source's imod_divisorsign.
func ModDivisorSign(a, b int) int {
	r := a % b
	if r != 0 && (r^b) < 0 {
		r += b
	}
	return r
}
