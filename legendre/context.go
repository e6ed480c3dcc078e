// Package legendre implements the dense-leaf callback the butterfly
// engine invokes while applying a resource file's per-m matrix blob:
// the fast associated-Legendre-function evaluation described by
// spec.md §4.2, grounded on original_source/src/wavemoth.c's
// pull_a_through_legendre_block and its small-k/large-k split.
package legendre

import "github.com/tensorwave/shsynth/internal/numeric"

// Context is the per-(m, parity) state a Leaf invocation needs: the
// packed coefficient vector for this m/parity (already selected to the
// even or odd-l subset, per spec.md §4.5's parity packing) and a dense
// matrix backend. The small-k path does not call BLAS; it multiplies
// with its own loop.
type Context struct {
	// Input holds a_{l,m} for l = m, m+2, m+4, ... (or m+1, m+3, ... for
	// the odd parity), indexed so that row i of a leaf's declared
	// [rowStart, rowStop) range selects Input[rowStart+i]. Each entry is
	// nvecs float64 wide (packed real/imag pairs across however many
	// maps are being synthesized at once).
	Input []float64
	NVecs int

	BLAS numeric.BLAS
}
