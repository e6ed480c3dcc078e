// Package grid implements the HEALPix equatorial-symmetric ring
// descriptor: ring lengths, ring pixel offsets, and per-ring phi0
// shifts, exactly as specified by spec.md §4.3.
package grid

import (
	"fmt"
	"math"
)

// Descriptor is the immutable HEALPix grid geometry for a given Nside.
// It mirrors the original's wavemoth_grid_info, but with Go slices
// instead of a single hand-packed allocation (see
// original_source/src/wavemoth.c's wavemoth_create_healpix_grid_info).
type Descriptor struct {
	Nside       int
	NRings      int
	MidRing     int
	HasEquator  bool
	NPix        int
	RingOffsets []int64
	Phi0s       []float64
}

// NewHEALPix builds the grid descriptor for the given Nside.
func NewHEALPix(nside int) (*Descriptor, error) {
	if nside <= 0 {
		return nil, fmt.Errorf("grid: invalid Nside %d: must be positive", nside)
	}
	nrings := 4*nside - 1
	d := &Descriptor{
		Nside:       nside,
		NRings:      nrings,
		MidRing:     2*nside - 1,
		HasEquator:  true,
		RingOffsets: make([]int64, nrings+1),
		Phi0s:       make([]float64, nrings),
	}

	ringNpix := 0
	ipix := int64(0)
	for iring := 0; iring < nrings; iring++ {
		switch {
		case iring <= nside-1:
			ringNpix += 4
			d.Phi0s[iring] = math.Pi / (4.0 * float64(iring+1))
		case iring > 3*nside-1:
			ringNpix -= 4
			d.Phi0s[iring] = math.Pi / (4.0 * float64(nrings-iring))
		default:
			d.Phi0s[iring] = (math.Pi / (4.0 * float64(nside))) * float64(iring%2)
		}
		d.RingOffsets[iring] = ipix
		ipix += int64(ringNpix)
	}
	d.RingOffsets[nrings] = ipix
	d.NPix = int(ipix)
	return d, nil
}

// RingLen returns the pixel count of ring r.
func (d *Descriptor) RingLen(r int) int {
	return int(d.RingOffsets[r+1] - d.RingOffsets[r])
}

// PixelAngle returns the colatitude/azimuth of pixel ipix. This is a
// convenience not named explicitly in spec.md's distillation, but is
// present in the original test harness (original_source/src/fastsht.c)
// to build reference maps; it is used here by synth's dense reference
// synthesizer for Property 1.
func (d *Descriptor) PixelAngle(ipix int) (theta, phi float64, err error) {
	if ipix < 0 || ipix >= d.NPix {
		return 0, 0, fmt.Errorf("grid: pixel index %d out of range [0,%d)", ipix, d.NPix)
	}
	// Locate the ring containing ipix via the monotonic offsets table.
	lo, hi := 0, d.NRings
	for lo < hi {
		mid := (lo + hi) / 2
		if d.RingOffsets[mid+1] <= int64(ipix) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	iring := lo
	j := ipix - int(d.RingOffsets[iring])
	ringLen := d.RingLen(iring)
	phi = d.Phi0s[iring] + 2*math.Pi*float64(j)/float64(ringLen)

	theta = ringColatitude(d.Nside, d.NRings, iring)
	return theta, phi, nil
}

// ringColatitude computes cos(theta) for ring iring via the standard
// HEALPix ring-to-z relations, then returns theta itself.
func ringColatitude(nside, nrings, iring int) float64 {
	var z float64
	switch {
	case iring <= nside-1:
		i := iring + 1
		z = 1.0 - float64(i*i)/(3.0*float64(nside*nside))
	case iring > 3*nside-1:
		i := nrings - iring
		z = float64(i*i)/(3.0*float64(nside*nside)) - 1.0
	default:
		i := iring + 1
		z = float64(4*nside-2*i) / (3.0 * float64(nside))
	}
	if z > 1 {
		z = 1
	}
	if z < -1 {
		z = -1
	}
	return math.Acos(z)
}
