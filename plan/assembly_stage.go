package plan

import (
	"github.com/tensorwave/shsynth/assembly"
	"github.com/tensorwave/shsynth/grid"
	"github.com/tensorwave/shsynth/internal/check"
)

// runAssemblyStage implements spec.md §4.6: for each FFTChunkSize-sized
// block of half-sphere rings this CPU owns, and for each map, gather
// every m's phase-vector pair from wherever the Legendre stage left it
// (possibly on a different node — the inter-stage barrier already
// established happens-before for every slab) and fold+invert one
// north/south ring pair at a time.
func (p *Plan) runAssemblyStage(cpu *CPUPlan) error {
	nvecs := 2 * p.cfg.NMaps

	for _, r := range cpu.Rings {
		north := r
		south := p.grid.NRings - 1 - r
		isEquator := north == south

		for mapIdx := 0; mapIdx < p.cfg.NMaps; mapIdx++ {
			qEven := make([]float64, 2*(p.cfg.MMax+1))
			qOdd := make([]float64, 2*(p.cfg.MMax+1))

			for m := 0; m <= p.cfg.MMax; m++ {
				loc, ok := p.mToPhaseRing[m]
				check.Checkf(ok, "assembly stage: m=%d missing from m_to_phase_ring", m)

				evenSlab := loc.node.WorkQ[(2*loc.im+0)*loc.node.WorkQStride:]
				oddSlab := loc.node.WorkQ[(2*loc.im+1)*loc.node.WorkQStride:]
				base := r*nvecs + mapIdx*2

				qEven[2*m], qEven[2*m+1] = evenSlab[base], evenSlab[base+1]
				qOdd[2*m], qOdd[2*m+1] = oddSlab[base], oddSlab[base+1]
			}

			northGeom := assembly.RingGeometry{Len: p.grid.RingLen(north), Phi0: p.grid.Phi0s[north]}
			southGeom := assembly.RingGeometry{Len: p.grid.RingLen(south), Phi0: p.grid.Phi0s[south]}

			northPix, southPix, err := assembly.AssemblePair(qEven, qOdd, northGeom, southGeom, p.cfg.MMax, p.cfg.FFT)
			if err != nil {
				return err
			}

			writeRing(p.cfg.Output, p.grid, north, mapIdx, p.cfg.NMaps, northPix)
			if !isEquator {
				writeRing(p.cfg.Output, p.grid, south, mapIdx, p.cfg.NMaps, southPix)
			}
		}
	}
	return nil
}

// writeRing copies one map's pixel ring into its place in the
// concatenated-by-map, ring-by-ring output buffer from spec.md §3's
// "Pixel layout (output)".
func writeRing(output []float64, g *grid.Descriptor, ring, mapIdx, nmaps int, pix []float64) {
	mapBase := mapIdx * g.NPix
	ringBase := int(g.RingOffsets[ring])
	copy(output[mapBase+ringBase:mapBase+ringBase+len(pix)], pix)
}
