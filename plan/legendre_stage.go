package plan

import (
	"github.com/tensorwave/shsynth/butterfly"
	"github.com/tensorwave/shsynth/internal/check"
	"github.com/tensorwave/shsynth/legendre"
)

// runLegendreStage implements spec.md §4.5: the worker loop pulls
// (m, both parities) tasks from its node's shared queue cursor until
// exhausted, invoking butterfly.ApplyTranspose with the fast Legendre
// leaf callback and writing into that m's slab of the node's work_q.
func (p *Plan) runLegendreStage(node *NodePlan, cpu *CPUPlan) error {
	nCols := p.grid.MidRing + 1
	nvecs := 2 * p.cfg.NMaps

	for {
		node.mu.Lock()
		im := node.im
		if im >= len(node.Ms) {
			node.mu.Unlock()
			return nil
		}
		node.im++
		node.mu.Unlock()

		m := node.Ms[im]

		for oddIdx, odd := range [2]bool{false, true} {
			pair := node.Blobs[m]
			blob := pair[oddIdx]
			// spec.md §9's Open Question resolution: a missing m-blob
			// is a hard error at execute time, not a silent skip.
			check.Checkf(blob != nil, "legendre stage: m=%d odd=%v has no resource blob", m, odd)

			packed := packCoefficients(p.cfg.Input, p.cfg.LMax, p.cfg.NMaps, m, odd)
			legendreCtx := &legendre.Context{Input: packed, NVecs: nvecs, BLAS: p.cfg.BLAS}

			out := node.WorkQ[(2*im+oddIdx)*node.WorkQStride : (2*im+oddIdx)*node.WorkQStride+nCols*nvecs]

			node.Sem.Acquire()
			err := butterfly.ApplyTranspose(blob, nCols, nvecs, legendre.Leaf, out, legendreCtx, cpu.arena)
			node.Sem.Release()

			check.Checkf(err == nil, "legendre stage: m=%d odd=%v: %v", m, odd, err)
		}
	}
}
