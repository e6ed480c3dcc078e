// Package plan implements spec.md §4.4's planner: it distributes CPUs,
// m-values, and ring-pairs across a topology.Topology, loads a resource
// file, and builds a persistent worker pool that executes the Legendre
// and assembly+FFT stages (spec.md §4.5/§4.6) under a barrier protocol
// (spec.md §5), grounded on original_source/src/wavemoth.c's
// wavemoth_plan_to_healpix and its associated thread-pool setup.
package plan

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/exp/slices"

	"github.com/tensorwave/shsynth/butterfly"
	"github.com/tensorwave/shsynth/grid"
	"github.com/tensorwave/shsynth/internal/check"
	"github.com/tensorwave/shsynth/internal/numeric"
	"github.com/tensorwave/shsynth/resource"
	"github.com/tensorwave/shsynth/topology"
)

// cacheLineFloats is the cache-line size expressed in float64 units
// (64 bytes / 8), used to round work_q_stride up per spec.md §3's
// "Per-node plan" invariant (iv).
const cacheLineFloats = 8

// NodePlan is the per-NUMA-node plan state from spec.md §3's
// "Per-node plan": the m's this node owns, its slab of matrix blobs,
// its work_q buffer, and the mutex-guarded queue cursor the Legendre
// stage pulls from.
type NodePlan struct {
	NodeID int
	Ms     []int

	// Blobs[m][0] is the even-parity blob, Blobs[m][1] the odd-parity
	// blob, either an alias into the mmap'd resource.File (when
	// Config.NoResourceCopy is set) or a private on-node copy.
	Blobs map[int][2][]byte

	WorkQ       []float64
	WorkQStride int

	KMax       int
	NBlocksMax int

	Sem topology.BusSemaphore

	mu sync.Mutex
	im int
}

// CPUPlan is the per-CPU plan state from spec.md §3's "Per-CPU plan":
// the half-sphere ring indices this CPU owns (already chunked into
// FFTChunkSize-sized blocks) and its private scratch.
type CPUPlan struct {
	CPUID  int
	NodeID int
	Rings  []int // half-sphere ring indices (0..mid_ring), FFTChunkSize-chunked

	arena *butterfly.Arena
}

// phaseLoc locates a given m's phase-vector slab: which node owns it
// and at what position (im) within that node's work_q, per spec.md
// §3's "Global plan... m_to_phase_ring".
type phaseLoc struct {
	node *NodePlan
	im   int
}

// Plan is the immutable global plan from spec.md §3's "Global plan".
// All fields are read-only after New returns, except the mutex-guarded
// fields nested inside NodePlan and the atomic fault/destructing flags
// used by Execute/Close.
type Plan struct {
	cfg Config

	grid         *grid.Descriptor
	resourceFile *resource.File
	ownsResource bool

	nodes []*NodePlan
	cpus  []*CPUPlan

	mToPhaseRing map[int]phaseLoc

	barrier *barrier

	destructing atomic.Bool
	fault       atomic.Pointer[error] // first error of the current Execute, nil if none

	statsMu sync.Mutex
	stats   Stats
}

// Stats accumulates simple bookkeeping across Execute calls (the
// number of completed runs), replacing the need for any logging: spec.md explicitly places
// logging/CLI out of scope, so diagnostics are returned through typed
// accessors instead of being printed.
type Stats struct {
	Runs int
}

// New implements spec.md §4.4 steps 1-9. ctx supplies the resource root
// unless cfg.ResourcePath overrides it.
func New(ctx ResourceRooter, cfg Config) (*Plan, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Topology == nil {
		linux, err := topology.NewLinux(cfg.NThreads)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
		cfg.Topology = linux
	}
	if cfg.BLAS == nil {
		cfg.BLAS = numeric.NaiveBLAS{}
	}
	if cfg.FFT == nil {
		cfg.FFT = numeric.DFTPlanner{}
	}

	top := cfg.Topology

	// Step 1: runnable nodes.
	runnableNodes := top.RunnableNodes()
	if len(runnableNodes) == 0 {
		return nil, errConfigf("topology reports no runnable nodes")
	}

	// Step 2: distribute CPUs round-robin across nodes.
	cpuAssignments, err := distributeCPUs(top, runnableNodes, cfg.NThreads)
	if err != nil {
		return nil, err
	}

	// Step 3: distribute m round-robin across nodes, sorted ascending.
	nodeMs := distributeMs(runnableNodes, cfg.MMax)

	// Step 5: load the resource file.
	path := cfg.ResourcePath
	if path == "" {
		path = ctx.ResourcePath(cfg.NSide)
	}
	rf, err := resource.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	ownsResource := true
	if rf.LMax != cfg.LMax || rf.MMax != cfg.MMax || rf.NSide != cfg.NSide {
		_ = rf.Close()
		return nil, errConfigf("resource file (lmax=%d,mmax=%d,nside=%d) does not match request (lmax=%d,mmax=%d,nside=%d)",
			rf.LMax, rf.MMax, rf.NSide, cfg.LMax, cfg.MMax, cfg.NSide)
	}

	g, err := grid.NewHEALPix(cfg.NSide)
	if err != nil {
		_ = rf.Close()
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	nCols := g.MidRing + 1 // half-sphere ring count, shared by every m's matrix

	// Build NodePlans.
	nodes := make([]*NodePlan, len(runnableNodes))
	nodeIndex := make(map[int]int, len(runnableNodes))
	for i, n := range runnableNodes {
		nodeIndex[n] = i
		nodes[i] = &NodePlan{
			NodeID: n,
			Ms:     nodeMs[n],
			Blobs:  make(map[int][2][]byte, len(nodeMs[n])),
			Sem:    topology.NewBusSemaphore(1), // default N=1 per spec.md §9
		}
	}

	// Step 4: distribute half-sphere rings into FFTChunkSize blocks,
	// round-robin across CPUs node-by-node.
	cpus := make([]*CPUPlan, len(cpuAssignments))
	for i, a := range cpuAssignments {
		cpus[i] = &CPUPlan{CPUID: a.cpu, NodeID: a.node}
	}
	distributeRings(cpus, nCols)

	// Step 6: per-assigned-CPU init. Grouped by node so each node's
	// sequential page-touch pass runs before that node's init goroutines
	// start.
	var prefetchMu sync.Mutex // throttles prefetch to one node at a time
	var fftPlanMu sync.Mutex  // FFT planning is not thread-safe
	var initWG sync.WaitGroup
	initErrs := make([]error, len(cpus))

	for ni, node := range nodes {
		cpusOnNode := cpusForNode(cpus, node.NodeID)
		if len(cpusOnNode) == 0 {
			continue
		}

		// 6(a): the planning goroutine sequentially touches every byte of
		// the node's blobs (a stand-in for mmap page-faulting), one node
		// at a time.
		prefetchMu.Lock()
		prefetchNode(rf, node.Ms)
		prefetchMu.Unlock()

		for lane, cpuIdx := range cpusOnNode {
			lane, cpuIdx := lane, cpuIdx
			initWG.Add(1)
			go func() {
				defer initWG.Done()
				cpu := cpus[cpuIdx]
				cpu.arena = butterfly.NewArena(4, 2*cfg.NMaps)

				// 6(b)/6(c): stride = this node's CPU count.
				stride := len(cpusOnNode)
				for mi := lane; mi < len(node.Ms); mi += stride {
					m := node.Ms[mi]
					var pair [2][]byte
					for oddIdx, odd := range [2]bool{false, true} {
						blob := rf.Blob(m, odd)
						if blob == nil {
							continue
						}
						if cfg.NoResourceCopy {
							pair[oddIdx] = blob
						} else {
							cp := make([]byte, len(blob))
							copy(cp, blob)
							pair[oddIdx] = cp
						}
						info, err := butterfly.Query(pair[oddIdx], nCols)
						if err != nil {
							initErrs[cpuIdx] = fmt.Errorf("query m=%d odd=%v: %w", m, odd, err)
							return
						}
						node.mu.Lock()
						if info.KMax > node.KMax {
							node.KMax = info.KMax
						}
						if info.NBlocksMax > node.NBlocksMax {
							node.NBlocksMax = info.NBlocksMax
						}
						node.mu.Unlock()
						if info.KMax > cpu.arena.KMax() {
							cpu.arena = butterfly.NewArena(info.KMax, 2*cfg.NMaps)
						}
					}
					node.mu.Lock()
					node.Blobs[m] = pair
					node.mu.Unlock()
				}

				// 6(d): FFT planning, guarded by a global mutex.
				fftPlanMu.Lock()
				for _, r := range cpu.Rings {
					cfg.FFT.Plan(g.RingLen(r))
					south := g.NRings - 1 - r
					if south != r {
						cfg.FFT.Plan(g.RingLen(south))
					}
				}
				fftPlanMu.Unlock()
			}()
		}
	}
	initWG.Wait()
	for _, e := range initErrs {
		if e != nil {
			_ = rf.Close()
			return nil, fmt.Errorf("%w: %v", ErrResourceExhaustion, e)
		}
	}

	// Step 7: each node allocates its work_q.
	nvecs := 2 * cfg.NMaps
	stride := workQStride(nvecs, nCols)
	for _, node := range nodes {
		node.WorkQStride = stride
		node.WorkQ = make([]float64, 2*len(node.Ms)*stride)
	}

	// Step 8: assemble m_to_phase_ring.
	mToPhaseRing := make(map[int]phaseLoc, cfg.MMax+1)
	for _, node := range nodes {
		for im, m := range node.Ms {
			mToPhaseRing[m] = phaseLoc{node: node, im: im}
		}
	}
	for m := 0; m <= cfg.MMax; m++ {
		if _, ok := mToPhaseRing[m]; !ok {
			_ = rf.Close()
			return nil, errConfigf("m=%d was not assigned to any node", m)
		}
	}

	p := &Plan{
		cfg:          cfg,
		grid:         g,
		resourceFile: rf,
		ownsResource: ownsResource,
		nodes:        nodes,
		cpus:         cpus,
		mToPhaseRing: mToPhaseRing,
		barrier:      newBarrier(len(cpus) + 1),
	}

	// Step 9: spawn persistent execute goroutines, one per CPU.
	for i, cpu := range cpus {
		node := nodes[nodeIndex[cpu.NodeID]]
		go p.cpuWorker(node, cpu)
		_ = i
	}

	return p, nil
}

type cpuAssignment struct {
	node int
	cpu  int
}

// distributeCPUs assigns cfg.NThreads CPU ids, round-robin across
// nodes, picking ascending cpu_id within each node (spec.md §4.4 step 2).
func distributeCPUs(top topology.Topology, nodes []int, nthreads int) ([]cpuAssignment, error) {
	perNode := make([][]int, len(nodes))
	cursor := make([]int, len(nodes))
	for i, n := range nodes {
		cpus := append([]int(nil), top.CPUsOnNode(n)...)
		sort.Ints(cpus)
		perNode[i] = cpus
	}

	var out []cpuAssignment
	for len(out) < nthreads {
		progressed := false
		for i, n := range nodes {
			if cursor[i] >= len(perNode[i]) {
				continue
			}
			out = append(out, cpuAssignment{node: n, cpu: perNode[i][cursor[i]]})
			cursor[i]++
			progressed = true
			if len(out) == nthreads {
				break
			}
		}
		if !progressed {
			return nil, errConfigf("requested %d threads but topology only offers %d CPUs", nthreads, len(out))
		}
	}
	return out, nil
}

// cpusForNode returns the indices within cpus (in their current order)
// belonging to the given node. Called after distributeRings has sorted
// cpus node-major/cpu-id-ascending, so the returned indices are already
// in ascending cpu_id order within the node, matching spec.md §4.4 step
// 2's "pick CPUs in ascending cpu_id order."
func cpusForNode(cpus []*CPUPlan, node int) []int {
	var out []int
	for i, c := range cpus {
		if c.NodeID == node {
			out = append(out, i)
		}
	}
	return out
}

// distributeMs assigns m in [0,mmax] round-robin across nodes, each
// node's list sorted ascending (spec.md §4.4 step 3).
func distributeMs(nodes []int, mmax int) map[int][]int {
	out := make(map[int][]int, len(nodes))
	for i, m := 0, 0; m <= mmax; m, i = m+1, i+1 {
		node := nodes[i%len(nodes)]
		out[node] = append(out[node], m)
	}
	for _, n := range nodes {
		slices.Sort(out[n])
	}
	return out
}

// distributeRings splits the [0,nringsHalf) half-sphere ring range into
// FFTChunkSize blocks, dealt round-robin across cpus node-by-node
// (spec.md §4.4 step 4).
func distributeRings(cpus []*CPUPlan, nringsHalf int) {
	if len(cpus) == 0 {
		return
	}
	sort.SliceStable(cpus, func(i, j int) bool {
		if cpus[i].NodeID != cpus[j].NodeID {
			return cpus[i].NodeID < cpus[j].NodeID
		}
		return cpus[i].CPUID < cpus[j].CPUID
	})

	var chunks [][]int
	for start := 0; start < nringsHalf; start += FFTChunkSize {
		stop := start + FFTChunkSize
		if stop > nringsHalf {
			stop = nringsHalf
		}
		chunk := make([]int, 0, stop-start)
		for r := start; r < stop; r++ {
			chunk = append(chunk, r)
		}
		chunks = append(chunks, chunk)
	}
	for i, chunk := range chunks {
		cpu := cpus[i%len(cpus)]
		cpu.Rings = append(cpu.Rings, chunk...)
	}
}

// workQStride returns the smallest multiple of a cache line (in
// float64 units) that is >= nvecs*nringsHalf, per spec.md §3 invariant
// (iv).
func workQStride(nvecs, nringsHalf int) int {
	need := nvecs * nringsHalf
	if need%cacheLineFloats == 0 {
		return need
	}
	return need + (cacheLineFloats - need%cacheLineFloats)
}

func prefetchNode(rf *resource.File, ms []int) {
	var sink byte
	for _, m := range ms {
		for _, odd := range [2]bool{false, true} {
			blob := rf.Blob(m, odd)
			for _, b := range blob {
				sink += b
			}
		}
	}
	_ = sink
}

// recordFault stores the first error/fault observed by any worker
// during the current Execute call.
func (p *Plan) recordFault(err error) {
	p.fault.CompareAndSwap(nil, &err)
}

// cpuWorker is the persistent per-CPU goroutine from spec.md §4.4 step
// 9 / §5's worker pool: it waits at the barrier, then alternates
// between the Legendre stage and the assembly+FFT stage each time
// Execute releases it, until Close trips the barrier with destructing
// set.
func (p *Plan) cpuWorker(node *NodePlan, cpu *CPUPlan) {
	for {
		p.barrier.wait() // trip 1: start Legendre (or shutdown)
		if p.destructing.Load() {
			return
		}

		p.runStageGuarded(func() error { return p.runLegendreStage(node, cpu) })

		p.barrier.wait() // trip 2: Legendre done, start FFT

		p.runStageGuarded(func() error { return p.runAssemblyStage(cpu) })

		p.barrier.wait() // trip 3: FFT done
	}
}

// runStageGuarded runs fn, converting a *check.Fault panic (raised by
// internal/check for resource corruption discovered mid-execute) or a
// returned error into a recorded fault rather than letting it escape a
// worker goroutine, per SPEC_FULL.md §7.
func (p *Plan) runStageGuarded(fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			if f, ok := r.(*check.Fault); ok {
				p.recordFault(fmt.Errorf("%w: %v", ErrCorruptionDuringExecute, f))
				return
			}
			panic(r)
		}
	}()
	if err := fn(); err != nil {
		p.recordFault(err)
	}
}

// Execute runs one full Legendre + assembly/FFT pass over cfg.Input,
// writing cfg.Output. Per spec.md §5, mid-flight cancellation is not
// supported: ctx is only checked before the call begins.
func (p *Plan) Execute(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("plan: context already done: %w", err)
	}
	if p.destructing.Load() {
		return errConfigf("plan is closed")
	}

	p.fault.Store(nil)
	for _, node := range p.nodes {
		node.mu.Lock()
		node.im = 0
		node.mu.Unlock()
	}

	p.barrier.wait() // release workers into the Legendre stage
	p.barrier.wait() // wait for Legendre stage to finish
	p.barrier.wait() // wait for assembly/FFT stage to finish

	p.statsMu.Lock()
	p.stats.Runs++
	p.statsMu.Unlock()

	if f := p.fault.Load(); f != nil {
		return *f
	}
	return nil
}

// Close shuts down the persistent worker pool and releases the
// resource file mapping. Calls after the first do nothing and return
// nil.
func (p *Plan) Close() error {
	if !p.destructing.CompareAndSwap(false, true) {
		return nil
	}
	p.barrier.wait() // wakes every worker blocked at trip 1; they see destructing and return
	if p.ownsResource {
		return p.resourceFile.Close()
	}
	return nil
}

// Stats returns a snapshot of run bookkeeping (spec.md explicitly
// excludes logging; this is the typed alternative).
func (p *Plan) Stats() Stats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.stats
}

// LegendreFlops implements spec.md §6's get_legendre_flops: 2 times the
// element count of the (m, odd) matrix times nvecs.
func (p *Plan) LegendreFlops(m int, odd bool) (int64, error) {
	loc, ok := p.mToPhaseRing[m]
	if !ok {
		return 0, errConfigf("m=%d is out of range", m)
	}
	oddIdx := 0
	if odd {
		oddIdx = 1
	}
	blob := loc.node.Blobs[m][oddIdx]
	if blob == nil {
		return 0, errConfigf("m=%d odd=%v has no resource blob", m, odd)
	}
	nCols := p.grid.MidRing + 1
	info, err := butterfly.Query(blob, nCols)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrIO, err)
	}
	nvecs := int64(2 * p.cfg.NMaps)
	return 2 * info.ElementCount * nvecs, nil
}
