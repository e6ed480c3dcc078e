// Package topology abstracts NUMA node/CPU discovery and thread
// pinning, the substrate the original's planner queries via libnuma
// and pthread affinity calls (original_source/src/wavemoth.c). spec.md
// §9's Design Note calls for this to be a seam: production uses the
// real Linux topology, tests substitute a single-node stub.
package topology

// Topology reports the machine's node/CPU layout and lets a caller
// pin the current goroutine's OS thread to a specific CPU.
type Topology interface {
	// RunnableNodes returns the NUMA node IDs this process may use.
	RunnableNodes() []int
	// CPUsOnNode returns the logical CPU IDs local to node.
	CPUsOnNode(node int) []int
	// BindCurrentThreadTo pins the calling goroutine's current OS
	// thread to cpu. The caller must have already called
	// runtime.LockOSThread.
	BindCurrentThreadTo(cpu int) error
}

// BusSemaphore is a small channel-based counting semaphore guarding
// concurrent access to a shared bus/memory resource, held by the
// planner's Legendre stage around each butterfly application (the
// concurrency assist of spec.md §4.1) in place of a pthread semaphore. golang.org/x/sync's weighted semaphore is
// not part of the dependency closure this module draws from, so this
// is the minimal equivalent built directly on a buffered channel.
type BusSemaphore chan struct{}

// NewBusSemaphore returns a semaphore that allows up to n concurrent
// holders.
func NewBusSemaphore(n int) BusSemaphore {
	return make(BusSemaphore, n)
}

// Acquire blocks until a slot is available.
func (s BusSemaphore) Acquire() { s <- struct{}{} }

// Release returns a slot.
func (s BusSemaphore) Release() { <-s }
