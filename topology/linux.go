package topology

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Linux is the production Topology, built from the calling process's
// CPU affinity mask. It groups the CPUs of that mask, in ascending
// order, into consecutive nodes of cpusPerNode CPUs each; it reads no
// NUMA information from /sys/devices/system/node. Go's garbage
// collector has no NUMA-local allocation primitive, so
// BindCurrentThreadTo can pin only *thread* placement — memory
// locality is best-effort, a known approximation from spec.md §4.4's
// NUMA-aware design recorded rather than silently dropped.
type Linux struct {
	cpusPerNode int
}

// maxProbedCPUs bounds the sched_getaffinity scan; unix.CPUSet covers
// far more CPUs than any real deployment of this module is likely to
// see, so a fixed bound keeps the scan simple and allocation-free.
const maxProbedCPUs = 1024

// NewLinux builds a Linux topology from the process's current CPU
// affinity mask, grouping CPUs into nodes of cpusPerNode each.
func NewLinux(cpusPerNode int) (*Linux, error) {
	if cpusPerNode <= 0 {
		return nil, fmt.Errorf("topology: cpusPerNode must be positive, got %d", cpusPerNode)
	}
	return &Linux{cpusPerNode: cpusPerNode}, nil
}

func (l *Linux) availableCPUs() ([]int, error) {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return nil, fmt.Errorf("topology: sched_getaffinity: %w", err)
	}
	var cpus []int
	for cpu := 0; cpu < maxProbedCPUs; cpu++ {
		if set.IsSet(cpu) {
			cpus = append(cpus, cpu)
		}
	}
	return cpus, nil
}

// RunnableNodes implements Topology.
func (l *Linux) RunnableNodes() []int {
	cpus, err := l.availableCPUs()
	if err != nil || len(cpus) == 0 {
		return []int{0}
	}
	nNodes := (len(cpus) + l.cpusPerNode - 1) / l.cpusPerNode
	nodes := make([]int, nNodes)
	for i := range nodes {
		nodes[i] = i
	}
	return nodes
}

// CPUsOnNode implements Topology.
func (l *Linux) CPUsOnNode(node int) []int {
	cpus, err := l.availableCPUs()
	if err != nil {
		if node == 0 {
			return []int{0}
		}
		return nil
	}
	start := node * l.cpusPerNode
	if start >= len(cpus) {
		return nil
	}
	stop := start + l.cpusPerNode
	if stop > len(cpus) {
		stop = len(cpus)
	}
	return cpus[start:stop]
}

// BindCurrentThreadTo implements Topology.
func (l *Linux) BindCurrentThreadTo(cpu int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("topology: sched_setaffinity(cpu=%d): %w", cpu, err)
	}
	return nil
}
