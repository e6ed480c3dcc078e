package plan

import "sync"

// barrier is a cyclic (reusable) N-party rendezvous: each call to wait
// blocks until `parties` callers have all called wait, then releases
// them together and immediately becomes ready for its next cycle. This
// is exactly the "barrier initialized to (nthreads + 1)" protocol
// spec.md §5 describes for fencing the execute-phase's two stages plus
// shutdown, built on sync.Mutex/sync.Cond because the teacher's
// dependency closure has no golang.org/x/sync import to reach for — it
// only ever uses errgroup/semaphore-shaped primitives elsewhere in the
// pack, none of which is a reusable N-party barrier. This is the one
// ambient concern in this repo built on the standard library rather
// than a pack dependency.
type barrier struct {
	mu      sync.Mutex
	cond    *sync.Cond
	parties int
	waiting int
	gen     int
}

func newBarrier(parties int) *barrier {
	b := &barrier{parties: parties}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// wait blocks until `parties` total callers (across all goroutines)
// have called wait since the last release, then returns in all of
// them at once.
func (b *barrier) wait() {
	b.mu.Lock()
	defer b.mu.Unlock()
	gen := b.gen
	b.waiting++
	if b.waiting == b.parties {
		b.waiting = 0
		b.gen++
		b.cond.Broadcast()
		return
	}
	for gen == b.gen {
		b.cond.Wait()
	}
}
