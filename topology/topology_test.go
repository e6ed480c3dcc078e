package topology_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tensorwave/shsynth/topology"
)

func TestSingleNodeStub(t *testing.T) {
	var top topology.Topology = topology.SingleNode{NCPUs: 4}
	require.Equal(t, []int{0}, top.RunnableNodes())
	require.Equal(t, []int{0, 1, 2, 3}, top.CPUsOnNode(0))
	require.Nil(t, top.CPUsOnNode(1))
	require.NoError(t, top.BindCurrentThreadTo(2))
}

func TestBusSemaphoreLimitsConcurrency(t *testing.T) {
	sem := topology.NewBusSemaphore(2)
	sem.Acquire()
	sem.Acquire()

	acquired := make(chan struct{})
	go func() {
		sem.Acquire()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("third acquire should have blocked")
	default:
	}

	sem.Release()
	<-acquired
	sem.Release()
	sem.Release()
}
