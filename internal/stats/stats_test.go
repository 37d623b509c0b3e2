package stats

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSnapshotEmpty(t *testing.T) {
	a := NewAggregate()
	assert.Equal(t, Snapshot{}, a.Snapshot())
}

func TestTotalsAddUp(t *testing.T) {
	a := NewAggregate()
	a.RecordSuccess(time.Second)
	a.RecordSuccess(2 * time.Second)
	a.RecordFailure(time.Second)

	snap := a.Snapshot()
	assert.Equal(t, uint64(2), snap.Succeeded)
	assert.Equal(t, uint64(1), snap.Failed)
	assert.Equal(t, snap.Succeeded+snap.Failed, snap.Total)
}

func TestConcurrentRecording(t *testing.T) {
	a := NewAggregate()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if n%2 == 0 {
				a.RecordSuccess(time.Second)
			} else {
				a.RecordFailure(time.Second)
			}
		}(i)
	}
	wg.Wait()

	snap := a.Snapshot()
	assert.Equal(t, uint64(100), snap.Total)
	assert.Equal(t, uint64(50), snap.Succeeded)
	assert.Equal(t, uint64(50), snap.Failed)
}
