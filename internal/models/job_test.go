package models

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobPhaseTransitions(t *testing.T) {
	assert.True(t, PhaseQueued.CanTransition(PhaseRunning))
	assert.True(t, PhaseRunning.CanTransition(PhaseSucceeded))
	assert.True(t, PhaseRunning.CanTransition(PhaseFailed))

	assert.False(t, PhaseQueued.CanTransition(PhaseSucceeded), "no skipping forward")
	assert.False(t, PhaseRunning.CanTransition(PhaseQueued), "no moving backward")
	assert.False(t, PhaseSucceeded.CanTransition(PhaseFailed), "terminal is final")
	assert.False(t, PhaseFailed.CanTransition(PhaseRunning), "terminal is final")
}

func TestJobPhaseIsTerminal(t *testing.T) {
	assert.False(t, PhaseQueued.IsTerminal())
	assert.False(t, PhaseRunning.IsTerminal())
	assert.True(t, PhaseSucceeded.IsTerminal())
	assert.True(t, PhaseFailed.IsTerminal())
}

func TestNewJobIDUnique(t *testing.T) {
	const n = 200
	var mu sync.Mutex
	seen := make(map[string]bool, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := NewJobID()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, n, "concurrent id generation must not collide")
}

func TestJobClone(t *testing.T) {
	job := &Job{ID: NewJobID(), Phase: PhaseRunning, LastReportedPercent: 42}
	c := job.Clone()

	c.Phase = PhaseFailed
	c.LastReportedPercent = 99

	assert.Equal(t, PhaseRunning, job.Phase)
	assert.Equal(t, 42.0, job.LastReportedPercent)
}
