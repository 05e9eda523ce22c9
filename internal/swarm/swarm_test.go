package swarm

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func tuned(start, min, max, step int) Tuning {
	return Tuning{
		Start: start, Min: min, Max: max,
		Step: step, FastCall: 100 * time.Millisecond, Cooldown: time.Millisecond,
	}.withDefaults()
}

func TestGovernorWidensOnFastCleanFeedback(t *testing.T) {
	g := newGovernor(tuned(10, 5, 20, 3))
	time.Sleep(5 * time.Millisecond)
	g.observe(10*time.Millisecond, false)
	assert.Equal(t, 13, g.target())
}

func TestGovernorHalvesOnThrottledFeedback(t *testing.T) {
	g := newGovernor(tuned(10, 2, 20, 3))
	time.Sleep(5 * time.Millisecond)
	g.observe(10*time.Millisecond, true)
	assert.Equal(t, 5, g.target())
}

func TestGovernorNeverDropsBelowMin(t *testing.T) {
	g := newGovernor(tuned(4, 3, 20, 3))
	time.Sleep(5 * time.Millisecond)
	g.observe(10*time.Millisecond, true)
	assert.Equal(t, 3, g.target())
}

func TestGovernorNeverExceedsMax(t *testing.T) {
	g := newGovernor(tuned(19, 1, 20, 5))
	time.Sleep(5 * time.Millisecond)
	g.observe(10*time.Millisecond, false)
	assert.Equal(t, 20, g.target())
}

func TestGovernorSlowCleanCallLeavesWidthAlone(t *testing.T) {
	g := newGovernor(tuned(10, 1, 20, 3))
	time.Sleep(5 * time.Millisecond)
	g.observe(500*time.Millisecond, false)
	assert.Equal(t, 10, g.target())
}

func TestTuningDefaultsClampStartToMax(t *testing.T) {
	tn := Tuning{Start: 50, Max: 8}.withDefaults()
	assert.Equal(t, 8, tn.Start)
	assert.Equal(t, 8, tn.Max)
}

func TestFanOutRunsEveryTaskAndReportsPerTaskErrors(t *testing.T) {
	var completed int32
	tasks := make([]Task, 8)
	for i := range tasks {
		i := i
		tasks[i] = func(ctx context.Context) error {
			atomic.AddInt32(&completed, 1)
			if i == 3 {
				return context.DeadlineExceeded
			}
			return nil
		}
	}

	errs := FanOut(context.Background(), tasks, Tuning{Start: 2, Max: 4})
	assert.EqualValues(t, 8, completed)
	for i, err := range errs {
		if i == 3 {
			assert.Error(t, err)
		} else {
			assert.NoError(t, err)
		}
	}
}

func TestFanOutEmptyReturnsNil(t *testing.T) {
	assert.Nil(t, FanOut(context.Background(), nil, Tuning{}))
}
