// Package swarm runs bounded-concurrency fan-outs whose width adapts to
// provider feedback: fast, clean calls widen the pool, throttled calls
// halve it. Used for the drift refresh before planning, where one Read
// per prior state entry should neither run serially nor slam the
// provider with unbounded goroutines.
package swarm

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/carina-iac/carina/internal/cerrors"
)

// Task is one unit of fan-out work.
type Task func(ctx context.Context) error

// Tuning bounds a fan-out's adaptive width. Zero fields fall back to
// defaults sized for cloud-API drift reads; callers normally set only
// Max, wired from the --parallelism flag / drift_parallelism config key.
type Tuning struct {
	Start int // initial width
	Min   int // floor after repeated throttling
	Max   int // hard ceiling

	Step     int           // additive widening per fast, clean call
	FastCall time.Duration // latency under which a call counts as fast
	Cooldown time.Duration // minimum interval between width changes
}

func (t Tuning) withDefaults() Tuning {
	if t.Start <= 0 {
		t.Start = 4
	}
	if t.Min <= 0 {
		t.Min = 1
	}
	if t.Max <= 0 {
		t.Max = 16
	}
	if t.Max < t.Min {
		t.Max = t.Min
	}
	if t.Start > t.Max {
		t.Start = t.Max
	}
	if t.Step <= 0 {
		t.Step = 2
	}
	if t.FastCall <= 0 {
		t.FastCall = 150 * time.Millisecond
	}
	if t.Cooldown <= 0 {
		t.Cooldown = 100 * time.Millisecond
	}
	return t
}

// governor tracks the pool's current width under Tuning's rules.
type governor struct {
	mu      sync.Mutex
	tuning  Tuning
	width   int
	changed time.Time
}

func newGovernor(t Tuning) *governor {
	return &governor{tuning: t, width: t.Start, changed: time.Now()}
}

func (g *governor) target() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.width
}

// observe feeds one call's outcome back: throttling halves the width, a
// call faster than FastCall widens it by Step. Changes are spaced at
// least Cooldown apart so a burst of results doesn't whipsaw the pool.
func (g *governor) observe(latency time.Duration, throttled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	if now.Sub(g.changed) < g.tuning.Cooldown {
		return
	}

	switch {
	case throttled:
		g.width /= 2
		if g.width < g.tuning.Min {
			g.width = g.tuning.Min
		}
	case latency < g.tuning.FastCall:
		g.width += g.tuning.Step
		if g.width > g.tuning.Max {
			g.width = g.tuning.Max
		}
	default:
		return
	}
	g.changed = now
}

// FanOut runs tasks under t's width rules and returns one error per task
// in input order (nil for successes). Once ctx is done no further task
// starts (its error is ctx.Err()); it returns after every started task
// has completed. The task set is a finite batch known up
// front (one fan-out per plan's drift refresh), not an open-ended stream.
func FanOut(ctx context.Context, tasks []Task, t Tuning) []error {
	if len(tasks) == 0 {
		return nil
	}
	t = t.withDefaults()
	gov := newGovernor(t)
	errs := make([]error, len(tasks))
	sem := make(chan struct{}, t.Max)
	var wg sync.WaitGroup

	for i, task := range tasks {
		i, task := i, task

		select {
		case <-ctx.Done():
			errs[i] = ctx.Err()
			continue
		default:
		}

		// Wait for in-flight work to drop below the governor's current
		// width, then claim a slot.
		for len(sem) >= gov.target() {
			time.Sleep(2 * time.Millisecond)
		}
		sem <- struct{}{}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			began := time.Now()
			err := task(ctx)
			gov.observe(time.Since(began), isThrottled(err))
			errs[i] = err
		}()
	}

	wg.Wait()
	return errs
}

// isThrottled treats a provider error explicitly marked Retryable as
// throttling feedback; anything else (including a clean ErrNotFound
// demotion) leaves the pool free to widen.
func isThrottled(err error) bool {
	var perr *cerrors.ProviderError
	if errors.As(err, &perr) {
		return perr.Retryable
	}
	return false
}
