package tracker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/unklstewy/vatscope/internal/metrics"
)

// Poll loop states.
const (
	StateIdle     = "idle"
	StateFetching = "fetching"
)

// PollLoop runs cycle on a fixed period with at most one cycle in flight.
// A tick that arrives while a cycle runs is dropped, not queued.
type PollLoop struct {
	interval time.Duration
	cycle    func(ctx context.Context)
	log      zerolog.Logger

	busy    atomic.Bool
	dropped atomic.Int64
	wg      sync.WaitGroup

	mu    sync.Mutex
	abort context.CancelFunc // cancels the in-flight cycle
}

// NewPollLoop creates a loop calling cycle every interval.
func NewPollLoop(interval time.Duration, cycle func(ctx context.Context), log zerolog.Logger) *PollLoop {
	return &PollLoop{interval: interval, cycle: cycle, log: log}
}

// Trigger starts a cycle unless one is in flight. It returns false when the
// request was dropped. The cycle runs detached from ctx cancellation; only
// Abort, or Run returning, cancels it.
func (l *PollLoop) Trigger(ctx context.Context) bool {
	if !l.busy.CompareAndSwap(false, true) {
		l.dropped.Add(1)
		metrics.PollTicksDropped.Inc()
		l.log.Debug().Msg("Cycle in flight, tick dropped")
		return false
	}

	cycleCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	l.mu.Lock()
	l.abort = cancel
	l.mu.Unlock()

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer l.busy.Store(false)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				metrics.RecordPollCycle(metrics.OutcomePanic, 0)
				l.log.Error().Str("panic", fmt.Sprint(r)).Msg("Poll cycle panicked")
			}
		}()
		l.cycle(cycleCtx)
	}()
	return true
}

// Abort cancels the in-flight cycle, if any, so its fetch and retry waits
// return early.
func (l *PollLoop) Abort() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.abort != nil {
		l.abort()
	}
}

// Run performs the initial load, then triggers on every tick until ctx is done.
// On return it aborts an in-flight cycle and waits for it, so shutdown is not
// held up by a feed timeout or retry delays.
func (l *PollLoop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer func() {
		ticker.Stop()
		l.Abort()
		l.wg.Wait()
	}()

	l.Trigger(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.Trigger(ctx)
		}
	}
}

// State reports idle or fetching.
func (l *PollLoop) State() string {
	if l.busy.Load() {
		return StateFetching
	}
	return StateIdle
}

// Dropped is the number of ticks dropped so far.
func (l *PollLoop) Dropped() int64 {
	return l.dropped.Load()
}

// Wait blocks until no cycle is in flight.
func (l *PollLoop) Wait() {
	l.wg.Wait()
}
