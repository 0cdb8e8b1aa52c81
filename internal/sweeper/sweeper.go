// Package sweeper runs the recurring background process that reclaims
// rooms from bookings whose payment never completed.  It is the only
// writer of the EXPIRED booking state.
package sweeper

import (
    "context"
    "log"
    "sync"
    "sync/atomic"
    "time"
)

// Store is the storage operation the sweeper drives: transition every
// PENDING booking created before the cutoff to EXPIRED and release the
// rooms they held, all in one transaction.  It returns how many bookings
// were expired.
type Store interface {
    ExpireStale(ctx context.Context, cutoff time.Time) (int, error)
}

// Sweeper ticks at a fixed interval and performs one bulk expiry per
// tick.  It is single-flight: when a sweep is still running as the next
// tick fires, that tick is skipped entirely rather than queued.
type Sweeper struct {
    store    Store
    interval time.Duration
    grace    time.Duration

    running atomic.Bool
    done    chan struct{}
    wg      sync.WaitGroup
    started bool
    mu      sync.Mutex
}

// New constructs a Sweeper.  interval is how often it ticks; grace is
// how long a booking may stay PENDING before it is reclaimed.
func New(store Store, interval, grace time.Duration) *Sweeper {
    return &Sweeper{
        store:    store,
        interval: interval,
        grace:    grace,
        done:     make(chan struct{}),
    }
}

// Start launches the ticker loop.  Calling Start twice is a no-op.
// A Sweeper is one-shot: once stopped it cannot be started again.
func (s *Sweeper) Start() {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.started {
        return
    }
    s.started = true
    s.wg.Add(1)
    go s.loop()
}

// Stop cancels the loop and waits for an in-flight sweep to finish.
// Calling Stop twice, or before Start, is a no-op.
func (s *Sweeper) Stop() {
    s.mu.Lock()
    if !s.started {
        s.mu.Unlock()
        return
    }
    s.started = false
    s.mu.Unlock()
    close(s.done)
    s.wg.Wait()
}

// Running reports whether a sweep is currently executing.
func (s *Sweeper) Running() bool { return s.running.Load() }

func (s *Sweeper) loop() {
    defer s.wg.Done()
    ticker := time.NewTicker(s.interval)
    defer ticker.Stop()
    for {
        select {
        case <-s.done:
            return
        case <-ticker.C:
            s.Sweep()
        }
    }
}

// Sweep performs one expiry pass.  It is safe to call directly (the
// loop does) and enforces the single-flight guard: overlapping calls
// return immediately without sweeping.  Failures are logged with the
// elapsed time and retried on the next tick.
func (s *Sweeper) Sweep() {
    if !s.running.CompareAndSwap(false, true) {
        log.Printf("sweeper: previous sweep still running, skipping tick")
        return
    }
    defer s.running.Store(false)

    ctx, cancel := context.WithTimeout(context.Background(), s.interval)
    defer cancel()

    start := time.Now()
    cutoff := start.UTC().Add(-s.grace)
    n, err := s.store.ExpireStale(ctx, cutoff)
    elapsed := time.Since(start)
    if err != nil {
        log.Printf("sweeper: expiry pass failed after %s: %v", elapsed, err)
        return
    }
    if n > 0 {
        log.Printf("sweeper: expired %d stale bookings in %s", n, elapsed)
    }
}
