package cursormgr

import (
	"context"
	"sync"
	"time"
)

const (
	defaultReapInterval  = time.Minute
	defaultCursorTimeout = 10 * time.Minute
)

// Reaper periodically kills mortal cursors that have been idle longer than
// the configured timeout and feeds the count into the manager's timed-out
// counter. Pinned cursors are never reaped.
type Reaper struct {
	mgr      *Manager
	clock    Clock
	interval time.Duration
	timeout  time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// ReaperOption configures a Reaper
type ReaperOption interface {
	applyReaper(*Reaper)
}

type reaperFuncOpt func(*Reaper)

func (f reaperFuncOpt) applyReaper(r *Reaper) {
	f(r)
}

// WithReapInterval sets how often the reaper sweeps (default: 1m)
func WithReapInterval(d time.Duration) ReaperOption {
	return reaperFuncOpt(func(r *Reaper) {
		r.interval = d
	})
}

// WithCursorTimeout sets how long a mortal cursor may sit idle before it is
// killed (default: 10m)
func WithCursorTimeout(d time.Duration) ReaperOption {
	return reaperFuncOpt(func(r *Reaper) {
		r.timeout = d
	})
}

// NewReaper creates a reaper for mgr using the manager's clock.
// Does NOT start sweeping - call Start() to begin.
func NewReaper(mgr *Manager, opts ...ReaperOption) *Reaper {
	r := &Reaper{
		mgr:      mgr,
		clock:    mgr.clock,
		interval: defaultReapInterval,
		timeout:  defaultCursorTimeout,
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt.applyReaper(r)
	}
	return r
}

// Start begins the background sweep loop.
func (r *Reaper) Start() {
	r.wg.Add(1)
	go r.run()
}

// Stop halts the sweep loop and waits for it to exit. Safe to call multiple
// times and safe to call even if Start() was never called.
func (r *Reaper) Stop() {
	select {
	case <-r.stopCh:
		return
	default:
		close(r.stopCh)
	}
	r.wg.Wait()
}

func (r *Reaper) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.ReapOnce(context.Background())
		case <-r.stopCh:
			return
		}
	}
}

// ReapOnce performs a single sweep and returns the number of cursors killed.
// Exposed so hosts driving their own scheduler can call it directly.
func (r *Reaper) ReapOnce(ctx context.Context) int {
	cutoff := r.clock.Now().Add(-r.timeout)
	killed := r.mgr.KillMortalCursorsInactiveSince(ctx, cutoff)
	if killed > 0 {
		r.mgr.IncrementCursorsTimedOut(int64(killed))
		log.Info("reaped idle cursors", "count", killed, "cutoff", cutoff)
	}
	return killed
}
