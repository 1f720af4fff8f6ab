// Command cursorsim hammers a cursor manager with a synthetic router
// workload: every worker registers cursors, re-checks them out for getMores,
// and exhausts them, while an inactivity reaper runs alongside. It prints the
// final registry stats and checkout latency percentiles.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/google/uuid"

	"github.com/routegrid/cursormgr"
)

// simCursor is a stand-in for a real shard-merging cursor.
type simCursor struct {
	lsid *uuid.UUID
	docs int64
}

func (c *simCursor) Kill(ctx context.Context)         {}
func (c *simCursor) Lsid() *uuid.UUID                 { return c.lsid }
func (c *simCursor) SetMaxTimeBudget(d time.Duration) {}
func (c *simCursor) PlanSummary() string              { return "SIM_MERGE" }
func (c *simCursor) DocsReturned() int64              { return c.docs }

func main() {
	workers := flag.Int("workers", 8, "Concurrent worker goroutines")
	namespaces := flag.Int("namespaces", 4, "Distinct namespaces to spread cursors over")
	getmores := flag.Int("getmores", 16, "Checkout/check-in round trips per cursor")
	duration := flag.Duration("duration", 5*time.Second, "How long to run")
	cursorTimeout := flag.Duration("cursor-timeout", time.Second, "Idle timeout enforced by the reaper")
	flag.Parse()

	if *workers <= 0 || *namespaces <= 0 {
		fmt.Fprintln(os.Stderr, "Error: -workers and -namespaces must be positive")
		flag.Usage()
		os.Exit(1)
	}

	mgr := cursormgr.NewManager()
	reaper := cursormgr.NewReaper(mgr,
		cursormgr.WithReapInterval(100*time.Millisecond),
		cursormgr.WithCursorTimeout(*cursorTimeout),
	)
	reaper.Start()

	deadline := time.Now().Add(*duration)

	hists := make([]*hdrhistogram.Histogram, *workers)
	var wg sync.WaitGroup
	for w := 0; w < *workers; w++ {
		hist := hdrhistogram.New(1, 60*1000*1000*1000, 3)
		hists[w] = hist

		wg.Add(1)
		go func(worker int) {
			defer wg.Done()

			for time.Now().Before(deadline) {
				opCtx := cursormgr.NewOperationContext(context.Background())
				lsid := uuid.New()
				opCtx.SetSession(lsid)

				namespace := fmt.Sprintf("simdb.coll%d", rand.Intn(*namespaces))
				cursor := &simCursor{lsid: &lsid}
				id, err := mgr.RegisterCursor(opCtx, cursor, namespace,
					cursormgr.MultiTarget, cursormgr.LifetimeMortal, nil)
				if err != nil {
					fmt.Fprintf(os.Stderr, "register failed: %v\n", err)
					return
				}

				for i := 0; i < *getmores; i++ {
					start := time.Now()
					pinned, err := mgr.CheckOutCursor(namespace, id, opCtx, nil, cursormgr.CheckSession)
					if err != nil {
						// The reaper may have beaten us to an idle cursor.
						break
					}
					hist.RecordValue(time.Since(start).Nanoseconds())

					cursor.docs++
					state := cursormgr.NotExhausted
					if i == *getmores-1 {
						state = cursormgr.Exhausted
					}
					pinned.ReturnCursor(state)
				}
			}
		}(w)
	}

	wg.Wait()
	reaper.Stop()

	stats := mgr.Stats()
	fmt.Printf("open cursors: single=%d multi=%d pinned=%d\n",
		stats.CursorsSingleTarget, stats.CursorsMultiTarget, stats.CursorsPinned)
	fmt.Printf("cursors timed out: %d\n", mgr.CursorsTimedOut())

	merged := hdrhistogram.New(1, 60*1000*1000*1000, 3)
	for _, h := range hists {
		if h.TotalCount() > 0 {
			merged.Merge(h)
		}
	}
	if merged.TotalCount() > 0 {
		fmt.Printf("checkouts: %d\n", merged.TotalCount())
		fmt.Printf("checkout latency ns: mean=%.0f p50=%d p99=%d max=%d\n",
			merged.Mean(),
			merged.ValueAtQuantile(50),
			merged.ValueAtQuantile(99),
			merged.Max())
	}

	if err := mgr.Shutdown(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown failed: %v\n", err)
		os.Exit(1)
	}
}
