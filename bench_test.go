package cursormgr

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// BenchmarkCheckoutReturn measures the pin/unpin round trip under concurrent
// load, reporting latency percentiles from merged per-worker histograms.
func BenchmarkCheckoutReturn(b *testing.B) {
	mgr := NewManager()

	var mu sync.Mutex
	merged := hdrhistogram.New(1, 60*1000*1000*1000, 3)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		opCtx := NewOperationContext(context.Background())
		id, err := mgr.RegisterCursor(opCtx, &fakeCursor{}, "bench.coll",
			SingleTarget, LifetimeImmortal, nil)
		if err != nil {
			b.Error(err)
			return
		}

		hist := hdrhistogram.New(1, 60*1000*1000*1000, 3)
		for pb.Next() {
			start := time.Now()
			pinned, err := mgr.CheckOutCursor("bench.coll", id, opCtx, nil, SkipSession)
			if err != nil {
				b.Error(err)
				return
			}
			pinned.ReturnCursor(NotExhausted)
			hist.RecordValue(time.Since(start).Nanoseconds())
		}

		mu.Lock()
		if hist.TotalCount() > 0 {
			merged.Merge(hist)
		}
		mu.Unlock()
	})
	b.StopTimer()

	if merged.TotalCount() > 0 {
		b.ReportMetric(merged.Mean(), "roundtrip-avg-ns")
		b.ReportMetric(float64(merged.ValueAtQuantile(50)), "roundtrip-p50-ns")
		b.ReportMetric(float64(merged.ValueAtQuantile(99)), "roundtrip-p99-ns")
		b.ReportMetric(float64(merged.Max()), "roundtrip-max-ns")
	}
}

// BenchmarkRegisterExhaust measures the full register-then-destroy cycle.
func BenchmarkRegisterExhaust(b *testing.B) {
	mgr := NewManager()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		opCtx := NewOperationContext(context.Background())
		for pb.Next() {
			id, err := mgr.RegisterCursor(opCtx, &fakeCursor{}, "bench.coll",
				MultiTarget, LifetimeMortal, nil)
			if err != nil {
				b.Error(err)
				return
			}
			pinned, err := mgr.CheckOutCursor("bench.coll", id, opCtx, nil, SkipSession)
			if err != nil {
				b.Error(err)
				return
			}
			pinned.ReturnCursor(Exhausted)
		}
	})
}
