// internal/metrics/metrics_test.go
package metrics

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mwiater/lime/internal/providers"
	"github.com/mwiater/lime/internal/providers/providertest"
)

func TestUpdateRunningStat(t *testing.T) {
	var rs RunningStat
	for _, v := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		updateRunningStat(&rs, v)
	}
	if rs.Count != 8 || rs.Mean != 5 || rs.Min != 2 || rs.Max != 9 {
		t.Fatalf("unexpected stat: %+v", rs)
	}
	if got := rs.StdDev(); math.Abs(got-2.138) > 0.001 {
		t.Fatalf("stddev = %f", got)
	}
}

func TestGetBucket(t *testing.T) {
	cases := map[int]string{0: "0-1024", 1024: "0-1024", 1025: "1025-4096", 9000: "4097-16384", 20000: "16384+"}
	for chars, want := range cases {
		if got := getBucket(chars); got != want {
			t.Fatalf("getBucket(%d) = %q, want %q", chars, got, want)
		}
	}
}

func TestRecordAndPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "metrics.json")
	agg := NewAggregatorAt(path)

	agg.Record(Sample{Model: "m", Backend: "local", Latency: 200 * time.Millisecond, PromptChars: 10, CompletionChars: 50})
	agg.Record(Sample{Model: "m", Backend: "local", Failed: true, PromptChars: 10})
	agg.Record(Sample{Model: "m", Backend: "local", Latency: time.Second, PromptChars: 5000, CompletionChars: 100})

	snap := agg.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected one model, got %d", len(snap))
	}
	overall := snap[0].OverallStats
	if overall.TotalRequests != 3 || overall.Errors != 1 || overall.LatencyMillis.Count != 2 {
		t.Fatalf("unexpected overall stats: %+v", overall)
	}
	if overall.LatencyMillis.Mean != 600 {
		t.Fatalf("latency mean = %f", overall.LatencyMillis.Mean)
	}
	if len(snap[0].PerformanceBuckets) != 2 {
		t.Fatalf("expected two buckets, got %+v", snap[0].PerformanceBuckets)
	}

	if err := agg.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("metrics file not written: %v", err)
	}

	reloaded := NewAggregatorAt(path)
	defer reloaded.Close()
	reloaded.Record(Sample{Model: "m", Backend: "local", Latency: 100 * time.Millisecond})
	if got := reloaded.Snapshot()[0].OverallStats.TotalRequests; got != 4 {
		t.Fatalf("expected accumulated requests 4, got %d", got)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	agg := NewAggregatorAt(filepath.Join(t.TempDir(), "m.json"))
	if err := agg.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := agg.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestBackendRecordsCalls(t *testing.T) {
	agg := NewAggregatorAt(filepath.Join(t.TempDir(), "m.json"))
	defer agg.Close()

	stub := providertest.New("stub-model")
	calls := 0
	stub.Reply = func(n int, req providers.PromptRequest) providers.PromptResponse {
		calls++
		if n == 1 {
			return providers.Failure(errors.New("boom"))
		}
		return providers.Success("four")
	}
	b := NewBackend(stub, agg)
	if _, ok := b.(providers.CachingBackend); ok {
		t.Fatal("plain backend should not gain caching")
	}

	sys, usr := "sys ", "2+2?"
	b.PromptModel(context.Background(), providers.PromptRequest{System: &sys, User: &usr})
	resp := b.PromptModel(context.Background(), providers.PromptRequest{User: &usr})
	if resp.Err == nil || calls != 2 {
		t.Fatalf("decorator changed behavior: %+v calls=%d", resp, calls)
	}

	stats := agg.Snapshot()[0].OverallStats
	if stats.TotalRequests != 2 || stats.Errors != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.PromptChars.Mean != float64(len(sys+usr)) || stats.CompletionChars.Mean != 4 {
		t.Fatalf("unexpected char stats: %+v", stats)
	}
}

func TestBackendKeepsPromptCache(t *testing.T) {
	agg := NewAggregatorAt(filepath.Join(t.TempDir(), "m.json"))
	defer agg.Close()

	stub := providertest.NewCaching("cached")
	b := NewBackend(stub, agg)
	cb, ok := b.(providers.CachingBackend)
	if !ok || !cb.UsesPromptCache() {
		t.Fatalf("caching capability lost: %T", b)
	}
	if err := cb.PrimeCache(context.Background(), "system"); err != nil {
		t.Fatalf("PrimeCache: %v", err)
	}
	if got := stub.Primed(); len(got) != 1 || got[0] != "system" {
		t.Fatalf("prime not forwarded: %v", got)
	}
}

func TestWriteReport(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteReport(&buf, nil); err != nil || !strings.Contains(buf.String(), "No metrics") {
		t.Fatalf("unexpected empty report: %q %v", buf.String(), err)
	}

	buf.Reset()
	agg := NewAggregatorAt(filepath.Join(t.TempDir(), "m.json"))
	defer agg.Close()
	agg.Record(Sample{Model: "gpt-4o", Backend: "openai", Latency: time.Second, CompletionChars: 10})
	if err := WriteReport(&buf, agg.Snapshot()); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "gpt-4o") || !strings.Contains(out, "openai") || !strings.Contains(out, "10.0") {
		t.Fatalf("report missing fields:\n%s", out)
	}
}
