// internal/metrics/aggregator.go
package metrics

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/mwiater/lime/internal/logging"
)

// DefaultFilePath is where the singleton aggregator persists metrics.
const DefaultFilePath = ".lime/metrics.json"

// Aggregator collects and manages performance metrics for models.
type Aggregator struct {
	mutex    sync.Mutex
	metrics  map[string]*ModelMetrics
	filePath string
	ticker   *time.Ticker
	done     chan struct{}
	closed   bool
}

var (
	instance *Aggregator
	once     sync.Once
)

// GetInstance returns the singleton instance of the Aggregator.
func GetInstance() *Aggregator {
	once.Do(func() {
		instance = NewAggregator()
	})
	return instance
}

// NewAggregator creates an aggregator persisted at DefaultFilePath.
func NewAggregator() *Aggregator {
	return NewAggregatorAt(DefaultFilePath)
}

// NewAggregatorAt creates an aggregator persisted at path, loading any
// metrics already stored there, and saves once a minute until Close.
func NewAggregatorAt(path string) *Aggregator {
	agg := &Aggregator{
		metrics:  make(map[string]*ModelMetrics),
		filePath: path,
		done:     make(chan struct{}),
	}

	agg.load()

	agg.ticker = time.NewTicker(1 * time.Minute)
	go func() {
		for {
			select {
			case <-agg.ticker.C:
				agg.save()
			case <-agg.done:
				return
			}
		}
	}()

	return agg
}

// SetFilePath moves persistence to path and merges what is stored there.
func (a *Aggregator) SetFilePath(path string) {
	a.mutex.Lock()
	if path == "" || path == a.filePath {
		a.mutex.Unlock()
		return
	}
	a.filePath = path
	a.mutex.Unlock()
	a.load()
}

// FilePath returns the persistence path.
func (a *Aggregator) FilePath() string {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.filePath
}

// load reads metrics from the JSON file into memory. Models already in
// memory are kept.
func (a *Aggregator) load() {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	data, err := os.ReadFile(a.filePath)
	if err != nil {
		return
	}

	var metricsSlice []*ModelMetrics
	if err := json.Unmarshal(data, &metricsSlice); err != nil {
		logging.LogEvent("[METRICS] ignoring unreadable %s: %v", a.filePath, err)
		return
	}

	for _, m := range metricsSlice {
		if _, exists := a.metrics[m.ModelName]; !exists {
			a.metrics[m.ModelName] = m
		}
	}
}

// save writes the current metrics from memory to the JSON file.
func (a *Aggregator) save() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if len(a.metrics) == 0 {
		return nil
	}
	logging.LogEvent("[METRICS] Saving metrics to %s", a.filePath)

	data, err := json.MarshalIndent(a.snapshotLocked(), "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(a.filePath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(a.filePath, data, 0o644)
}

// Save persists metrics immediately.
func (a *Aggregator) Save() error {
	return a.save()
}

// Snapshot returns a copy of all model metrics sorted by model name.
func (a *Aggregator) Snapshot() []ModelMetrics {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.snapshotLocked()
}

func (a *Aggregator) snapshotLocked() []ModelMetrics {
	out := make([]ModelMetrics, 0, len(a.metrics))
	for _, m := range a.metrics {
		cp := *m
		cp.PerformanceBuckets = append([]PerformanceBucket(nil), m.PerformanceBuckets...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModelName < out[j].ModelName })
	return out
}

// Record updates the metrics for a given model with a new sample.
func (a *Aggregator) Record(s Sample) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	modelMetrics, exists := a.metrics[s.Model]
	if !exists {
		modelMetrics = &ModelMetrics{
			ModelName: s.Model,
			Backend:   s.Backend,
		}
		a.metrics[s.Model] = modelMetrics
	}

	modelMetrics.LastUpdatedUTC = time.Now().UTC()

	updateStats(&modelMetrics.OverallStats, s)

	bucket := getBucket(s.PromptChars)
	found := false
	for i := range modelMetrics.PerformanceBuckets {
		if modelMetrics.PerformanceBuckets[i].Dimension == "prompt_chars" && modelMetrics.PerformanceBuckets[i].Bucket == bucket {
			updateStats(&modelMetrics.PerformanceBuckets[i].Stats, s)
			found = true
			break
		}
	}
	if !found {
		newBucket := PerformanceBucket{
			Dimension: "prompt_chars",
			Bucket:    bucket,
		}
		updateStats(&newBucket.Stats, s)
		modelMetrics.PerformanceBuckets = append(modelMetrics.PerformanceBuckets, newBucket)
	}
}

// updateStats updates the running statistics with a new sample. Failed calls
// count toward requests and errors only.
func updateStats(stats *RunningAggregatedStats, s Sample) {
	stats.TotalRequests++
	if s.Failed {
		stats.Errors++
		return
	}
	millis := float64(s.Latency) / float64(time.Millisecond)
	updateRunningStat(&stats.LatencyMillis, millis)
	updateRunningStat(&stats.PromptChars, float64(s.PromptChars))
	updateRunningStat(&stats.CompletionChars, float64(s.CompletionChars))

	var charsPerSecond float64
	if s.Latency > 0 {
		charsPerSecond = float64(s.CompletionChars) / s.Latency.Seconds()
	}
	updateRunningStat(&stats.CharsPerSecond, charsPerSecond)
}

// updateRunningStat updates a single running statistic using Welford's online algorithm.
func updateRunningStat(rs *RunningStat, value float64) {
	rs.Count++
	if rs.Count == 1 {
		rs.Min = value
		rs.Max = value
	} else {
		if value < rs.Min {
			rs.Min = value
		}
		if value > rs.Max {
			rs.Max = value
		}
	}

	delta := value - rs.Mean
	rs.Mean += delta / float64(rs.Count)
	delta2 := value - rs.Mean
	rs.M2 += delta * delta2
}

// getBucket determines the performance bucket for a prompt size in characters.
func getBucket(chars int) string {
	switch {
	case chars <= 1024:
		return "0-1024"
	case chars <= 4096:
		return "1025-4096"
	case chars <= 16384:
		return "4097-16384"
	default:
		return "16384+"
	}
}

// Close stops the ticker and saves the metrics.
func (a *Aggregator) Close() error {
	a.mutex.Lock()
	if a.closed {
		a.mutex.Unlock()
		return nil
	}
	a.closed = true
	a.mutex.Unlock()

	a.ticker.Stop()
	close(a.done)
	return a.save()
}

// Close gracefully shuts down the singleton aggregator instance.
func Close() error {
	if instance != nil {
		return instance.Close()
	}
	return nil
}
