// internal/metrics/types.go
package metrics

import (
	"math"
	"time"
)

// ModelMetrics is the top-level document for a single model's aggregated data.
type ModelMetrics struct {
	ModelName          string                 `json:"model_name"`
	Backend            string                 `json:"backend"`
	LastUpdatedUTC     time.Time              `json:"last_updated_utc"`
	OverallStats       RunningAggregatedStats `json:"overall_stats"`
	PerformanceBuckets []PerformanceBucket    `json:"performance_buckets"`
}

// PerformanceBucket holds aggregated stats for a specific dimension, like prompt size.
type PerformanceBucket struct {
	Dimension string                 `json:"dimension"`
	Bucket    string                 `json:"bucket"`
	Stats     RunningAggregatedStats `json:"stats"`
}

// RunningAggregatedStats stores the running statistical values for a set of metrics.
// It uses Welford's online algorithm for calculating mean and standard deviation.
type RunningAggregatedStats struct {
	TotalRequests int64 `json:"total_requests"`
	Errors        int64 `json:"errors"`

	LatencyMillis   RunningStat `json:"latency_ms"`
	PromptChars     RunningStat `json:"prompt_chars"`
	CompletionChars RunningStat `json:"completion_chars"`
	CharsPerSecond  RunningStat `json:"chars_per_second"`
}

// RunningStat holds the necessary values for online calculation of mean, variance, and stddev.
// Count and M2 are persisted so statistics keep accumulating across runs.
type RunningStat struct {
	Count int64   `json:"count"`
	Mean  float64 `json:"mean"`
	M2    float64 `json:"m2"` // Sum of squares of differences from the current mean
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// StdDev returns the sample standard deviation.
func (rs RunningStat) StdDev() float64 {
	if rs.Count < 2 {
		return 0
	}
	return math.Sqrt(rs.M2 / float64(rs.Count-1))
}

// Sample is one observed PromptModel call.
type Sample struct {
	Model           string
	Backend         string
	Latency         time.Duration
	PromptChars     int
	CompletionChars int
	Failed          bool
}
