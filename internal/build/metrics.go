package build

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BuildMetrics tracks stage runs in process for the status endpoint.
type BuildMetrics struct {
	TotalBuilds      int64
	SuccessfulBuilds int64
	FailedBuilds     int64
	StageRuns        map[Stage]int64
	AverageDuration  time.Duration
	TotalDuration    time.Duration
	LastBuild        time.Time
	mutex            sync.RWMutex
}

// MetricsSnapshot is a copy of BuildMetrics safe to serialize.
type MetricsSnapshot struct {
	TotalBuilds      int64           `json:"total_builds"`
	SuccessfulBuilds int64           `json:"successful_builds"`
	FailedBuilds     int64           `json:"failed_builds"`
	StageRuns        map[Stage]int64 `json:"stage_runs"`
	AverageDuration  time.Duration   `json:"average_duration_ns"`
	TotalDuration    time.Duration   `json:"total_duration_ns"`
	LastBuild        time.Time       `json:"last_build"`
}

// NewBuildMetrics creates a new build metrics tracker
func NewBuildMetrics() *BuildMetrics {
	return &BuildMetrics{StageRuns: make(map[Stage]int64)}
}

// RecordBuild records a stage result in the metrics
func (bm *BuildMetrics) RecordBuild(result Result) {
	bm.mutex.Lock()
	defer bm.mutex.Unlock()

	bm.TotalBuilds++
	bm.TotalDuration += result.Duration
	bm.StageRuns[result.Stage]++
	bm.LastBuild = time.Now()

	if result.Err != nil {
		bm.FailedBuilds++
	} else {
		bm.SuccessfulBuilds++
	}

	bm.AverageDuration = bm.TotalDuration / time.Duration(bm.TotalBuilds)
}

// GetSnapshot returns a snapshot of current metrics
func (bm *BuildMetrics) GetSnapshot() MetricsSnapshot {
	bm.mutex.RLock()
	defer bm.mutex.RUnlock()

	runs := make(map[Stage]int64, len(bm.StageRuns))
	for k, v := range bm.StageRuns {
		runs[k] = v
	}
	return MetricsSnapshot{
		TotalBuilds:      bm.TotalBuilds,
		SuccessfulBuilds: bm.SuccessfulBuilds,
		FailedBuilds:     bm.FailedBuilds,
		StageRuns:        runs,
		AverageDuration:  bm.AverageDuration,
		TotalDuration:    bm.TotalDuration,
		LastBuild:        bm.LastBuild,
	}
}

// GetSuccessRate returns the success rate as a percentage
func (bm *BuildMetrics) GetSuccessRate() float64 {
	bm.mutex.RLock()
	defer bm.mutex.RUnlock()

	if bm.TotalBuilds == 0 {
		return 0.0
	}

	return float64(bm.SuccessfulBuilds) / float64(bm.TotalBuilds) * 100.0
}

// Collectors exports stage results to Prometheus.
type Collectors struct {
	builds   *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewCollectors registers the build collectors with reg.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	factory := promauto.With(reg)

	return &Collectors{
		builds: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "devreload",
			Name:      "builds_total",
			Help:      "Total number of stage runs by stage and result",
		}, []string{"stage", "result"}),

		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "devreload",
			Name:      "build_duration_seconds",
			Help:      "Stage run duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"stage"}),
	}
}

// Observe records one stage result.
func (c *Collectors) Observe(result Result) {
	if c == nil {
		return
	}
	outcome := "success"
	if result.Err != nil {
		outcome = "failure"
	}
	c.builds.WithLabelValues(string(result.Stage), outcome).Inc()
	c.duration.WithLabelValues(string(result.Stage)).Observe(result.Duration.Seconds())
}
