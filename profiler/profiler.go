// Package profiler - timing and throughput instrumentation for the
// detection loop. It aggregates per-stage timers and windowed metrics and
// periodically prints a console status report.
package profiler

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Names the pipeline reports its stage timings and cycle metrics under.
const (
	StageDecode     = "decode"
	StageSynthesize = "synthesize"
	StageRender     = "render"

	MetricDetections = "detections_per_cycle"
)

// MetricsCollector supplies gauge values that are folded into the metric
// windows before every report. Collectors must be safe to call from the
// report goroutine.
type MetricsCollector interface {
	CollectMetrics() map[string]float64
}

// CollectorFunc adapts a plain function to the MetricsCollector interface.
type CollectorFunc func() map[string]float64

// CollectMetrics implements MetricsCollector.
func (f CollectorFunc) CollectMetrics() map[string]float64 { return f() }

// Config holds the profiler tunables.
type Config struct {
	// ReportInterval is how often the console status report is emitted.
	ReportInterval time.Duration `json:"report_interval" yaml:"report_interval"`
	// MaxSamples bounds the sliding window kept per stage and per metric.
	MaxSamples int `json:"max_samples" yaml:"max_samples"`
}

// DefaultConfig returns the profiler defaults: a report every two seconds
// over a 600-sample window.
func DefaultConfig() Config {
	return Config{
		ReportInterval: 2 * time.Second,
		MaxSamples:     600,
	}
}

// Clamp replaces out-of-range values with defaults.
func (c *Config) Clamp() {
	if c.ReportInterval <= 0 {
		c.ReportInterval = 2 * time.Second
	}
	if c.MaxSamples < 1 {
		c.MaxSamples = 600
	}
}

// stageTracker accumulates a sliding window of durations for one stage.
// The window bounds the average; min, max and count cover the full run.
type stageTracker struct {
	durations []time.Duration
	total     time.Duration
	min       time.Duration
	max       time.Duration
	count     int64
}

// metricTracker accumulates a sliding window of values for one metric.
type metricTracker struct {
	values []float64
	sum    float64
	min    float64
	max    float64
	last   float64
	count  int64
}

// StageStats is a point-in-time summary of one stage's timing window.
type StageStats struct {
	Count int64
	Avg   time.Duration
	Min   time.Duration
	Max   time.Duration
}

// MetricStats is a point-in-time summary of one metric's value window.
type MetricStats struct {
	Samples int
	Avg     float64
	Min     float64
	Max     float64
	Last    float64
}

// PipelineProfiler aggregates stage timings and throughput metrics for the
// detection loop and periodically prints a status report to stdout.
//
// All methods are safe for concurrent use.
type PipelineProfiler struct {
	cfg   Config
	clock clock.Clock

	mu         sync.RWMutex
	running    bool
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	startTime  time.Time
	stages     map[string]*stageTracker
	metrics    map[string]*metricTracker
	collectors []MetricsCollector
}

// NewPipelineProfiler creates a profiler with the given configuration.
// Invalid configuration values are clamped.
func NewPipelineProfiler(cfg Config) *PipelineProfiler {
	cfg.Clamp()
	return &PipelineProfiler{
		cfg:     cfg,
		clock:   clock.New(),
		stages:  make(map[string]*stageTracker),
		metrics: make(map[string]*metricTracker),
	}
}

// Start launches the periodic reporting goroutine. Starting a running
// profiler is a no-op; a stopped profiler can be started again.
func (pp *PipelineProfiler) Start() {
	pp.mu.Lock()
	defer pp.mu.Unlock()

	if pp.running {
		return
	}
	pp.running = true
	pp.startTime = pp.clock.Now()

	ctx, cancel := context.WithCancel(context.Background())
	pp.cancel = cancel

	pp.wg.Add(1)
	go pp.reportLoop(ctx)
}

// Stop halts reporting and waits for the report goroutine to exit.
func (pp *PipelineProfiler) Stop() {
	pp.mu.Lock()
	if !pp.running {
		pp.mu.Unlock()
		return
	}
	pp.running = false
	cancel := pp.cancel
	pp.mu.Unlock()

	cancel()
	pp.wg.Wait()
}

// Time starts a timer for one pass of the named stage.
//
// Arguments:
// - stage: The stage name to record under.
//
// Returns:
// - A function to call when the stage completes; calling it records the
//   elapsed time.
func (pp *PipelineProfiler) Time(stage string) func() {
	start := pp.clock.Now()
	return func() {
		pp.recordDuration(stage, pp.clock.Since(start))
	}
}

// RecordMetric folds one observation into the named metric's window.
//
// Arguments:
// - name: The metric name to record under.
// - value: The observed value.
func (pp *PipelineProfiler) RecordMetric(name string, value float64) {
	pp.mu.Lock()
	defer pp.mu.Unlock()

	tracker, ok := pp.metrics[name]
	if !ok {
		tracker = &metricTracker{min: value, max: value}
		pp.metrics[name] = tracker
	}

	tracker.values = append(tracker.values, value)
	if len(tracker.values) > pp.cfg.MaxSamples {
		tracker.sum -= tracker.values[0]
		tracker.values = tracker.values[1:]
	}
	tracker.sum += value
	tracker.last = value
	tracker.count++

	if value < tracker.min {
		tracker.min = value
	}
	if value > tracker.max {
		tracker.max = value
	}
}

// AddMetricsCollector registers a collector polled before every report.
func (pp *PipelineProfiler) AddMetricsCollector(c MetricsCollector) {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	pp.collectors = append(pp.collectors, c)
}

// StageStats returns a summary of the named stage's timing window.
func (pp *PipelineProfiler) StageStats(name string) (StageStats, bool) {
	pp.mu.RLock()
	defer pp.mu.RUnlock()

	tracker, ok := pp.stages[name]
	if !ok || len(tracker.durations) == 0 {
		return StageStats{}, false
	}
	return StageStats{
		Count: tracker.count,
		Avg:   tracker.total / time.Duration(len(tracker.durations)),
		Min:   tracker.min,
		Max:   tracker.max,
	}, true
}

// MetricStats returns a summary of the named metric's value window.
func (pp *PipelineProfiler) MetricStats(name string) (MetricStats, bool) {
	pp.mu.RLock()
	defer pp.mu.RUnlock()

	tracker, ok := pp.metrics[name]
	if !ok || len(tracker.values) == 0 {
		return MetricStats{}, false
	}
	return MetricStats{
		Samples: len(tracker.values),
		Avg:     tracker.sum / float64(len(tracker.values)),
		Min:     tracker.min,
		Max:     tracker.max,
		Last:    tracker.last,
	}, true
}

// recordDuration folds one stage pass into its tracker.
func (pp *PipelineProfiler) recordDuration(stage string, d time.Duration) {
	pp.mu.Lock()
	defer pp.mu.Unlock()

	tracker, ok := pp.stages[stage]
	if !ok {
		tracker = &stageTracker{min: d, max: d}
		pp.stages[stage] = tracker
	}

	tracker.durations = append(tracker.durations, d)
	if len(tracker.durations) > pp.cfg.MaxSamples {
		tracker.total -= tracker.durations[0]
		tracker.durations = tracker.durations[1:]
	}
	tracker.total += d
	tracker.count++

	if d < tracker.min {
		tracker.min = d
	}
	if d > tracker.max {
		tracker.max = d
	}
}

// reportLoop drives collector polling and report emission until canceled.
func (pp *PipelineProfiler) reportLoop(ctx context.Context) {
	defer pp.wg.Done()

	ticker := pp.clock.Ticker(pp.cfg.ReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pp.pollCollectors()
			pp.emitStatusReport()
		}
	}
}

// pollCollectors folds every registered collector's gauges into the metric
// windows. Collectors run outside the profiler lock so they may take their
// own locks freely.
func (pp *PipelineProfiler) pollCollectors() {
	pp.mu.RLock()
	collectors := make([]MetricsCollector, len(pp.collectors))
	copy(collectors, pp.collectors)
	pp.mu.RUnlock()

	for _, c := range collectors {
		for name, value := range c.CollectMetrics() {
			pp.RecordMetric(name, value)
		}
	}
}

// emitStatusReport prints the current timing and metric summaries.
func (pp *PipelineProfiler) emitStatusReport() {
	pp.mu.RLock()
	defer pp.mu.RUnlock()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	uptime := pp.clock.Since(pp.startTime)

	fmt.Printf("PIPELINE STATUS - %s\n", pp.clock.Now().Format("15:04:05.000"))
	fmt.Printf("  Uptime: %v  Goroutines: %d  Heap: %s\n",
		uptime.Truncate(time.Millisecond), runtime.NumGoroutine(), formatBytes(mem.HeapAlloc))

	if len(pp.stages) > 0 {
		fmt.Printf("  STAGE TIMINGS:\n")
		for _, name := range sortedKeys(pp.stages) {
			tracker := pp.stages[name]
			if len(tracker.durations) == 0 {
				continue
			}
			avg := tracker.total / time.Duration(len(tracker.durations))
			fmt.Printf("    %s: avg=%v min=%v max=%v count=%d\n",
				name, avg.Truncate(time.Microsecond),
				tracker.min.Truncate(time.Microsecond),
				tracker.max.Truncate(time.Microsecond),
				tracker.count)
		}
	}

	if len(pp.metrics) > 0 {
		fmt.Printf("  METRICS:\n")
		for _, name := range sortedKeys(pp.metrics) {
			tracker := pp.metrics[name]
			if len(tracker.values) == 0 {
				continue
			}
			avg := tracker.sum / float64(len(tracker.values))
			fmt.Printf("    %s: last=%.2f avg=%.2f min=%.2f max=%.2f\n",
				name, tracker.last, avg, tracker.min, tracker.max)
		}
	}
}

// sortedKeys returns the map's keys in lexical order so reports keep a
// stable layout across emissions.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// formatBytes formats byte counts in human-readable form.
func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
