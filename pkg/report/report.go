// Package report collects measured iteration times per (group, backend) pair
// and renders them as tables, libtest-style bench lines and Prometheus
// metrics.
package report

import (
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/codahale/hdrhistogram"
	"github.com/google/uuid"
	"github.com/montanaflynn/stats"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	sigFigs    = 3
	minLatency = time.Nanosecond
	maxLatency = time.Hour
)

// Key identifies one benchmark series.
type Key struct {
	Group   string
	Backend string
}

// ID returns "Group/Backend", the benchmark id used in bench lines.
func (k Key) ID() string { return k.Group + "/" + k.Backend }

// Summary describes the samples of one series.
type Summary struct {
	Key
	Iterations int
	Mean       time.Duration
	Median     time.Duration
	StdDev     time.Duration
	Min        time.Duration
	Max        time.Duration
	P90        time.Duration
	P99        time.Duration
}

type series struct {
	samples []time.Duration
	hist    *hdrhistogram.Histogram
}

// Recorder accumulates samples for a run. It is safe for concurrent use.
type Recorder struct {
	runID    string
	started  time.Time
	registry *prometheus.Registry
	latency  *prometheus.HistogramVec
	failures *prometheus.CounterVec

	mu     sync.Mutex
	order  []Key
	series map[Key]*series
	errs   map[Key]error
}

// NewRecorder starts a run with a fresh run id.
func NewRecorder() *Recorder {
	runID := uuid.New().String()
	r := &Recorder{
		runID:    runID,
		started:  time.Now(),
		registry: prometheus.NewRegistry(),
		series:   make(map[Key]*series),
		errs:     make(map[Key]error),
	}
	r.latency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   "linkbench",
			Name:        "iteration_seconds",
			Help:        "Measured time of one benchmark iteration.",
			ConstLabels: prometheus.Labels{"run_id": runID},
			Buckets:     prometheus.ExponentialBuckets(1e-6, 4, 14),
		},
		[]string{"group", "backend"},
	)
	r.failures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "linkbench",
			Name:        "failures_total",
			Help:        "Benchmark series that stopped with an error.",
			ConstLabels: prometheus.Labels{"run_id": runID},
		},
		[]string{"group", "backend"},
	)
	r.registry.MustRegister(r.latency, r.failures)
	return r
}

// RunID identifies the run in metrics and reports.
func (r *Recorder) RunID() string { return r.runID }

// Started returns the time the recorder was created.
func (r *Recorder) Started() time.Time { return r.started }

// Registry exposes the Prometheus registry holding the run's metrics.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

func (r *Recorder) get(k Key) *series {
	s, ok := r.series[k]
	if !ok {
		s = &series{hist: hdrhistogram.New(minLatency.Nanoseconds(), maxLatency.Nanoseconds(), sigFigs)}
		r.series[k] = s
		r.order = append(r.order, k)
	}
	return s
}

// Record adds one iteration's measured time to a series.
func (r *Recorder) Record(k Key, d time.Duration) {
	clamped := d
	if clamped < minLatency {
		clamped = minLatency
	} else if clamped > maxLatency {
		clamped = maxLatency
	}

	r.mu.Lock()
	s := r.get(k)
	s.samples = append(s.samples, d)
	err := s.hist.RecordValue(clamped.Nanoseconds())
	r.mu.Unlock()

	if err != nil {
		panic(fmt.Sprintf("%s: recording value: %s", k.ID(), err))
	}
	r.latency.WithLabelValues(k.Group, k.Backend).Observe(d.Seconds())
}

// Fail marks a series as failed. Samples recorded before the failure are
// still reported.
func (r *Recorder) Fail(k Key, err error) {
	r.mu.Lock()
	r.get(k)
	r.errs[k] = err
	r.mu.Unlock()
	r.failures.WithLabelValues(k.Group, k.Backend).Inc()
}

// Err returns the failure recorded for a series, if any.
func (r *Recorder) Err(k Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errs[k]
}

// Samples returns a copy of the samples of a series.
func (r *Recorder) Samples(k Key) []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.series[k]
	if !ok {
		return nil
	}
	return append([]time.Duration(nil), s.samples...)
}

// Summaries summarises every series with at least one sample, in the order
// the series were first recorded.
func (r *Recorder) Summaries() []Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Summary, 0, len(r.order))
	for _, k := range r.order {
		s := r.series[k]
		if len(s.samples) == 0 {
			continue
		}
		sum, err := summarize(k, s.samples)
		if err != nil {
			continue
		}
		sum.P90 = time.Duration(s.hist.ValueAtQuantile(90))
		sum.P99 = time.Duration(s.hist.ValueAtQuantile(99))
		out = append(out, sum)
	}
	return out
}

// Summarize computes the summary of a sample set. Percentiles are exact
// here; the recorder reports them from its histograms instead.
func Summarize(k Key, samples []time.Duration) (Summary, error) {
	s, err := summarize(k, samples)
	if err != nil {
		return s, err
	}
	data := floats(samples)
	p90, err := stats.Percentile(data, 90)
	if err != nil {
		return s, err
	}
	p99, err := stats.Percentile(data, 99)
	if err != nil {
		return s, err
	}
	s.P90, s.P99 = round(p90), round(p99)
	return s, nil
}

func summarize(k Key, samples []time.Duration) (Summary, error) {
	data := floats(samples)
	s := Summary{Key: k, Iterations: len(samples)}
	mean, err := stats.Mean(data)
	if err != nil {
		return s, fmt.Errorf("%s: %w", k.ID(), err)
	}
	median, err := stats.Median(data)
	if err != nil {
		return s, fmt.Errorf("%s: %w", k.ID(), err)
	}
	dev, err := stats.StandardDeviation(data)
	if err != nil {
		return s, fmt.Errorf("%s: %w", k.ID(), err)
	}
	lo, _ := stats.Min(data)
	hi, _ := stats.Max(data)
	s.Mean, s.Median, s.StdDev = round(mean), round(median), round(dev)
	s.Min, s.Max = round(lo), round(hi)
	return s, nil
}

func floats(samples []time.Duration) stats.Float64Data {
	data := make(stats.Float64Data, len(samples))
	for i, d := range samples {
		data[i] = float64(d.Nanoseconds())
	}
	return data
}

func round(ns float64) time.Duration { return time.Duration(math.Round(ns)) }

// WriteBench writes one libtest-style line per summary:
//
//	test Create/Doublets_United_Volatile ... bench:     1234567 ns/iter (+/- 8901)
//
// The value is the median and the spread is the standard deviation, both in
// whole nanoseconds without digit grouping.
func WriteBench(w io.Writer, summaries []Summary) error {
	for _, s := range summaries {
		if _, err := fmt.Fprintf(w, "test %s ... bench: %11d ns/iter (+/- %d)\n",
			s.ID(), s.Median.Nanoseconds(), s.StdDev.Nanoseconds()); err != nil {
			return err
		}
	}
	return nil
}

// Sort orders summaries by group, then by backend.
func Sort(summaries []Summary) {
	sort.SliceStable(summaries, func(i, j int) bool {
		if summaries[i].Group != summaries[j].Group {
			return summaries[i].Group < summaries[j].Group
		}
		return summaries[i].Backend < summaries[j].Backend
	})
}
