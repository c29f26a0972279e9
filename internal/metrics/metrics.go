// Package metrics counts generation work with Prometheus collectors. The
// run writes them to a textfile at the end; nothing listens on a port.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/felixgeelhaar/cotsynth/internal/domain"
	"github.com/felixgeelhaar/cotsynth/internal/errors"
)

// Metrics holds all Prometheus metrics for cotsynth
type Metrics struct {
	// Generation metrics
	Records           *prometheus.CounterVec
	Attempts          *prometheus.CounterVec
	GenerationSeconds *prometheus.HistogramVec
	Words             *prometheus.HistogramVec

	// Backend metrics
	Loads        *prometheus.CounterVec
	LoadDuration *prometheus.HistogramVec

	// Verification metrics
	Verifications     *prometheus.CounterVec
	VerificationScore prometheus.Histogram

	// Checkpoint metrics
	CheckpointFlushes prometheus.Counter
	CheckpointRecords prometheus.Counter

	// Error metrics (by error code from structured errors)
	Errors *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		Records: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cotsynth_records_total",
				Help: "Total number of generated records",
			},
			[]string{"model", "skill", "complete"},
		),
		Attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cotsynth_generation_attempts_total",
				Help: "Total number of generation requests",
			},
			[]string{"model", "success"},
		),
		GenerationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cotsynth_generation_seconds",
				Help:    "Generation time of a record in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"model"},
		),
		Words: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cotsynth_record_words",
				Help:    "Words of reasoning plus answer per record",
				Buckets: prometheus.ExponentialBuckets(32, 2, 9),
			},
			[]string{"model"},
		),

		Loads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cotsynth_model_loads_total",
				Help: "Total number of model loads",
			},
			[]string{"model", "backend", "success"},
		),
		LoadDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cotsynth_model_load_seconds",
				Help:    "Model load duration in seconds, including pulls",
				Buckets: []float64{0.5, 1, 5, 15, 60, 300, 900},
			},
			[]string{"backend"},
		),

		Verifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cotsynth_verifications_total",
				Help: "Total number of records scored by the judge",
			},
			[]string{"judge", "scored"},
		),
		VerificationScore: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cotsynth_verification_score",
				Help:    "Judge scores of verified records",
				Buckets: prometheus.LinearBuckets(1, 1, 10),
			},
		),

		CheckpointFlushes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "cotsynth_checkpoint_flushes_total",
				Help: "Total number of checkpoint appends",
			},
		),
		CheckpointRecords: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "cotsynth_checkpoint_records_total",
				Help: "Total number of records appended to the checkpoint log",
			},
		),

		Errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cotsynth_errors_total",
				Help: "Total number of errors by error code",
			},
			[]string{"error_code", "component"},
		),
	}
}

// ObserveAttempt counts one generation request
func (m *Metrics) ObserveAttempt(model string, err error) {
	m.Attempts.WithLabelValues(model, strconv.FormatBool(err == nil)).Inc()
	if err != nil {
		m.Errors.WithLabelValues(errorCode(err), "generator").Inc()
	}
}

// ObserveRecord counts one finished record
func (m *Metrics) ObserveRecord(rec domain.Record, _ int) {
	m.Records.WithLabelValues(rec.Model, rec.SkillID, strconv.FormatBool(rec.Complete())).Inc()
	m.GenerationSeconds.WithLabelValues(rec.Model).Observe(rec.GenerationTimeS)
	m.Words.WithLabelValues(rec.Model).Observe(float64(rec.Words))
}

// ObserveLoad counts one model load
func (m *Metrics) ObserveLoad(model string, backend domain.BackendKind, d time.Duration, err error) {
	m.Loads.WithLabelValues(model, string(backend), strconv.FormatBool(err == nil)).Inc()
	m.LoadDuration.WithLabelValues(string(backend)).Observe(d.Seconds())
	if err != nil {
		m.Errors.WithLabelValues(errorCode(err), "backend").Inc()
	}
}

// ObserveVerified counts the judge scores of records
func (m *Metrics) ObserveVerified(judge string, records []domain.Record) {
	for _, r := range records {
		if !r.Verified {
			continue
		}
		if r.VerificationScore == domain.UnscoredVerification {
			m.Verifications.WithLabelValues(judge, "false").Inc()
			continue
		}
		m.Verifications.WithLabelValues(judge, "true").Inc()
		m.VerificationScore.Observe(r.VerificationScore)
	}
}

// ObserveFlush counts one checkpoint append of n records
func (m *Metrics) ObserveFlush(n int) {
	m.CheckpointFlushes.Inc()
	m.CheckpointRecords.Add(float64(n))
}

func errorCode(err error) string {
	if se, ok := errors.As(err); ok {
		return string(se.Code)
	}
	return "unknown"
}
