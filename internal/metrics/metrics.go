// Package metrics counts what an ingest run did and exports it in the
// prometheus text format, for node_exporter's textfile collector or any
// scraper reading files.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chatarc"

// Transcript outcomes.
const (
	Ingested = "ingested"
	Skipped  = "skipped"
	Failed   = "failed"
)

// Ingest holds the counters of one run. A nil *Ingest records nothing.
type Ingest struct {
	reg *prometheus.Registry

	transcripts *prometheus.CounterVec
	messages    prometheus.Counter
	attachments *prometheus.CounterVec
	conflicts   prometheus.Counter
	duration    prometheus.Histogram
	users       prometheus.Gauge
}

func New() *Ingest {
	m := &Ingest{
		reg: prometheus.NewRegistry(),
		transcripts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_total",
			Help:      "Transcripts seen, by outcome.",
		}, []string{"outcome"}),
		messages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Messages written to the archive.",
		}),
		attachments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attachments_total",
			Help:      "Attachments referenced by messages, by whether the file was copied.",
		}, []string{"outcome"}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identity_conflicts_total",
			Help:      "Identity conflicts left unresolved.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcript_duration_seconds",
			Help:      "Time to parse and write one transcript.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
		}),
		users: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "users",
			Help:      "Users known to the identity registry at the end of the run.",
		}),
	}
	m.reg.MustRegister(m.transcripts, m.messages, m.attachments, m.conflicts, m.duration, m.users)
	return m
}

func (m *Ingest) Transcript(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.transcripts.WithLabelValues(outcome).Inc()
	if outcome != Skipped {
		m.duration.Observe(took.Seconds())
	}
}

func (m *Ingest) Messages(n int) {
	if m == nil {
		return
	}
	m.messages.Add(float64(n))
}

func (m *Ingest) Attachments(copied, missing int) {
	if m == nil {
		return
	}
	m.attachments.WithLabelValues("copied").Add(float64(copied))
	m.attachments.WithLabelValues("missing").Add(float64(missing))
}

func (m *Ingest) Conflicts(n int) {
	if m == nil {
		return
	}
	m.conflicts.Add(float64(n))
}

func (m *Ingest) Users(n int) {
	if m == nil {
		return
	}
	m.users.Set(float64(n))
}

// WriteFile writes all metrics to path atomically.
func (m *Ingest) WriteFile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.reg)
}
