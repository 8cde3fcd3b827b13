package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects ingestion pipeline counters and timings.
type Metrics struct {
	JobsProcessed  *prometheus.CounterVec
	JobDuration    prometheus.Histogram
	FilesExtracted prometheus.Counter
	FilesFailed    prometheus.Counter
	SnippetsStored prometheus.Counter
	BatchRetries   prometheus.Counter
}

// NewMetrics creates and registers the pipeline metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		JobsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "snipd",
			Subsystem: "pipeline",
			Name:      "jobs_processed_total",
			Help:      "Ingestion jobs finished, by terminal status.",
		}, []string{"status"}),
		JobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "snipd",
			Subsystem: "pipeline",
			Name:      "job_duration_seconds",
			Help:      "End-to-end ingestion job duration.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		FilesExtracted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "snipd",
			Subsystem: "pipeline",
			Name:      "files_extracted_total",
			Help:      "Files successfully passed through extraction.",
		}),
		FilesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "snipd",
			Subsystem: "pipeline",
			Name:      "files_failed_total",
			Help:      "Files whose extraction attempt failed.",
		}),
		SnippetsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "snipd",
			Subsystem: "pipeline",
			Name:      "snippets_stored_total",
			Help:      "Snippets durably upserted into the vector store.",
		}),
		BatchRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "snipd",
			Subsystem: "pipeline",
			Name:      "batch_retries_total",
			Help:      "Embedding and storage batch retry attempts.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.JobsProcessed, m.JobDuration, m.FilesExtracted,
			m.FilesFailed, m.SnippetsStored, m.BatchRetries)
	}
	return m
}
