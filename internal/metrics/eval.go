package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Evaluation pipeline metrics.
var (
	EvalMRR = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "eval_mrr",
			Help:      "Last computed MRR per dataset and cutoff",
		},
		[]string{"dataset", "k"},
	)

	StageRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_runs_total",
			Help:      "Pipeline stage runs by outcome",
		},
		[]string{"stage", "status"},
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		},
		[]string{"stage"},
	)

	DatasetSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dataset_size",
			Help:      "Number of corpus documents, queries and qrels pairs per dataset",
		},
		[]string{"dataset", "kind"},
	)

	DownloadBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_bytes_total",
			Help:      "Total bytes downloaded from HuggingFace",
		},
	)
)

var evalOnce sync.Once

// RegisterEvalMetrics registers evaluation metrics with the default registerer.
func RegisterEvalMetrics() {
	evalOnce.Do(func() {
		prometheus.MustRegister(EvalMRR, StageRunsTotal, StageDuration, DatasetSize, DownloadBytesTotal)
	})
}

// ObserveStage records one stage run. err == nil counts as success.
func ObserveStage(stage string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	StageRunsTotal.WithLabelValues(stage, status).Inc()
	StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// SetMRR publishes MRR@k for a dataset.
func SetMRR(dataset string, k int, value float64) {
	EvalMRR.WithLabelValues(dataset, strconv.Itoa(k)).Set(value)
}

// SetDatasetSize publishes corpus/queries/qrels counts.
func SetDatasetSize(dataset string, corpus, queries, qrels int) {
	DatasetSize.WithLabelValues(dataset, "corpus").Set(float64(corpus))
	DatasetSize.WithLabelValues(dataset, "queries").Set(float64(queries))
	DatasetSize.WithLabelValues(dataset, "qrels").Set(float64(qrels))
}
