// Package metrics 汇总账本业务指标，HTTP 指标在 middleware 中
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "loan_ledger"

// 借用准入结果
const (
	OutcomeAccepted = "accepted"
	OutcomePending  = "pending"
	OutcomeConflict = "conflict"
	OutcomeInvalid  = "invalid"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

var (
	Admissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loan_admissions_total",
			Help:      "Loan requests by admission outcome",
		},
		[]string{"outcome"},
	)
	AdmissionLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "loan_admission_duration_seconds",
			Help:      "Time spent admitting a loan request, lock wait included",
			Buckets:   prometheus.DefBuckets,
		},
	)
	QueryLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "loan_query_duration_seconds",
			Help:      "Latency of loan queries",
			Buckets:   prometheus.DefBuckets,
		},
	)
	CatalogueWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalogue_writes_total",
			Help:      "Catalogue and user mutations by entity and operation",
		},
		[]string{"entity", "op"},
	)
)

func init() {
	prometheus.MustRegister(Admissions, AdmissionLatency, QueryLatency, CatalogueWrites)
}

func ObserveSince(h prometheus.Observer, start time.Time) {
	h.Observe(time.Since(start).Seconds())
}
