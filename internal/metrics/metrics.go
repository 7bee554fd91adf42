package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	AssessmentsScored       *prometheus.CounterVec
	AssessmentsAcknowledged prometheus.Counter
	SheetUnlocks            *prometheus.CounterVec
	PercentageScore         prometheus.Histogram
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		AssessmentsScored: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assessments_scored_total",
				Help: "Assessments scored, by persisted flag and status",
			},
			[]string{"stage", "status"},
		),
		AssessmentsAcknowledged: f.NewCounter(prometheus.CounterOpts{
			Name: "assessments_acknowledged_total",
			Help: "Assessments acknowledged by a student signature",
		}),
		SheetUnlocks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sheet_unlock_attempts_total",
				Help: "Marking sheet password checks, by outcome",
			},
			[]string{"outcome"},
		),
		PercentageScore: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "assessment_percentage_score",
			Help:    "Distribution of submitted assessment percentages",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
	}
}

// Nop returns collectors registered on a throwaway registry.
func Nop() *Metrics { return New(prometheus.NewRegistry()) }

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
