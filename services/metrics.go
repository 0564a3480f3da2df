package services

import "github.com/prometheus/client_golang/prometheus"

var (
	studiesSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studies_submitted_total",
			Help: "Total number of accepted study submissions.",
		},
		[]string{"method"},
	)
	analysesCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analyses_completed_total",
			Help: "Total number of analysis backend runs by outcome.",
		},
		[]string{"method", "status"},
	)
	artifactErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "model_artifact_errors_total",
			Help: "Total number of trained model artifacts that could not be loaded or evaluated.",
		},
	)
)

func init() {
	prometheus.MustRegister(studiesSubmitted, analysesCompleted, artifactErrors)
}
