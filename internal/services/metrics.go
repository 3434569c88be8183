package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	calibrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "synapirt",
			Name:      "calibrations_total",
			Help:      "Calibration runs by final source and status.",
		},
		[]string{"source", "status"},
	)

	calibrationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "synapirt",
			Name:      "calibration_duration_seconds",
			Help:      "Wall time of a calibration run.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
		},
		[]string{"source"},
	)

	calibrationLoss = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "synapirt",
		Name:      "calibration_final_loss",
		Help:      "Final loss of the most recent successful calibration.",
	})

	scoredRespondents = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "synapirt",
		Name:      "scored_respondents_total",
		Help:      "Respondents scored by importance sampling.",
	})

	scoringESS = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "synapirt",
		Name:      "scoring_effective_sample_size",
		Help:      "Effective sample size of each scored respondent.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	})
)
