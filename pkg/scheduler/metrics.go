package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Deploy operation metrics
	deployDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "catdeploy_deploy_duration_seconds",
			Help:    "Duration of a full deploy operation in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	migrationOutcomeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catdeploy_migration_outcome_total",
			Help: "Total number of migration task outcomes",
		},
		[]string{"outcome"}, // succeeded, failed or skipped
	)

	manifestsAppliedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catdeploy_manifests_applied_total",
			Help: "Total number of manifests applied to the cluster",
		},
		[]string{"kind"},
	)
)
