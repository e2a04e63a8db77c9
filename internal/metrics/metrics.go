package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Scoring metrics
	ScoreUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fraud_score_updates_total",
			Help: "Total number of suspicion score contributions applied",
		},
		[]string{"method"},
	)

	ScoreUpdateFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fraud_score_update_failures_total",
			Help: "Total number of score contributions that failed after retries (audit gap)",
		},
	)

	TierTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fraud_tier_transitions_total",
			Help: "Total number of upward risk tier transitions",
		},
		[]string{"to"},
	)

	// Alert metrics
	AlertsRaised = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fraud_alerts_raised_total",
			Help: "Total number of fraud alerts created",
		},
		[]string{"alert_type", "severity"},
	)

	AlertsMerged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fraud_alerts_merged_total",
			Help: "Total number of detections merged into an existing open alert",
		},
		[]string{"alert_type"},
	)

	// Enforcement metrics
	AutoRestrictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fraud_auto_restrictions_total",
			Help: "Total number of automated account restrictions",
		},
	)

	EnforcementSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fraud_enforcement_skipped_total",
			Help: "Total number of enforcement decisions that resolved to no-op",
		},
		[]string{"reason"}, // disabled, below_threshold, already_restricted, lost_race
	)

	// Payment fingerprint metrics
	SharedFingerprints = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fraud_shared_fingerprints_total",
			Help: "Total number of payment fingerprints detected as shared across accounts",
		},
	)

	FingerprintsTracked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fraud_fingerprints_tracked_total",
			Help: "Total number of payment fingerprint track calls",
		},
		[]string{"provider", "outcome"}, // created, repeat, shared
	)
)
