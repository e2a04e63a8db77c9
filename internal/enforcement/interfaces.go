package enforcement

import (
	"context"

	"github.com/google/uuid"

	"github.com/quantpit/trading-arena/internal/alerts"
	"github.com/quantpit/trading-arena/internal/history"
)

// RepositoryInterface defines the interface for enforcement storage
type RepositoryInterface interface {
	// GetPolicySettings returns the stored policy, or nil when none was
	// ever configured.
	GetPolicySettings(ctx context.Context) (*PolicySettings, error)
	UpsertPolicySettings(ctx context.Context, settings *PolicySettings) (*PolicySettings, error)

	// ClaimRestriction inserts the restriction unless the user already has
	// an active one. Exactly one concurrent claim per user succeeds.
	ClaimRestriction(ctx context.Context, restriction *UserRestriction) (bool, error)

	GetActiveRestriction(ctx context.Context, userID uuid.UUID) (*UserRestriction, error)
	ListActiveRestrictions(ctx context.Context, limit, offset int) ([]UserRestriction, int64, error)
	LiftRestriction(ctx context.Context, restrictionID, adminID uuid.UUID) (*UserRestriction, error)
}

// AlertRaiser records enforcement alerts. Implemented by the alerts service.
type AlertRaiser interface {
	CreateOrUpdateAlert(ctx context.Context, input alerts.CreateAlertInput) (*alerts.FraudAlert, bool, error)
}

// HistoryRecorder appends to the fraud audit trail. Implemented by the
// history service.
type HistoryRecorder interface {
	Record(ctx context.Context, entry *history.Entry) (*history.Entry, error)
}

// ScoreMarker stamps the score record after automated enforcement.
// Implemented by the suspicion repository.
type ScoreMarker interface {
	MarkAutoRestricted(ctx context.Context, userID uuid.UUID, reason string) error
}

// ScoreProvider reads a user's current score for on-demand re-evaluation.
// Implemented by the suspicion service.
type ScoreProvider interface {
	ScoreSummary(ctx context.Context, userID uuid.UUID) (float64, map[string]float64, error)
}
