package suspicion

import (
	"context"

	"github.com/google/uuid"
)

// RepositoryInterface defines the interface for suspicion score storage
type RepositoryInterface interface {
	// ApplyContribution atomically adds one contribution to the user's score,
	// creating the record if absent, and appends the score history event.
	ApplyContribution(ctx context.Context, userID uuid.UUID, update ScoreUpdate) (*ContributionResult, error)

	// LinkAccounts records a bidirectional link between two users.
	// Idempotent under duplicate and concurrent calls.
	LinkAccounts(ctx context.Context, userID, linkedUserID uuid.UUID, method ScoreMethod, confidence float64) error

	GetScore(ctx context.Context, userID uuid.UUID) (*SuspicionScore, error)
	GetScoreEvents(ctx context.Context, userID uuid.UUID, limit, offset int) ([]ScoreEvent, int64, error)
	GetHighRiskUsers(ctx context.Context) ([]SuspicionScore, error)
	GetUsersByRiskLevel(ctx context.Context, level RiskLevel) ([]SuspicionScore, error)

	// MarkAutoRestricted stamps the score record after automated enforcement
	MarkAutoRestricted(ctx context.Context, userID uuid.UUID, reason string) error

	// ResetScore clears a user's score, breakdown and links. History is kept.
	ResetScore(ctx context.Context, userID uuid.UUID) error
}

// Enforcer decides whether a user crossing into a high tier gets an
// automated restriction. Implemented by the enforcement service.
type Enforcer interface {
	EvaluateAutoRestrict(ctx context.Context, userID uuid.UUID, totalScore float64, breakdown map[string]float64) error
}
