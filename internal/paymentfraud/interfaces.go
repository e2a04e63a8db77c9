package paymentfraud

import (
	"context"

	"github.com/google/uuid"

	"github.com/quantpit/trading-arena/internal/alerts"
)

// RepositoryInterface defines the interface for payment fingerprint storage
type RepositoryInterface interface {
	// UpsertUsage records one use of an instrument by one user, creating the
	// row on first use. created is true only for the first use.
	UpsertUsage(ctx context.Context, input TrackInput) (fp *PaymentFingerprint, created bool, err error)

	// GetOwners returns the distinct users who used the instrument
	GetOwners(ctx context.Context, provider, fingerprintHash string) ([]uuid.UUID, error)

	// MarkShared flags every row of the instrument with the given risk
	// score. Idempotent.
	MarkShared(ctx context.Context, provider, fingerprintHash string, riskScore float64) error

	GetUserFingerprints(ctx context.Context, userID uuid.UUID) ([]PaymentFingerprint, error)
	HasSharedPayments(ctx context.Context, userID uuid.UUID) (bool, error)
	ListSharedInstruments(ctx context.Context, limit, offset int) ([]SharedInstrument, int64, error)
}

// SharedPaymentScorer applies the shared-payment contribution to every
// implicated user. Implemented by the suspicion service.
type SharedPaymentScorer interface {
	RecordSharedPayment(ctx context.Context, userIDs []uuid.UUID, provider, fingerprintHash string) error
}

// AlertRaiser records shared-payment alerts. Implemented by the alerts service.
type AlertRaiser interface {
	CreateOrUpdateAlert(ctx context.Context, input alerts.CreateAlertInput) (*alerts.FraudAlert, bool, error)
}
