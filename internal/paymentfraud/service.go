package paymentfraud

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quantpit/trading-arena/internal/alerts"
	"github.com/quantpit/trading-arena/internal/metrics"
	"github.com/quantpit/trading-arena/pkg/common"
	"github.com/quantpit/trading-arena/pkg/logger"
)

// Service handles payment fingerprint business logic
type Service struct {
	repo     RepositoryInterface
	scorer   SharedPaymentScorer
	alertSvc AlertRaiser
}

// NewService creates a new payment fraud service
func NewService(repo RepositoryInterface, scorer SharedPaymentScorer, alertSvc AlertRaiser) *Service {
	return &Service{repo: repo, scorer: scorer, alertSvc: alertSvc}
}

// TrackFingerprint records one payment event. The first time a new user
// appears on an instrument someone else already used, every owner is scored
// and a shared-payment alert is raised or merged. Repeat uses by the same
// user only bump the usage counter.
func (s *Service) TrackFingerprint(ctx context.Context, input TrackInput) (*TrackResult, error) {
	log := logger.WithContext(ctx)

	fp, created, err := s.repo.UpsertUsage(ctx, input)
	if err != nil {
		return nil, common.NewInternalServerError("failed to track payment fingerprint", err)
	}

	result := &TrackResult{Fingerprint: fp}

	if !created {
		metrics.FingerprintsTracked.WithLabelValues(input.Provider, "repeat").Inc()
		return result, nil
	}

	owners, err := s.repo.GetOwners(ctx, input.Provider, input.FingerprintHash)
	if err != nil {
		return nil, common.NewInternalServerError("failed to check fingerprint owners", err)
	}
	if len(owners) < 2 {
		metrics.FingerprintsTracked.WithLabelValues(input.Provider, "created").Inc()
		return result, nil
	}

	// A new owner on a known instrument: sharing detected.
	metrics.FingerprintsTracked.WithLabelValues(input.Provider, "shared").Inc()
	metrics.SharedFingerprints.Inc()
	result.SharingDetected = true
	result.ImplicatedUserIDs = owners
	fp.IsShared = true
	fp.RiskScore = instrumentRiskScore(len(owners))

	log.Warn("shared payment instrument detected",
		zap.String("provider", input.Provider),
		zap.String("user_id", input.UserID.String()),
		zap.Float64("amount", input.Amount),
		zap.String("currency", input.Currency),
		zap.Int("owner_count", len(owners)))

	if err := s.repo.MarkShared(ctx, input.Provider, input.FingerprintHash, fp.RiskScore); err != nil {
		log.Error("failed to flag fingerprint rows as shared", zap.Error(err))
	}

	if err := s.scorer.RecordSharedPayment(ctx, owners, input.Provider, input.FingerprintHash); err != nil {
		log.Error("failed to score shared payment owners", zap.Error(err))
	}

	if _, _, err := s.alertSvc.CreateOrUpdateAlert(ctx, alerts.CreateAlertInput{
		AlertType: alerts.AlertTypeSharedPayment,
		UserIDs:   owners,
		Title:     "Shared payment instrument",
		Description: fmt.Sprintf("%s instrument used by %d accounts",
			input.Provider, len(owners)),
		Severity:   alerts.SeverityHigh,
		Confidence: 0.9,
		Evidence: []alerts.Evidence{{
			Type:       alerts.EvidencePayment,
			RecordedAt: time.Now(),
			Payment: &alerts.PaymentEvidence{
				Provider:        input.Provider,
				FingerprintHash: input.FingerprintHash,
				CardLast4:       input.CardLast4,
				CardBrand:       input.CardBrand,
				UserIDs:         owners,
			},
		}},
	}); err != nil {
		log.Error("failed to raise shared payment alert", zap.Error(err))
	}

	return result, nil
}

// instrumentRiskScore grows with each extra account on the instrument,
// capped at 100
func instrumentRiskScore(ownerCount int) float64 {
	score := 30.0 * float64(ownerCount-1)
	if score > 100 {
		return 100
	}
	return score
}

// GetUserFingerprints returns a user's tracked instruments
func (s *Service) GetUserFingerprints(ctx context.Context, userID uuid.UUID) ([]PaymentFingerprint, error) {
	fingerprints, err := s.repo.GetUserFingerprints(ctx, userID)
	if err != nil {
		return nil, common.NewInternalServerError("failed to get payment fingerprints", err)
	}
	return fingerprints, nil
}

// GetSharedPayments returns only the user's instruments that other
// accounts also used
func (s *Service) GetSharedPayments(ctx context.Context, userID uuid.UUID) ([]PaymentFingerprint, error) {
	fingerprints, err := s.repo.GetUserFingerprints(ctx, userID)
	if err != nil {
		return nil, common.NewInternalServerError("failed to get shared payments", err)
	}
	shared := make([]PaymentFingerprint, 0, len(fingerprints))
	for _, fp := range fingerprints {
		if fp.IsShared {
			shared = append(shared, fp)
		}
	}
	return shared, nil
}

// HasSharedPayments reports whether the user shares any instrument
func (s *Service) HasSharedPayments(ctx context.Context, userID uuid.UUID) (bool, error) {
	shared, err := s.repo.HasSharedPayments(ctx, userID)
	if err != nil {
		return false, common.NewInternalServerError("failed to check shared payments", err)
	}
	return shared, nil
}

// ListSharedInstruments returns instruments used by multiple accounts
func (s *Service) ListSharedInstruments(ctx context.Context, limit, offset int) ([]SharedInstrument, int64, error) {
	instruments, total, err := s.repo.ListSharedInstruments(ctx, limit, offset)
	if err != nil {
		return nil, 0, common.NewInternalServerError("failed to list shared instruments", err)
	}
	return instruments, total, nil
}
