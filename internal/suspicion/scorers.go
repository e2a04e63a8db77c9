package suspicion

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quantpit/trading-arena/pkg/common"
)

// Per-method link confidence. Device fingerprints are near-certain; looser
// signals carry looser confidence.
var methodConfidence = map[ScoreMethod]float64{
	MethodDeviceMatch:       0.95,
	MethodIPMatch:           0.7,
	MethodIPBrowserMatch:    0.8,
	MethodSameCity:          0.4,
	MethodSamePayment:       0.9,
	MethodRapidCreation:     0.6,
	MethodCoordinatedEntry:  0.7,
	MethodTradingSimilarity: 0.75,
	MethodMirrorTrading:     0.85,
	MethodTimezoneLanguage:  0.3,
}

func (s *Service) applyToGroup(ctx context.Context, userIDs []uuid.UUID, method ScoreMethod, evidence string) error {
	if len(userIDs) < 2 {
		return common.NewBadRequestError("at least two users are required", nil)
	}
	return s.UpdateScoresForMultipleUsers(ctx, userIDs, ScoreUpdate{
		Method:     method,
		Percentage: WeightFor(method),
		Evidence:   evidence,
		Confidence: methodConfidence[method],
	})
}

func (s *Service) applyToPair(ctx context.Context, userA, userB uuid.UUID, method ScoreMethod, evidence string) error {
	if userA == userB {
		return common.NewBadRequestError("users must be distinct", nil)
	}
	return s.applyToGroup(ctx, []uuid.UUID{userA, userB}, method, evidence)
}

// RecordDeviceMatch scores every account seen on the same device fingerprint
func (s *Service) RecordDeviceMatch(ctx context.Context, userIDs []uuid.UUID, deviceFingerprint string) error {
	evidence := fmt.Sprintf("device fingerprint %s shared by %d accounts",
		truncateToken(deviceFingerprint), len(userIDs))
	return s.applyToGroup(ctx, userIDs, MethodDeviceMatch, evidence)
}

// RecordIPMatch scores accounts active from the same IP address
func (s *Service) RecordIPMatch(ctx context.Context, userIDs []uuid.UUID, ipAddress string) error {
	evidence := fmt.Sprintf("IP address %s shared by %d accounts", ipAddress, len(userIDs))
	return s.applyToGroup(ctx, userIDs, MethodIPMatch, evidence)
}

// RecordIPBrowserMatch scores accounts sharing both an IP address and a
// browser signature, a stronger signal than the IP alone
func (s *Service) RecordIPBrowserMatch(ctx context.Context, userIDs []uuid.UUID, ipAddress, browserSignature string) error {
	evidence := fmt.Sprintf("IP %s with browser signature %s shared by %d accounts",
		ipAddress, truncateToken(browserSignature), len(userIDs))
	return s.applyToGroup(ctx, userIDs, MethodIPBrowserMatch, evidence)
}

// RecordSameCity scores accounts registered from the same city
func (s *Service) RecordSameCity(ctx context.Context, userIDs []uuid.UUID, city string) error {
	evidence := fmt.Sprintf("accounts registered in %s (%d accounts)", city, len(userIDs))
	return s.applyToGroup(ctx, userIDs, MethodSameCity, evidence)
}

// RecordSharedPayment scores every account that used the same payment
// instrument. Called by the payment fingerprint tracker.
func (s *Service) RecordSharedPayment(ctx context.Context, userIDs []uuid.UUID, provider, fingerprintHash string) error {
	evidence := fmt.Sprintf("payment instrument %s (%s) shared by %d accounts",
		truncateToken(fingerprintHash), provider, len(userIDs))
	return s.applyToGroup(ctx, userIDs, MethodSamePayment, evidence)
}

// RecordRapidCreation scores a burst of account signups inside a short window
func (s *Service) RecordRapidCreation(ctx context.Context, userIDs []uuid.UUID, window time.Duration) error {
	evidence := fmt.Sprintf("%d accounts created within %s", len(userIDs), window)
	return s.applyToGroup(ctx, userIDs, MethodRapidCreation, evidence)
}

// RecordCoordinatedEntry scores accounts joining the same competition in
// lockstep
func (s *Service) RecordCoordinatedEntry(ctx context.Context, userIDs []uuid.UUID, competitionID uuid.UUID, window time.Duration) error {
	evidence := fmt.Sprintf("%d accounts entered competition %s within %s",
		len(userIDs), competitionID, window)
	return s.applyToGroup(ctx, userIDs, MethodCoordinatedEntry, evidence)
}

// RecordTradingSimilarity scores a pair whose trade streams are too alike
func (s *Service) RecordTradingSimilarity(ctx context.Context, userA, userB uuid.UUID, similarityPct float64) error {
	evidence := fmt.Sprintf("trading pattern similarity %.1f%% between accounts", similarityPct)
	return s.applyToPair(ctx, userA, userB, MethodTradingSimilarity, evidence)
}

// RecordMirrorTrading scores a pair placing opposite sides of the same trades
func (s *Service) RecordMirrorTrading(ctx context.Context, userA, userB uuid.UUID, matchedTrades int) error {
	evidence := fmt.Sprintf("%d mirrored trades between accounts", matchedTrades)
	return s.applyToPair(ctx, userA, userB, MethodMirrorTrading, evidence)
}

// RecordTimezoneLanguageMatch scores accounts with matching locale settings.
// Weak on its own, it compounds with stronger signals.
func (s *Service) RecordTimezoneLanguageMatch(ctx context.Context, userIDs []uuid.UUID, timezone, language string) error {
	evidence := fmt.Sprintf("timezone %s and language %s shared by %d accounts",
		timezone, language, len(userIDs))
	return s.applyToGroup(ctx, userIDs, MethodTimezoneLanguage, evidence)
}

// RecordDeviceSwitching scores a single user hopping across many devices.
// The only single-account method: no links are created.
func (s *Service) RecordDeviceSwitching(ctx context.Context, userID uuid.UUID, deviceCount int, window time.Duration) error {
	if deviceCount < 2 {
		return common.NewBadRequestError("device count must be at least 2", nil)
	}
	_, err := s.UpdateScore(ctx, userID, ScoreUpdate{
		Method:     MethodDeviceSwitching,
		Percentage: WeightFor(MethodDeviceSwitching),
		Evidence:   fmt.Sprintf("%d distinct devices used within %s", deviceCount, window),
	})
	return err
}

func truncateToken(token string) string {
	if len(token) <= 12 {
		return token
	}
	return token[:12] + "..."
}
