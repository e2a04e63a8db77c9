package suspicion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/quantpit/trading-arena/internal/metrics"
	"github.com/quantpit/trading-arena/pkg/common"
	"github.com/quantpit/trading-arena/pkg/logger"
	"github.com/quantpit/trading-arena/pkg/redis"
	"github.com/quantpit/trading-arena/pkg/resilience"
)

const defaultLinkConfidence = 0.8

// Service handles suspicion scoring business logic
type Service struct {
	repo         RepositoryInterface
	cache        *redis.Client
	cacheBreaker *resilience.CircuitBreaker
	cacheTTL     time.Duration
	enforcer     Enforcer
	retryCfg     resilience.RetryConfig
}

// NewService creates a new suspicion service. cache may be nil when Redis
// is not configured.
func NewService(repo RepositoryInterface, cache *redis.Client, cacheTTL time.Duration) *Service {
	retryCfg := resilience.AggressiveRetryConfig()
	retryCfg.InitialBackoff = 100 * time.Millisecond
	retryCfg.MaxBackoff = 2 * time.Second

	svc := &Service{
		repo:     repo,
		cache:    cache,
		cacheTTL: cacheTTL,
		retryCfg: retryCfg,
	}
	if cache != nil {
		// A flapping Redis must not slow down score reads; open the
		// breaker and serve from Postgres until it recovers.
		svc.cacheBreaker = resilience.NewCircuitBreaker(
			resilience.DefaultSettings("suspicion-score-cache"),
			resilience.StaticFallback(""))
	}
	return svc
}

// SetEnforcer wires the enforcement hook. Called once at startup; the hook
// is advisory and its failures never surface to scoring callers.
func (s *Service) SetEnforcer(enforcer Enforcer) {
	s.enforcer = enforcer
}

// UpdateScore applies one contribution to a user's score. The store write is
// retried because a lost contribution is a silent audit gap. Enforcement runs
// at most once per user, on the first upward crossing into high or critical.
func (s *Service) UpdateScore(ctx context.Context, userID uuid.UUID, update ScoreUpdate) (*ContributionResult, error) {
	log := logger.WithContext(ctx)

	if update.Percentage <= 0 || update.Percentage > MaxScore {
		return nil, common.NewBadRequestError(
			fmt.Sprintf("percentage must be in (0, %d]", MaxScore), nil)
	}
	if update.Method == "" {
		return nil, common.NewBadRequestError("method is required", nil)
	}

	value, err := resilience.Retry(ctx, s.retryCfg, func(ctx context.Context) (interface{}, error) {
		return s.repo.ApplyContribution(ctx, userID, update)
	})
	if err != nil {
		metrics.ScoreUpdateFailures.Inc()
		log.Error("score contribution lost after retries",
			zap.String("user_id", userID.String()),
			zap.String("method", string(update.Method)),
			zap.Float64("percentage", update.Percentage),
			zap.Error(err))
		return nil, common.NewInternalServerError("failed to update suspicion score", err)
	}
	result := value.(*ContributionResult)
	metrics.ScoreUpdates.WithLabelValues(string(update.Method)).Inc()

	confidence := update.Confidence
	if confidence == 0 {
		confidence = defaultLinkConfidence
	}
	for _, linkedID := range update.LinkedUserIDs {
		if err := s.repo.LinkAccounts(ctx, userID, linkedID, update.Method, confidence); err != nil {
			log.Error("failed to link accounts",
				zap.String("user_id", userID.String()),
				zap.String("linked_user_id", linkedID.String()),
				zap.Error(err))
		}
	}

	s.invalidateCache(ctx, userID)

	log.Info("suspicion score updated",
		zap.String("user_id", userID.String()),
		zap.String("method", string(update.Method)),
		zap.Float64("percentage", update.Percentage),
		zap.Float64("total_score", result.TotalScore),
		zap.String("risk_level", string(result.NewLevel())))

	s.maybeEnforce(ctx, userID, result)

	return result, nil
}

// maybeEnforce triggers the enforcement hook on the first upward crossing
// into high or critical. Users already auto-restricted are never re-escalated.
func (s *Service) maybeEnforce(ctx context.Context, userID uuid.UUID, result *ContributionResult) {
	prev, next := result.PreviousLevel(), result.NewLevel()
	if next.Rank() <= prev.Rank() {
		return
	}
	metrics.TierTransitions.WithLabelValues(string(next)).Inc()

	if next != RiskHigh && next != RiskCritical {
		return
	}
	if result.AutoRestricted {
		metrics.EnforcementSkipped.WithLabelValues("already_restricted").Inc()
		return
	}
	if s.enforcer == nil {
		return
	}

	log := logger.WithContext(ctx)
	log.Warn("user crossed into elevated risk tier",
		zap.String("user_id", userID.String()),
		zap.String("from", string(prev)),
		zap.String("to", string(next)),
		zap.Float64("total_score", result.TotalScore))

	breakdown := make(map[string]float64)
	if score, err := s.repo.GetScore(ctx, userID); err == nil {
		for method, pct := range score.ScoreBreakdown {
			breakdown[string(method)] = pct
		}
	}

	if err := s.enforcer.EvaluateAutoRestrict(ctx, userID, result.TotalScore, breakdown); err != nil {
		log.Error("enforcement evaluation failed",
			zap.String("user_id", userID.String()),
			zap.Error(err))
	}
}

// UpdateScoresForMultipleUsers applies the same contribution to every user in
// the set, linking each of them to all the others. Failures for one user do
// not stop the rest; the caller gets the joined errors.
func (s *Service) UpdateScoresForMultipleUsers(ctx context.Context, userIDs []uuid.UUID, update ScoreUpdate) error {
	var errs []error
	for _, userID := range userIDs {
		perUser := update
		perUser.LinkedUserIDs = otherUsers(userIDs, userID)
		if _, err := s.UpdateScore(ctx, userID, perUser); err != nil {
			errs = append(errs, fmt.Errorf("user %s: %w", userID, err))
		}
	}
	return errors.Join(errs...)
}

func otherUsers(userIDs []uuid.UUID, self uuid.UUID) []uuid.UUID {
	others := make([]uuid.UUID, 0, len(userIDs)-1)
	for _, id := range userIDs {
		if id != self {
			others = append(others, id)
		}
	}
	return others
}

// GetScore returns a user's score record. Users with no recorded signals get
// a zero-score record rather than an error.
func (s *Service) GetScore(ctx context.Context, userID uuid.UUID) (*SuspicionScore, error) {
	if cached := s.readCache(ctx, userID); cached != nil {
		return cached, nil
	}

	score, err := s.repo.GetScore(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &SuspicionScore{
				UserID:         userID,
				RiskLevel:      RiskLow,
				ScoreBreakdown: map[ScoreMethod]float64{},
				LinkedAccounts: []LinkedAccount{},
			}, nil
		}
		return nil, common.NewInternalServerError("failed to get suspicion score", err)
	}

	s.writeCache(ctx, score)
	return score, nil
}

// ScoreSummary returns the capped total and a plain-keyed breakdown, used
// by enforcement when re-evaluating a user on demand
func (s *Service) ScoreSummary(ctx context.Context, userID uuid.UUID) (float64, map[string]float64, error) {
	score, err := s.GetScore(ctx, userID)
	if err != nil {
		return 0, nil, err
	}
	breakdown := make(map[string]float64, len(score.ScoreBreakdown))
	for method, pct := range score.ScoreBreakdown {
		breakdown[string(method)] = pct
	}
	return score.TotalScore, breakdown, nil
}

// GetScoreHistory returns the user's applied contributions, newest first
func (s *Service) GetScoreHistory(ctx context.Context, userID uuid.UUID, limit, offset int) ([]ScoreEvent, int64, error) {
	events, total, err := s.repo.GetScoreEvents(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, common.NewInternalServerError("failed to get score history", err)
	}
	return events, total, nil
}

// GetHighRiskUsers returns users in the high and critical tiers
func (s *Service) GetHighRiskUsers(ctx context.Context) ([]SuspicionScore, error) {
	scores, err := s.repo.GetHighRiskUsers(ctx)
	if err != nil {
		return nil, common.NewInternalServerError("failed to get high risk users", err)
	}
	return scores, nil
}

// GetUsersByRiskLevel returns users in one tier
func (s *Service) GetUsersByRiskLevel(ctx context.Context, level RiskLevel) ([]SuspicionScore, error) {
	if !level.Valid() {
		return nil, common.NewBadRequestError("invalid risk level", nil)
	}
	scores, err := s.repo.GetUsersByRiskLevel(ctx, level)
	if err != nil {
		return nil, common.NewInternalServerError("failed to get users by risk level", err)
	}
	return scores, nil
}

// ResetScore clears a user's score after an admin review
func (s *Service) ResetScore(ctx context.Context, userID uuid.UUID) error {
	if err := s.repo.ResetScore(ctx, userID); err != nil {
		return common.NewInternalServerError("failed to reset suspicion score", err)
	}
	s.invalidateCache(ctx, userID)
	logger.WithContext(ctx).Info("suspicion score reset",
		zap.String("user_id", userID.String()))
	return nil
}

func scoreCacheKey(userID uuid.UUID) string {
	return "fraud:score:" + userID.String()
}

func (s *Service) readCache(ctx context.Context, userID uuid.UUID) *SuspicionScore {
	if s.cache == nil {
		return nil
	}
	value, err := s.cacheBreaker.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		raw, err := s.cache.GetString(ctx, scoreCacheKey(userID))
		if errors.Is(err, goredis.Nil) {
			// A miss is a healthy cache, not a failure.
			return "", nil
		}
		return raw, err
	})
	if err != nil {
		return nil
	}
	raw, _ := value.(string)
	if raw == "" {
		return nil
	}
	var score SuspicionScore
	if err := json.Unmarshal([]byte(raw), &score); err != nil {
		return nil
	}
	return &score
}

func (s *Service) writeCache(ctx context.Context, score *SuspicionScore) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(score)
	if err != nil {
		return
	}
	if err := s.cache.SetWithExpiration(ctx, scoreCacheKey(score.UserID), string(raw), s.cacheTTL); err != nil {
		logger.WithContext(ctx).Debug("failed to cache suspicion score", zap.Error(err))
	}
}

func (s *Service) invalidateCache(ctx context.Context, userID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, scoreCacheKey(userID)); err != nil {
		logger.WithContext(ctx).Debug("failed to invalidate score cache", zap.Error(err))
	}
}
