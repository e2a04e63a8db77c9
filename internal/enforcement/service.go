package enforcement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/quantpit/trading-arena/internal/alerts"
	"github.com/quantpit/trading-arena/internal/history"
	"github.com/quantpit/trading-arena/internal/metrics"
	"github.com/quantpit/trading-arena/pkg/common"
	"github.com/quantpit/trading-arena/pkg/logger"
)

// Service handles enforcement business logic
type Service struct {
	repo            RepositoryInterface
	alertSvc        AlertRaiser
	historySvc      HistoryRecorder
	scoreMarker     ScoreMarker
	scores          ScoreProvider
	restrictionDays int
}

// NewService creates a new enforcement service
func NewService(repo RepositoryInterface, alertSvc AlertRaiser, historySvc HistoryRecorder, scoreMarker ScoreMarker, restrictionDays int) *Service {
	if restrictionDays <= 0 {
		restrictionDays = 7
	}
	return &Service{
		repo:            repo,
		alertSvc:        alertSvc,
		historySvc:      historySvc,
		scoreMarker:     scoreMarker,
		restrictionDays: restrictionDays,
	}
}

// SetScoreProvider wires the score reader used by on-demand re-evaluation
func (s *Service) SetScoreProvider(scores ScoreProvider) {
	s.scores = scores
}

// EvaluateAutoRestrict decides whether a user gets an automated restriction.
// The decision is gated on the stored policy; absent or disabled settings
// mean no action ever, regardless of score. The restriction insert is the
// first durable step: once it lands, alert, score stamp and history are
// best-effort and their failures never undo it.
func (s *Service) EvaluateAutoRestrict(ctx context.Context, userID uuid.UUID, totalScore float64, breakdown map[string]float64) error {
	log := logger.WithContext(ctx)

	settings, err := s.repo.GetPolicySettings(ctx)
	if err != nil {
		return err
	}
	if settings == nil || !settings.AutoSuspendEnabled {
		metrics.EnforcementSkipped.WithLabelValues("disabled").Inc()
		log.Debug("auto enforcement disabled",
			zap.String("user_id", userID.String()),
			zap.Float64("total_score", totalScore))
		return nil
	}

	threshold := settings.AutoSuspendThreshold
	if threshold <= 0 {
		threshold = DefaultAutoSuspendThreshold
	}
	if totalScore < threshold {
		metrics.EnforcementSkipped.WithLabelValues("below_threshold").Inc()
		return nil
	}

	expiresAt := time.Now().Add(time.Duration(s.restrictionDays) * 24 * time.Hour)
	restriction := &UserRestriction{
		UserID:    userID,
		Type:      RestrictionSuspended,
		Reason:    ReasonAutomated,
		ExpiresAt: &expiresAt,
		CreatedBy: history.ActorAutomated,
	}

	claimed, err := s.repo.ClaimRestriction(ctx, restriction)
	if err != nil {
		return err
	}
	if !claimed {
		metrics.EnforcementSkipped.WithLabelValues("lost_race").Inc()
		log.Info("restriction claim lost, user already restricted",
			zap.String("user_id", userID.String()))
		return nil
	}

	metrics.AutoRestrictions.Inc()
	log.Warn("user auto-restricted",
		zap.String("user_id", userID.String()),
		zap.String("restriction_id", restriction.ID.String()),
		zap.Float64("total_score", totalScore),
		zap.Float64("threshold", threshold))

	s.recordAutoRestriction(ctx, restriction, totalScore, breakdown)
	return nil
}

// recordAutoRestriction runs the follow-ups after a successful claim. Each
// one fails independently; the restriction stands either way.
func (s *Service) recordAutoRestriction(ctx context.Context, restriction *UserRestriction, totalScore float64, breakdown map[string]float64) {
	log := logger.WithContext(ctx)
	userID := restriction.UserID

	if err := s.scoreMarker.MarkAutoRestricted(ctx, userID, ReasonAutomated); err != nil {
		log.Error("failed to stamp score record after restriction",
			zap.String("user_id", userID.String()), zap.Error(err))
	}

	alertInput := alerts.CreateAlertInput{
		AlertType: alerts.AlertTypeAutoRestriction,
		UserIDs:   []uuid.UUID{userID},
		Title:     "Account auto-restricted",
		Description: fmt.Sprintf("Suspicion score %.1f crossed the auto-suspend threshold; account suspended for %d days",
			totalScore, s.restrictionDays),
		Severity:      alerts.SeverityCritical,
		Confidence:    0.95,
		InitialStatus: alerts.StatusInvestigating,
		Evidence: []alerts.Evidence{{
			Type:       alerts.EvidenceScoreBreakdown,
			RecordedAt: time.Now(),
			ScoreBreakdown: &alerts.ScoreBreakdownEvidence{
				TotalScore: totalScore,
				Breakdown:  breakdown,
			},
		}},
	}
	alert, _, err := s.alertSvc.CreateOrUpdateAlert(ctx, alertInput)
	if err != nil {
		log.Error("failed to raise auto-restriction alert",
			zap.String("user_id", userID.String()), zap.Error(err))
	}

	entry := &history.Entry{
		UserID:        userID,
		ActionType:    history.ActionSuspension,
		Severity:      string(alerts.SeverityCritical),
		PerformedBy:   history.ActorAutomated,
		Reason:        ReasonAutomated,
		PreviousState: "active",
		NewState:      string(RestrictionSuspended),
		ScoreAtAction: totalScore,
		RestrictionID: &restriction.ID,
	}
	if alert != nil {
		entry.AlertID = &alert.ID
	}
	if _, err := s.historySvc.Record(ctx, entry); err != nil {
		log.Error("failed to record restriction in fraud history",
			zap.String("user_id", userID.String()), zap.Error(err))
	}
}

// ReevaluateUser re-runs the enforcement decision against the user's current
// score. Used by admins after enabling or tightening the policy.
func (s *Service) ReevaluateUser(ctx context.Context, userID uuid.UUID) error {
	if s.scores == nil {
		return common.NewInternalServerError("score provider not configured", nil)
	}
	totalScore, breakdown, err := s.scores.ScoreSummary(ctx, userID)
	if err != nil {
		return err
	}
	return s.EvaluateAutoRestrict(ctx, userID, totalScore, breakdown)
}

// GetPolicySettings returns the effective policy, defaults when unset
func (s *Service) GetPolicySettings(ctx context.Context) (*PolicySettings, error) {
	settings, err := s.repo.GetPolicySettings(ctx)
	if err != nil {
		return nil, common.NewInternalServerError("failed to get policy settings", err)
	}
	if settings == nil {
		return DefaultPolicySettings(), nil
	}
	return settings, nil
}

// UpdatePolicySettings stores a new policy
func (s *Service) UpdatePolicySettings(ctx context.Context, settings *PolicySettings) (*PolicySettings, error) {
	if settings.AutoSuspendThreshold < 0 || settings.AutoSuspendThreshold > 100 {
		return nil, common.NewBadRequestError("threshold must be between 0 and 100", nil)
	}
	if settings.AutoSuspendThreshold == 0 {
		settings.AutoSuspendThreshold = DefaultAutoSuspendThreshold
	}

	updated, err := s.repo.UpsertPolicySettings(ctx, settings)
	if err != nil {
		return nil, common.NewInternalServerError("failed to update policy settings", err)
	}

	logger.WithContext(ctx).Info("enforcement policy updated",
		zap.Bool("auto_suspend_enabled", updated.AutoSuspendEnabled),
		zap.Float64("auto_suspend_threshold", updated.AutoSuspendThreshold))

	return updated, nil
}

// ApplyManualRestriction creates an admin-initiated restriction
func (s *Service) ApplyManualRestriction(ctx context.Context, userID uuid.UUID, rType RestrictionType, reason string, adminID uuid.UUID, days int) (*UserRestriction, error) {
	if !rType.Valid() {
		return nil, common.NewBadRequestError("invalid restriction type", nil)
	}
	if reason == "" {
		return nil, common.NewBadRequestError("reason is required", nil)
	}

	restriction := &UserRestriction{
		UserID:      userID,
		Type:        rType,
		Reason:      reason,
		CreatedBy:   history.ActorAdmin,
		CreatedByID: &adminID,
	}
	if days > 0 {
		expiresAt := time.Now().Add(time.Duration(days) * 24 * time.Hour)
		restriction.ExpiresAt = &expiresAt
	}

	claimed, err := s.repo.ClaimRestriction(ctx, restriction)
	if err != nil {
		return nil, common.NewInternalServerError("failed to apply restriction", err)
	}
	if !claimed {
		return nil, common.NewConflictError("user already has an active restriction", nil)
	}

	actionType := history.ActionSuspension
	severity := alerts.SeverityHigh
	switch rType {
	case RestrictionBanned:
		actionType = history.ActionBan
		severity = alerts.SeverityCritical
	case RestrictionWarning:
		actionType = history.ActionWarning
		severity = alerts.SeverityLow
	}
	if _, err := s.historySvc.Record(ctx, &history.Entry{
		UserID:        userID,
		ActionType:    actionType,
		Severity:      string(severity),
		PerformedBy:   history.ActorAdmin,
		PerformedByID: &adminID,
		Reason:        reason,
		PreviousState: "active",
		NewState:      string(rType),
		RestrictionID: &restriction.ID,
	}); err != nil {
		logger.WithContext(ctx).Error("failed to record manual restriction in fraud history",
			zap.String("user_id", userID.String()), zap.Error(err))
	}

	return restriction, nil
}

// LiftRestriction deactivates a restriction and records the lift
func (s *Service) LiftRestriction(ctx context.Context, restrictionID, adminID uuid.UUID, reason string) (*UserRestriction, error) {
	restriction, err := s.repo.LiftRestriction(ctx, restrictionID, adminID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.NewNotFoundError("active restriction not found", err)
		}
		return nil, common.NewInternalServerError("failed to lift restriction", err)
	}

	if _, err := s.historySvc.Record(ctx, &history.Entry{
		UserID:        restriction.UserID,
		ActionType:    history.ActionLift,
		PerformedBy:   history.ActorAdmin,
		PerformedByID: &adminID,
		Reason:        reason,
		PreviousState: string(restriction.Type),
		NewState:      "active",
		RestrictionID: &restriction.ID,
	}); err != nil {
		logger.WithContext(ctx).Error("failed to record lift in fraud history",
			zap.String("user_id", restriction.UserID.String()), zap.Error(err))
	}

	logger.WithContext(ctx).Info("restriction lifted",
		zap.String("user_id", restriction.UserID.String()),
		zap.String("restriction_id", restriction.ID.String()))

	return restriction, nil
}

// GetRestrictionStatus reports whether the user is currently restricted.
// Expired restrictions report as unrestricted even before cleanup runs.
func (s *Service) GetRestrictionStatus(ctx context.Context, userID uuid.UUID) (bool, *UserRestriction, error) {
	restriction, err := s.repo.GetActiveRestriction(ctx, userID)
	if err != nil {
		return false, nil, common.NewInternalServerError("failed to get restriction status", err)
	}
	if restriction == nil || restriction.Expired(time.Now()) {
		return false, restriction, nil
	}
	return true, restriction, nil
}

// ListActiveRestrictions returns active restrictions, newest first
func (s *Service) ListActiveRestrictions(ctx context.Context, limit, offset int) ([]UserRestriction, int64, error) {
	restrictions, total, err := s.repo.ListActiveRestrictions(ctx, limit, offset)
	if err != nil {
		return nil, 0, common.NewInternalServerError("failed to list restrictions", err)
	}
	return restrictions, total, nil
}
