package alerts

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/quantpit/trading-arena/internal/metrics"
	"github.com/quantpit/trading-arena/pkg/common"
	"github.com/quantpit/trading-arena/pkg/logger"
)

// Service handles fraud alert business logic
type Service struct {
	repo RepositoryInterface
}

// NewService creates a new alerts service
func NewService(repo RepositoryInterface) *Service {
	return &Service{repo: repo}
}

// CreateOrUpdateAlert records a detection, merging into an existing
// unresolved alert when the user sets overlap
func (s *Service) CreateOrUpdateAlert(ctx context.Context, input CreateAlertInput) (*FraudAlert, bool, error) {
	log := logger.WithContext(ctx)

	if input.AlertType == "" {
		return nil, false, common.NewBadRequestError("alert type is required", nil)
	}
	if len(input.UserIDs) == 0 {
		return nil, false, common.NewBadRequestError("at least one user is required", nil)
	}
	if input.Severity == "" {
		input.Severity = SeverityMedium
	}

	alert, merged, err := s.repo.CreateOrMerge(ctx, input)
	if err != nil {
		return nil, false, common.NewInternalServerError("failed to record alert", err)
	}

	if merged {
		metrics.AlertsMerged.WithLabelValues(string(alert.AlertType)).Inc()
		log.Info("detection merged into open alert",
			zap.String("alert_id", alert.ID.String()),
			zap.String("alert_type", string(alert.AlertType)),
			zap.Int("user_count", len(alert.UserIDs)))
	} else {
		metrics.AlertsRaised.WithLabelValues(string(alert.AlertType), string(alert.Severity)).Inc()
		log.Warn("fraud alert raised",
			zap.String("alert_id", alert.ID.String()),
			zap.String("alert_type", string(alert.AlertType)),
			zap.String("severity", string(alert.Severity)),
			zap.Int("user_count", len(alert.UserIDs)))
	}

	return alert, merged, nil
}

// GetAlert returns one alert by ID
func (s *Service) GetAlert(ctx context.Context, id uuid.UUID) (*FraudAlert, error) {
	alert, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.NewNotFoundError("alert not found", err)
		}
		return nil, common.NewInternalServerError("failed to get alert", err)
	}
	return alert, nil
}

// ListAlerts returns alerts newest first, optionally filtered by status
func (s *Service) ListAlerts(ctx context.Context, status AlertStatus, limit, offset int) ([]FraudAlert, int64, error) {
	if status != "" && !validStatus(status) {
		return nil, 0, common.NewBadRequestError("invalid alert status", nil)
	}
	alerts, total, err := s.repo.List(ctx, status, limit, offset)
	if err != nil {
		return nil, 0, common.NewInternalServerError("failed to list alerts", err)
	}
	return alerts, total, nil
}

// ListAlertsByUser returns alerts implicating one user
func (s *Service) ListAlertsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]FraudAlert, int64, error) {
	alerts, total, err := s.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, common.NewInternalServerError("failed to list user alerts", err)
	}
	return alerts, total, nil
}

// TransitionStatus moves an alert through its lifecycle. Terminal alerts
// accept no further transitions.
func (s *Service) TransitionStatus(ctx context.Context, id uuid.UUID, status AlertStatus, adminID *uuid.UUID, notes string) (*FraudAlert, error) {
	if !validStatus(status) || status == StatusOpen {
		return nil, common.NewBadRequestError("invalid target status", nil)
	}

	current, err := s.GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status.Terminal() {
		return nil, common.NewConflictError("alert is already closed", nil)
	}
	if status.Terminal() && adminID == nil {
		return nil, common.NewBadRequestError("closing an alert requires an admin", nil)
	}

	alert, err := s.repo.UpdateStatus(ctx, id, status, adminID, notes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.NewNotFoundError("alert not found", err)
		}
		return nil, common.NewInternalServerError("failed to update alert status", err)
	}

	logger.WithContext(ctx).Info("alert status changed",
		zap.String("alert_id", alert.ID.String()),
		zap.String("from", string(current.Status)),
		zap.String("to", string(alert.Status)))

	return alert, nil
}

func validStatus(status AlertStatus) bool {
	switch status {
	case StatusOpen, StatusInvestigating, StatusResolved, StatusDismissed:
		return true
	}
	return false
}
