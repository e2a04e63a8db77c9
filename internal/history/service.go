package history

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quantpit/trading-arena/pkg/common"
	"github.com/quantpit/trading-arena/pkg/logger"
)

// Service handles fraud history business logic
type Service struct {
	repo RepositoryInterface
}

// NewService creates a new history service
func NewService(repo RepositoryInterface) *Service {
	return &Service{repo: repo}
}

// Record appends one entry to a user's fraud record
func (s *Service) Record(ctx context.Context, entry *Entry) (*Entry, error) {
	if entry.UserID == uuid.Nil {
		return nil, common.NewBadRequestError("user ID is required", nil)
	}
	if entry.ActionType == "" {
		return nil, common.NewBadRequestError("action type is required", nil)
	}
	if entry.PerformedBy == "" {
		entry.PerformedBy = ActorAutomated
	}

	recorded, err := s.repo.Insert(ctx, entry)
	if err != nil {
		return nil, common.NewInternalServerError("failed to record fraud history", err)
	}

	logger.WithContext(ctx).Info("fraud history recorded",
		zap.String("user_id", entry.UserID.String()),
		zap.String("action_type", string(entry.ActionType)),
		zap.String("performed_by", entry.PerformedBy))

	return recorded, nil
}

// ListByUser returns a user's entries, newest first
func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Entry, int64, error) {
	entries, total, err := s.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, common.NewInternalServerError("failed to list fraud history", err)
	}
	return entries, total, nil
}

// GetUserSummary aggregates a user's fraud record
func (s *Service) GetUserSummary(ctx context.Context, userID uuid.UUID) (*UserSummary, error) {
	summary, err := s.repo.GetUserSummary(ctx, userID)
	if err != nil {
		return nil, common.NewInternalServerError("failed to summarize fraud history", err)
	}
	return summary, nil
}
