package alerts

import (
	"context"

	"github.com/google/uuid"
)

// RepositoryInterface defines the interface for fraud alert storage
type RepositoryInterface interface {
	// CreateOrMerge records a detection. When an unresolved alert of the same
	// type overlaps the user set, the detection merges into it and merged is
	// true. Safe under concurrent calls for the same user set.
	CreateOrMerge(ctx context.Context, input CreateAlertInput) (alert *FraudAlert, merged bool, err error)

	GetByID(ctx context.Context, id uuid.UUID) (*FraudAlert, error)
	List(ctx context.Context, status AlertStatus, limit, offset int) ([]FraudAlert, int64, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]FraudAlert, int64, error)

	// UpdateStatus transitions the alert lifecycle state
	UpdateStatus(ctx context.Context, id uuid.UUID, status AlertStatus, adminID *uuid.UUID, notes string) (*FraudAlert, error)
}
