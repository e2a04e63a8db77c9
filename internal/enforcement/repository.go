package enforcement

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository handles database operations for enforcement
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new enforcement repository
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Policy settings live in a single-row table keyed by a constant.

// GetPolicySettings returns the stored policy, or nil when none exists
func (r *Repository) GetPolicySettings(ctx context.Context) (*PolicySettings, error) {
	var settings PolicySettings
	err := r.db.QueryRow(ctx, `
		SELECT auto_suspend_enabled, auto_suspend_threshold, updated_at, updated_by
		FROM fraud_policy_settings
		WHERE id = 1`,
	).Scan(&settings.AutoSuspendEnabled, &settings.AutoSuspendThreshold, &settings.UpdatedAt, &settings.UpdatedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get policy settings: %w", err)
	}
	return &settings, nil
}

// UpsertPolicySettings stores the policy, creating the row on first write
func (r *Repository) UpsertPolicySettings(ctx context.Context, settings *PolicySettings) (*PolicySettings, error) {
	err := r.db.QueryRow(ctx, `
		INSERT INTO fraud_policy_settings (id, auto_suspend_enabled, auto_suspend_threshold, updated_at, updated_by)
		VALUES (1, $1, $2, NOW(), $3)
		ON CONFLICT (id) DO UPDATE SET
			auto_suspend_enabled = EXCLUDED.auto_suspend_enabled,
			auto_suspend_threshold = EXCLUDED.auto_suspend_threshold,
			updated_at = NOW(),
			updated_by = EXCLUDED.updated_by
		RETURNING auto_suspend_enabled, auto_suspend_threshold, updated_at, updated_by`,
		settings.AutoSuspendEnabled, settings.AutoSuspendThreshold, settings.UpdatedBy,
	).Scan(&settings.AutoSuspendEnabled, &settings.AutoSuspendThreshold, &settings.UpdatedAt, &settings.UpdatedBy)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert policy settings: %w", err)
	}
	return settings, nil
}

const restrictionColumns = `
	id, user_id, restriction_type, reason,
	can_trade, can_deposit, can_withdraw, can_join_competitions,
	is_active, expires_at, created_by, created_by_id, created_at,
	lifted_at, lifted_by`

// ClaimRestriction inserts the restriction. A partial unique index on
// user_id for active rows makes concurrent claims collide; the loser's
// insert returns no row and the claim reports false.
func (r *Repository) ClaimRestriction(ctx context.Context, restriction *UserRestriction) (bool, error) {
	if restriction.ID == uuid.Nil {
		restriction.ID = uuid.New()
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO user_restrictions (
			id, user_id, restriction_type, reason,
			can_trade, can_deposit, can_withdraw, can_join_competitions,
			is_active, expires_at, created_by, created_by_id, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, $9, $10, $11, NOW())
		ON CONFLICT (user_id) WHERE is_active DO NOTHING
		RETURNING `+restrictionColumns,
		restriction.ID, restriction.UserID, restriction.Type, restriction.Reason,
		restriction.CanTrade, restriction.CanDeposit, restriction.CanWithdraw, restriction.CanJoinCompetitions,
		restriction.ExpiresAt, restriction.CreatedBy, restriction.CreatedByID,
	)

	claimed, err := scanRestriction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to claim restriction: %w", err)
	}
	*restriction = *claimed
	return true, nil
}

// GetActiveRestriction returns the user's active restriction, or nil
func (r *Repository) GetActiveRestriction(ctx context.Context, userID uuid.UUID) (*UserRestriction, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+restrictionColumns+`
		FROM user_restrictions
		WHERE user_id = $1 AND is_active`,
		userID,
	)
	restriction, err := scanRestriction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active restriction: %w", err)
	}
	return restriction, nil
}

// ListActiveRestrictions returns active restrictions, newest first
func (r *Repository) ListActiveRestrictions(ctx context.Context, limit, offset int) ([]UserRestriction, int64, error) {
	var total int64
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM user_restrictions WHERE is_active`,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count active restrictions: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+restrictionColumns+`
		FROM user_restrictions
		WHERE is_active
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list active restrictions: %w", err)
	}
	defer rows.Close()

	restrictions := make([]UserRestriction, 0, limit)
	for rows.Next() {
		restriction, err := scanRestriction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan restriction: %w", err)
		}
		restrictions = append(restrictions, *restriction)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read restrictions: %w", err)
	}
	return restrictions, total, nil
}

// LiftRestriction deactivates a restriction. Returns pgx.ErrNoRows when the
// restriction does not exist or was already lifted.
func (r *Repository) LiftRestriction(ctx context.Context, restrictionID, adminID uuid.UUID) (*UserRestriction, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE user_restrictions
		SET is_active = FALSE, lifted_at = NOW(), lifted_by = $2
		WHERE id = $1 AND is_active
		RETURNING `+restrictionColumns,
		restrictionID, adminID,
	)
	restriction, err := scanRestriction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("failed to lift restriction: %w", err)
	}
	return restriction, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRestriction(row rowScanner) (*UserRestriction, error) {
	var restriction UserRestriction
	err := row.Scan(
		&restriction.ID, &restriction.UserID, &restriction.Type, &restriction.Reason,
		&restriction.CanTrade, &restriction.CanDeposit, &restriction.CanWithdraw, &restriction.CanJoinCompetitions,
		&restriction.IsActive, &restriction.ExpiresAt,
		&restriction.CreatedBy, &restriction.CreatedByID, &restriction.CreatedAt,
		&restriction.LiftedAt, &restriction.LiftedBy,
	)
	if err != nil {
		return nil, err
	}
	return &restriction, nil
}
