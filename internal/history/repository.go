package history

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository handles database operations for fraud history
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new history repository
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Insert appends one entry
func (r *Repository) Insert(ctx context.Context, entry *Entry) (*Entry, error) {
	err := r.db.QueryRow(ctx, `
		INSERT INTO fraud_history (
			user_id, action_type, severity, performed_by, performed_by_id,
			reason, previous_state, new_state, score_at_action,
			alert_id, restriction_id, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		RETURNING id, created_at`,
		entry.UserID, entry.ActionType, entry.Severity, entry.PerformedBy, entry.PerformedByID,
		entry.Reason, entry.PreviousState, entry.NewState, entry.ScoreAtAction,
		entry.AlertID, entry.RestrictionID,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert history entry: %w", err)
	}
	return entry, nil
}

// ListByUser returns a user's entries, newest first
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Entry, int64, error) {
	var total int64
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM fraud_history WHERE user_id = $1`, userID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count history entries: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, action_type, severity, performed_by, performed_by_id,
		       reason, previous_state, new_state, score_at_action,
		       alert_id, restriction_id, created_at
		FROM fraud_history
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list history entries: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID, &e.UserID, &e.ActionType, &e.Severity, &e.PerformedBy, &e.PerformedByID,
			&e.Reason, &e.PreviousState, &e.NewState, &e.ScoreAtAction,
			&e.AlertID, &e.RestrictionID, &e.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read history entries: %w", err)
	}
	return entries, total, nil
}

// GetUserSummary aggregates a user's record in one query. The rehabilitation
// check compares the latest lift against the latest suspension.
func (r *Repository) GetUserSummary(ctx context.Context, userID uuid.UUID) (*UserSummary, error) {
	summary := &UserSummary{UserID: userID}

	err := r.db.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE action_type = $2),
			COUNT(*) FILTER (WHERE action_type = $3),
			COUNT(*) FILTER (WHERE action_type = $4),
			COUNT(*) FILTER (WHERE action_type = $5),
			MAX(created_at),
			COALESCE(
				MAX(created_at) FILTER (WHERE action_type = $5) >
				MAX(created_at) FILTER (WHERE action_type = $2),
				FALSE
			)
		FROM fraud_history
		WHERE user_id = $1`,
		userID, ActionSuspension, ActionBan, ActionWarning, ActionLift,
	).Scan(
		&summary.TotalEntries, &summary.Suspensions, &summary.Bans,
		&summary.Warnings, &summary.Lifts, &summary.LastActionAt,
		&summary.HasBeenRehabbed,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate user history: %w", err)
	}

	summary.IsRepeatOffender = summary.Suspensions+summary.Bans >= 2
	return summary, nil
}
