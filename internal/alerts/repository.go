package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository handles database operations for fraud alerts
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new alerts repository
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const alertColumns = `
	id, alert_type, user_ids, user_set_key, title, description,
	severity, confidence, status, evidence, resolved_at, resolved_by,
	notes, created_at, updated_at`

// CreateOrMerge inserts a new alert or merges the detection into an existing
// unresolved alert with an overlapping user set. The overlap lookup locks the
// candidate row; the insert path relies on a partial unique index over
// (alert_type, user_set_key) for unresolved alerts, so two concurrent
// detections for the same set produce exactly one alert.
func (r *Repository) CreateOrMerge(ctx context.Context, input CreateAlertInput) (*FraudAlert, bool, error) {
	// The conflict loser retries and finds the winner's row on the next pass.
	for attempt := 0; attempt < 3; attempt++ {
		alert, merged, err := r.tryCreateOrMerge(ctx, input)
		if err != nil {
			return nil, false, err
		}
		if alert != nil {
			return alert, merged, nil
		}
	}
	return nil, false, fmt.Errorf("alert upsert did not converge for type %s", input.AlertType)
}

func (r *Repository) tryCreateOrMerge(ctx context.Context, input CreateAlertInput) (*FraudAlert, bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	existing, err := r.lockOverlapping(ctx, tx, input.AlertType, input.UserIDs)
	if err != nil {
		return nil, false, err
	}

	if existing != nil {
		merged, err := r.mergeInto(ctx, tx, existing, input)
		if err != nil {
			return nil, false, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, false, fmt.Errorf("failed to commit alert merge: %w", err)
		}
		return merged, true, nil
	}

	created, err := r.insertNew(ctx, tx, input)
	if err != nil {
		return nil, false, err
	}
	if created == nil {
		// Lost the insert race; the caller retries the overlap lookup.
		return nil, false, tx.Rollback(ctx)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to commit alert: %w", err)
	}
	return created, false, nil
}

func (r *Repository) lockOverlapping(ctx context.Context, tx pgx.Tx, alertType AlertType, userIDs []uuid.UUID) (*FraudAlert, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+alertColumns+`
		FROM fraud_alerts
		WHERE alert_type = $1
		  AND status IN ($2, $3)
		  AND user_ids && $4
		ORDER BY created_at
		LIMIT 1
		FOR UPDATE`,
		alertType, StatusOpen, StatusInvestigating, userIDs,
	)
	alert, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find overlapping alert: %w", err)
	}
	return alert, nil
}

func (r *Repository) mergeInto(ctx context.Context, tx pgx.Tx, existing *FraudAlert, input CreateAlertInput) (*FraudAlert, error) {
	users := UnionUsers(existing.UserIDs, input.UserIDs)
	evidence := append(existing.Evidence, input.Evidence...)
	severity := MaxSeverity(existing.Severity, input.Severity)
	confidence := existing.Confidence
	if input.Confidence > confidence {
		confidence = input.Confidence
	}

	evidenceJSON, err := json.Marshal(evidence)
	if err != nil {
		return nil, fmt.Errorf("failed to encode alert evidence: %w", err)
	}

	row := tx.QueryRow(ctx, `
		UPDATE fraud_alerts
		SET user_ids = $2, user_set_key = $3, severity = $4, confidence = $5,
		    evidence = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING `+alertColumns,
		existing.ID, users, CanonicalUserSetKey(users), severity, confidence, evidenceJSON,
	)
	merged, err := scanAlert(row)
	if err != nil {
		return nil, fmt.Errorf("failed to merge alert: %w", err)
	}
	return merged, nil
}

func (r *Repository) insertNew(ctx context.Context, tx pgx.Tx, input CreateAlertInput) (*FraudAlert, error) {
	evidenceJSON, err := json.Marshal(input.Evidence)
	if err != nil {
		return nil, fmt.Errorf("failed to encode alert evidence: %w", err)
	}

	status := input.InitialStatus
	if status == "" {
		status = StatusOpen
	}

	users := UnionUsers(input.UserIDs, nil)
	row := tx.QueryRow(ctx, `
		INSERT INTO fraud_alerts (
			id, alert_type, user_ids, user_set_key, title, description,
			severity, confidence, status, evidence, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		ON CONFLICT (alert_type, user_set_key) WHERE status IN ('open', 'investigating')
		DO NOTHING
		RETURNING `+alertColumns,
		uuid.New(), input.AlertType, users, CanonicalUserSetKey(users),
		input.Title, input.Description, input.Severity, input.Confidence,
		status, evidenceJSON,
	)
	alert, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to insert alert: %w", err)
	}
	return alert, nil
}

// GetByID returns one alert. Returns pgx.ErrNoRows when absent.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*FraudAlert, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+alertColumns+` FROM fraud_alerts WHERE id = $1`, id)
	alert, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return alert, nil
}

// List returns alerts newest first, optionally filtered by status
func (r *Repository) List(ctx context.Context, status AlertStatus, limit, offset int) ([]FraudAlert, int64, error) {
	filter := ``
	args := []interface{}{limit, offset}
	if status != "" {
		filter = `WHERE status = $3`
		args = append(args, status)
	}

	var total int64
	countArgs := args[2:]
	countFilter := filter
	if countFilter != "" {
		countFilter = `WHERE status = $1`
	}
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM fraud_alerts `+countFilter, countArgs...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count alerts: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+alertColumns+`
		FROM fraud_alerts `+filter+`
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`,
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	return collectAlerts(rows, total)
}

// ListByUser returns alerts implicating one user, newest first
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]FraudAlert, int64, error) {
	var total int64
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM fraud_alerts WHERE $1 = ANY(user_ids)`, userID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count user alerts: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+alertColumns+`
		FROM fraud_alerts
		WHERE $1 = ANY(user_ids)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list user alerts: %w", err)
	}
	defer rows.Close()

	return collectAlerts(rows, total)
}

// UpdateStatus transitions the alert lifecycle state. Terminal transitions
// stamp resolved_at/resolved_by.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status AlertStatus, adminID *uuid.UUID, notes string) (*FraudAlert, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE fraud_alerts
		SET status = $2,
		    resolved_at = CASE WHEN $3 THEN NOW() ELSE resolved_at END,
		    resolved_by = CASE WHEN $3 THEN $4 ELSE resolved_by END,
		    notes = CASE WHEN $5 <> '' THEN $5 ELSE notes END,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING `+alertColumns,
		id, status, status.Terminal(), adminID, notes,
	)
	alert, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("failed to update alert status: %w", err)
	}
	return alert, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row rowScanner) (*FraudAlert, error) {
	var (
		alert        FraudAlert
		evidenceJSON []byte
	)
	err := row.Scan(
		&alert.ID, &alert.AlertType, &alert.UserIDs, &alert.UserSetKey,
		&alert.Title, &alert.Description, &alert.Severity, &alert.Confidence,
		&alert.Status, &evidenceJSON, &alert.ResolvedAt, &alert.ResolvedBy,
		&alert.Notes, &alert.CreatedAt, &alert.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(evidenceJSON) > 0 {
		if err := json.Unmarshal(evidenceJSON, &alert.Evidence); err != nil {
			return nil, fmt.Errorf("failed to decode alert evidence: %w", err)
		}
	}
	return &alert, nil
}

func collectAlerts(rows pgx.Rows, total int64) ([]FraudAlert, int64, error) {
	alerts := make([]FraudAlert, 0)
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, *alert)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read alerts: %w", err)
	}
	return alerts, total, nil
}
