package suspicion

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository handles database operations for suspicion scores
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new suspicion repository
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// ApplyContribution adds one contribution inside a single transaction. The
// raw-sum increment happens in the upsert itself, so concurrent contributions
// for the same user never lose an addition, and the RETURNING clause gives
// the caller an exact before/after pair for tier-transition detection.
func (r *Repository) ApplyContribution(ctx context.Context, userID uuid.UUID, update ScoreUpdate) (*ContributionResult, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		rawAfter   float64
		restricted bool
	)
	err = tx.QueryRow(ctx, `
		INSERT INTO suspicion_scores (user_id, raw_score, total_score, risk_level, created_at, updated_at)
		VALUES ($1, $2, LEAST($3, $2), $4, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			raw_score = suspicion_scores.raw_score + EXCLUDED.raw_score,
			updated_at = NOW()
		RETURNING raw_score, auto_restricted_at IS NOT NULL`,
		userID, update.Percentage, float64(MaxScore), RiskLevelForScore(update.Percentage),
	).Scan(&rawAfter, &restricted)
	if err != nil {
		return nil, fmt.Errorf("failed to apply score contribution: %w", err)
	}

	total := rawAfter
	if total > MaxScore {
		total = MaxScore
	}

	_, err = tx.Exec(ctx, `
		UPDATE suspicion_scores
		SET total_score = $2, risk_level = $3, updated_at = NOW()
		WHERE user_id = $1`,
		userID, total, RiskLevelForScore(total),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update derived score fields: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO suspicion_breakdown (user_id, method, percentage, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, method) DO UPDATE SET
			percentage = suspicion_breakdown.percentage + EXCLUDED.percentage,
			updated_at = NOW()`,
		userID, update.Method, update.Percentage,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update score breakdown: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO suspicion_events (user_id, method, percentage, evidence, created_at)
		VALUES ($1, $2, $3, $4, NOW())`,
		userID, update.Method, update.Percentage, update.Evidence,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record score event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit score contribution: %w", err)
	}

	return &ContributionResult{
		RawBefore:      rawAfter - update.Percentage,
		RawAfter:       rawAfter,
		TotalScore:     total,
		AutoRestricted: restricted,
	}, nil
}

// LinkAccounts inserts the link in both directions. The composite primary
// key makes duplicate and concurrent inserts no-ops.
func (r *Repository) LinkAccounts(ctx context.Context, userID, linkedUserID uuid.UUID, method ScoreMethod, confidence float64) error {
	if userID == linkedUserID {
		return nil
	}

	batch := &pgx.Batch{}
	const insertLink = `
		INSERT INTO linked_accounts (user_id, linked_user_id, method, confidence, linked_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_id, linked_user_id, method) DO NOTHING`
	batch.Queue(insertLink, userID, linkedUserID, method, confidence)
	batch.Queue(insertLink, linkedUserID, userID, method, confidence)

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < 2; i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to link accounts: %w", err)
		}
	}
	return nil
}

// GetScore returns the full score record with breakdown and linked accounts.
// Returns pgx.ErrNoRows when the user has no score yet.
func (r *Repository) GetScore(ctx context.Context, userID uuid.UUID) (*SuspicionScore, error) {
	score := &SuspicionScore{ScoreBreakdown: make(map[ScoreMethod]float64)}

	err := r.db.QueryRow(ctx, `
		SELECT user_id, raw_score, total_score, risk_level,
		       auto_restricted_at, auto_restriction_reason, created_at, updated_at
		FROM suspicion_scores
		WHERE user_id = $1`,
		userID,
	).Scan(
		&score.UserID, &score.RawScore, &score.TotalScore, &score.RiskLevel,
		&score.AutoRestrictedAt, &score.AutoRestrictionReason, &score.CreatedAt, &score.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get suspicion score: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT method, percentage
		FROM suspicion_breakdown
		WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get score breakdown: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			method ScoreMethod
			pct    float64
		)
		if err := rows.Scan(&method, &pct); err != nil {
			return nil, fmt.Errorf("failed to scan breakdown row: %w", err)
		}
		score.ScoreBreakdown[method] = pct
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read breakdown rows: %w", err)
	}

	links, err := r.getLinkedAccounts(ctx, userID)
	if err != nil {
		return nil, err
	}
	score.LinkedAccounts = links

	return score, nil
}

func (r *Repository) getLinkedAccounts(ctx context.Context, userID uuid.UUID) ([]LinkedAccount, error) {
	rows, err := r.db.Query(ctx, `
		SELECT user_id, linked_user_id, method, confidence, linked_at
		FROM linked_accounts
		WHERE user_id = $1
		ORDER BY linked_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get linked accounts: %w", err)
	}
	defer rows.Close()

	links := make([]LinkedAccount, 0)
	for rows.Next() {
		var link LinkedAccount
		if err := rows.Scan(&link.UserID, &link.LinkedUserID, &link.Method, &link.Confidence, &link.LinkedAt); err != nil {
			return nil, fmt.Errorf("failed to scan linked account: %w", err)
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read linked accounts: %w", err)
	}
	return links, nil
}

// GetScoreEvents returns the user's score history, newest first
func (r *Repository) GetScoreEvents(ctx context.Context, userID uuid.UUID, limit, offset int) ([]ScoreEvent, int64, error) {
	var total int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM suspicion_events WHERE user_id = $1`, userID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count score events: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, method, percentage, evidence, created_at
		FROM suspicion_events
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get score events: %w", err)
	}
	defer rows.Close()

	events := make([]ScoreEvent, 0, limit)
	for rows.Next() {
		var ev ScoreEvent
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.Method, &ev.Percentage, &ev.Evidence, &ev.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan score event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read score events: %w", err)
	}
	return events, total, nil
}

// GetHighRiskUsers returns users in the high and critical tiers, worst first
func (r *Repository) GetHighRiskUsers(ctx context.Context) ([]SuspicionScore, error) {
	return r.queryScores(ctx, `
		SELECT user_id, raw_score, total_score, risk_level,
		       auto_restricted_at, auto_restriction_reason, created_at, updated_at
		FROM suspicion_scores
		WHERE risk_level IN ($1, $2)
		ORDER BY total_score DESC`,
		RiskHigh, RiskCritical,
	)
}

// GetUsersByRiskLevel returns users in exactly one tier, worst first
func (r *Repository) GetUsersByRiskLevel(ctx context.Context, level RiskLevel) ([]SuspicionScore, error) {
	return r.queryScores(ctx, `
		SELECT user_id, raw_score, total_score, risk_level,
		       auto_restricted_at, auto_restriction_reason, created_at, updated_at
		FROM suspicion_scores
		WHERE risk_level = $1
		ORDER BY total_score DESC`,
		level,
	)
}

func (r *Repository) queryScores(ctx context.Context, query string, args ...interface{}) ([]SuspicionScore, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query suspicion scores: %w", err)
	}
	defer rows.Close()

	scores := make([]SuspicionScore, 0)
	for rows.Next() {
		var score SuspicionScore
		if err := rows.Scan(
			&score.UserID, &score.RawScore, &score.TotalScore, &score.RiskLevel,
			&score.AutoRestrictedAt, &score.AutoRestrictionReason, &score.CreatedAt, &score.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan suspicion score: %w", err)
		}
		scores = append(scores, score)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read suspicion scores: %w", err)
	}
	return scores, nil
}

// MarkAutoRestricted stamps the score record once automated enforcement fires
func (r *Repository) MarkAutoRestricted(ctx context.Context, userID uuid.UUID, reason string) error {
	// First stamp wins; a second enforcement pass leaves the original timestamp.
	_, err := r.db.Exec(ctx, `
		UPDATE suspicion_scores
		SET auto_restricted_at = NOW(), auto_restriction_reason = $2, updated_at = NOW()
		WHERE user_id = $1 AND auto_restricted_at IS NULL`,
		userID, reason,
	)
	if err != nil {
		return fmt.Errorf("failed to mark auto restriction: %w", err)
	}
	return nil
}

// ResetScore clears the score, breakdown and links for a user after an
// admin review. The event history stays for audit.
func (r *Repository) ResetScore(ctx context.Context, userID uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM suspicion_breakdown WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to clear score breakdown: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM linked_accounts WHERE user_id = $1 OR linked_user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to clear account links: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE suspicion_scores
		SET raw_score = 0, total_score = 0, risk_level = $2,
		    auto_restricted_at = NULL, auto_restriction_reason = NULL, updated_at = NOW()
		WHERE user_id = $1`,
		userID, RiskLow,
	); err != nil {
		return fmt.Errorf("failed to reset score: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit score reset: %w", err)
	}
	return nil
}
