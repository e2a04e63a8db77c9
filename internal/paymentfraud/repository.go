package paymentfraud

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository handles database operations for payment fingerprints
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new payment fingerprint repository
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const fingerprintColumns = `
	id, user_id, provider, fingerprint_hash, card_last4, card_brand,
	card_country, is_shared, risk_score, times_used, first_used_at, last_used_at`

// UpsertUsage records one use. The unique key (user_id, provider,
// fingerprint_hash) makes concurrent first uses collapse into one row, and
// times_used tells first use from repeats.
func (r *Repository) UpsertUsage(ctx context.Context, input TrackInput) (*PaymentFingerprint, bool, error) {
	var fp PaymentFingerprint
	err := r.db.QueryRow(ctx, `
		INSERT INTO payment_fingerprints (
			id, user_id, provider, fingerprint_hash, card_last4, card_brand,
			card_country, is_shared, risk_score, times_used, first_used_at, last_used_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, 0, 1, NOW(), NOW())
		ON CONFLICT (user_id, provider, fingerprint_hash) DO UPDATE SET
			times_used = payment_fingerprints.times_used + 1,
			last_used_at = NOW()
		RETURNING `+fingerprintColumns,
		uuid.New(), input.UserID, input.Provider, input.FingerprintHash,
		input.CardLast4, input.CardBrand, input.CardCountry,
	).Scan(
		&fp.ID, &fp.UserID, &fp.Provider, &fp.FingerprintHash,
		&fp.CardLast4, &fp.CardBrand, &fp.CardCountry,
		&fp.IsShared, &fp.RiskScore, &fp.TimesUsed, &fp.FirstUsedAt, &fp.LastUsedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert payment fingerprint: %w", err)
	}
	return &fp, fp.TimesUsed == 1, nil
}

// GetOwners returns the distinct users who used the instrument
func (r *Repository) GetOwners(ctx context.Context, provider, fingerprintHash string) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT user_id
		FROM payment_fingerprints
		WHERE provider = $1 AND fingerprint_hash = $2
		ORDER BY user_id`,
		provider, fingerprintHash,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get fingerprint owners: %w", err)
	}
	defer rows.Close()

	owners := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan fingerprint owner: %w", err)
		}
		owners = append(owners, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read fingerprint owners: %w", err)
	}
	return owners, nil
}

// MarkShared flags every row of the instrument. The risk score only ever
// goes up as more owners appear.
func (r *Repository) MarkShared(ctx context.Context, provider, fingerprintHash string, riskScore float64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE payment_fingerprints
		SET is_shared = TRUE, risk_score = GREATEST(risk_score, $3)
		WHERE provider = $1 AND fingerprint_hash = $2`,
		provider, fingerprintHash, riskScore,
	)
	if err != nil {
		return fmt.Errorf("failed to mark fingerprint shared: %w", err)
	}
	return nil
}

// GetUserFingerprints returns a user's instruments with the other owners
// of any shared ones
func (r *Repository) GetUserFingerprints(ctx context.Context, userID uuid.UUID) ([]PaymentFingerprint, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+fingerprintColumns+`,
		       COALESCE(
		           (SELECT array_agg(DISTINCT o.user_id)
		            FROM payment_fingerprints o
		            WHERE o.provider = payment_fingerprints.provider
		              AND o.fingerprint_hash = payment_fingerprints.fingerprint_hash
		              AND o.user_id <> payment_fingerprints.user_id),
		           '{}'
		       ) AS linked_user_ids
		FROM payment_fingerprints
		WHERE user_id = $1
		ORDER BY last_used_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get user fingerprints: %w", err)
	}
	defer rows.Close()

	fingerprints := make([]PaymentFingerprint, 0)
	for rows.Next() {
		var fp PaymentFingerprint
		if err := rows.Scan(
			&fp.ID, &fp.UserID, &fp.Provider, &fp.FingerprintHash,
			&fp.CardLast4, &fp.CardBrand, &fp.CardCountry,
			&fp.IsShared, &fp.RiskScore, &fp.TimesUsed, &fp.FirstUsedAt, &fp.LastUsedAt,
			&fp.LinkedUserIDs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan fingerprint: %w", err)
		}
		fingerprints = append(fingerprints, fp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read fingerprints: %w", err)
	}
	return fingerprints, nil
}

// HasSharedPayments reports whether any of the user's instruments is shared
func (r *Repository) HasSharedPayments(ctx context.Context, userID uuid.UUID) (bool, error) {
	var shared bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM payment_fingerprints
			WHERE user_id = $1 AND is_shared
		)`,
		userID,
	).Scan(&shared)
	if err != nil {
		return false, fmt.Errorf("failed to check shared payments: %w", err)
	}
	return shared, nil
}

// ListSharedInstruments returns instruments used by multiple accounts,
// most recently used first
func (r *Repository) ListSharedInstruments(ctx context.Context, limit, offset int) ([]SharedInstrument, int64, error) {
	var total int64
	if err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM (
			SELECT 1 FROM payment_fingerprints
			WHERE is_shared
			GROUP BY provider, fingerprint_hash
		) shared`,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count shared instruments: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT provider, fingerprint_hash,
		       MAX(card_last4), MAX(card_brand),
		       array_agg(DISTINCT user_id),
		       MIN(first_used_at), MAX(last_used_at)
		FROM payment_fingerprints
		WHERE is_shared
		GROUP BY provider, fingerprint_hash
		ORDER BY MAX(last_used_at) DESC
		LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list shared instruments: %w", err)
	}
	defer rows.Close()

	instruments := make([]SharedInstrument, 0, limit)
	for rows.Next() {
		var inst SharedInstrument
		if err := rows.Scan(
			&inst.Provider, &inst.FingerprintHash,
			&inst.CardLast4, &inst.CardBrand,
			&inst.UserIDs, &inst.FirstUsedAt, &inst.LastUsedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan shared instrument: %w", err)
		}
		instruments = append(instruments, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read shared instruments: %w", err)
	}
	return instruments, total, nil
}
