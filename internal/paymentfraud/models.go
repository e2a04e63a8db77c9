package paymentfraud

import (
	"time"

	"github.com/google/uuid"
)

// PaymentFingerprint is one user's usage record of one payment instrument.
// The same instrument used by several users yields one row per user, all
// flagged shared once a second owner appears.
type PaymentFingerprint struct {
	ID              uuid.UUID `json:"id" db:"id"`
	UserID          uuid.UUID `json:"user_id" db:"user_id"`
	Provider        string    `json:"provider" db:"provider"`
	FingerprintHash string    `json:"fingerprint_hash" db:"fingerprint_hash"`

	CardLast4   string `json:"card_last4,omitempty" db:"card_last4"`
	CardBrand   string `json:"card_brand,omitempty" db:"card_brand"`
	CardCountry string `json:"card_country,omitempty" db:"card_country"`

	IsShared  bool    `json:"is_shared" db:"is_shared"`
	RiskScore float64 `json:"risk_score" db:"risk_score"`
	TimesUsed int64   `json:"times_used" db:"times_used"`

	// LinkedUserIDs lists the other owners of the same instrument.
	// Computed on read, not stored.
	LinkedUserIDs []uuid.UUID `json:"linked_user_ids,omitempty"`

	FirstUsedAt time.Time `json:"first_used_at" db:"first_used_at"`
	LastUsedAt  time.Time `json:"last_used_at" db:"last_used_at"`
}

// TrackInput is one payment-gateway event to record. Amount and currency
// are carried for the audit log only; the gateway has already verified the
// event signature.
type TrackInput struct {
	UserID          uuid.UUID `json:"user_id" binding:"required"`
	Provider        string    `json:"provider" binding:"required"`
	FingerprintHash string    `json:"fingerprint_hash" binding:"required"`
	CardLast4       string    `json:"card_last4"`
	CardBrand       string    `json:"card_brand"`
	CardCountry     string    `json:"card_country"`
	Amount          float64   `json:"amount"`
	Currency        string    `json:"currency"`
}

// TrackResult reports what one track call found
type TrackResult struct {
	Fingerprint       *PaymentFingerprint `json:"fingerprint"`
	SharingDetected   bool                `json:"sharing_detected"`
	ImplicatedUserIDs []uuid.UUID         `json:"implicated_user_ids,omitempty"`
}

// SharedInstrument is one instrument used by multiple accounts
type SharedInstrument struct {
	Provider        string      `json:"provider"`
	FingerprintHash string      `json:"fingerprint_hash"`
	CardLast4       string      `json:"card_last4,omitempty"`
	CardBrand       string      `json:"card_brand,omitempty"`
	UserIDs         []uuid.UUID `json:"user_ids"`
	FirstUsedAt     time.Time   `json:"first_used_at"`
	LastUsedAt      time.Time   `json:"last_used_at"`
}
