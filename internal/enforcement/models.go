package enforcement

import (
	"time"

	"github.com/google/uuid"
)

// ReasonAutomated is the reason recorded on automated restrictions
const ReasonAutomated = "automated_fraud_detection"

// DefaultAutoSuspendThreshold applies when settings exist but carry no
// explicit threshold
const DefaultAutoSuspendThreshold = 70

// PolicySettings controls automated enforcement. Absent settings mean
// enforcement is off: scores accumulate and alerts fire, but nobody gets
// restricted until an operator turns it on.
type PolicySettings struct {
	AutoSuspendEnabled   bool    `json:"auto_suspend_enabled" db:"auto_suspend_enabled"`
	AutoSuspendThreshold float64 `json:"auto_suspend_threshold" db:"auto_suspend_threshold"`

	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	UpdatedBy *uuid.UUID `json:"updated_by,omitempty" db:"updated_by"`
}

// DefaultPolicySettings returns the safe-by-default policy
func DefaultPolicySettings() *PolicySettings {
	return &PolicySettings{
		AutoSuspendEnabled:   false,
		AutoSuspendThreshold: DefaultAutoSuspendThreshold,
	}
}

// RestrictionType names the kind of restriction applied to an account
type RestrictionType string

const (
	RestrictionSuspended RestrictionType = "suspended"
	RestrictionBanned    RestrictionType = "banned"
	RestrictionWarning   RestrictionType = "warning"
)

// Valid reports whether the type is known
func (t RestrictionType) Valid() bool {
	switch t {
	case RestrictionSuspended, RestrictionBanned, RestrictionWarning:
		return true
	}
	return false
}

// UserRestriction is one restriction applied to an account. A user has at
// most one active restriction at a time; lifted restrictions stay as rows.
type UserRestriction struct {
	ID     uuid.UUID       `json:"id" db:"id"`
	UserID uuid.UUID       `json:"user_id" db:"user_id"`
	Type   RestrictionType `json:"type" db:"restriction_type"`
	Reason string          `json:"reason" db:"reason"`

	CanTrade            bool `json:"can_trade" db:"can_trade"`
	CanDeposit          bool `json:"can_deposit" db:"can_deposit"`
	CanWithdraw         bool `json:"can_withdraw" db:"can_withdraw"`
	CanJoinCompetitions bool `json:"can_join_competitions" db:"can_join_competitions"`

	IsActive  bool       `json:"is_active" db:"is_active"`
	ExpiresAt *time.Time `json:"expires_at,omitempty" db:"expires_at"`

	CreatedBy   string     `json:"created_by" db:"created_by"`
	CreatedByID *uuid.UUID `json:"created_by_id,omitempty" db:"created_by_id"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`

	LiftedAt *time.Time `json:"lifted_at,omitempty" db:"lifted_at"`
	LiftedBy *uuid.UUID `json:"lifted_by,omitempty" db:"lifted_by"`
}

// Expired reports whether a still-active restriction has passed its expiry
func (r *UserRestriction) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}
