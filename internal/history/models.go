package history

import (
	"time"

	"github.com/google/uuid"
)

// ActionType names the kind of fraud action recorded
type ActionType string

const (
	ActionSuspension    ActionType = "suspension"
	ActionBan           ActionType = "ban"
	ActionWarning       ActionType = "warning"
	ActionLift          ActionType = "lift"
	ActionScoreReset    ActionType = "score_reset"
	ActionAlertResolved ActionType = "alert_resolved"
	ActionPolicyChange  ActionType = "policy_change"
)

// ActorAutomated marks entries written by the detection pipeline itself
const ActorAutomated = "automated"

// ActorAdmin marks entries written by an administrator
const ActorAdmin = "admin"

// Entry is one append-only fraud action record. Entries are never updated
// or deleted; lifts are recorded as their own entries.
type Entry struct {
	ID         int64      `json:"id" db:"id"`
	UserID     uuid.UUID  `json:"user_id" db:"user_id"`
	ActionType ActionType `json:"action_type" db:"action_type"`
	Severity   string     `json:"severity,omitempty" db:"severity"`

	PerformedBy   string     `json:"performed_by" db:"performed_by"`
	PerformedByID *uuid.UUID `json:"performed_by_id,omitempty" db:"performed_by_id"`

	Reason        string  `json:"reason" db:"reason"`
	PreviousState string  `json:"previous_state,omitempty" db:"previous_state"`
	NewState      string  `json:"new_state,omitempty" db:"new_state"`
	ScoreAtAction float64 `json:"score_at_action,omitempty" db:"score_at_action"`

	AlertID       *uuid.UUID `json:"alert_id,omitempty" db:"alert_id"`
	RestrictionID *uuid.UUID `json:"restriction_id,omitempty" db:"restriction_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// UserSummary aggregates one user's fraud record
type UserSummary struct {
	UserID       uuid.UUID  `json:"user_id"`
	TotalEntries int64      `json:"total_entries"`
	Suspensions  int64      `json:"suspensions"`
	Bans         int64      `json:"bans"`
	Warnings     int64      `json:"warnings"`
	Lifts        int64      `json:"lifts"`
	LastActionAt *time.Time `json:"last_action_at,omitempty"`

	// IsRepeatOffender means at least two suspensions or bans combined.
	IsRepeatOffender bool `json:"is_repeat_offender"`
	// HasBeenRehabbed means a lift was recorded after a suspension.
	HasBeenRehabbed bool `json:"has_been_rehabbed"`
}
