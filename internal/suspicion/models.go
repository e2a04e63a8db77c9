package suspicion

import (
	"time"

	"github.com/google/uuid"
)

// RiskLevel represents the discrete risk tier derived from the total score
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Tier thresholds. The tier is a pure function of the capped total score:
// low <30, medium [30,50), high [50,70), critical >=70.
const (
	mediumThreshold   = 30
	highThreshold     = 50
	criticalThreshold = 70
)

// RiskLevelForScore maps a capped total score to its tier
func RiskLevelForScore(score float64) RiskLevel {
	switch {
	case score >= criticalThreshold:
		return RiskCritical
	case score >= highThreshold:
		return RiskHigh
	case score >= mediumThreshold:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Rank orders tiers so transitions can be compared
func (l RiskLevel) Rank() int {
	switch l {
	case RiskCritical:
		return 3
	case RiskHigh:
		return 2
	case RiskMedium:
		return 1
	default:
		return 0
	}
}

// Valid reports whether the level is one of the known tiers
func (l RiskLevel) Valid() bool {
	switch l {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	}
	return false
}

// ScoreMethod names a detection method contributing to the score
type ScoreMethod string

const (
	MethodDeviceMatch       ScoreMethod = "deviceMatch"
	MethodIPMatch           ScoreMethod = "ipMatch"
	MethodIPBrowserMatch    ScoreMethod = "ipBrowserMatch"
	MethodSameCity          ScoreMethod = "sameCity"
	MethodSamePayment       ScoreMethod = "samePayment"
	MethodRapidCreation     ScoreMethod = "rapidCreation"
	MethodCoordinatedEntry  ScoreMethod = "coordinatedEntry"
	MethodTradingSimilarity ScoreMethod = "tradingSimilarity"
	MethodMirrorTrading     ScoreMethod = "mirrorTrading"
	MethodTimezoneLanguage  ScoreMethod = "timezoneLanguage"
	MethodDeviceSwitching   ScoreMethod = "deviceSwitching"
)

// methodWeights is the fixed contribution catalogue. Changing a weight
// changes historical score parity, so additions only.
var methodWeights = map[ScoreMethod]float64{
	MethodDeviceMatch:       40,
	MethodIPMatch:           30,
	MethodIPBrowserMatch:    35,
	MethodSameCity:          15,
	MethodSamePayment:       30,
	MethodRapidCreation:     20,
	MethodCoordinatedEntry:  25,
	MethodTradingSimilarity: 30,
	MethodMirrorTrading:     35,
	MethodTimezoneLanguage:  10,
	MethodDeviceSwitching:   15,
}

// WeightFor returns the catalogue weight for a method, 0 if unknown
func WeightFor(method ScoreMethod) float64 {
	return methodWeights[method]
}

// MaxScore caps the composite score
const MaxScore = 100

// SuspicionScore is the composite risk record for one user
type SuspicionScore struct {
	UserID uuid.UUID `json:"user_id" db:"user_id"`

	// TotalScore is capped at MaxScore; RawScore keeps the uncapped running sum
	TotalScore float64   `json:"total_score" db:"total_score"`
	RawScore   float64   `json:"-" db:"raw_score"`
	RiskLevel  RiskLevel `json:"risk_level" db:"risk_level"`

	ScoreBreakdown map[ScoreMethod]float64 `json:"score_breakdown"`
	LinkedAccounts []LinkedAccount         `json:"linked_accounts"`

	AutoRestrictedAt      *time.Time `json:"auto_restricted_at,omitempty" db:"auto_restricted_at"`
	AutoRestrictionReason *string    `json:"auto_restriction_reason,omitempty" db:"auto_restriction_reason"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// LinkedAccount is a back-reference to another account implicated by the
// same evidence. Links are stored symmetrically for both users.
type LinkedAccount struct {
	UserID       uuid.UUID   `json:"-" db:"user_id"`
	LinkedUserID uuid.UUID   `json:"user_id" db:"linked_user_id"`
	Method       ScoreMethod `json:"method" db:"method"`
	Confidence   float64     `json:"confidence" db:"confidence"`
	LinkedAt     time.Time   `json:"linked_at" db:"linked_at"`
}

// ScoreEvent is one applied contribution, kept append-only per user
type ScoreEvent struct {
	ID         int64       `json:"id" db:"id"`
	UserID     uuid.UUID   `json:"user_id" db:"user_id"`
	Method     ScoreMethod `json:"method" db:"method"`
	Percentage float64     `json:"percentage" db:"percentage"`
	Evidence   string      `json:"evidence" db:"evidence"`
	CreatedAt  time.Time   `json:"created_at" db:"created_at"`
}

// ScoreUpdate is one contribution to apply to a user's score
type ScoreUpdate struct {
	Method        ScoreMethod `json:"method"`
	Percentage    float64     `json:"percentage"`
	Evidence      string      `json:"evidence"`
	LinkedUserIDs []uuid.UUID `json:"linked_user_ids,omitempty"`
	Confidence    float64     `json:"confidence,omitempty"`
}

// ContributionResult reports the atomic before/after state of one applied
// contribution, so the caller can detect tier transitions without a second read.
type ContributionResult struct {
	RawBefore      float64
	RawAfter       float64
	TotalScore     float64
	AutoRestricted bool
}

// PreviousLevel derives the tier in effect before the contribution
func (r *ContributionResult) PreviousLevel() RiskLevel {
	before := r.RawBefore
	if before > MaxScore {
		before = MaxScore
	}
	return RiskLevelForScore(before)
}

// NewLevel derives the tier in effect after the contribution
func (r *ContributionResult) NewLevel() RiskLevel {
	return RiskLevelForScore(r.TotalScore)
}
