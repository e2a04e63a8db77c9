package alerts

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AlertType names the detection category an alert belongs to
type AlertType string

const (
	AlertTypeMultiAccount       AlertType = "multi_account"
	AlertTypeSharedPayment      AlertType = "shared_payment"
	AlertTypeCoordinatedTrading AlertType = "coordinated_trading"
	AlertTypeAutoRestriction    AlertType = "auto_restriction"
)

// AlertStatus is the alert lifecycle state
type AlertStatus string

const (
	StatusOpen          AlertStatus = "open"
	StatusInvestigating AlertStatus = "investigating"
	StatusResolved      AlertStatus = "resolved"
	StatusDismissed     AlertStatus = "dismissed"
)

// Terminal reports whether the status accepts no further transitions
func (s AlertStatus) Terminal() bool {
	return s == StatusResolved || s == StatusDismissed
}

// Severity grades how urgent an alert is
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities so merges can keep the worst one
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// MaxSeverity returns the worse of two severities
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// EvidenceType discriminates the evidence payload variants
type EvidenceType string

const (
	EvidenceDevice         EvidenceType = "device"
	EvidenceNetwork        EvidenceType = "network"
	EvidencePayment        EvidenceType = "payment"
	EvidenceBehavior       EvidenceType = "behavior"
	EvidenceScoreBreakdown EvidenceType = "score_breakdown"
)

// Evidence is one piece of supporting material attached to an alert. Exactly
// one payload field matching Type is set.
type Evidence struct {
	Type       EvidenceType `json:"type"`
	RecordedAt time.Time    `json:"recorded_at"`

	Device         *DeviceEvidence         `json:"device,omitempty"`
	Network        *NetworkEvidence        `json:"network,omitempty"`
	Payment        *PaymentEvidence        `json:"payment,omitempty"`
	Behavior       *BehaviorEvidence       `json:"behavior,omitempty"`
	ScoreBreakdown *ScoreBreakdownEvidence `json:"score_breakdown,omitempty"`
}

// DeviceEvidence ties accounts to a shared device fingerprint
type DeviceEvidence struct {
	DeviceFingerprint string      `json:"device_fingerprint"`
	UserIDs           []uuid.UUID `json:"user_ids"`
}

// NetworkEvidence ties accounts to a shared network origin
type NetworkEvidence struct {
	IPAddress        string      `json:"ip_address"`
	BrowserSignature string      `json:"browser_signature,omitempty"`
	UserIDs          []uuid.UUID `json:"user_ids"`
}

// PaymentEvidence ties accounts to a shared payment instrument
type PaymentEvidence struct {
	Provider        string      `json:"provider"`
	FingerprintHash string      `json:"fingerprint_hash"`
	CardLast4       string      `json:"card_last4,omitempty"`
	CardBrand       string      `json:"card_brand,omitempty"`
	UserIDs         []uuid.UUID `json:"user_ids"`
}

// BehaviorEvidence describes a behavioral pattern match
type BehaviorEvidence struct {
	Description   string  `json:"description"`
	SimilarityPct float64 `json:"similarity_pct,omitempty"`
	WindowSeconds int64   `json:"window_seconds,omitempty"`
}

// ScoreBreakdownEvidence snapshots the suspicion score at alert time
type ScoreBreakdownEvidence struct {
	TotalScore float64            `json:"total_score"`
	Breakdown  map[string]float64 `json:"breakdown"`
}

// FraudAlert is one investigation unit covering a set of implicated users
type FraudAlert struct {
	ID         uuid.UUID   `json:"id" db:"id"`
	AlertType  AlertType   `json:"alert_type" db:"alert_type"`
	UserIDs    []uuid.UUID `json:"user_ids" db:"user_ids"`
	UserSetKey string      `json:"-" db:"user_set_key"`

	Title       string   `json:"title" db:"title"`
	Description string   `json:"description" db:"description"`
	Severity    Severity `json:"severity" db:"severity"`
	Confidence  float64  `json:"confidence" db:"confidence"`

	Status   AlertStatus `json:"status" db:"status"`
	Evidence []Evidence  `json:"evidence"`

	ResolvedAt *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
	ResolvedBy *uuid.UUID `json:"resolved_by,omitempty" db:"resolved_by"`
	Notes      string     `json:"notes,omitempty" db:"notes"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CreateAlertInput is one detection to record. Detections for an overlapping
// user set and the same type merge into the existing unresolved alert.
type CreateAlertInput struct {
	AlertType   AlertType   `json:"alert_type"`
	UserIDs     []uuid.UUID `json:"user_ids"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Severity    Severity    `json:"severity"`
	Confidence  float64     `json:"confidence"`
	Evidence    []Evidence  `json:"evidence"`

	// InitialStatus overrides the default open status for new alerts.
	// Automated enforcement opens its alerts as investigating.
	InitialStatus AlertStatus `json:"-"`
}

// CanonicalUserSetKey builds an order-independent key for a user set, used
// by the uniqueness constraint that deduplicates concurrent alert creation.
func CanonicalUserSetKey(userIDs []uuid.UUID) string {
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = id.String()
	}
	sort.Strings(keys)
	return strings.Join(keys, ":")
}

// UnionUsers merges two user sets preserving canonical order
func UnionUsers(a, b []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(a)+len(b))
	merged := make([]uuid.UUID, 0, len(a)+len(b))
	for _, set := range [][]uuid.UUID{a, b} {
		for _, id := range set {
			if !seen[id] {
				seen[id] = true
				merged = append(merged, id)
			}
		}
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].String() < merged[j].String()
	})
	return merged
}
