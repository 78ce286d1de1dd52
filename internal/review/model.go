package review

import (
	"time"

	"github.com/linnemanlabs/ward/internal/alert"
)

// DecisionType is an operator's disposition for an alert.
type DecisionType string

const (
	// DecisionGo means the operator will act outside the system. The
	// alert stays active; GO does not resolve anything by itself.
	DecisionGo DecisionType = "GO"

	// DecisionHold means no action for now. Status is unchanged.
	DecisionHold DecisionType = "HOLD"

	// DecisionEscalate hands the alert to an escalation path and moves
	// its status to escalated.
	DecisionEscalate DecisionType = "ESCALATE"
)

// Valid reports whether t is one of the known decision types.
func (t DecisionType) Valid() bool {
	return t == DecisionGo || t == DecisionHold || t == DecisionEscalate
}

// ScoreSnapshot is a frozen copy of an alert's score factors at decision
// time. It decouples the historical audit record from later alert mutation.
type ScoreSnapshot struct {
	TotalScore float64              `json:"total_score"`
	Scores     alert.ScoreBreakdown `json:"scores"`
}

// Decision is an immutable record of one operator choice for one alert.
// An alert may accumulate many decisions over repeated review.
type Decision struct {
	ID        string        `json:"id"`
	AlertID   string        `json:"alert_id"`
	UserID    string        `json:"user_id"`
	Type      DecisionType  `json:"decision_type"`
	Notes     string        `json:"notes,omitempty"`
	Relevance string        `json:"relevance,omitempty"` // snapshot at decision time
	Snapshot  ScoreSnapshot `json:"score_breakdown"`
	DecidedAt time.Time     `json:"decision_timestamp"`
}

// AuditEntry is an append-only record of an action taken. The review core
// never updates or deletes audit entries.
type AuditEntry struct {
	ID        string         `json:"id"`
	Action    string         `json:"action"`
	UserID    string         `json:"user_id"`
	AlertID   string         `json:"alert_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Audit actions recorded by this package.
const (
	AuditDecisionMade  = "decision_made"
	AuditAlertIngested = "alert_ingested"
)

// HistoryEntry pairs an alert with its most recent decision, if any. It is
// a derived view computed over the decision collection, not stored state.
type HistoryEntry struct {
	Alert    alert.Alert `json:"alert"`
	Decision *Decision   `json:"decision,omitempty"`
}

// Notification is a per-user pointer at an alert worth looking at.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	AlertID   string    `json:"alert_id"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`

	// Joined alert fields for list views.
	AlertTitle  string            `json:"alert_title,omitempty"`
	ImpactLevel alert.ImpactLevel `json:"impact_level,omitempty"`
	DetectedAt  time.Time         `json:"detected_at,omitempty"`
}
