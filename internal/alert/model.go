package alert

import "time"

// ImpactLevel is the severity band of an alert. RED is the most severe.
type ImpactLevel string

const (
	ImpactRed    ImpactLevel = "RED"
	ImpactYellow ImpactLevel = "YELLOW"
	ImpactGreen  ImpactLevel = "GREEN"
)

// Rank maps an impact level to its sort position. RED sorts first.
// Anything outside the enum is a data error and sorts after GREEN so
// malformed alerts degrade instead of disappearing from a ranking.
func (l ImpactLevel) Rank() int {
	switch l {
	case ImpactRed:
		return 0
	case ImpactYellow:
		return 1
	case ImpactGreen:
		return 2
	default:
		return 3
	}
}

// Valid reports whether l is one of the known impact levels.
func (l ImpactLevel) Valid() bool {
	return l == ImpactRed || l == ImpactYellow || l == ImpactGreen
}

// Status tracks where an alert is in its lifecycle.
type Status string

const (
	// StatusActive means awaiting an operator disposition.
	StatusActive Status = "active"

	// StatusEscalated means an operator recorded an ESCALATE decision.
	StatusEscalated Status = "escalated"

	// StatusResolved is reserved for external closure workflows. The
	// review core never produces it but must recognize it on read.
	StatusResolved Status = "resolved"
)

// Confidence is the trust rating of a provenance source, and of an alert
// as a whole once aggregated.
type Confidence string

const (
	ConfidenceLow    Confidence = "Low"
	ConfidenceMedium Confidence = "Medium"
	ConfidenceHigh   Confidence = "High"
)

// ScoreBreakdown holds the named factors contributing to an alert's total
// score. The engine never recomputes these, it only snapshots and reports
// them.
type ScoreBreakdown struct {
	HumanSafety         float64 `json:"human_safety"`
	Accuracy            float64 `json:"accuracy"`
	Dependency          float64 `json:"dependency"`
	Exploitability      float64 `json:"exploitability"`
	PatchStatus         float64 `json:"patch_status"`
	OperationalExposure float64 `json:"operational_exposure"`
}

// Alert is a detected condition requiring operator review.
type Alert struct {
	ID                string         `json:"id"`
	Title             string         `json:"title"`
	Description       string         `json:"description"`
	Summary           string         `json:"summary,omitempty"` // machine-generated
	AffectedFunction  string         `json:"affected_function,omitempty"`
	SystemName        string         `json:"system_name,omitempty"`
	ImpactLevel       ImpactLevel    `json:"impact_level"`
	ImpactDescription string         `json:"impact_description,omitempty"`
	Relevance         string         `json:"relevance,omitempty"` // "", "yes", "no"
	TotalScore        float64        `json:"total_score"`
	Scores            ScoreBreakdown `json:"scores"`
	Status            Status         `json:"status"`
	DetectedAt        time.Time      `json:"detected_at"`
	CVEID             string         `json:"cve_id,omitempty"`
	CVEURL            string         `json:"cve_url,omitempty"`
}

// Provenance is one attributed source backing an alert. Records are owned
// by their alert and deleted with it.
type Provenance struct {
	AlertID    string     `json:"alert_id"`
	SourceName string     `json:"source_name"`
	SourceType string     `json:"source_type"`
	SourceURL  string     `json:"source_url,omitempty"`
	Verified   bool       `json:"verified"`
	Confidence Confidence `json:"confidence"`
}

// SafeAction is one recommended step attached to an alert.
type SafeAction struct {
	AlertID      string `json:"alert_id"`
	ActionType   string `json:"action_type"` // action_today, do_not, monitor
	Text         string `json:"text"`
	DisplayOrder int    `json:"display_order"`
}
