package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/linnemanlabs/ward/internal/alert"
)

// DefaultUserID is assumed when a caller supplies no user identity. The
// upstream deployment runs with a single implicit operator.
const DefaultUserID = "default_user"

// DefaultHistoryLimit bounds history views when the caller asks for no
// particular limit.
const DefaultHistoryLimit = 50

// Notifier delivers out-of-band notices for escalated alerts.
type Notifier interface {
	Escalated(ctx context.Context, al *alert.Alert, d *Decision) error
}

// Summarizer produces the machine-generated summary for an alert.
type Summarizer interface {
	Summarize(ctx context.Context, al *alert.Alert) (string, error)
}

// Service is the business boundary for alert review operations: ranking,
// decision recording, lifecycle, and audit.
type Service struct {
	store      Store
	logger     log.Logger
	metrics    *Metrics
	notifier   Notifier   // optional
	summarizer Summarizer // optional
}

// NewService creates a new review service. Notifier and summarizer may be
// nil, in which case escalation notices and summary generation are skipped.
func NewService(store Store, logger log.Logger, metrics *Metrics, notifier Notifier, summarizer Summarizer) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	if metrics == nil {
		metrics = NewMetrics(prometheus.NewRegistry())
	}
	return &Service{
		store:      store,
		logger:     logger,
		metrics:    metrics,
		notifier:   notifier,
		summarizer: summarizer,
	}
}

// RecordRequest carries one operator decision into Record.
type RecordRequest struct {
	AlertID   string
	Type      DecisionType
	UserID    string
	Notes     string
	Relevance string // optional; "yes" or "no"
}

// Record validates and persists an operator decision as a single logical
// unit: the decision row with its frozen score snapshot, the status
// transition, the relevance update, and the audit entry all land together
// or not at all. Validation happens before any storage lookup so malformed
// input never touches the store. Write contention is retried once with a
// refreshed snapshot before ErrConflict is surfaced.
func (s *Service) Record(ctx context.Context, req RecordRequest) (*Decision, error) {
	if !req.Type.Valid() {
		s.metrics.DecisionFailuresTotal.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: %q", ErrInvalidDecision, req.Type)
	}
	if req.AlertID == "" {
		s.metrics.DecisionFailuresTotal.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: alert id is required", ErrInvalidDecision)
	}
	if req.Relevance != "" && req.Relevance != "yes" && req.Relevance != "no" {
		s.metrics.DecisionFailuresTotal.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: relevance must be yes or no, got %q", ErrInvalidDecision, req.Relevance)
	}
	if req.UserID == "" {
		req.UserID = DefaultUserID
	}

	start := time.Now()

	d, err := s.store.Decide(ctx, req.AlertID, s.decideFunc(req))
	if errors.Is(err, ErrConflict) {
		s.metrics.DecisionRetriesTotal.Inc()
		s.logger.Warn(ctx, "decision write contention, retrying", "alert_id", req.AlertID)
		d, err = s.store.Decide(ctx, req.AlertID, s.decideFunc(req))
	}
	if err != nil {
		s.metrics.DecisionFailuresTotal.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}

	s.metrics.DecisionsTotal.WithLabelValues(string(d.Type)).Inc()
	s.metrics.DecisionDuration.WithLabelValues(string(d.Type)).Observe(time.Since(start).Seconds())

	s.logger.Info(ctx, "decision recorded",
		"decision_id", d.ID,
		"alert_id", d.AlertID,
		"type", d.Type,
		"user", d.UserID,
	)

	if d.Type == DecisionEscalate {
		s.metrics.EscalationsTotal.Inc()
		// Notices are best-effort and must not hold up or fail the
		// recording; the decision is already durable at this point.
		go s.notifyEscalation(context.WithoutCancel(ctx), d)
	}

	return d, nil
}

// decideFunc builds the per-attempt closure handed to Store.Decide. Each
// retry gets fresh IDs and timestamps so a contended first attempt leaves
// no trace in the second.
func (s *Service) decideFunc(req RecordRequest) DecideFunc {
	return func(al *alert.Alert) (*Decision, *AuditEntry, AlertUpdate, error) {
		now := time.Now().UTC()

		relevance := al.Relevance
		if req.Relevance != "" {
			relevance = req.Relevance
		}

		d := &Decision{
			ID:        ulid.Make().String(),
			AlertID:   al.ID,
			UserID:    req.UserID,
			Type:      req.Type,
			Notes:     req.Notes,
			Relevance: relevance,
			Snapshot: ScoreSnapshot{
				TotalScore: al.TotalScore,
				Scores:     al.Scores,
			},
			DecidedAt: now,
		}

		var update AlertUpdate
		if req.Type == DecisionEscalate {
			escalated := alert.StatusEscalated
			update.Status = &escalated
		}
		if req.Relevance != "" {
			// Last write wins on the live alert field; the decision
			// keeps its own historical copy above.
			rel := req.Relevance
			update.Relevance = &rel
		}

		audit := &AuditEntry{
			ID:      ulid.Make().String(),
			Action:  AuditDecisionMade,
			UserID:  req.UserID,
			AlertID: al.ID,
			Metadata: map[string]any{
				"decision":  string(req.Type),
				"notes":     req.Notes,
				"relevance": req.Relevance,
			},
			CreatedAt: now,
		}

		return d, audit, update, nil
	}
}

func (s *Service) notifyEscalation(ctx context.Context, d *Decision) {
	al, ok, err := s.store.GetAlert(ctx, d.AlertID)
	if err != nil || !ok {
		s.logger.Error(ctx, err, "failed to load alert for escalation notice", "alert_id", d.AlertID)
		return
	}

	n := &Notification{
		ID:        ulid.Make().String(),
		UserID:    d.UserID,
		AlertID:   al.ID,
		Message:   fmt.Sprintf("Alert escalated: %s", al.Title),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateNotification(ctx, n); err != nil {
		s.logger.Error(ctx, err, "failed to create escalation notification", "alert_id", al.ID)
	}

	if s.notifier == nil {
		return
	}
	if err := s.notifier.Escalated(ctx, al, d); err != nil {
		s.logger.Error(ctx, err, "escalation notice failed", "alert_id", al.ID)
	}
}

// ListRanked returns alerts matching the filter in priority order,
// truncated to limit when limit > 0. The ordering is computed over a
// point-in-time snapshot; slightly stale data is acceptable here.
func (s *Service) ListRanked(ctx context.Context, f AlertFilter, limit int) ([]alert.Alert, error) {
	alerts, err := s.store.ListAlerts(ctx, f)
	if err != nil {
		return nil, err
	}

	Rank(alerts)
	s.metrics.RankedAlerts.Observe(float64(len(alerts)))

	if limit > 0 && len(alerts) > limit {
		alerts = alerts[:limit]
	}
	return alerts, nil
}

// TopPriority returns the most urgent active alert, or ok=false when no
// active alerts exist. An empty board is a valid state, not an error.
func (s *Service) TopPriority(ctx context.Context) (*alert.Alert, bool, error) {
	alerts, err := s.ListRanked(ctx, AlertFilter{Status: alert.StatusActive}, 1)
	if err != nil {
		return nil, false, err
	}
	if len(alerts) == 0 {
		return nil, false, nil
	}
	return &alerts[0], true, nil
}

// AlertDetail is an alert joined with its provenance, aggregated
// confidence, and the recommended action steps shown to the operator.
type AlertDetail struct {
	Alert       alert.Alert        `json:"alert"`
	Sources     []alert.Provenance `json:"sources"`
	Confidence  alert.Confidence   `json:"confidence"`
	SafeActions []string           `json:"safe_actions"`
}

// GetDetail loads one alert with its provenance and safe actions. The
// confidence verdict is derived from verified sources only.
func (s *Service) GetDetail(ctx context.Context, id string) (*AlertDetail, bool, error) {
	al, ok, err := s.store.GetAlert(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	sources, err := s.store.ListProvenance(ctx, id)
	if err != nil {
		return nil, false, err
	}
	actions, err := s.store.ListSafeActions(ctx, id)
	if err != nil {
		return nil, false, err
	}

	detail := &AlertDetail{
		Alert:      *al,
		Sources:    sources,
		Confidence: alert.OverallConfidence(sources),
	}
	for _, a := range actions {
		// Monitoring hints stay internal; operators see only the
		// act-today and do-not lists.
		if a.ActionType == "action_today" || a.ActionType == "do_not" {
			detail.SafeActions = append(detail.SafeActions, a.Text)
		}
	}
	return detail, true, nil
}

// Decisions returns all decisions recorded for an alert, most recent first.
func (s *Service) Decisions(ctx context.Context, alertID string) ([]Decision, error) {
	_, ok, err := s.store.GetAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return s.store.ListDecisions(ctx, alertID)
}

// History returns alerts joined with their most recent decision for a user.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]HistoryEntry, error) {
	if userID == "" {
		userID = DefaultUserID
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return s.store.History(ctx, userID, limit)
}

// IngestRequest carries a new alert into Ingest.
type IngestRequest struct {
	Title             string
	Description       string
	Summary           string
	AffectedFunction  string
	SystemName        string
	ImpactLevel       alert.ImpactLevel
	ImpactDescription string
	TotalScore        float64
	Scores            alert.ScoreBreakdown
	CVEID             string
	CVEURL            string
	Sources           []alert.Provenance
	SafeActions       []alert.SafeAction
	UserID            string
}

// Ingest creates a new active alert with its provenance and safe actions,
// and appends an audit entry. When a summarizer is configured and the
// caller supplied no summary, one is generated asynchronously.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (*alert.Alert, error) {
	if req.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidDecision)
	}
	if !req.ImpactLevel.Valid() {
		return nil, fmt.Errorf("%w: impact level %q", ErrInvalidDecision, req.ImpactLevel)
	}
	if req.UserID == "" {
		req.UserID = DefaultUserID
	}

	now := time.Now().UTC()
	al := &alert.Alert{
		ID:                ulid.Make().String(),
		Title:             req.Title,
		Description:       req.Description,
		Summary:           req.Summary,
		AffectedFunction:  req.AffectedFunction,
		SystemName:        req.SystemName,
		ImpactLevel:       req.ImpactLevel,
		ImpactDescription: req.ImpactDescription,
		TotalScore:        req.TotalScore,
		Scores:            req.Scores,
		Status:            alert.StatusActive,
		DetectedAt:        now,
		CVEID:             req.CVEID,
		CVEURL:            req.CVEURL,
	}

	sources := make([]alert.Provenance, len(req.Sources))
	copy(sources, req.Sources)
	for i := range sources {
		sources[i].AlertID = al.ID
	}
	actions := make([]alert.SafeAction, len(req.SafeActions))
	copy(actions, req.SafeActions)
	for i := range actions {
		actions[i].AlertID = al.ID
	}

	audit := &AuditEntry{
		ID:      ulid.Make().String(),
		Action:  AuditAlertIngested,
		UserID:  req.UserID,
		AlertID: al.ID,
		Metadata: map[string]any{
			"title":        al.Title,
			"impact_level": string(al.ImpactLevel),
			"total_score":  al.TotalScore,
		},
		CreatedAt: now,
	}

	if err := s.store.CreateAlert(ctx, al, sources, actions, audit); err != nil {
		return nil, err
	}

	s.metrics.AlertsIngestedTotal.WithLabelValues(string(al.ImpactLevel)).Inc()
	s.logger.Info(ctx, "alert ingested",
		"alert_id", al.ID,
		"title", al.Title,
		"impact_level", al.ImpactLevel,
		"total_score", al.TotalScore,
	)

	if al.ImpactLevel == alert.ImpactRed {
		n := &Notification{
			ID:        ulid.Make().String(),
			UserID:    req.UserID,
			AlertID:   al.ID,
			Message:   fmt.Sprintf("New RED alert: %s", al.Title),
			CreatedAt: now,
		}
		if err := s.store.CreateNotification(ctx, n); err != nil {
			s.logger.Error(ctx, err, "failed to create ingest notification", "alert_id", al.ID)
		}
	}

	if s.summarizer != nil && al.Summary == "" {
		// Pass only the ID so the goroutine re-reads through the store
		// instead of sharing the Alert pointer.
		go s.summarize(context.WithoutCancel(ctx), al.ID)
	}

	return al, nil
}

func (s *Service) summarize(ctx context.Context, alertID string) {
	al, ok, err := s.store.GetAlert(ctx, alertID)
	if err != nil || !ok {
		s.logger.Error(ctx, err, "failed to load alert for summary", "alert_id", alertID)
		return
	}

	summary, err := s.summarizer.Summarize(ctx, al)
	if err != nil {
		s.metrics.SummariesTotal.WithLabelValues("error").Inc()
		s.logger.Error(ctx, err, "summary generation failed", "alert_id", alertID)
		return
	}
	if err := s.store.SetSummary(ctx, alertID, summary); err != nil {
		s.metrics.SummariesTotal.WithLabelValues("error").Inc()
		s.logger.Error(ctx, err, "failed to persist summary", "alert_id", alertID)
		return
	}

	s.metrics.SummariesTotal.WithLabelValues("ok").Inc()
	s.logger.Info(ctx, "summary generated", "alert_id", alertID)
}

// Notifications returns a user's notification feed, optionally unread only.
func (s *Service) Notifications(ctx context.Context, userID string, unreadOnly bool) ([]Notification, error) {
	if userID == "" {
		userID = DefaultUserID
	}
	return s.store.ListNotifications(ctx, userID, unreadOnly)
}

// MarkNotificationRead marks one notification as read.
func (s *Service) MarkNotificationRead(ctx context.Context, id string) error {
	return s.store.MarkNotificationRead(ctx, id)
}

// Audit returns the audit trail for one alert.
func (s *Service) Audit(ctx context.Context, alertID string) ([]AuditEntry, error) {
	return s.store.ListAudit(ctx, alertID)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "storage"
	}
}
