// Package memstore provides an in-memory implementation of review.Store.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/linnemanlabs/ward/internal/alert"
	"github.com/linnemanlabs/ward/internal/review"
)

// Store holds review state in memory. Suitable for dev/testing. A single
// mutex serializes Decide calls, which gives the same observable guarantee
// as the Postgres row lock: concurrent decisions on one alert never
// interleave their read-snapshot-write sequences.
type Store struct {
	mu            sync.RWMutex
	alerts        map[string]*alert.Alert
	provenance    map[string][]alert.Provenance // alert ID -> sources
	safeActions   map[string][]alert.SafeAction // alert ID -> actions
	decisions     map[string][]review.Decision  // alert ID -> decisions, append order
	audit         []review.AuditEntry
	notifications []review.Notification
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{
		alerts:      make(map[string]*alert.Alert),
		provenance:  make(map[string][]alert.Provenance),
		safeActions: make(map[string][]alert.SafeAction),
		decisions:   make(map[string][]review.Decision),
	}
}

// GetAlert retrieves an alert by ID. Returns a copy.
func (s *Store) GetAlert(_ context.Context, id string) (*alert.Alert, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	al, ok := s.alerts[id]
	if !ok {
		return nil, false, nil
	}
	cp := *al
	return &cp, true, nil
}

// ListAlerts returns copies of alerts matching the filter, in no
// particular order.
func (s *Store) ListAlerts(_ context.Context, f review.AlertFilter) ([]alert.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]alert.Alert, 0, len(s.alerts))
	for _, al := range s.alerts {
		if f.Status != "" && al.Status != f.Status {
			continue
		}
		if f.ImpactLevel != "" && al.ImpactLevel != f.ImpactLevel {
			continue
		}
		out = append(out, *al)
	}

	// Map iteration order is random; fix it so ranking stability is
	// observable across calls.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateAlert stores an alert with its provenance, safe actions, and the
// ingest audit entry.
func (s *Store) CreateAlert(_ context.Context, al *alert.Alert, sources []alert.Provenance, actions []alert.SafeAction, audit *review.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *al
	s.alerts[al.ID] = &cp
	s.provenance[al.ID] = append([]alert.Provenance(nil), sources...)
	s.safeActions[al.ID] = append([]alert.SafeAction(nil), actions...)
	if audit != nil {
		s.audit = append(s.audit, *audit)
	}
	return nil
}

// SetSummary sets the machine-generated summary on an alert.
func (s *Store) SetSummary(_ context.Context, alertID, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	al, ok := s.alerts[alertID]
	if !ok {
		return review.ErrNotFound
	}
	al.Summary = summary
	return nil
}

// ListProvenance returns the provenance records for an alert.
func (s *Store) ListProvenance(_ context.Context, alertID string) ([]alert.Provenance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]alert.Provenance(nil), s.provenance[alertID]...), nil
}

// ListSafeActions returns the safe actions for an alert in display order.
func (s *Store) ListSafeActions(_ context.Context, alertID string) ([]alert.SafeAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]alert.SafeAction(nil), s.safeActions[alertID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].DisplayOrder < out[j].DisplayOrder })
	return out, nil
}

// Decide runs fn against a snapshot of the alert and persists everything it
// returns under one lock. A missing alert yields review.ErrNotFound and
// leaves no trace.
func (s *Store) Decide(_ context.Context, alertID string, fn review.DecideFunc) (*review.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	al, ok := s.alerts[alertID]
	if !ok {
		return nil, review.ErrNotFound
	}

	snapshot := *al
	d, audit, update, err := fn(&snapshot)
	if err != nil {
		return nil, err
	}

	s.decisions[alertID] = append(s.decisions[alertID], *d)
	if update.Status != nil {
		al.Status = *update.Status
	}
	if update.Relevance != nil {
		al.Relevance = *update.Relevance
	}
	if audit != nil {
		s.audit = append(s.audit, *audit)
	}

	cp := *d
	return &cp, nil
}

// ListDecisions returns the decisions for an alert, most recent first.
func (s *Store) ListDecisions(_ context.Context, alertID string) ([]review.Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]review.Decision(nil), s.decisions[alertID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].DecidedAt.After(out[j].DecidedAt) })
	return out, nil
}

// History returns alerts with their most recent decision by the given
// user, newest alerts first.
func (s *Store) History(_ context.Context, userID string, limit int) ([]review.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]review.HistoryEntry, 0, len(s.alerts))
	for _, al := range s.alerts {
		entry := review.HistoryEntry{Alert: *al}
		for i := range s.decisions[al.ID] {
			d := s.decisions[al.ID][i]
			if d.UserID != userID {
				continue
			}
			if entry.Decision == nil || d.DecidedAt.After(entry.Decision.DecidedAt) {
				cp := d
				entry.Decision = &cp
			}
		}
		out = append(out, entry)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Alert.DetectedAt.After(out[j].Alert.DetectedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListAudit returns the audit entries for an alert in append order.
func (s *Store) ListAudit(_ context.Context, alertID string) ([]review.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []review.AuditEntry
	for _, e := range s.audit {
		if e.AlertID == alertID {
			out = append(out, e)
		}
	}
	return out, nil
}

// CreateNotification stores a notification.
func (s *Store) CreateNotification(_ context.Context, n *review.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *n
	if al, ok := s.alerts[n.AlertID]; ok {
		cp.AlertTitle = al.Title
		cp.ImpactLevel = al.ImpactLevel
		cp.DetectedAt = al.DetectedAt
	}
	s.notifications = append(s.notifications, cp)
	return nil
}

// ListNotifications returns a user's notifications, newest first.
func (s *Store) ListNotifications(_ context.Context, userID string, unreadOnly bool) ([]review.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []review.Notification
	for _, n := range s.notifications {
		if n.UserID != userID {
			continue
		}
		if unreadOnly && n.Read {
			continue
		}
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// MarkNotificationRead marks a notification as read.
func (s *Store) MarkNotificationRead(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.notifications {
		if s.notifications[i].ID == id {
			s.notifications[i].Read = true
			return nil
		}
	}
	return review.ErrNotFound
}
