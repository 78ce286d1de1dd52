package review

import (
	"context"

	"github.com/linnemanlabs/ward/internal/alert"
)

// AlertFilter narrows ListAlerts. Zero values mean no filtering. Filtering
// is a pass-through concern; ordering and truncation belong to the ranking
// policy in the Service, never to a store.
type AlertFilter struct {
	Status      alert.Status
	ImpactLevel alert.ImpactLevel
}

// AlertUpdate describes the alert mutation applied alongside a decision.
// Nil fields leave the corresponding column untouched.
type AlertUpdate struct {
	Status    *alert.Status
	Relevance *string
}

// DecideFunc builds the records for one decision from a snapshot of the
// alert read inside the store's transaction boundary. The store persists
// the returned decision, audit entry, and alert update as one unit.
type DecideFunc func(al *alert.Alert) (*Decision, *AuditEntry, AlertUpdate, error)

// Store is the persistence interface for the review core.
//
// Decide is the atomicity boundary for decision recording: implementations
// must read the alert, invoke fn on the snapshot, and persist everything fn
// returns such that concurrent decisions on the same alert serialize rather
// than interleave. A missing alert yields ErrNotFound; write contention
// yields ErrConflict.
type Store interface {
	GetAlert(ctx context.Context, id string) (*alert.Alert, bool, error)
	ListAlerts(ctx context.Context, f AlertFilter) ([]alert.Alert, error)
	CreateAlert(ctx context.Context, al *alert.Alert, sources []alert.Provenance, actions []alert.SafeAction, audit *AuditEntry) error
	SetSummary(ctx context.Context, alertID, summary string) error

	ListProvenance(ctx context.Context, alertID string) ([]alert.Provenance, error)
	ListSafeActions(ctx context.Context, alertID string) ([]alert.SafeAction, error)

	Decide(ctx context.Context, alertID string, fn DecideFunc) (*Decision, error)
	ListDecisions(ctx context.Context, alertID string) ([]Decision, error)
	History(ctx context.Context, userID string, limit int) ([]HistoryEntry, error)

	ListAudit(ctx context.Context, alertID string) ([]AuditEntry, error)

	CreateNotification(ctx context.Context, n *Notification) error
	ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
}
