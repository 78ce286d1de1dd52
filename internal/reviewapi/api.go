// Package reviewapi exposes the alert review board over HTTP.
package reviewapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/ward/internal/alert"
	"github.com/linnemanlabs/ward/internal/review"
)

// ReviewService defines the business operations reviewapi needs.
type ReviewService interface {
	ListRanked(ctx context.Context, f review.AlertFilter, limit int) ([]alert.Alert, error)
	TopPriority(ctx context.Context) (*alert.Alert, bool, error)
	GetDetail(ctx context.Context, id string) (*review.AlertDetail, bool, error)
	Decisions(ctx context.Context, alertID string) ([]review.Decision, error)
	Audit(ctx context.Context, alertID string) ([]review.AuditEntry, error)
	History(ctx context.Context, userID string, limit int) ([]review.HistoryEntry, error)
	Record(ctx context.Context, req review.RecordRequest) (*review.Decision, error)
	Ingest(ctx context.Context, req review.IngestRequest) (*alert.Alert, error)
	Notifications(ctx context.Context, userID string, unreadOnly bool) ([]review.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	svc    ReviewService
}

// New creates a new API handler.
func New(logger log.Logger, svc ReviewService) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("review service is required"))
	}
	return &API{
		logger: logger,
		svc:    svc,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/alerts", a.handleListAlerts)
		r.Post("/alerts", a.handleIngestAlert)
		r.Get("/alerts/history", a.handleHistory)
		r.Get("/alerts/priority/top", a.handleTopPriority)
		r.Get("/alerts/{id}", a.handleGetAlert)
		r.Get("/alerts/{id}/decisions", a.handleListDecisions)
		r.Get("/alerts/{id}/audit", a.handleListAudit)
		r.Post("/decisions", a.handleRecordDecision)
		r.Get("/notifications", a.handleListNotifications)
		r.Post("/notifications/{id}/read", a.handleMarkNotificationRead)
	})
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps service errors onto HTTP status codes.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, review.ErrInvalidDecision):
		a.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, review.ErrNotFound):
		a.writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, review.ErrConflict):
		a.writeJSON(w, http.StatusConflict, map[string]string{"error": "write conflict, retry"})
	default:
		a.logger.Error(r.Context(), err, "request failed", "path", r.URL.Path)
		a.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
