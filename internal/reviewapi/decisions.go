package reviewapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/ward/internal/review"
)

// decisionPayload is the wire shape for recording a decision.
type decisionPayload struct {
	AlertID   string `json:"alert_id"`
	Decision  string `json:"decision"`
	UserID    string `json:"user_id"`
	Notes     string `json:"notes"`
	Relevance string `json:"relevance"`
}

func (a *API) handleRecordDecision(w http.ResponseWriter, r *http.Request) {
	var p decisionPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		a.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("ward.alert.id", p.AlertID),
		attribute.String("ward.decision.type", p.Decision),
	)

	d, err := a.svc.Record(r.Context(), review.RecordRequest{
		AlertID:   p.AlertID,
		Type:      review.DecisionType(p.Decision),
		UserID:    p.UserID,
		Notes:     p.Notes,
		Relevance: p.Relevance,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJSON(w, http.StatusCreated, d)
}

func (a *API) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	unreadOnly := q.Get("unread") == "true"

	ns, err := a.svc.Notifications(r.Context(), q.Get("user_id"), unreadOnly)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJSON(w, http.StatusOK, map[string]any{
		"notifications": ns,
		"count":         len(ns),
	})
}

func (a *API) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := a.svc.MarkNotificationRead(r.Context(), id); err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJSON(w, http.StatusOK, map[string]string{"status": "read"})
}
