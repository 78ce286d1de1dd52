package reviewapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/ward/internal/alert"
	"github.com/linnemanlabs/ward/internal/review"
)

func (a *API) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f := review.AlertFilter{
		Status:      alert.Status(q.Get("status")),
		ImpactLevel: alert.ImpactLevel(q.Get("impact")),
	}

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			a.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	alerts, err := a.svc.ListRanked(r.Context(), f, limit)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

func (a *API) handleTopPriority(w http.ResponseWriter, r *http.Request) {
	top, ok, err := a.svc.TopPriority(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if !ok {
		// Empty board, not an error.
		a.writeJSON(w, http.StatusOK, map[string]any{"alert": nil})
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("ward.alert.id", top.ID),
		attribute.String("ward.alert.impact", string(top.ImpactLevel)),
	)

	a.writeJSON(w, http.StatusOK, map[string]any{"alert": top})
}

func (a *API) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("ward.alert.id", id))

	detail, ok, err := a.svc.GetDetail(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if !ok {
		a.writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	a.writeJSON(w, http.StatusOK, detail)
}

func (a *API) handleListDecisions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	decisions, err := a.svc.Decisions(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJSON(w, http.StatusOK, map[string]any{
		"alert_id":  id,
		"decisions": decisions,
	})
}

func (a *API) handleListAudit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	entries, err := a.svc.Audit(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJSON(w, http.StatusOK, map[string]any{
		"alert_id": id,
		"entries":  entries,
	})
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			a.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	entries, err := a.svc.History(r.Context(), q.Get("user_id"), limit)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJSON(w, http.StatusOK, map[string]any{
		"history": entries,
		"count":   len(entries),
	})
}

// ingestPayload is the wire shape for alert ingestion.
type ingestPayload struct {
	Title             string               `json:"title"`
	Description       string               `json:"description"`
	Summary           string               `json:"summary"`
	AffectedFunction  string               `json:"affected_function"`
	SystemName        string               `json:"system_name"`
	ImpactLevel       string               `json:"impact_level"`
	ImpactDescription string               `json:"impact_description"`
	TotalScore        float64              `json:"total_score"`
	Scores            alert.ScoreBreakdown `json:"score_breakdown"`
	CVEID             string               `json:"cve_id"`
	CVEURL            string               `json:"cve_url"`
	Sources           []alert.Provenance   `json:"sources"`
	SafeActions       []alert.SafeAction   `json:"safe_actions"`
	UserID            string               `json:"user_id"`
}

func (a *API) handleIngestAlert(w http.ResponseWriter, r *http.Request) {
	var p ingestPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		a.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}

	al, err := a.svc.Ingest(r.Context(), review.IngestRequest{
		Title:             p.Title,
		Description:       p.Description,
		Summary:           p.Summary,
		AffectedFunction:  p.AffectedFunction,
		SystemName:        p.SystemName,
		ImpactLevel:       alert.ImpactLevel(p.ImpactLevel),
		ImpactDescription: p.ImpactDescription,
		TotalScore:        p.TotalScore,
		Scores:            p.Scores,
		CVEID:             p.CVEID,
		CVEURL:            p.CVEURL,
		Sources:           p.Sources,
		SafeActions:       p.SafeActions,
		UserID:            p.UserID,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJSON(w, http.StatusCreated, al)
}
