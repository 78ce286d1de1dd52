package pgstore_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/ward/internal/alert"
	"github.com/linnemanlabs/ward/internal/review"
	"github.com/linnemanlabs/ward/internal/review/pgstore"
)

func openStore(t *testing.T) *pgstore.Store {
	t.Helper()
	dsn := os.Getenv("WARD_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("WARD_TEST_DATABASE_URL not set, skipping integration test")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	s, err := pgstore.New(ctx, pool)
	if err != nil {
		t.Fatalf("pgstore.New: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func newAlert(impact alert.ImpactLevel, score float64) *alert.Alert {
	return &alert.Alert{
		ID:          ulid.Make().String(),
		Title:       "Coolant valve telemetry gap",
		Description: "Telemetry dropped for 4 minutes on loop B",
		ImpactLevel: impact,
		TotalScore:  score,
		Scores:      alert.ScoreBreakdown{HumanSafety: 40, Exploitability: 20, Dependency: score - 60},
		Status:      alert.StatusActive,
		DetectedAt:  time.Now().Truncate(time.Microsecond).UTC(),
		CVEID:       "CVE-2026-0001",
	}
}

func TestCreateAndGetAlert(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	al := newAlert(alert.ImpactRed, 85)
	sources := []alert.Provenance{
		{AlertID: al.ID, SourceName: "nvd", SourceType: "advisory", Verified: true, Confidence: alert.ConfidenceHigh},
		{AlertID: al.ID, SourceName: "forum", SourceType: "community", Verified: false, Confidence: alert.ConfidenceHigh},
	}
	actions := []alert.SafeAction{
		{AlertID: al.ID, ActionType: "action_today", Text: "Isolate loop B", DisplayOrder: 1},
		{AlertID: al.ID, ActionType: "do_not", Text: "Do not power-cycle the PLC", DisplayOrder: 2},
	}
	audit := &review.AuditEntry{
		ID: ulid.Make().String(), Action: review.AuditAlertIngested,
		UserID: "tester", AlertID: al.ID,
		Metadata:  map[string]any{"title": al.Title},
		CreatedAt: time.Now().Truncate(time.Microsecond).UTC(),
	}

	if err := s.CreateAlert(ctx, al, sources, actions, audit); err != nil {
		t.Fatalf("CreateAlert: %v", err)
	}

	got, ok, err := s.GetAlert(ctx, al.ID)
	if err != nil {
		t.Fatalf("GetAlert: %v", err)
	}
	if !ok {
		t.Fatal("GetAlert returned ok=false, want true")
	}

	assertEqual(t, "Title", al.Title, got.Title)
	assertEqual(t, "ImpactLevel", al.ImpactLevel, got.ImpactLevel)
	assertEqual(t, "TotalScore", al.TotalScore, got.TotalScore)
	assertEqual(t, "Scores.HumanSafety", al.Scores.HumanSafety, got.Scores.HumanSafety)
	assertEqual(t, "Status", alert.StatusActive, got.Status)
	assertEqual(t, "CVEID", al.CVEID, got.CVEID)
	if !got.DetectedAt.Equal(al.DetectedAt) {
		t.Errorf("DetectedAt = %v, want %v", got.DetectedAt, al.DetectedAt)
	}

	ps, err := s.ListProvenance(ctx, al.ID)
	if err != nil {
		t.Fatalf("ListProvenance: %v", err)
	}
	if len(ps) != 2 || ps[0].SourceName != "nvd" {
		t.Errorf("provenance = %+v, want 2 records starting with nvd", ps)
	}

	sa, err := s.ListSafeActions(ctx, al.ID)
	if err != nil {
		t.Fatalf("ListSafeActions: %v", err)
	}
	if len(sa) != 2 || sa[0].Text != "Isolate loop B" {
		t.Errorf("safe actions = %+v", sa)
	}

	entries, err := s.ListAudit(ctx, al.ID)
	if err != nil {
		t.Fatalf("ListAudit: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != review.AuditAlertIngested {
		t.Errorf("audit = %+v, want one alert_ingested entry", entries)
	}
}

func TestGetAlertMissing(t *testing.T) {
	s := openStore(t)

	_, ok, err := s.GetAlert(context.Background(), "nonexistent-id")
	if err != nil {
		t.Fatalf("GetAlert: %v", err)
	}
	if ok {
		t.Error("GetAlert returned ok=true for nonexistent ID")
	}
}

func TestDecideEscalate(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	al := newAlert(alert.ImpactRed, 85)
	if err := s.CreateAlert(ctx, al, nil, nil, nil); err != nil {
		t.Fatalf("CreateAlert: %v", err)
	}

	now := time.Now().Truncate(time.Microsecond).UTC()
	d, err := s.Decide(ctx, al.ID, func(snap *alert.Alert) (*review.Decision, *review.AuditEntry, review.AlertUpdate, error) {
		escalated := alert.StatusEscalated
		rel := "yes"
		d := &review.Decision{
			ID: ulid.Make().String(), AlertID: snap.ID, UserID: "tester",
			Type: review.DecisionEscalate, Notes: "shift handover", Relevance: rel,
			Snapshot:  review.ScoreSnapshot{TotalScore: snap.TotalScore, Scores: snap.Scores},
			DecidedAt: now,
		}
		a := &review.AuditEntry{
			ID: ulid.Make().String(), Action: review.AuditDecisionMade,
			UserID: "tester", AlertID: snap.ID,
			Metadata:  map[string]any{"decision": "ESCALATE"},
			CreatedAt: now,
		}
		return d, a, review.AlertUpdate{Status: &escalated, Relevance: &rel}, nil
	})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}

	got, ok, err := s.GetAlert(ctx, al.ID)
	if err != nil || !ok {
		t.Fatalf("GetAlert after decide: ok=%v err=%v", ok, err)
	}
	assertEqual(t, "Status", alert.StatusEscalated, got.Status)
	assertEqual(t, "Relevance", "yes", got.Relevance)

	ds, err := s.ListDecisions(ctx, al.ID)
	if err != nil {
		t.Fatalf("ListDecisions: %v", err)
	}
	if len(ds) != 1 {
		t.Fatalf("decisions = %d, want 1", len(ds))
	}
	assertEqual(t, "Decision.ID", d.ID, ds[0].ID)
	assertEqual(t, "Snapshot.TotalScore", 85.0, ds[0].Snapshot.TotalScore)
	if !ds[0].DecidedAt.Equal(now) {
		t.Errorf("DecidedAt = %v, want %v", ds[0].DecidedAt, now)
	}
}

func TestDecideMissingAlert(t *testing.T) {
	s := openStore(t)

	_, err := s.Decide(context.Background(), "nonexistent-id", func(*alert.Alert) (*review.Decision, *review.AuditEntry, review.AlertUpdate, error) {
		t.Fatal("fn must not run for a missing alert")
		return nil, nil, review.AlertUpdate{}, nil
	})
	if err != review.ErrNotFound {
		t.Fatalf("Decide: err = %v, want ErrNotFound", err)
	}
}

func TestDecideSnapshotSurvivesRescore(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	al := newAlert(alert.ImpactYellow, 70)
	if err := s.CreateAlert(ctx, al, nil, nil, nil); err != nil {
		t.Fatalf("CreateAlert: %v", err)
	}

	_, err := s.Decide(ctx, al.ID, func(snap *alert.Alert) (*review.Decision, *review.AuditEntry, review.AlertUpdate, error) {
		return &review.Decision{
			ID: ulid.Make().String(), AlertID: snap.ID, UserID: "tester", Type: review.DecisionGo,
			Snapshot:  review.ScoreSnapshot{TotalScore: snap.TotalScore, Scores: snap.Scores},
			DecidedAt: time.Now().Truncate(time.Microsecond).UTC(),
		}, nil, review.AlertUpdate{}, nil
	})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}

	// Rescore the alert the way an external collaborator would.
	if _, err := s.Decide(ctx, al.ID, func(snap *alert.Alert) (*review.Decision, *review.AuditEntry, review.AlertUpdate, error) {
		return &review.Decision{
			ID: ulid.Make().String(), AlertID: snap.ID, UserID: "tester", Type: review.DecisionHold,
			Snapshot:  review.ScoreSnapshot{TotalScore: snap.TotalScore, Scores: snap.Scores},
			DecidedAt: time.Now().Truncate(time.Microsecond).UTC(),
		}, nil, review.AlertUpdate{}, nil
	}); err != nil {
		t.Fatalf("second Decide: %v", err)
	}

	ds, err := s.ListDecisions(ctx, al.ID)
	if err != nil {
		t.Fatalf("ListDecisions: %v", err)
	}
	for _, d := range ds {
		if d.Snapshot.TotalScore != 70 {
			t.Errorf("decision %s snapshot total = %v, want 70", d.ID, d.Snapshot.TotalScore)
		}
	}
}

func TestHistoryLatestDecision(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	user := "hist-" + ulid.Make().String()
	al := newAlert(alert.ImpactGreen, 30)
	if err := s.CreateAlert(ctx, al, nil, nil, nil); err != nil {
		t.Fatalf("CreateAlert: %v", err)
	}

	base := time.Now().Truncate(time.Microsecond).UTC()
	for i, dt := range []review.DecisionType{review.DecisionGo, review.DecisionHold} {
		at := base.Add(time.Duration(i) * time.Minute)
		if _, err := s.Decide(ctx, al.ID, func(snap *alert.Alert) (*review.Decision, *review.AuditEntry, review.AlertUpdate, error) {
			return &review.Decision{
				ID: ulid.Make().String(), AlertID: snap.ID, UserID: user, Type: dt,
				Snapshot:  review.ScoreSnapshot{TotalScore: snap.TotalScore, Scores: snap.Scores},
				DecidedAt: at,
			}, nil, review.AlertUpdate{}, nil
		}); err != nil {
			t.Fatalf("Decide %s: %v", dt, err)
		}
	}

	entries, err := s.History(ctx, user, 100)
	if err != nil {
		t.Fatalf("History: %v", err)
	}

	var found bool
	for _, e := range entries {
		if e.Alert.ID != al.ID {
			continue
		}
		found = true
		if e.Decision == nil {
			t.Fatal("history entry has no decision")
		}
		assertEqual(t, "latest decision type", review.DecisionHold, e.Decision.Type)
	}
	if !found {
		t.Fatalf("alert %s not in history", al.ID)
	}
}

func TestNotificationsRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	user := "notif-" + ulid.Make().String()
	al := newAlert(alert.ImpactRed, 90)
	if err := s.CreateAlert(ctx, al, nil, nil, nil); err != nil {
		t.Fatalf("CreateAlert: %v", err)
	}

	n := &review.Notification{
		ID: ulid.Make().String(), UserID: user, AlertID: al.ID,
		Message:   "New RED alert: " + al.Title,
		CreatedAt: time.Now().Truncate(time.Microsecond).UTC(),
	}
	if err := s.CreateNotification(ctx, n); err != nil {
		t.Fatalf("CreateNotification: %v", err)
	}

	unread, err := s.ListNotifications(ctx, user, true)
	if err != nil {
		t.Fatalf("ListNotifications: %v", err)
	}
	if len(unread) != 1 {
		t.Fatalf("unread = %d, want 1", len(unread))
	}
	assertEqual(t, "joined title", al.Title, unread[0].AlertTitle)
	assertEqual(t, "joined impact", alert.ImpactRed, unread[0].ImpactLevel)

	if err := s.MarkNotificationRead(ctx, n.ID); err != nil {
		t.Fatalf("MarkNotificationRead: %v", err)
	}
	unread, err = s.ListNotifications(ctx, user, true)
	if err != nil {
		t.Fatalf("ListNotifications after mark: %v", err)
	}
	if len(unread) != 0 {
		t.Errorf("unread after mark = %d, want 0", len(unread))
	}
}

func TestSetSummary(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	al := newAlert(alert.ImpactGreen, 20)
	if err := s.CreateAlert(ctx, al, nil, nil, nil); err != nil {
		t.Fatalf("CreateAlert: %v", err)
	}

	if err := s.SetSummary(ctx, al.ID, "brief telemetry gap, recovered"); err != nil {
		t.Fatalf("SetSummary: %v", err)
	}
	got, _, err := s.GetAlert(ctx, al.ID)
	if err != nil {
		t.Fatalf("GetAlert: %v", err)
	}
	assertEqual(t, "Summary", "brief telemetry gap, recovered", got.Summary)

	if err := s.SetSummary(ctx, "nonexistent-id", "x"); err != review.ErrNotFound {
		t.Errorf("SetSummary missing: err = %v, want ErrNotFound", err)
	}
}

func assertEqual[T comparable](t *testing.T, field string, want, got T) {
	t.Helper()
	if want != got {
		t.Errorf("%s: got %v, want %v", field, got, want)
	}
}
