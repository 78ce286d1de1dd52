package review

import (
	"testing"
	"time"

	"github.com/linnemanlabs/ward/internal/alert"
)

func mkAlert(id string, impact alert.ImpactLevel, score float64, detected time.Time) alert.Alert {
	return alert.Alert{
		ID:          id,
		Title:       "alert " + id,
		ImpactLevel: impact,
		TotalScore:  score,
		Status:      alert.StatusActive,
		DetectedAt:  detected,
	}
}

func ids(alerts []alert.Alert) []string {
	out := make([]string, len(alerts))
	for i, al := range alerts {
		out[i] = al.ID
	}
	return out
}

func assertOrder(t *testing.T, got []alert.Alert, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("ranked %d alerts, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Fatalf("order = %v, want %v", ids(got), want)
		}
	}
}

func TestRank_SeverityDominatesScore(t *testing.T) {
	t.Parallel()

	now := time.Now()
	alerts := []alert.Alert{
		mkAlert("yellow-99", alert.ImpactYellow, 99, now),
		mkAlert("red-90", alert.ImpactRed, 90, now),
	}

	Rank(alerts)
	assertOrder(t, alerts, "red-90", "yellow-99")
}

func TestRank_ScoreBreaksTiesWithinBand(t *testing.T) {
	t.Parallel()

	now := time.Now()
	alerts := []alert.Alert{
		mkAlert("red-50", alert.ImpactRed, 50, now),
		mkAlert("red-80", alert.ImpactRed, 80, now),
		mkAlert("green-95", alert.ImpactGreen, 95, now),
		mkAlert("yellow-10", alert.ImpactYellow, 10, now),
	}

	Rank(alerts)
	assertOrder(t, alerts, "red-80", "red-50", "yellow-10", "green-95")
}

func TestRank_RecencyBreaksEqualScores(t *testing.T) {
	t.Parallel()

	now := time.Now()
	alerts := []alert.Alert{
		mkAlert("older", alert.ImpactRed, 70, now.Add(-time.Hour)),
		mkAlert("newer", alert.ImpactRed, 70, now),
	}

	Rank(alerts)
	assertOrder(t, alerts, "newer", "older")
}

func TestRank_UnknownImpactSortsLastNotDropped(t *testing.T) {
	t.Parallel()

	now := time.Now()
	alerts := []alert.Alert{
		mkAlert("mangled", alert.ImpactLevel("PURPLE"), 100, now),
		mkAlert("green", alert.ImpactGreen, 1, now),
		mkAlert("red", alert.ImpactRed, 1, now),
	}

	Rank(alerts)
	assertOrder(t, alerts, "red", "green", "mangled")
}

func TestRank_StableOnFullTies(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	alerts := []alert.Alert{
		mkAlert("a", alert.ImpactYellow, 42, ts),
		mkAlert("b", alert.ImpactYellow, 42, ts),
		mkAlert("c", alert.ImpactYellow, 42, ts),
	}

	// Repeated ranking over the same input must not reorder full ties.
	for range 3 {
		Rank(alerts)
		assertOrder(t, alerts, "a", "b", "c")
	}
}

func TestRanked_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	now := time.Now()
	in := []alert.Alert{
		mkAlert("green", alert.ImpactGreen, 1, now),
		mkAlert("red", alert.ImpactRed, 1, now),
	}

	out := Ranked(in)

	assertOrder(t, in, "green", "red")
	assertOrder(t, out, "red", "green")
}
