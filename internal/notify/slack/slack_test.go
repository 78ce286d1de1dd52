package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/linnemanlabs/ward/internal/alert"
	"github.com/linnemanlabs/ward/internal/review"
)

func TestEscalated_PostsToWebhook(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content-type = %q, want application/json", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(srv.URL)
	al := &alert.Alert{
		ID:          "01JN123",
		Title:       "Coolant pump firmware advisory",
		ImpactLevel: alert.ImpactRed,
		SystemName:  "coolant-loop-b",
		CVEID:       "CVE-2026-0042",
	}
	d := &review.Decision{
		ID:        "01JN456",
		AlertID:   al.ID,
		UserID:    "op1",
		Type:      review.DecisionEscalate,
		Notes:     "Paging controls engineering.",
		Snapshot:  review.ScoreSnapshot{TotalScore: 88.5},
		DecidedAt: time.Date(2026, 2, 26, 14, 23, 0, 0, time.UTC),
	}

	if err := n.Escalated(context.Background(), al, d); err != nil {
		t.Fatalf("Escalated: %v", err)
	}

	blocks, ok := got["blocks"].([]any)
	if !ok {
		t.Fatal("expected blocks array in payload")
	}

	// header, divider, fields, divider, notes, divider, context = 7 blocks
	if len(blocks) != 7 {
		t.Errorf("blocks count = %d, want 7", len(blocks))
	}

	header := blocks[0].(map[string]any)
	headerText := header["text"].(map[string]any)["text"].(string)
	if !strings.Contains(headerText, "Coolant pump firmware advisory") {
		t.Errorf("header text = %q, want to contain alert title", headerText)
	}
	if !strings.Contains(headerText, "\U0001f534") {
		t.Errorf("header should contain red circle for RED impact")
	}
}

func TestEscalated_NoOpWithoutURL(t *testing.T) {
	t.Parallel()

	n := New("")
	if err := n.Escalated(context.Background(), &alert.Alert{}, &review.Decision{}); err != nil {
		t.Fatalf("Escalated with empty URL should be no-op, got: %v", err)
	}
}

func TestEscalated_TruncatesLongNotes(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(srv.URL)
	err := n.Escalated(context.Background(),
		&alert.Alert{ID: "01JN456", ImpactLevel: alert.ImpactYellow},
		&review.Decision{ID: "01JN457", Notes: strings.Repeat("x", 4000)},
	)
	if err != nil {
		t.Fatalf("Escalated: %v", err)
	}

	blocks := got["blocks"].([]any)
	notesSection := blocks[4].(map[string]any)
	text := notesSection["text"].(map[string]any)["text"].(string)

	// Text includes the "*Notes*\n\n" prefix; the notes portion is what follows.
	if len(text) > maxNotesLen+len("*Notes*\n\n") {
		t.Errorf("notes text length = %d, expected <= %d", len(text), maxNotesLen+len("*Notes*\n\n"))
	}
	if !strings.HasSuffix(text, "...") {
		t.Error("expected truncated notes to end with ...")
	}
}

func TestImpactEmoji(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		impact alert.ImpactLevel
		want   string
	}{
		{"red", alert.ImpactRed, "\U0001f534"},
		{"yellow", alert.ImpactYellow, "\U0001f7e1"},
		{"green", alert.ImpactGreen, "\U0001f7e2"},
		{"unknown", alert.ImpactLevel("PURPLE"), "\U0001f7e2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := impactEmoji(tt.impact)
			if got != tt.want {
				t.Errorf("impactEmoji(%q) = %q, want %q", tt.impact, got, tt.want)
			}
		})
	}
}

func FuzzSlackBuild(f *testing.F) {
	f.Add("HighCPU", "RED", "paging on-call", "op1")
	f.Add("", "", "", "")
	f.Add("<@U123> mention", "YELLOW", "*bold* _italic_ ~strike~", "user")
	f.Add("alert\x00\x01\x02", "sev\nline", "notes\ttab", "u\x00ser")
	f.Add(strings.Repeat("A", 5000), "GREEN", strings.Repeat("x", 10000), "op")
	f.Add("test", "RED", "```code block``` and <http://example.com|link>", "op")

	f.Fuzz(func(t *testing.T, title, impact, notes, user string) {
		al := &alert.Alert{
			ID:          "fuzz-id",
			Title:       title,
			ImpactLevel: alert.ImpactLevel(impact),
		}
		d := &review.Decision{
			ID:        "fuzz-decision",
			UserID:    user,
			Notes:     notes,
			DecidedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		}

		// Must not panic
		msg := buildMessage(al, d)

		// Must produce valid JSON
		data, err := json.Marshal(msg)
		if err != nil {
			t.Fatalf("buildMessage produced non-marshalable output: %v", err)
		}

		// Must round-trip
		var decoded map[string]any
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("buildMessage JSON does not round-trip: %v", err)
		}

		blocks, ok := decoded["blocks"].([]any)
		if !ok {
			t.Fatal("expected blocks array")
		}
		if len(blocks) != 7 {
			t.Fatalf("blocks count = %d, want 7", len(blocks))
		}
	})
}

func TestEscalated_NonOKStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("internal error"))
	}))
	defer srv.Close()

	n := New(srv.URL)
	err := n.Escalated(context.Background(),
		&alert.Alert{ID: "01JN789", ImpactLevel: alert.ImpactGreen},
		&review.Decision{ID: "01JN790"},
	)
	if err == nil {
		t.Fatal("expected error on non-OK status")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("error = %q, want to contain status code 500", err.Error())
	}
}
