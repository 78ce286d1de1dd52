// Package slack sends escalation notices to Slack via incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/linnemanlabs/ward/internal/alert"
	"github.com/linnemanlabs/ward/internal/review"
)

const (
	maxNotesLen = 3000
	httpTimeout = 10 * time.Second
)

// Notifier posts escalated alerts to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
}

// New creates a new Slack notifier. If webhookURL is empty, Escalated is a no-op.
func New(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
	}
}

// Escalated posts an escalation notice to the configured Slack webhook.
// If no webhook URL is configured, it returns nil immediately.
func (n *Notifier) Escalated(ctx context.Context, al *alert.Alert, d *review.Decision) error {
	if n.webhookURL == "" {
		return nil
	}

	msg := buildMessage(al, d)

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func buildMessage(al *alert.Alert, d *review.Decision) map[string]any {
	return map[string]any{
		"blocks": []map[string]any{
			headerBlock(al),
			{"type": "divider"},
			fieldsBlock(al, d),
			{"type": "divider"},
			notesBlock(d),
			{"type": "divider"},
			contextBlock(d),
		},
	}
}

func headerBlock(al *alert.Alert) map[string]any {
	text := fmt.Sprintf("%s Escalated: %s", impactEmoji(al.ImpactLevel), al.Title)

	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": text,
		},
	}
}

func fieldsBlock(al *alert.Alert, d *review.Decision) map[string]any {
	fields := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Impact:* %s", al.ImpactLevel),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Score:* %.1f", d.Snapshot.TotalScore),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Decided by:* %s", d.UserID),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*System:* %s", orDash(al.SystemName)),
		},
	}
	if al.CVEID != "" {
		fields = append(fields, map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*CVE:* %s", al.CVEID),
		})
	}

	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func notesBlock(d *review.Decision) map[string]any {
	text := truncate(d.Notes, maxNotesLen)
	if text == "" {
		text = "_No notes provided._"
	}

	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Notes*\n\n%s", text),
		},
	}
}

func contextBlock(d *review.Decision) map[string]any {
	elements := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("ward • decision %s • %s", d.ID, d.DecidedAt.UTC().Format("2006-01-02 15:04 UTC")),
		},
	}

	return map[string]any{
		"type":     "context",
		"elements": elements,
	}
}

func impactEmoji(l alert.ImpactLevel) string {
	switch l {
	case alert.ImpactRed:
		return "\U0001f534" // red circle
	case alert.ImpactYellow:
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e2" // green circle
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
