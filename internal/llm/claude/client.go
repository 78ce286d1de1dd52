// Package claude generates operator-facing alert summaries with the
// Anthropic API.
package claude

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/linnemanlabs/ward/internal/alert"
)

const systemPrompt = `You summarize infrastructure security alerts for plant operators.
Write 2-3 plain sentences: what is affected, why it matters, and how urgent it is.
No markdown, no headings, no speculation beyond the provided fields.`

const maxTokens = 512

// Client is a Summarizer backed by the Claude messages API.
type Client struct {
	client anthropic.Client
	model  anthropic.Model
}

// New creates a Claude client. Extra request options are mainly for tests
// (base URL override, custom http client).
func New(apiKey, model string, opts ...option.RequestOption) *Client {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Client{
		client: anthropic.NewClient(opts...),
		model:  anthropic.Model(model),
	}
}

// Summarize produces a short operator summary for one alert.
func (c *Client) Summarize(ctx context.Context, al *alert.Alert) (string, error) {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(alertPrompt(al))),
		},
	})
	if err != nil {
		return "", fmt.Errorf("claude message: %w", err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}

	summary := strings.TrimSpace(b.String())
	if summary == "" {
		return "", fmt.Errorf("claude response had no text content (stop_reason=%s)", msg.StopReason)
	}
	return summary, nil
}

// alertPrompt flattens the alert into the user message. Only fields the
// operator would see go in; relevance and lifecycle state stay out.
func alertPrompt(al *alert.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", al.Title)
	fmt.Fprintf(&b, "Impact: %s (score %.1f)\n", al.ImpactLevel, al.TotalScore)
	if al.SystemName != "" {
		fmt.Fprintf(&b, "System: %s\n", al.SystemName)
	}
	if al.AffectedFunction != "" {
		fmt.Fprintf(&b, "Affected function: %s\n", al.AffectedFunction)
	}
	if al.ImpactDescription != "" {
		fmt.Fprintf(&b, "Impact description: %s\n", al.ImpactDescription)
	}
	if al.CVEID != "" {
		fmt.Fprintf(&b, "CVE: %s\n", al.CVEID)
	}
	if al.Description != "" {
		fmt.Fprintf(&b, "Details: %s\n", al.Description)
	}
	return b.String()
}
