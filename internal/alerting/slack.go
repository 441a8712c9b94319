package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/falconmind/clustercenter/pkg/events"
	"go.uber.org/zap"
)

// SlackAdapter sends notifications to Slack via webhooks
type SlackAdapter struct {
	webhookURL string
	channel    string
	client     *http.Client
	logger     *zap.Logger
}

// SlackWebhookPayload represents a Slack webhook message
type SlackWebhookPayload struct {
	Channel  string       `json:"channel,omitempty"`
	Username string       `json:"username,omitempty"`
	IconURL  string       `json:"icon_url,omitempty"`
	Blocks   []SlackBlock `json:"blocks,omitempty"`
	Text     string       `json:"text,omitempty"` // Fallback text
}

// SlackBlock represents a Slack Block Kit block
type SlackBlock struct {
	Type string                 `json:"type"`
	Text *SlackTextObject       `json:"text,omitempty"`
	Fields []SlackTextObject    `json:"fields,omitempty"`
	Accessory interface{}       `json:"accessory,omitempty"`
}

// SlackTextObject represents a text object in Slack
type SlackTextObject struct {
	Type string `json:"type"` // "plain_text" or "mrkdwn"
	Text string `json:"text"`
	Emoji bool  `json:"emoji,omitempty"`
}

// NewSlackAdapter creates a new Slack notification adapter
func NewSlackAdapter(webhookURL, channel string, logger *zap.Logger) *SlackAdapter {
	return &SlackAdapter{
		webhookURL: webhookURL,
		channel:    channel,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// Send sends a notification to Slack
func (s *SlackAdapter) Send(ctx context.Context, event events.Event) error {
	blocks := s.formatEvent(event)

	payload := SlackWebhookPayload{
		Channel:  s.channel,
		Username: "Fleet Alerting",
		IconURL:  "https://example.invalid/icon.png", // Optional: replace with your icon
		Blocks:   blocks,
		Text:     fmt.Sprintf("Event: %s", event.Type), // Fallback text
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.webhookURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send slack webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}

	return nil
}


// formatEvent converts an event into Slack blocks
func (s *SlackAdapter) formatEvent(event events.Event) []SlackBlock {
	switch event.Type {
	case events.EventAlertTriggered:
		return s.formatAlertTriggered(event)
	case events.EventAlertResolved:
		return s.formatAlertResolved(event)
	default:
		return s.formatGeneric(event)
	}
}

func (s *SlackAdapter) formatAlertTriggered(event events.Event) []SlackBlock {
	return []SlackBlock{
		{
			Type: "header",
			Text: &SlackTextObject{Type: "plain_text", Text: "🚨 Alert Triggered", Emoji: true},
		},
		{
			Type: "section",
			Fields: []SlackTextObject{
				{Type: "mrkdwn", Text: fmt.Sprintf("*Rule:*\n%s", getStringField(event.Payload, "rule_name"))},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Metric:*\n%s", getStringField(event.Payload, "metric"))},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Value:*\n%v", event.Payload["value"])},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Severity:*\n%s", getStringField(event.Payload, "severity"))},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Node:*\n`%s`", event.NodeID)},
			},
		},
		{
			Type: "context",
			Fields: []SlackTextObject{
				{Type: "mrkdwn", Text: event.Timestamp.Format(time.RFC3339)},
			},
		},
	}
}

func (s *SlackAdapter) formatAlertResolved(event events.Event) []SlackBlock {
	return []SlackBlock{
		{
			Type: "header",
			Text: &SlackTextObject{Type: "plain_text", Text: "✅ Alert Resolved", Emoji: true},
		},
		{
			Type: "section",
			Fields: []SlackTextObject{
				{Type: "mrkdwn", Text: fmt.Sprintf("*Rule:*\n%s", getStringField(event.Payload, "rule_name"))},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Node:*\n`%s`", event.NodeID)},
			},
		},
	}
}

func (s *SlackAdapter) formatGeneric(event events.Event) []SlackBlock {
	return []SlackBlock{
		{
			Type: "header",
			Text: &SlackTextObject{Type: "plain_text", Text: fmt.Sprintf("📬 Event: %s", event.Type), Emoji: true},
		},
		{
			Type: "section",
			Fields: []SlackTextObject{
				{Type: "mrkdwn", Text: fmt.Sprintf("*Event ID:*\n`%s`", event.ID)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Node ID:*\n`%s`", event.NodeID)},
			},
		},
	}
}
