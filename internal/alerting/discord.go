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

// DiscordAdapter sends notifications to Discord via webhooks
type DiscordAdapter struct {
	webhookURL string
	client     *http.Client
	logger     *zap.Logger
}

// DiscordWebhookPayload represents a Discord webhook message
type DiscordWebhookPayload struct {
	Content string          `json:"content,omitempty"`
	Embeds  []DiscordEmbed  `json:"embeds,omitempty"`
}

// DiscordEmbed represents a Discord embed
type DiscordEmbed struct {
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	Color       int                 `json:"color,omitempty"`
	Fields      []DiscordEmbedField `json:"fields,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
	Footer      *DiscordEmbedFooter `json:"footer,omitempty"`
}

// DiscordEmbedField represents a field in a Discord embed
type DiscordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// DiscordEmbedFooter represents the footer of a Discord embed
type DiscordEmbedFooter struct {
	Text string `json:"text"`
}

// Discord color constants
const (
	DiscordColorGreen  = 3066993  // Success (green)
	DiscordColorBlue   = 3447003  // Info (blue)
	DiscordColorYellow = 16776960 // Warning (yellow)
	DiscordColorRed    = 15158332 // Error (red)
	DiscordColorPurple = 10181046 // Special (purple)
)

// NewDiscordAdapter creates a new Discord notification adapter
func NewDiscordAdapter(webhookURL string, logger *zap.Logger) *DiscordAdapter {
	return &DiscordAdapter{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// Send sends a notification to Discord
func (d *DiscordAdapter) Send(ctx context.Context, event events.Event) error {
	embed := d.formatEvent(event)

	payload := DiscordWebhookPayload{
		Embeds: []DiscordEmbed{embed},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", d.webhookURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send discord webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("discord webhook returned status %d", resp.StatusCode)
	}

	return nil
}


// formatEvent converts an event into a Discord embed
func (d *DiscordAdapter) formatEvent(event events.Event) DiscordEmbed {
	switch event.Type {
	case events.EventAlertTriggered:
		return d.formatAlertTriggered(event)
	case events.EventAlertResolved:
		return d.formatAlertResolved(event)
	default:
		return d.formatGeneric(event)
	}
}

func (d *DiscordAdapter) formatAlertTriggered(event events.Event) DiscordEmbed {
	return DiscordEmbed{
		Title:       "🚨 Alert Triggered",
		Description: "A monitoring rule has fired.",
		Color:       DiscordColorRed,
		Fields: []DiscordEmbedField{
			{Name: "Rule", Value: getStringField(event.Payload, "rule_name"), Inline: true},
			{Name: "Metric", Value: getStringField(event.Payload, "metric"), Inline: true},
			{Name: "Value", Value: fmt.Sprintf("%v", event.Payload["value"]), Inline: true},
			{Name: "Severity", Value: getStringField(event.Payload, "severity"), Inline: true},
			{Name: "Node", Value: event.NodeID, Inline: false},
		},
		Timestamp: event.Timestamp.Format(time.RFC3339),
		Footer:    &DiscordEmbedFooter{Text: "Fleet Alerting"},
	}
}

func (d *DiscordAdapter) formatAlertResolved(event events.Event) DiscordEmbed {
	return DiscordEmbed{
		Title:       "✅ Alert Resolved",
		Description: "A previously triggered rule is no longer firing.",
		Color:       DiscordColorGreen,
		Fields: []DiscordEmbedField{
			{Name: "Rule", Value: getStringField(event.Payload, "rule_name"), Inline: true},
			{Name: "Node", Value: event.NodeID, Inline: false},
		},
		Timestamp: event.Timestamp.Format(time.RFC3339),
		Footer:    &DiscordEmbedFooter{Text: "Fleet Alerting"},
	}
}

func (d *DiscordAdapter) formatGeneric(event events.Event) DiscordEmbed {
	return DiscordEmbed{
		Title:       fmt.Sprintf("📬 Event: %s", event.Type),
		Description: "A new event occurred in the fleet control plane.",
		Color:       DiscordColorBlue,
		Fields: []DiscordEmbedField{
			{Name: "Event ID", Value: event.ID, Inline: true},
			{Name: "Node ID", Value: event.NodeID, Inline: true},
		},
		Timestamp: event.Timestamp.Format(time.RFC3339),
		Footer:    &DiscordEmbedFooter{Text: "Fleet Alerting"},
	}
}

// getStringField safely extracts a string field from a payload map.
func getStringField(payload map[string]interface{}, key string) string {
	if val, ok := payload[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
		return fmt.Sprintf("%v", val)
	}
	return "N/A"
}
