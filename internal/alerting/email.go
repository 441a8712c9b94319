package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/falconmind/clustercenter/pkg/events"
	"go.uber.org/zap"
)

// EmailAdapter sends notifications via email using Resend
type EmailAdapter struct {
	from    string
	to      []string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

// ResendEmailRequest represents a Resend API email request
type ResendEmailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text,omitempty"`
}

// ResendEmailResponse represents a Resend API response
type ResendEmailResponse struct {
	ID string `json:"id"`
}

// NewEmailAdapter creates a new Email notification adapter using Resend
func NewEmailAdapter(from string, to []string, apiKey string, logger *zap.Logger) (*EmailAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("resend API key is required")
	}

	return &EmailAdapter{
		from:   from,
		to:     to,
		apiKey: apiKey,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}, nil
}

// Send sends an email notification using Resend
func (e *EmailAdapter) Send(ctx context.Context, event events.Event) error {
	subject, htmlBody, textBody := e.formatEvent(event)

	emailReq := ResendEmailRequest{
		From:    e.from,
		To:      e.to,
		Subject: subject,
		HTML:    htmlBody,
		Text:    textBody,
	}

	jsonData, err := json.Marshal(emailReq)
	if err != nil {
		return fmt.Errorf("failed to marshal email request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", "https://api.resend.com/emails", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", e.apiKey))

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send email via resend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("resend API returned status %d", resp.StatusCode)
	}

	var resendResp ResendEmailResponse
	if err := json.NewDecoder(resp.Body).Decode(&resendResp); err != nil {
		return fmt.Errorf("failed to decode resend response: %w", err)
	}

	e.logger.Info("email sent via resend",
		zap.String("email_id", resendResp.ID),
		zap.String("event_id", event.ID),
	)

	return nil
}


// formatEvent converts an event into email subject and body
func (e *EmailAdapter) formatEvent(event events.Event) (subject, htmlBody, textBody string) {
	switch event.Type {
	case events.EventAlertTriggered:
		return e.formatAlertTriggered(event)
	case events.EventAlertResolved:
		return e.formatAlertResolved(event)
	default:
		return e.formatGeneric(event)
	}
}

func (e *EmailAdapter) formatAlertTriggered(event events.Event) (string, string, string) {
	rule := getStringField(event.Payload, "rule_name")
	metric := getStringField(event.Payload, "metric")
	severity := getStringField(event.Payload, "severity")

	subject := fmt.Sprintf("🚨 Alert Triggered: %s", rule)
	html := fmt.Sprintf(`
		<html><body>
			<h2>Alert Triggered</h2>
			<p><strong>Rule:</strong> %s</p>
			<p><strong>Metric:</strong> %s</p>
			<p><strong>Value:</strong> %v</p>
			<p><strong>Severity:</strong> %s</p>
			<p><strong>Node:</strong> %s</p>
		</body></html>
	`, rule, metric, event.Payload["value"], severity, event.NodeID)
	text := fmt.Sprintf("Alert Triggered\nRule: %s\nMetric: %s\nValue: %v\nSeverity: %s\nNode: %s",
		rule, metric, event.Payload["value"], severity, event.NodeID)

	return subject, html, text
}

func (e *EmailAdapter) formatAlertResolved(event events.Event) (string, string, string) {
	rule := getStringField(event.Payload, "rule_name")

	subject := fmt.Sprintf("✅ Alert Resolved: %s", rule)
	html := fmt.Sprintf(`
		<html><body>
			<h2>Alert Resolved</h2>
			<p><strong>Rule:</strong> %s</p>
			<p><strong>Node:</strong> %s</p>
		</body></html>
	`, rule, event.NodeID)
	text := fmt.Sprintf("Alert Resolved\nRule: %s\nNode: %s", rule, event.NodeID)

	return subject, html, text
}

func (e *EmailAdapter) formatGeneric(event events.Event) (string, string, string) {
	subject := fmt.Sprintf("📬 Event: %s", event.Type)
	html := fmt.Sprintf(`
		<html><body>
			<h2>Event: %s</h2>
			<p><strong>Event ID:</strong> %s</p>
			<p><strong>Node ID:</strong> %s</p>
		</body></html>
	`, event.Type, event.ID, event.NodeID)
	text := fmt.Sprintf("Event: %s\nEvent ID: %s\nNode ID: %s", event.Type, event.ID, event.NodeID)

	return subject, html, text
}

// renderTemplate renders an HTML template for richer email bodies.
func renderTemplate(tmpl string, data interface{}) (string, error) {
	t, err := template.New("email").Parse(tmpl)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}
