package alerting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewEmailAdapterRequiresAPIKey(t *testing.T) {
	_, err := NewEmailAdapter("alerts@example.com", []string{"ops@example.com"}, "", zap.NewNop())
	assert.Error(t, err)
}

func TestNewEmailAdapterSucceedsWithAPIKey(t *testing.T) {
	adapter, err := NewEmailAdapter("alerts@example.com", []string{"ops@example.com"}, "re_test_key", zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, adapter)
}

func TestFormatEventProducesRuleAndNodeContentForEachEventType(t *testing.T) {
	adapter, err := NewEmailAdapter("alerts@example.com", []string{"ops@example.com"}, "re_test_key", zap.NewNop())
	require.NoError(t, err)

	triggered := testAlertEvent()
	subject, html, text := adapter.formatEvent(triggered)
	assert.Contains(t, subject, "Alert Triggered")
	assert.Contains(t, html, "battery-low")
	assert.Contains(t, text, "critical")

	resolved := testAlertEvent()
	resolved.Type = "alert.resolved"
	subject, html, _ = adapter.formatEvent(resolved)
	assert.Contains(t, subject, "Alert Resolved")
	assert.Contains(t, html, "battery-low")
}

func TestRenderTemplateExecutesAgainstData(t *testing.T) {
	out, err := renderTemplate("hello {{.Name}}", struct{ Name string }{Name: "fleet"})
	require.NoError(t, err)
	assert.Equal(t, "hello fleet", out)
}

func TestRenderTemplateReturnsErrorOnMalformedTemplate(t *testing.T) {
	_, err := renderTemplate("hello {{.Name", nil)
	assert.Error(t, err)
}
