package alerting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func baseValidConfig() *Config {
	return &Config{
		Enabled:          true,
		DiscordEnabled:   true,
		DiscordWebhookURL: "https://discord.example/webhook",
		MaxRetries:       3,
		RetryBackoffBase: time.Second,
		RetryQueueSize:   10,
	}
}

func TestConfigValidateSkipsChecksWhenDisabled(t *testing.T) {
	cfg := &Config{Enabled: false}
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidateRequiresAtLeastOneChannel(t *testing.T) {
	cfg := baseValidConfig()
	cfg.DiscordEnabled = false
	assert.Error(t, cfg.Validate())
}

func TestConfigValidateRequiresDiscordWebhookURLWhenEnabled(t *testing.T) {
	cfg := baseValidConfig()
	cfg.DiscordWebhookURL = ""
	assert.Error(t, cfg.Validate())
}

func TestConfigValidateRequiresEmailFieldsWhenEnabled(t *testing.T) {
	cfg := baseValidConfig()
	cfg.EmailEnabled = true
	assert.Error(t, cfg.Validate(), "missing resend API key should fail validation")

	cfg.ResendAPIKey = "re_test"
	cfg.EmailFrom = "noreply@example.com"
	cfg.EmailTo = nil
	assert.Error(t, cfg.Validate(), "missing recipients should fail validation")

	cfg.EmailTo = []string{"ops@example.com"}
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidateRejectsUnsupportedWebhookMethod(t *testing.T) {
	cfg := baseValidConfig()
	cfg.WebhookEnabled = true
	cfg.WebhookURL = "https://hooks.example/endpoint"
	cfg.WebhookMethod = "GET"
	assert.Error(t, cfg.Validate())

	cfg.WebhookMethod = "POST"
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidateRejectsBadRetrySettings(t *testing.T) {
	cfg := baseValidConfig()
	cfg.MaxRetries = -1
	assert.Error(t, cfg.Validate())

	cfg = baseValidConfig()
	cfg.RetryBackoffBase = 0
	assert.Error(t, cfg.Validate())

	cfg = baseValidConfig()
	cfg.RetryQueueSize = 0
	assert.Error(t, cfg.Validate())
}

func TestGetChannelsForEventUsesExplicitRoutingWhenPresent(t *testing.T) {
	cfg := baseValidConfig()
	cfg.SlackEnabled = true
	cfg.EventRouting = map[string][]string{"alert.triggered": {"slack"}}

	assert.Equal(t, []string{"slack"}, cfg.GetChannelsForEvent("alert.triggered"))
}

func TestGetChannelsForEventFallsBackToEveryEnabledChannel(t *testing.T) {
	cfg := baseValidConfig()
	cfg.SlackEnabled = true
	cfg.WebhookEnabled = true
	cfg.WebhookURL = "https://hooks.example/endpoint"
	cfg.WebhookMethod = "POST"

	got := cfg.GetChannelsForEvent("alert.unrouted")
	assert.ElementsMatch(t, []string{"discord", "slack", "webhook"}, got)
}
