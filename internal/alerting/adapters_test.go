package alerting

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/falconmind/clustercenter/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testAlertEvent() events.Event {
	return events.NewEvent(events.EventAlertTriggered, "node-1", map[string]interface{}{
		"rule_name": "battery-low",
		"metric":    "battery_pct",
		"value":     12.5,
		"severity":  "critical",
	})
}

func TestDiscordAdapterSendsEmbedPayload(t *testing.T) {
	var captured DiscordWebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	adapter := NewDiscordAdapter(srv.URL, zap.NewNop())
	err := adapter.Send(context.Background(), testAlertEvent())
	require.NoError(t, err)

	require.Len(t, captured.Embeds, 1)
	assert.Equal(t, DiscordColorRed, captured.Embeds[0].Color)
}

func TestDiscordAdapterReturnsErrorOnNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	adapter := NewDiscordAdapter(srv.URL, zap.NewNop())
	err := adapter.Send(context.Background(), testAlertEvent())
	assert.Error(t, err)
}

func TestSlackAdapterSendsChannelAndBlocks(t *testing.T) {
	var captured SlackWebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	adapter := NewSlackAdapter(srv.URL, "#alerts", zap.NewNop())
	err := adapter.Send(context.Background(), testAlertEvent())
	require.NoError(t, err)

	assert.Equal(t, "#alerts", captured.Channel)
	assert.NotEmpty(t, captured.Blocks)
}

func TestWebhookAdapterSignsPayloadWhenSecretSet(t *testing.T) {
	const secret = "shh"
	var gotSig string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-FleetAlert-Signature")
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		gotBody = body
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	adapter := NewWebhookAdapter(srv.URL, secret, http.MethodPost, map[string]string{"X-Extra": "1"}, zap.NewNop())
	err := adapter.Send(context.Background(), testAlertEvent())
	require.NoError(t, err)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(gotBody)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	assert.Equal(t, expected, gotSig)
}

func TestWebhookAdapterOmitsSignatureWhenNoSecret(t *testing.T) {
	var gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-FleetAlert-Signature")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	adapter := NewWebhookAdapter(srv.URL, "", http.MethodPost, nil, zap.NewNop())
	err := adapter.Send(context.Background(), testAlertEvent())
	require.NoError(t, err)
	assert.Empty(t, gotSig)
}

func TestVerifySignatureMatchesSignAndRejectsTamperedPayload(t *testing.T) {
	payload := []byte(`{"hello":"world"}`)
	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write(payload)
	sig := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	assert.True(t, VerifySignature(payload, sig, "secret"))
	assert.False(t, VerifySignature([]byte(`{"hello":"mallory"}`), sig, "secret"))
}
