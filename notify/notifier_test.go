package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"testing"

	"logwarden/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func alertPayload() core.AlertPayload {
	return core.AlertPayload{
		RuleID:   7,
		RuleName: "bulk deletes",
		Severity: core.SeverityHigh,
		Log: &core.LogEntry{
			ID:            42,
			ActorID:       "alice",
			Action:        "USER_DELETE",
			IPAddress:     "10.0.0.1",
			CorrelationID: "corr-1",
		},
	}
}

func TestDispatch_WebhookPostsJSONPayload(t *testing.T) {
	var gotBody core.AlertPayload
	var gotContentType, gotUserAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotUserAgent = r.Header.Get("User-Agent")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n := NewNotifier(SMTPConfig{}, zap.NewNop().Sugar())
	err := n.Dispatch(context.Background(), core.ChannelRef{Type: core.ChannelWebhook, URL: srv.URL}, alertPayload())
	require.NoError(t, err)

	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "logwarden-notifier/1.0", gotUserAgent)
	assert.Equal(t, int64(7), gotBody.RuleID)
	assert.Equal(t, "corr-1", gotBody.Log.CorrelationID)
}

func TestDispatch_WebhookNon2xxIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewNotifier(SMTPConfig{}, zap.NewNop().Sugar())
	err := n.Dispatch(context.Background(), core.ChannelRef{Type: core.ChannelWebhook, URL: srv.URL}, alertPayload())
	assert.ErrorContains(t, err, "status 500")
}

func TestDispatch_WebhookRequiresURL(t *testing.T) {
	n := NewNotifier(SMTPConfig{}, zap.NewNop().Sugar())
	err := n.Dispatch(context.Background(), core.ChannelRef{Type: core.ChannelWebhook}, alertPayload())
	assert.Error(t, err)
}

func TestDispatch_EmailBuildsMessageAndUsesTransport(t *testing.T) {
	n := NewNotifier(SMTPConfig{
		Host: "mail.example.test",
		Port: 587,
		From: "alerts@example.test",
	}, zap.NewNop().Sugar())

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	n.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	ref := core.ChannelRef{Type: core.ChannelEmail, Recipients: []string{"ops@example.test"}}
	require.NoError(t, n.Dispatch(context.Background(), ref, alertPayload()))

	assert.Equal(t, "mail.example.test:587", gotAddr)
	assert.Equal(t, "alerts@example.test", gotFrom)
	assert.Equal(t, []string{"ops@example.test"}, gotTo)
	assert.Contains(t, string(gotMsg), "Subject: [high] Security alert: bulk deletes")
	assert.Contains(t, string(gotMsg), "USER_DELETE")
	assert.Contains(t, string(gotMsg), "corr-1")
}

func TestDispatch_EmailEscapesPayloadHTML(t *testing.T) {
	n := NewNotifier(SMTPConfig{Host: "mail.example.test", Port: 25, From: "a@b"}, zap.NewNop().Sugar())

	var gotMsg []byte
	n.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotMsg = msg
		return nil
	}

	payload := alertPayload()
	payload.Log.ActorID = `<script>alert("x")</script>`
	ref := core.ChannelRef{Type: core.ChannelEmail, Recipients: []string{"ops@example.test"}}
	require.NoError(t, n.Dispatch(context.Background(), ref, payload))

	assert.NotContains(t, string(gotMsg), "<script>")
	assert.Contains(t, string(gotMsg), "&lt;script&gt;")
}

func TestDispatch_EmailTransportFailurePropagates(t *testing.T) {
	n := NewNotifier(SMTPConfig{Host: "mail.example.test", Port: 25, From: "a@b"}, zap.NewNop().Sugar())
	n.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		return errors.New("connection refused")
	}

	ref := core.ChannelRef{Type: core.ChannelEmail, Recipients: []string{"ops@example.test"}}
	err := n.Dispatch(context.Background(), ref, alertPayload())
	assert.ErrorContains(t, err, "connection refused")
}

func TestDispatch_EmailWithoutRecipientsOrTransport(t *testing.T) {
	n := NewNotifier(SMTPConfig{Host: "mail.example.test"}, zap.NewNop().Sugar())
	err := n.Dispatch(context.Background(), core.ChannelRef{Type: core.ChannelEmail}, alertPayload())
	assert.Error(t, err, "no recipients")

	unconfigured := NewNotifier(SMTPConfig{}, zap.NewNop().Sugar())
	err = unconfigured.Dispatch(context.Background(), core.ChannelRef{
		Type:       core.ChannelEmail,
		Recipients: []string{"ops@example.test"},
	}, alertPayload())
	assert.ErrorContains(t, err, "not configured")
}

func TestDispatch_UnknownChannelType(t *testing.T) {
	n := NewNotifier(SMTPConfig{}, zap.NewNop().Sugar())
	err := n.Dispatch(context.Background(), core.ChannelRef{Type: "sms"}, alertPayload())
	assert.ErrorContains(t, err, "unknown notification channel type")
}
