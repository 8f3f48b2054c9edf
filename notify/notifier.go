// Package notify delivers alert payloads to configured channels. Email and
// webhook are supported; both are best-effort and independently failable.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"logwarden/core"
	"logwarden/metrics"

	"go.uber.org/zap"
)

// SMTPConfig holds the shared mail transport settings. Recipients come from
// each channel descriptor, not from here.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Notifier sends alert payloads to one channel at a time. Failures are
// returned to the caller, which isolates them per channel; sibling channels
// and suppression bookkeeping are unaffected.
type Notifier struct {
	smtp       SMTPConfig
	httpClient *http.Client
	sendMail   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	logger     *zap.SugaredLogger
}

// NewNotifier creates a notifier with a bounded-timeout HTTP client for
// webhook delivery.
func NewNotifier(smtpCfg SMTPConfig, logger *zap.SugaredLogger) *Notifier {
	return &Notifier{
		smtp: smtpCfg,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		sendMail: smtp.SendMail,
		logger:   logger,
	}
}

// Dispatch sends the payload to a single channel descriptor.
func (n *Notifier) Dispatch(ctx context.Context, ref core.ChannelRef, payload core.AlertPayload) error {
	var err error
	switch ref.Type {
	case core.ChannelEmail:
		err = n.sendEmail(ref.Recipients, payload)
	case core.ChannelWebhook:
		err = n.sendWebhook(ctx, ref.URL, payload)
	default:
		err = fmt.Errorf("unknown notification channel type %q", ref.Type)
	}
	if err != nil {
		metrics.NotificationFailures.WithLabelValues(ref.Type).Inc()
		return err
	}
	metrics.NotificationsSent.WithLabelValues(ref.Type).Inc()
	return nil
}

func (n *Notifier) sendEmail(recipients []string, payload core.AlertPayload) error {
	if len(recipients) == 0 {
		return fmt.Errorf("no recipients specified for email notification")
	}
	if n.smtp.Host == "" {
		return fmt.Errorf("smtp transport is not configured")
	}

	subject := fmt.Sprintf("[%s] Security alert: %s", payload.Severity, payload.RuleName)
	body := formatEmailBody(payload)

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", n.smtp.From)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(recipients, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%d", n.smtp.Host, n.smtp.Port)
	var auth smtp.Auth
	if n.smtp.Username != "" {
		auth = smtp.PlainAuth("", n.smtp.Username, n.smtp.Password, n.smtp.Host)
	}
	if err := n.sendMail(addr, auth, n.smtp.From, recipients, []byte(msg.String())); err != nil {
		return fmt.Errorf("failed to send email alert: %w", err)
	}
	return nil
}

func (n *Notifier) sendWebhook(ctx context.Context, url string, payload core.AlertPayload) error {
	if url == "" {
		return fmt.Errorf("no URL specified for webhook notification")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "logwarden-notifier/1.0")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func formatEmailBody(payload core.AlertPayload) string {
	var b strings.Builder
	b.WriteString("<h2>Security Alert</h2>")
	fmt.Fprintf(&b, "<p><b>Rule:</b> %s (#%d)</p>", html.EscapeString(payload.RuleName), payload.RuleID)
	fmt.Fprintf(&b, "<p><b>Severity:</b> %s</p>", html.EscapeString(payload.Severity))
	if payload.Log != nil {
		fmt.Fprintf(&b, "<p><b>Action:</b> %s</p>", html.EscapeString(payload.Log.Action))
		fmt.Fprintf(&b, "<p><b>Actor:</b> %s</p>", html.EscapeString(payload.Log.ActorID))
		if payload.Log.IPAddress != "" {
			fmt.Fprintf(&b, "<p><b>Source IP:</b> %s</p>", html.EscapeString(payload.Log.IPAddress))
		}
		fmt.Fprintf(&b, "<p><b>Correlation:</b> %s</p>", html.EscapeString(payload.Log.CorrelationID))
		fmt.Fprintf(&b, "<p><b>Time:</b> %s</p>", payload.Log.CreatedAt.Format(time.RFC3339))
	}
	return b.String()
}
