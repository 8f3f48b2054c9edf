package core

import (
	"encoding/json"
	"time"
)

// Notification channel types.
const (
	ChannelEmail   = "email"
	ChannelWebhook = "webhook"
)

// ChannelRef is one delivery target configured on an alert rule. Rules store
// the full descriptor rather than a foreign key so a rule keeps firing the
// way it was configured even if the channel registry entry changes.
type ChannelRef struct {
	Type       string   `json:"type"`
	Recipients []string `json:"recipients,omitempty"`
	URL        string   `json:"url,omitempty"`
}

// AlertRule is a user-defined condition tree plus notification fan-out,
// evaluated against every ingested log entry while enabled.
type AlertRule struct {
	ID                int64           `json:"id"`
	Name              string          `json:"rule_name"`
	Conditions        json.RawMessage `json:"conditions"`
	Channels          []ChannelRef    `json:"notification_channels"`
	Enabled           bool            `json:"enabled"`
	SeverityThreshold string          `json:"severity_threshold,omitempty"`
	CreatedBy         string          `json:"created_by,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Condition decodes the stored condition document. A document that fails to
// decode yields a nil condition; callers treat that as a non-match.
func (r *AlertRule) Condition() (*Condition, error) {
	var cond Condition
	if err := json.Unmarshal(r.Conditions, &cond); err != nil {
		return nil, err
	}
	return &cond, nil
}

// AlertPayload is the notification body fanned out when a rule triggers.
// Log is nil for synthetic test fires without a persisted entry.
type AlertPayload struct {
	RuleID   int64          `json:"rule_id"`
	RuleName string         `json:"rule_name,omitempty"`
	Severity string         `json:"severity"`
	Log      *LogEntry      `json:"log,omitempty"`
	Event    *SecurityEvent `json:"event,omitempty"`
}

// NotificationChannel is a registry entry for a delivery target. The Config
// document holds type-specific settings (recipients, URL, headers).
type NotificationChannel struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	Config    json.RawMessage `json:"config"`
	Enabled   bool            `json:"enabled"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
