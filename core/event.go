package core

import "time"

// SecurityEvent is a persisted record of a detected threat or a triggered
// alert. LogID is a weak reference: synthetic events (rule test fires) carry
// none. Events are never deleted; Resolve is the only mutation.
type SecurityEvent struct {
	ID            int64      `json:"id"`
	LogID         *int64     `json:"log_id,omitempty"`
	EventType     string     `json:"event_type"`
	ThreatLevel   string     `json:"threat_level"`
	DetectionRule string     `json:"detection_rule,omitempty"`
	CorrelationID string     `json:"correlation_id,omitempty"`
	Resolution    string     `json:"resolution,omitempty"`
	FalsePositive bool       `json:"false_positive"`
	ResolvedBy    string     `json:"resolved_by,omitempty"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Resolved reports whether the event has been resolved.
func (ev *SecurityEvent) Resolved() bool {
	return ev.ResolvedAt != nil
}
