package core

import (
	"time"

	"github.com/google/uuid"
)

// GeoLocation holds optional geo enrichment attached to a log entry.
type GeoLocation struct {
	Country   string  `json:"country,omitempty"`
	City      string  `json:"city,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
}

// LogEntry is one administrative action record. Entries are immutable after
// ingestion; the correlation id assigned at that point is carried unchanged
// into every SecurityEvent derived from the entry.
type LogEntry struct {
	ID            int64                  `json:"id"`
	ActorID       string                 `json:"actor_id"`
	Action        string                 `json:"action"`
	TargetType    string                 `json:"target_type,omitempty"`
	TargetID      string                 `json:"target_id,omitempty"`
	Details       string                 `json:"details,omitempty"`
	Severity      string                 `json:"severity"`
	Category      string                 `json:"category,omitempty"`
	IPAddress     string                 `json:"ip_address,omitempty"`
	UserAgent     string                 `json:"user_agent,omitempty"`
	SessionID     string                 `json:"session_id,omitempty"`
	CorrelationID string                 `json:"correlation_id"`
	RiskScore     float64                `json:"risk_score"`
	Geo           *GeoLocation           `json:"geo,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}

// Normalize fills ingestion defaults: severity, creation time and a freshly
// generated correlation id when the caller did not supply one.
func (e *LogEntry) Normalize() {
	if e.Severity == "" {
		e.Severity = SeverityInfo
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.CorrelationID == "" {
		e.CorrelationID = uuid.New().String()
	}
}

// MetadataRole returns metadata["role"] as a string when present.
func (e *LogEntry) MetadataRole() (string, bool) {
	if e.Metadata == nil {
		return "", false
	}
	role, ok := e.Metadata["role"].(string)
	return role, ok && role != ""
}

// Field returns the stringified value of a named entry field for regex
// predicates. Unknown fields resolve to the empty string.
func (e *LogEntry) Field(name string) string {
	switch name {
	case "action":
		return e.Action
	case "actor_id":
		return e.ActorID
	case "target_type":
		return e.TargetType
	case "target_id":
		return e.TargetID
	case "details":
		return e.Details
	case "severity":
		return e.Severity
	case "category":
		return e.Category
	case "ip_address":
		return e.IPAddress
	case "user_agent":
		return e.UserAgent
	case "session_id":
		return e.SessionID
	case "correlation_id":
		return e.CorrelationID
	default:
		return ""
	}
}
