package core

// Well-known severity values. Severity is an open string field; anything
// outside this set is accepted and ranks below info for threshold checks.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// severityRank orders the known severities for threshold comparisons.
var severityRank = map[string]int{
	SeverityInfo:     1,
	SeverityWarning:  2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// SeverityRank returns the ordering rank of a severity string.
// Unknown severities rank 0, below every known level.
func SeverityRank(severity string) int {
	return severityRank[severity]
}

// Security event types.
const (
	EventTypeThreatDetected = "threat_detected"
	EventTypeAlertTrigger   = "alert_trigger"
)

// Live push topics and message types consumed by dashboard subscribers.
const (
	TopicAdmins    = "admins"
	TopicLogStream = "logs"

	MessageSecurityAlert = "security:alert"
	MessageLogNew        = "logs:new"
)
