package detect

import (
	"strings"

	"logwarden/core"
)

// ThreatRule is one built-in heuristic, distinct from user-configured alert
// rules. The list is static and ordered; detection stops at the first match.
type ThreatRule struct {
	Name        string
	Description string
	ThreatLevel string
	Check       func(entry *core.LogEntry) bool
}

// Detection is the outcome of running the static ruleset over one entry.
type Detection struct {
	Detected    bool   `json:"detected"`
	Rule        string `json:"rule,omitempty"`
	Description string `json:"description,omitempty"`
	ThreatLevel string `json:"threat_level,omitempty"`
}

var threatRules = []ThreatRule{
	{
		Name:        "multiple_failed_logins",
		Description: "Multiple failed login attempts",
		ThreatLevel: "medium",
		Check: func(entry *core.LogEntry) bool {
			return entry.Action == "LOGIN_FAILED" && entry.Severity == core.SeverityWarning
		},
	},
	{
		Name:        "suspicious_activity",
		Description: "Suspicious administrative activity",
		ThreatLevel: "high",
		Check: func(entry *core.LogEntry) bool {
			return entry.Category == "security" && entry.Severity == core.SeverityHigh
		},
	},
	{
		Name:        "unusual_data_access",
		Description: "Unusual data access patterns",
		ThreatLevel: "medium",
		Check: func(entry *core.LogEntry) bool {
			return entry.Action == "DATA_EXPORT" && entry.Category == "data"
		},
	},
	{
		Name:        "off_hours_deletion",
		Description: "Deletion outside business hours",
		ThreatLevel: "medium",
		Check: func(entry *core.LogEntry) bool {
			if !strings.Contains(entry.Action, "DELETE") {
				return false
			}
			hour := entry.CreatedAt.Hour()
			return hour >= 23 || hour < 6
		},
	},
	{
		Name:        "privilege_escalation",
		Description: "High-severity role change",
		ThreatLevel: "high",
		Check: func(entry *core.LogEntry) bool {
			return entry.Action == "USER_ROLE_CHANGE" && entry.Severity == core.SeverityHigh
		},
	},
}

// ThreatRules returns the static ruleset, primarily for listing endpoints
// and tests. The returned slice must not be mutated.
func ThreatRules() []ThreatRule {
	return threatRules
}

// DetectThreats runs the ordered ruleset against one entry; the first
// matching rule wins. It runs independently of alert rule evaluation, so
// both paths can fire for the same entry.
func DetectThreats(entry *core.LogEntry) Detection {
	if entry == nil {
		return Detection{}
	}
	for _, rule := range threatRules {
		if rule.Check(entry) {
			return Detection{
				Detected:    true,
				Rule:        rule.Name,
				Description: rule.Description,
				ThreatLevel: rule.ThreatLevel,
			}
		}
	}
	return Detection{}
}
