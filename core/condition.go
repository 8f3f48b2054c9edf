package core

import "encoding/json"

// Combinator operators for CombinedConditions.
const (
	OperatorAnd = "AND"
	OperatorOr  = "OR"
)

// StringList is a JSON field that accepts either a scalar string or an array
// of strings. Stored rule documents use both shapes interchangeably.
type StringList []string

// UnmarshalJSON decodes a string or a string array.
func (s *StringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*s = StringList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*s = StringList(many)
	return nil
}

// Contains reports set membership.
func (s StringList) Contains(value string) bool {
	for _, v := range s {
		if v == value {
			return true
		}
	}
	return false
}

// RegexPattern is a case-insensitive pattern test against a named entry field.
type RegexPattern struct {
	Field   string `json:"field"`
	Pattern string `json:"pattern"`
}

// TimeWindow restricts matching to an inclusive hour-of-day range [Start, End].
// Windows wrapping past midnight (Start > End) are not supported.
type TimeWindow struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// CombinedConditions recursively combines nested conditions with AND/OR.
type CombinedConditions struct {
	Operator   string      `json:"operator"`
	Conditions []Condition `json:"conditions"`
}

// Condition is one node of an alert rule's condition tree. Leaf predicates
// present on the same node are implicitly AND-ed. When Combined is set, only
// the combinator is evaluated and sibling leaf keys are ignored; this mirrors
// the stored rule format and is rejected for new rules at creation time.
type Condition struct {
	MatchAction        string              `json:"matchAction,omitempty"`
	Severity           StringList          `json:"severity,omitempty"`
	IPRange            StringList          `json:"ipRange,omitempty"`
	Category           StringList          `json:"category,omitempty"`
	RiskScoreThreshold *float64            `json:"riskScoreThreshold,omitempty"`
	RegexPattern       *RegexPattern       `json:"regexPattern,omitempty"`
	TimeWindow         *TimeWindow         `json:"timeWindow,omitempty"`
	UserRole           StringList          `json:"userRole,omitempty"`
	Combined           *CombinedConditions `json:"combinedConditions,omitempty"`
}

// LeafCount returns the number of recognized leaf predicates on this node,
// not counting the combinator.
func (c *Condition) LeafCount() int {
	count := 0
	if c.MatchAction != "" {
		count++
	}
	if len(c.Severity) > 0 {
		count++
	}
	if len(c.IPRange) > 0 {
		count++
	}
	if len(c.Category) > 0 {
		count++
	}
	if c.RiskScoreThreshold != nil {
		count++
	}
	if c.RegexPattern != nil {
		count++
	}
	if c.TimeWindow != nil {
		count++
	}
	if len(c.UserRole) > 0 {
		count++
	}
	return count
}

// IsEmpty reports whether the node carries no recognized predicate at all.
// An empty node evaluates true (vacuous pass) for already-stored rules.
func (c *Condition) IsEmpty() bool {
	return c.LeafCount() == 0 && c.Combined == nil
}

// Depth returns the maximum nesting depth of the condition tree.
func (c *Condition) Depth() int {
	if c.Combined == nil {
		return 1
	}
	max := 0
	for i := range c.Combined.Conditions {
		if d := c.Combined.Conditions[i].Depth(); d > max {
			max = d
		}
	}
	return max + 1
}
