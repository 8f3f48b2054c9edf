package detect

import (
	"strconv"
	"strings"

	"logwarden/core"
)

// EvaluateCondition evaluates a condition tree against a log entry. It never
// panics: any internal fault degrades to a non-match for the whole condition
// object being evaluated.
//
// Semantics of one condition node:
//   - combinedConditions, when present, shadows every sibling leaf key.
//   - leaf predicates on the same node are implicitly AND-ed.
//   - a node with no recognized key at all evaluates true (vacuous pass);
//     rule validation rejects such documents for new rules, but stored ones
//     keep their historical behavior.
func EvaluateCondition(entry *core.LogEntry, cond *core.Condition) (matched bool) {
	if entry == nil || cond == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			matched = false
		}
	}()
	return evaluate(entry, cond)
}

func evaluate(entry *core.LogEntry, cond *core.Condition) bool {
	if cond.Combined != nil {
		return evaluateCombined(entry, cond.Combined)
	}

	// matchAction, ipRange and userRole predicates only constrain entries
	// that carry the relevant field; an absent field passes through.
	if cond.MatchAction != "" && entry.Action != "" {
		if !strings.Contains(strings.ToLower(entry.Action), strings.ToLower(cond.MatchAction)) {
			return false
		}
	}

	if len(cond.Severity) > 0 && !cond.Severity.Contains(entry.Severity) {
		return false
	}

	if len(cond.IPRange) > 0 && entry.IPAddress != "" {
		if !matchIPRanges(entry.IPAddress, cond.IPRange) {
			return false
		}
	}

	if len(cond.Category) > 0 && !cond.Category.Contains(entry.Category) {
		return false
	}

	if cond.RiskScoreThreshold != nil && entry.RiskScore < *cond.RiskScoreThreshold {
		return false
	}

	if cond.RegexPattern != nil {
		if cond.RegexPattern.Field == "" || cond.RegexPattern.Pattern == "" {
			return false
		}
		matched, err := MatchPattern(cond.RegexPattern.Pattern, entry.Field(cond.RegexPattern.Field))
		if err != nil || !matched {
			return false
		}
	}

	if cond.TimeWindow != nil {
		hour := entry.CreatedAt.Hour()
		if hour < cond.TimeWindow.Start || hour > cond.TimeWindow.End {
			return false
		}
	}

	if len(cond.UserRole) > 0 {
		if role, ok := entry.MetadataRole(); ok && !cond.UserRole.Contains(role) {
			return false
		}
	}

	return true
}

// evaluateCombined applies the AND/OR combinator. AND over an empty list is
// vacuously true, OR vacuously false; an unknown operator fails closed.
func evaluateCombined(entry *core.LogEntry, cc *core.CombinedConditions) bool {
	switch cc.Operator {
	case core.OperatorAnd:
		for i := range cc.Conditions {
			if !evaluate(entry, &cc.Conditions[i]) {
				return false
			}
		}
		return true
	case core.OperatorOr:
		for i := range cc.Conditions {
			if evaluate(entry, &cc.Conditions[i]) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func matchIPRanges(ip string, ranges core.StringList) bool {
	for _, r := range ranges {
		if matchIPRange(ip, r) {
			return true
		}
	}
	return false
}

// matchIPRange compares a literal address, or a CIDR-like prefix: /24 and
// wider-than-/24 suffixes compare the first 3 dotted octets, /16 up to /23
// compare the first 2, anything else falls back to a plain string-prefix test
// on the address portion before the slash.
func matchIPRange(ip, r string) bool {
	if !strings.Contains(r, "/") {
		return ip == r
	}
	prefix, bitsStr, _ := strings.Cut(r, "/")
	bits, err := strconv.Atoi(bitsStr)
	if err == nil {
		if bits >= 24 {
			return octetPrefix(ip, 3) == octetPrefix(prefix, 3)
		}
		if bits >= 16 {
			return octetPrefix(ip, 2) == octetPrefix(prefix, 2)
		}
	}
	return strings.HasPrefix(ip, prefix)
}

func octetPrefix(ip string, n int) string {
	octets := strings.Split(ip, ".")
	if len(octets) < n {
		return ip
	}
	return strings.Join(octets[:n], ".")
}
