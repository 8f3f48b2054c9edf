package detect

import (
	"fmt"
	"time"

	"github.com/dlclark/regexp2"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Regex evaluation limits. regexp2 supports backtracking, so every match runs
// under MatchTimeout to bound pathological patterns from stored rules.
const (
	DefaultRegexTimeout = 100 * time.Millisecond
	MaxPatternLength    = 500
	regexCacheSize      = 512
)

var patternCache *lru.Cache[string, *regexp2.Regexp]

func init() {
	// Size is fixed; lru.New only fails on a non-positive size.
	patternCache, _ = lru.New[string, *regexp2.Regexp](regexCacheSize)
}

func compilePattern(pattern string) (*regexp2.Regexp, error) {
	if pattern == "" {
		return nil, fmt.Errorf("regex pattern cannot be empty")
	}
	if len(pattern) > MaxPatternLength {
		return nil, fmt.Errorf("regex pattern too long: %d characters (max %d)", len(pattern), MaxPatternLength)
	}
	if re, ok := patternCache.Get(pattern); ok {
		return re, nil
	}
	re, err := regexp2.Compile(pattern, regexp2.IgnoreCase)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern: %w", err)
	}
	re.MatchTimeout = DefaultRegexTimeout
	patternCache.Add(pattern, re)
	return re, nil
}

// MatchPattern runs a case-insensitive match of pattern against input.
// Compile errors and match timeouts both surface as errors; condition
// evaluation treats either as a non-match.
func MatchPattern(pattern, input string) (bool, error) {
	re, err := compilePattern(pattern)
	if err != nil {
		return false, err
	}
	matched, err := re.MatchString(input)
	if err != nil {
		return false, fmt.Errorf("regex evaluation failed: %w", err)
	}
	return matched, nil
}

// CheckPattern validates a pattern without evaluating it, for rule-creation
// time checks.
func CheckPattern(pattern string) error {
	_, err := compilePattern(pattern)
	return err
}
