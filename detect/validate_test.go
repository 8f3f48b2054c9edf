package detect

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateConditionDocument_AcceptsTypicalDocuments(t *testing.T) {
	docs := []string{
		`{"matchAction": "DELETE"}`,
		`{"severity": "high"}`,
		`{"severity": ["high", "critical"]}`,
		`{"riskScoreThreshold": 70}`,
		`{"regexPattern": {"field": "details", "pattern": "\\d+ records"}}`,
		`{"timeWindow": {"start": 9, "end": 17}}`,
		`{"ipRange": ["10.0.0.0/24", "192.168.1.5"]}`,
		`{"combinedConditions": {"operator": "OR", "conditions": [
			{"matchAction": "DELETE"},
			{"severity": "critical"}
		]}}`,
	}
	for _, doc := range docs {
		assert.NoError(t, ValidateConditionDocument(json.RawMessage(doc)), doc)
	}
}

func TestValidateConditionDocument_RejectsEmptyDocument(t *testing.T) {
	assert.Error(t, ValidateConditionDocument(nil))
	assert.Error(t, ValidateConditionDocument(json.RawMessage(`{}`)),
		"an empty condition object would match every entry")
}

func TestValidateConditionDocument_RejectsEmptyNestedCondition(t *testing.T) {
	doc := `{"combinedConditions": {"operator": "AND", "conditions": [{}]}}`
	assert.Error(t, ValidateConditionDocument(json.RawMessage(doc)))
}

func TestValidateConditionDocument_RejectsMixedCombinatorAndLeaves(t *testing.T) {
	doc := `{
		"matchAction": "DELETE",
		"combinedConditions": {"operator": "OR", "conditions": [{"severity": "high"}]}
	}`
	err := ValidateConditionDocument(json.RawMessage(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "combinedConditions")
}

func TestValidateConditionDocument_RejectsBadRegex(t *testing.T) {
	doc := `{"regexPattern": {"field": "details", "pattern": "[unclosed"}}`
	assert.Error(t, ValidateConditionDocument(json.RawMessage(doc)))
}

func TestValidateConditionDocument_RejectsInvertedTimeWindow(t *testing.T) {
	doc := `{"timeWindow": {"start": 22, "end": 4}}`
	err := ValidateConditionDocument(json.RawMessage(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "midnight")
}

func TestValidateConditionDocument_RejectsUnknownOperator(t *testing.T) {
	doc := `{"combinedConditions": {"operator": "XOR", "conditions": [{"severity": "high"}]}}`
	assert.Error(t, ValidateConditionDocument(json.RawMessage(doc)))
}

func TestValidateConditionDocument_RejectsWrongLeafTypes(t *testing.T) {
	assert.Error(t, ValidateConditionDocument(json.RawMessage(`{"matchAction": 42}`)))
	assert.Error(t, ValidateConditionDocument(json.RawMessage(`{"riskScoreThreshold": "high"}`)))
	assert.Error(t, ValidateConditionDocument(json.RawMessage(`{"timeWindow": {"start": 25, "end": 3}}`)))
}

func TestValidateConditionDocument_RejectsExcessiveDepth(t *testing.T) {
	// Build a chain deeper than MaxConditionDepth.
	inner := `{"matchAction": "DELETE"}`
	for i := 0; i < MaxConditionDepth+1; i++ {
		inner = `{"combinedConditions": {"operator": "AND", "conditions": [` + inner + `]}}`
	}
	err := ValidateConditionDocument(json.RawMessage(inner))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "depth")
}

func TestValidateConditionDocument_NotJSON(t *testing.T) {
	err := ValidateConditionDocument(json.RawMessage(`not json at all`))
	assert.Error(t, err)
}

func TestCheckPattern_Limits(t *testing.T) {
	assert.NoError(t, CheckPattern(`^LOGIN_\w+$`))
	assert.Error(t, CheckPattern(""))
	assert.Error(t, CheckPattern(strings.Repeat("a", MaxPatternLength+1)))
	assert.Error(t, CheckPattern("[unclosed"))
}

func TestMatchPattern_CaseInsensitive(t *testing.T) {
	matched, err := MatchPattern("delete", "USER_DELETE_BULK")
	require.NoError(t, err)
	assert.True(t, matched)
}
