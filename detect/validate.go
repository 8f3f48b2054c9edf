package detect

import (
	"encoding/json"
	"fmt"

	"logwarden/core"

	"github.com/xeipuuv/gojsonschema"
)

// MaxConditionDepth caps condition tree nesting for new rules.
const MaxConditionDepth = 10

// conditionSchema validates the shape of a condition document. Structural
// rules that a JSON schema cannot express (sibling shadowing, regex
// compilability, window ordering) are enforced in validateNode.
const conditionSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"definitions": {
		"stringOrList": {
			"oneOf": [
				{"type": "string"},
				{"type": "array", "items": {"type": "string"}}
			]
		}
	},
	"properties": {
		"matchAction": {"type": "string"},
		"severity": {"$ref": "#/definitions/stringOrList"},
		"ipRange": {"$ref": "#/definitions/stringOrList"},
		"category": {"$ref": "#/definitions/stringOrList"},
		"riskScoreThreshold": {"type": "number"},
		"regexPattern": {
			"type": "object",
			"properties": {
				"field": {"type": "string", "minLength": 1},
				"pattern": {"type": "string", "minLength": 1}
			},
			"required": ["field", "pattern"]
		},
		"timeWindow": {
			"type": "object",
			"properties": {
				"start": {"type": "integer", "minimum": 0, "maximum": 23},
				"end": {"type": "integer", "minimum": 0, "maximum": 23}
			},
			"required": ["start", "end"]
		},
		"userRole": {"$ref": "#/definitions/stringOrList"},
		"combinedConditions": {
			"type": "object",
			"properties": {
				"operator": {"enum": ["AND", "OR"]},
				"conditions": {"type": "array", "items": {"$ref": "#"}}
			},
			"required": ["operator", "conditions"]
		}
	}
}`

var schemaLoader = gojsonschema.NewStringLoader(conditionSchema)

// ValidateConditionDocument checks a condition document at rule create or
// update time. Evaluation stays fail-closed regardless; this exists to reject
// documents that would silently match everything (empty body) or depend on
// the sibling-shadowing quirk of the stored format.
func ValidateConditionDocument(doc json.RawMessage) error {
	if len(doc) == 0 {
		return fmt.Errorf("condition document is required")
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("condition document is not valid JSON: %w", err)
	}
	if !result.Valid() {
		return fmt.Errorf("condition document failed schema validation: %s", result.Errors()[0].String())
	}

	var cond core.Condition
	if err := json.Unmarshal(doc, &cond); err != nil {
		return fmt.Errorf("failed to decode condition document: %w", err)
	}
	if cond.Depth() > MaxConditionDepth {
		return fmt.Errorf("condition tree exceeds maximum depth %d", MaxConditionDepth)
	}
	return validateNode(&cond)
}

func validateNode(cond *core.Condition) error {
	if cond.IsEmpty() {
		return fmt.Errorf("condition object must contain at least one recognized predicate")
	}
	if cond.Combined != nil {
		if cond.LeafCount() > 0 {
			return fmt.Errorf("combinedConditions cannot be mixed with leaf predicates on the same object; leaf keys would be silently ignored")
		}
		for i := range cond.Combined.Conditions {
			if err := validateNode(&cond.Combined.Conditions[i]); err != nil {
				return err
			}
		}
		return nil
	}
	if cond.RegexPattern != nil {
		if err := CheckPattern(cond.RegexPattern.Pattern); err != nil {
			return fmt.Errorf("regexPattern: %w", err)
		}
	}
	if tw := cond.TimeWindow; tw != nil && tw.Start > tw.End {
		return fmt.Errorf("timeWindow start %d is after end %d; windows crossing midnight are not supported", tw.Start, tw.End)
	}
	return nil
}
