package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func (r *ValidationResult) Error() string {
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return strings.Join(msgs, "; ")
}

// ValidateDocument checks document (any JSON compatible Go value) against a JSON schema given as a Go value.
func ValidateDocument(schema interface{}, document interface{}) (*ValidationResult, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(document),
	)
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   desc.Field(),
			Message: desc.Description(),
			Code:    strings.ToUpper(desc.Type()),
		})
	}
	sort.Slice(out.Errors, func(i, j int) bool {
		return out.Errors[i].Field < out.Errors[j].Field
	})
	return out, nil
}

// ReportStoreSchema is the JSON schema for report template files:
// an object keyed by report id whose values carry name, query and optional parameter slot kinds.
var ReportStoreSchema = map[string]interface{}{
	"type":          "object",
	"minProperties": 0,
	"propertyNames": map[string]interface{}{
		"pattern": `^[A-Za-z0-9_\-]+$`,
	},
	"additionalProperties": map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"name", "query"},
		"properties": map[string]interface{}{
			"name":        map[string]interface{}{"type": "string", "minLength": 1},
			"description": map[string]interface{}{"type": "string"},
			"query":       map[string]interface{}{"type": "string", "minLength": 1},
			"parameters": map[string]interface{}{
				"type": "object",
				"additionalProperties": map[string]interface{}{
					"type": "string",
					"enum": []interface{}{"date", "start_date", "end_date", "number", "min_number", "max_number", "text"},
				},
			},
		},
	},
}

// AskRequestSchema validates the body of an ask request.
var AskRequestSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"question"},
	"properties": map[string]interface{}{
		"question":           map[string]interface{}{"type": "string", "minLength": 1, "pattern": `\S`},
		"format_instruction": map[string]interface{}{"type": "string"},
		"session_id":         map[string]interface{}{"type": "string", "maxLength": 128},
	},
}

// ReportRequestSchema validates the body of a free-form report request.
var ReportRequestSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"description"},
	"properties": map[string]interface{}{
		"description": map[string]interface{}{"type": "string", "minLength": 1, "pattern": `\S`},
		"format_type": map[string]interface{}{"type": "string"},
		"session_id":  map[string]interface{}{"type": "string", "maxLength": 128},
	},
}
