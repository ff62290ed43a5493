package llm

import (
	"encoding/json"
	"fmt"
	"sort"
)

// ValidateResponse checks raw model output against an optional response
// format. The check is shallow: top-level type, required keys and, when
// additionalProperties is false, unknown keys. Nested schemas and
// per-property types are not inspected.
func (c *Client) ValidateResponse(raw string, format *ResponseFormat) ValidationResult {
	return ValidateResponse(raw, format)
}

// ValidateResponse is the receiver-free form of Client.ValidateResponse.
func ValidateResponse(raw string, format *ResponseFormat) ValidationResult {
	if format == nil {
		return ValidationResult{Valid: true, Data: raw}
	}

	var data any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return ValidationResult{Error: "Invalid JSON: " + err.Error()}
	}

	return validateAgainstSchema(data, format.JSONSchema.Schema)
}

func validateAgainstSchema(data any, schema JSONSchema) ValidationResult {
	if schema.Type != "object" {
		// Only object schemas are understood; anything else passes through.
		return ValidationResult{Valid: true, Data: data}
	}

	obj, ok := data.(map[string]any)
	if !ok {
		return ValidationResult{Error: "Data must be an object"}
	}

	for _, key := range schema.Required {
		if _, ok := obj[key]; !ok {
			return ValidationResult{Error: fmt.Sprintf("Missing required property: %s", key)}
		}
	}

	if schema.AdditionalProperties != nil && !*schema.AdditionalProperties && schema.Properties != nil {
		// Sorted so the reported key is stable across runs.
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			if _, allowed := schema.Properties[k]; !allowed {
				return ValidationResult{Error: fmt.Sprintf("Additional property not allowed: %s", k)}
			}
		}
	}

	return ValidationResult{Valid: true, Data: data}
}
