package llm

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestValidateResponseWithoutFormat(t *testing.T) {
	t.Parallel()

	res := ValidateResponse("plain text, not JSON", nil)
	if !res.Valid {
		t.Fatalf("expected valid without format, got %q", res.Error)
	}
	if res.Data != "plain text, not JSON" {
		t.Fatalf("expected raw text as data, got %#v", res.Data)
	}
}

func TestValidateResponseFlashcardSchema(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		raw        string
		allowExtra bool
		valid      bool
		errPart    string
	}{
		{name: "exact match", raw: `{"front":"Q","back":"A"}`, valid: true},
		{name: "missing back", raw: `{"front":"Q"}`, errPart: "Missing required property: back"},
		{name: "extra key forbidden", raw: `{"front":"Q","back":"A","extra":1}`, errPart: "Additional property not allowed: extra"},
		{name: "extra key allowed", raw: `{"front":"Q","back":"A","extra":1}`, allowExtra: true, valid: true},
		{name: "not json", raw: `front: Q`, errPart: "Invalid JSON"},
		{name: "array", raw: `[{"front":"Q","back":"A"}]`, errPart: "Data must be an object"},
		{name: "null", raw: `null`, errPart: "Data must be an object"},
		{name: "string", raw: `"hello"`, errPart: "Data must be an object"},
		// Per-property types are not checked.
		{name: "wrong property type", raw: `{"front":1,"back":false}`, valid: true},
	}

	for _, tt := range tests {
		res := ValidateResponse(tt.raw, flashcardFormat(tt.allowExtra))

		if res.Valid != tt.valid {
			t.Fatalf("%s: valid = %v, want %v (error %q)", tt.name, res.Valid, tt.valid, res.Error)
		}
		if !tt.valid && !strings.Contains(res.Error, tt.errPart) {
			t.Fatalf("%s: error %q does not contain %q", tt.name, res.Error, tt.errPart)
		}
		if tt.valid {
			if _, ok := res.Data.(map[string]any); !ok {
				t.Fatalf("%s: expected decoded object as data, got %T", tt.name, res.Data)
			}
		}
	}
}

func TestValidateResponseIsShallow(t *testing.T) {
	t.Parallel()

	noExtra := false
	format := NewResponseFormat("flashcard_proposals", true, JSONSchema{
		Type: "object",
		Properties: map[string]json.RawMessage{
			"proposals": json.RawMessage(`{"type":"array","items":{"type":"object","required":["front","back"]}}`),
		},
		Required:             []string{"proposals"},
		AdditionalProperties: &noExtra,
	})

	// Nested items violate their schema, but only the top level is checked.
	res := ValidateResponse(`{"proposals":[{"front":"only"}]}`, format)
	if !res.Valid {
		t.Fatalf("expected shallow validation to pass, got %q", res.Error)
	}
}

func TestValidateResponseNonObjectSchemaPassesThrough(t *testing.T) {
	t.Parallel()

	format := NewResponseFormat("list", false, JSONSchema{Type: "array"})

	res := ValidateResponse(`[1,2,3]`, format)
	if !res.Valid {
		t.Fatalf("expected non-object schema to pass, got %q", res.Error)
	}

	res = ValidateResponse(`[1,2`, format)
	if res.Valid {
		t.Fatalf("invalid JSON must still fail")
	}
}

func TestValidateResponseExtraKeysNeedProperties(t *testing.T) {
	t.Parallel()

	noExtra := false
	format := NewResponseFormat("open", false, JSONSchema{
		Type:                 "object",
		AdditionalProperties: &noExtra,
	})

	res := ValidateResponse(`{"anything":true}`, format)
	if !res.Valid {
		t.Fatalf("without declared properties the extra-key check is skipped, got %q", res.Error)
	}
}
