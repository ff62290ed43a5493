package generation

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/xeipuuv/gojsonschema"

	"github.com/izukowska/10xcards/internal/llm"
)

const formatName = "flashcard_proposals"

// proposalsEnvelope is the shape the model is asked to produce.
type proposalsEnvelope struct {
	Proposals []rawProposal `json:"proposals" jsonschema:"description=Flashcard proposals generated from the source text"`
}

type rawProposal struct {
	Front string `json:"front" jsonschema:"description=Short question"`
	Back  string `json:"back" jsonschema:"description=Short answer"`
}

// buildFormat reflects proposalsEnvelope into a strict json_schema response
// format and compiles the same document for full validation.
func buildFormat() (*llm.ResponseFormat, *gojsonschema.Schema, error) {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	reflected := r.Reflect(&proposalsEnvelope{})

	raw, err := json.Marshal(reflected)
	if err != nil {
		return nil, nil, fmt.Errorf("generation: marshal schema: %w", err)
	}

	var schema llm.JSONSchema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, nil, fmt.Errorf("generation: decode schema: %w", err)
	}

	// Re-marshal so the compiled schema matches exactly what is sent.
	sent, err := json.Marshal(schema)
	if err != nil {
		return nil, nil, fmt.Errorf("generation: marshal schema: %w", err)
	}
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(sent))
	if err != nil {
		return nil, nil, fmt.Errorf("generation: compile schema: %w", err)
	}

	return llm.NewResponseFormat(formatName, true, schema), compiled, nil
}

// validateFull checks content against the compiled schema, nested levels
// included. It returns one description per violation.
func validateFull(schema *gojsonschema.Schema, content string) ([]string, error) {
	result, err := schema.Validate(gojsonschema.NewStringLoader(content))
	if err != nil {
		return nil, err
	}
	if result.Valid() {
		return nil, nil
	}

	errs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		errs = append(errs, e.String())
	}
	return errs, nil
}
