package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/izukowska/10xcards/internal/llm"
)

// fieldIssue is one entry of a 400 response's details list.
type fieldIssue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report JSON names, not Go field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})

	v.RegisterStructValidation(validateResponseFormat, llm.ResponseFormat{})
	return v
}

func validateResponseFormat(sl validator.StructLevel) {
	f := sl.Current().Interface().(llm.ResponseFormat)

	if f.Type != "json_schema" {
		sl.ReportError(f.Type, "type", "Type", "eq", "json_schema")
	}
	if f.JSONSchema.Name == "" {
		sl.ReportError(f.JSONSchema.Name, "json_schema.name", "Name", "required", "")
	}
	if f.JSONSchema.Schema.Type != "object" {
		sl.ReportError(f.JSONSchema.Schema.Type, "json_schema.schema.type", "Type", "eq", "object")
	}
	if f.JSONSchema.Schema.Properties == nil {
		sl.ReportError(f.JSONSchema.Schema.Properties, "json_schema.schema.properties", "Properties", "required", "")
	}
}

// issuesFrom flattens validator errors into path/message pairs. The root
// struct name is dropped from each path.
func issuesFrom(err error) []fieldIssue {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []fieldIssue{{Message: err.Error()}}
	}

	out := make([]fieldIssue, 0, len(verrs))
	for _, fe := range verrs {
		path := fe.Namespace()
		if _, rest, ok := strings.Cut(path, "."); ok {
			path = rest
		}
		out = append(out, fieldIssue{Path: path, Message: messageFor(fe)})
	}
	return out
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "eq":
		return fmt.Sprintf("must be %q", fe.Param())
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at least %s items", fe.Param())
		}
		return fmt.Sprintf("must be at least %s characters long", fe.Param())
	case "max":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must not contain more than %s items", fe.Param())
		}
		return fmt.Sprintf("must not exceed %s characters", fe.Param())
	case "gte":
		return "must be >= " + fe.Param()
	case "lte":
		return "must be <= " + fe.Param()
	case "gt":
		return "must be > " + fe.Param()
	default:
		return "failed " + fe.Tag()
	}
}

// decodeJSON reads a single JSON object from r into dst. Unknown fields
// are tolerated.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

// bodyTooLarge reports whether decoding stopped at the MaxBodySize limit.
func bodyTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

func writeTooLarge(w http.ResponseWriter) {
	writeError(w, http.StatusRequestEntityTooLarge, errorBody{
		Error:   "Payload Too Large",
		Message: "request body too large",
	})
}
