package tools

import (
	"fmt"
	"regexp"

	"github.com/llmspell-dev/llmspell/pkg/lserror"
)

// Schema maps argument names to their validation rules.
type Schema map[string]SchemaField

// SchemaField is the validation rule set for one argument.
type SchemaField struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Required    bool     `json:"required,omitempty"`
	Default     any      `json:"default,omitempty"`
	Pattern     string   `json:"pattern,omitempty"`
	MinLength   int      `json:"minLength,omitempty"`
	MaxLength   int      `json:"maxLength,omitempty"`
	Enum        []any    `json:"enum,omitempty"`
	Minimum     *float64 `json:"minimum,omitempty"`
	Maximum     *float64 `json:"maximum,omitempty"`
}

// Validate checks input against the schema and applies defaults. The
// returned Args is a copy; the caller's map is never mutated. Unknown keys
// are rejected so typos surface instead of being silently dropped.
func (s Schema) Validate(input map[string]any) (Args, error) {
	out := make(Args, len(s))

	for key := range input {
		if _, ok := s[key]; !ok {
			return nil, lserror.Validation(key, "unknown argument")
		}
	}

	for key, field := range s {
		val, present := input[key]
		if !present {
			if field.Required {
				return nil, lserror.Validation(key, "required argument missing")
			}
			if field.Default != nil {
				out[key] = field.Default
			}
			continue
		}
		if err := field.check(key, val); err != nil {
			return nil, err
		}
		out[key] = val
	}
	return out, nil
}

func (f SchemaField) check(key string, val any) error {
	switch f.Type {
	case "string":
		s, ok := val.(string)
		if !ok {
			return lserror.Validation(key, fmt.Sprintf("expected string, got %T", val))
		}
		if f.MinLength > 0 && len(s) < f.MinLength {
			return lserror.Validation(key, fmt.Sprintf("shorter than minimum length %d", f.MinLength))
		}
		if f.MaxLength > 0 && len(s) > f.MaxLength {
			return lserror.Validation(key, fmt.Sprintf("longer than maximum length %d", f.MaxLength))
		}
		if f.Pattern != "" {
			re, err := regexp.Compile(f.Pattern)
			if err != nil {
				return lserror.Validation(key, "schema pattern does not compile")
			}
			if !re.MatchString(s) {
				return lserror.Validation(key, fmt.Sprintf("does not match pattern %s", f.Pattern))
			}
		}
	case "number", "integer":
		n, ok := asFloat(val)
		if !ok {
			return lserror.Validation(key, fmt.Sprintf("expected %s, got %T", f.Type, val))
		}
		if f.Type == "integer" && n != float64(int64(n)) {
			return lserror.Validation(key, "expected integer, got fractional number")
		}
		if f.Minimum != nil && n < *f.Minimum {
			return lserror.Validation(key, fmt.Sprintf("below minimum %v", *f.Minimum))
		}
		if f.Maximum != nil && n > *f.Maximum {
			return lserror.Validation(key, fmt.Sprintf("above maximum %v", *f.Maximum))
		}
	case "boolean":
		if _, ok := val.(bool); !ok {
			return lserror.Validation(key, fmt.Sprintf("expected boolean, got %T", val))
		}
	case "object":
		if _, ok := val.(map[string]any); !ok {
			return lserror.Validation(key, fmt.Sprintf("expected object, got %T", val))
		}
	case "array":
		if _, ok := val.([]any); !ok {
			return lserror.Validation(key, fmt.Sprintf("expected array, got %T", val))
		}
	default:
		return lserror.Validation(key, fmt.Sprintf("schema declares unknown type %q", f.Type))
	}

	if len(f.Enum) > 0 && !enumContains(f.Enum, val) {
		return lserror.Validation(key, "value not in enum")
	}
	return nil
}

func asFloat(val any) (float64, bool) {
	switch v := val.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func enumContains(enum []any, val any) bool {
	for _, e := range enum {
		if e == val {
			return true
		}
		// Numeric enum entries must match across int/float encodings.
		if ef, ok1 := asFloat(e); ok1 {
			if vf, ok2 := asFloat(val); ok2 && ef == vf {
				return true
			}
		}
	}
	return false
}
