package tools

import (
	"errors"
	"testing"

	"github.com/llmspell-dev/llmspell/pkg/lserror"
)

func f(v float64) *float64 { return &v }

func TestSchemaValidate(t *testing.T) {
	schema := Schema{
		"query":   {Type: "string", Required: true, MinLength: 1, MaxLength: 10},
		"limit":   {Type: "integer", Default: 5, Minimum: f(1), Maximum: f(100)},
		"fuzzy":   {Type: "boolean"},
		"mode":    {Type: "string", Enum: []any{"fast", "full"}},
		"filters": {Type: "object"},
	}

	tests := []struct {
		name      string
		input     map[string]any
		wantField string
	}{
		{"valid minimal", map[string]any{"query": "hello"}, ""},
		{"valid full", map[string]any{
			"query": "hi", "limit": 10, "fuzzy": true,
			"mode": "fast", "filters": map[string]any{"a": 1},
		}, ""},
		{"missing required", map[string]any{"limit": 3}, "query"},
		{"wrong type", map[string]any{"query": 42}, "query"},
		{"too long", map[string]any{"query": "0123456789ab"}, "query"},
		{"unknown key", map[string]any{"query": "x", "depth": 2}, "depth"},
		{"below minimum", map[string]any{"query": "x", "limit": 0}, "limit"},
		{"fractional integer", map[string]any{"query": "x", "limit": 1.5}, "limit"},
		{"enum miss", map[string]any{"query": "x", "mode": "turbo"}, "mode"},
		{"object mistype", map[string]any{"query": "x", "filters": "nope"}, "filters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, err := schema.Validate(tt.input)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = %v, want error on %q", args, tt.wantField)
			}
			var lerr *lserror.Error
			if !errors.As(err, &lerr) {
				t.Fatalf("error %T is not *lserror.Error", err)
			}
			if lerr.Kind != lserror.KindValidation || lerr.Field != tt.wantField {
				t.Errorf("error = kind %v field %q, want validation on %q",
					lerr.Kind, lerr.Field, tt.wantField)
			}
		})
	}
}

func TestSchemaAppliesDefaults(t *testing.T) {
	schema := Schema{
		"query": {Type: "string", Required: true},
		"limit": {Type: "integer", Default: 5},
	}
	args, err := schema.Validate(map[string]any{"query": "x"})
	if err != nil {
		t.Fatal(err)
	}
	if args.Int("limit") != 5 {
		t.Errorf("limit default = %v, want 5", args["limit"])
	}
	// The float64 JSON decoding produces still counts as an integer.
	args, err = schema.Validate(map[string]any{"query": "x", "limit": float64(7)})
	if err != nil {
		t.Fatal(err)
	}
	if args.Int("limit") != 7 {
		t.Errorf("limit = %v, want 7", args["limit"])
	}
}

func TestSchemaPattern(t *testing.T) {
	schema := Schema{"name": {Type: "string", Required: true, Pattern: `^[A-Z_]+$`}}
	if _, err := schema.Validate(map[string]any{"name": "HOME"}); err != nil {
		t.Errorf("pattern rejected valid input: %v", err)
	}
	if _, err := schema.Validate(map[string]any{"name": "lower"}); err == nil {
		t.Error("pattern admitted invalid input")
	}
}

func TestSchemaNumericEnum(t *testing.T) {
	schema := Schema{"dims": {Type: "integer", Enum: []any{128, 384, 768}}}
	// JSON decodes integers as float64; enum matching must still hit.
	if _, err := schema.Validate(map[string]any{"dims": float64(384)}); err != nil {
		t.Errorf("numeric enum missed float64 encoding: %v", err)
	}
	if _, err := schema.Validate(map[string]any{"dims": float64(512)}); err == nil {
		t.Error("enum admitted out-of-set value")
	}
}
