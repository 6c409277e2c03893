package events

import (
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/llmspell-dev/llmspell/pkg/lserror"
)

// maxSafeInteger is the largest integer IEEE-754 doubles represent exactly.
const maxSafeInteger = int64(1)<<53 - 1

// Serialize adapts an event payload for consumption by the target language
// runtime. The transforms are pure and total over JSON-compatible data:
//
//   - Lua: arrays become objects keyed "1".."N" (1-indexed tables).
//   - JavaScript: integers outside the IEEE-754 safe range become strings.
//   - Go, Python: payloads pass through unchanged.
func Serialize(e Event, target Language) (Event, error) {
	data, err := serializeValue(e.Data, target)
	if err != nil {
		return Event{}, err
	}
	e.Data = data
	return e, nil
}

// Deserialize reverses Serialize for data arriving from a source language
// runtime: gapless "1".."N"-keyed objects from 1-indexed runtimes become
// arrays, and numeric strings from JS-numeric runtimes become integers when
// the round trip is exact.
func Deserialize(e Event, source Language) (Event, error) {
	data, err := deserializeValue(e.Data, source)
	if err != nil {
		return Event{}, err
	}
	e.Data = data
	return e, nil
}

// ValidateEventCompatibility checks that an event survives the language
// round trip unchanged.
func ValidateEventCompatibility(e Event, lang Language) error {
	out, err := Serialize(e, lang)
	if err != nil {
		return err
	}
	back, err := Deserialize(out, lang)
	if err != nil {
		return err
	}
	if !reflect.DeepEqual(normalize(e.Data), normalize(back.Data)) {
		return lserror.Validation("data",
			fmt.Sprintf("event %s does not round-trip through %s", e.Type, lang))
	}
	return nil
}

func serializeValue(v any, target Language) (any, error) {
	switch val := v.(type) {
	case nil, bool, string, float32, float64:
		return val, nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		n, err := toInt64(val)
		if err != nil {
			return nil, err
		}
		if target == LanguageJavaScript && (n > maxSafeInteger || n < -maxSafeInteger) {
			return strconv.FormatInt(n, 10), nil
		}
		return n, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			conv, err := serializeValue(item, target)
			if err != nil {
				return nil, err
			}
			out[i] = conv
		}
		if target == LanguageLua {
			obj := make(map[string]any, len(out))
			for i, item := range out {
				obj[strconv.Itoa(i+1)] = item
			}
			return obj, nil
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			conv, err := serializeValue(item, target)
			if err != nil {
				return nil, err
			}
			out[k] = conv
		}
		return out, nil
	default:
		return nil, lserror.Validation("data", fmt.Sprintf("unsupported value type %T", v))
	}
}

func deserializeValue(v any, source Language) (any, error) {
	switch val := v.(type) {
	case nil, bool, float32, float64:
		return val, nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return toInt64(val)
	case string:
		if source == LanguageJavaScript {
			if n, ok := intFromString(val); ok {
				return n, nil
			}
		}
		return val, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			conv, err := deserializeValue(item, source)
			if err != nil {
				return nil, err
			}
			out[i] = conv
		}
		return out, nil
	case map[string]any:
		if source == LanguageLua {
			if arr, ok := arrayFromIndexedObject(val); ok {
				out := make([]any, len(arr))
				for i, item := range arr {
					conv, err := deserializeValue(item, source)
					if err != nil {
						return nil, err
					}
					out[i] = conv
				}
				return out, nil
			}
		}
		out := make(map[string]any, len(val))
		for k, item := range val {
			conv, err := deserializeValue(item, source)
			if err != nil {
				return nil, err
			}
			out[k] = conv
		}
		return out, nil
	default:
		return nil, lserror.Validation("data", fmt.Sprintf("unsupported value type %T", v))
	}
}

// arrayFromIndexedObject detects the 1-indexed table shape: every key is a
// positive decimal integer and together they cover 1..N with no gaps.
func arrayFromIndexedObject(obj map[string]any) ([]any, bool) {
	if len(obj) == 0 {
		return nil, false
	}
	out := make([]any, len(obj))
	for k, v := range obj {
		i, err := strconv.Atoi(k)
		if err != nil || i < 1 || i > len(obj) {
			return nil, false
		}
		// Reject non-canonical spellings like "01".
		if strconv.Itoa(i) != k {
			return nil, false
		}
		out[i-1] = v
	}
	return out, true
}

// intFromString converts a decimal string back to an integer when the
// round trip is exact. Strings that merely look numeric (leading zeros,
// signs with no digits, overflow) stay strings.
func intFromString(s string) (int64, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	if strconv.FormatInt(n, 10) != s {
		return 0, false
	}
	// Values inside the safe range were never stringified on the way out, so
	// coercing them back would mangle genuine string data.
	if n <= maxSafeInteger && n >= -maxSafeInteger {
		return 0, false
	}
	return n, true
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint:
		return int64(n), nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, lserror.Validation("data", "integer overflows int64")
		}
		return int64(n), nil
	default:
		return 0, lserror.Validation("data", fmt.Sprintf("not an integer: %T", v))
	}
}

// normalize widens every integer to int64 so round-trip comparison ignores
// Go's concrete integer widths.
func normalize(v any) any {
	switch val := v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		n, err := toInt64(val)
		if err != nil {
			return val
		}
		return n
	case []any:
		// An empty table is indistinguishable from an empty array in
		// 1-indexed runtimes; treat the two empties as equivalent.
		if len(val) == 0 {
			return map[string]any{}
		}
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalize(item)
		}
		return out
	default:
		return v
	}
}
