package config

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/llmspell-dev/llmspell/pkg/lserror"
)

// YAMLLimits bounds what a config document may contain. Config files are
// operator input but still cross a trust boundary in multi-tenant
// deployments.
type YAMLLimits struct {
	MaxFileSize  int64
	MaxDepth     int
	MaxNodes     int
	MaxKeyLength int
}

// DefaultYAMLLimits returns the limits applied when none are given.
func DefaultYAMLLimits() YAMLLimits {
	return YAMLLimits{
		MaxFileSize:  10 * 1024 * 1024,
		MaxDepth:     20,
		MaxNodes:     10000,
		MaxKeyLength: 1024,
	}
}

// SafeYAMLParser parses YAML under structural limits.
type SafeYAMLParser struct {
	limits YAMLLimits
}

// NewSafeYAMLParser creates a parser with the given limits.
func NewSafeYAMLParser(limits YAMLLimits) *SafeYAMLParser {
	return &SafeYAMLParser{limits: limits}
}

// Unmarshal checks size and structure before decoding into v.
func (p *SafeYAMLParser) Unmarshal(data []byte, v any) error {
	if int64(len(data)) > p.limits.MaxFileSize {
		return lserror.Validation("config",
			fmt.Sprintf("config size %d bytes exceeds maximum %d", len(data), p.limits.MaxFileSize))
	}

	var root yaml.Node
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	if err := decoder.Decode(&root); err != nil {
		return lserror.Validation("config", "YAML parse error: "+err.Error())
	}

	w := &yamlWalker{limits: p.limits}
	if err := w.walk(&root, 0); err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return lserror.Validation("config", "YAML decode error: "+err.Error())
	}
	return nil
}

type yamlWalker struct {
	limits YAMLLimits
	nodes  int
}

func (w *yamlWalker) walk(node *yaml.Node, depth int) error {
	if depth > w.limits.MaxDepth {
		return lserror.Validation("config",
			fmt.Sprintf("YAML nesting depth %d exceeds maximum %d", depth, w.limits.MaxDepth))
	}
	w.nodes++
	if w.nodes > w.limits.MaxNodes {
		return lserror.Validation("config",
			fmt.Sprintf("YAML node count exceeds maximum %d", w.limits.MaxNodes))
	}

	switch node.Kind {
	case yaml.MappingNode:
		for i := 0; i < len(node.Content); i += 2 {
			key := node.Content[i]
			if len(key.Value) > w.limits.MaxKeyLength {
				return lserror.Validation("config",
					fmt.Sprintf("YAML key length %d exceeds maximum %d", len(key.Value), w.limits.MaxKeyLength))
			}
			if err := w.walk(key, depth+1); err != nil {
				return err
			}
			if err := w.walk(node.Content[i+1], depth+1); err != nil {
				return err
			}
		}
	default:
		for _, child := range node.Content {
			if err := w.walk(child, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}
