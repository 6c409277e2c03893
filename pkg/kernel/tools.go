package kernel

import (
	"context"
	"time"

	"github.com/llmspell-dev/llmspell/pkg/executor"
	"github.com/llmspell-dev/llmspell/pkg/lserror"
	"github.com/llmspell-dev/llmspell/pkg/tools"
)

// HandleToolRequest serves the tool command surface: list, info, invoke,
// test and search. It always returns a reply content map; failures are
// status=error with a message, never a dropped reply.
func (k *Kernel) HandleToolRequest(ctx context.Context, content map[string]any) map[string]any {
	command, _ := content["command"].(string)
	switch command {
	case "list":
		category, _ := content["category"].(string)
		var list []tools.Tool
		if category != "" {
			list = k.tools.ByCategory(category)
		} else {
			list = k.tools.List()
		}
		return map[string]any{"status": "ok", "tools": toolSummaries(list)}

	case "info":
		name, _ := content["name"].(string)
		tool, err := k.tools.Get(name)
		if err != nil {
			return ErrorContent(err)
		}
		return map[string]any{"status": "ok", "tool": toolInfo(tool)}

	case "invoke":
		return k.invokeTool(ctx, content)

	case "test":
		return k.testTool(content)

	case "search":
		terms := searchTerms(content["query"])
		if len(terms) == 0 {
			return ErrorContent(lserror.Validation("query", "search needs at least one term"))
		}
		seen := map[string]bool{}
		var matches []tools.Tool
		for _, term := range terms {
			for _, tool := range k.tools.Search(term) {
				if !seen[tool.Name] {
					seen[tool.Name] = true
					matches = append(matches, tool)
				}
			}
		}
		return map[string]any{"status": "ok", "tools": toolSummaries(matches)}

	default:
		return ErrorContent(lserror.Validation("command", "unknown tool command: "+command))
	}
}

func (k *Kernel) invokeTool(ctx context.Context, content map[string]any) map[string]any {
	name, _ := content["name"].(string)
	if name == "" {
		return ErrorContent(lserror.Validation("name", "invoke needs a tool name"))
	}

	params := map[string]any{}
	if raw, present := content["params"]; present && raw != nil {
		obj, ok := raw.(map[string]any)
		if !ok {
			return ErrorContent(lserror.Validation("params", "params must be a JSON object"))
		}
		params = obj
	}

	opts := executor.Options{}
	if secs, ok := asSeconds(content["timeout"]); ok {
		opts.Timeout = secs
	}

	start := time.Now()
	result, err := k.exec.ExecuteTool(ctx, name, params, opts)
	if err != nil {
		return ErrorContent(err)
	}
	return map[string]any{
		"status":      "ok",
		"tool":        name,
		"duration_ms": time.Since(start).Milliseconds(),
		"result":      result,
	}
}

// testTool checks that a tool is registered and its schema is coherent.
// Verbose includes the full descriptor.
func (k *Kernel) testTool(content map[string]any) map[string]any {
	name, _ := content["name"].(string)
	tool, err := k.tools.Get(name)
	if err != nil {
		return ErrorContent(err)
	}
	verbose, _ := content["verbose"].(bool)
	reply := map[string]any{
		"status": "ok",
		"tool":   name,
		"passed": true,
	}
	if verbose {
		reply["descriptor"] = toolInfo(tool)
	}
	return reply
}

func toolSummaries(list []tools.Tool) []any {
	out := make([]any, 0, len(list))
	for _, t := range list {
		out = append(out, map[string]any{
			"name":           t.Name,
			"description":    t.Description,
			"category":       t.Category,
			"security_level": string(t.SecurityLevel),
		})
	}
	return out
}

func toolInfo(t tools.Tool) map[string]any {
	schema := make(map[string]any, len(t.Schema))
	for field, def := range t.Schema {
		entry := map[string]any{
			"type":     def.Type,
			"required": def.Required,
		}
		if def.Description != "" {
			entry["description"] = def.Description
		}
		if def.Default != nil {
			entry["default"] = def.Default
		}
		schema[field] = entry
	}
	return map[string]any{
		"name":           t.Name,
		"description":    t.Description,
		"category":       t.Category,
		"security_level": string(t.SecurityLevel),
		"schema":         schema,
	}
}

func searchTerms(raw any) []string {
	switch v := raw.(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []any:
		var terms []string
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				terms = append(terms, s)
			}
		}
		return terms
	case []string:
		return v
	default:
		return nil
	}
}

func asSeconds(raw any) (time.Duration, bool) {
	switch v := raw.(type) {
	case float64:
		return time.Duration(v * float64(time.Second)), true
	case int:
		return time.Duration(v) * time.Second, true
	default:
		return 0, false
	}
}
