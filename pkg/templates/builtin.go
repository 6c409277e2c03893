package templates

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/llmspell-dev/llmspell/pkg/agents"
	"github.com/llmspell-dev/llmspell/pkg/executor"
	"github.com/llmspell-dev/llmspell/pkg/lserror"
	"github.com/llmspell-dev/llmspell/pkg/sessions"
	"github.com/llmspell-dev/llmspell/pkg/tools"
)

const researchAgentID = "research-assistant"

// RegisterBuiltins installs the stock templates. The agent registry and
// factory are used to provision the research assistant on first run.
func RegisterBuiltins(e *Engine, registry *agents.Registry, factory *agents.Factory) error {
	if err := e.Register(researchTemplate(registry, factory)); err != nil {
		return err
	}
	return e.Register(summarizeTemplate())
}

func researchTemplate(registry *agents.Registry, factory *agents.Factory) Template {
	return Template{
		ID:          "research",
		Name:        "Research",
		Description: "Runs the research assistant over a topic for a number of rounds and files the notes as an artifact",
		Category:    "analysis",
		Schema: tools.Schema{
			"topic": {Type: "string", Description: "what to research", Required: true, MinLength: 1},
			"depth": {Type: "integer", Description: "number of rounds", Default: float64(2), Minimum: f(1), Maximum: f(10)},
		},
		Run: func(ctx context.Context, rc *RunContext, params map[string]any) (any, map[string]any, error) {
			topic := params["topic"].(string)
			depth := int(params["depth"].(float64))

			if err := ensureResearchAgent(ctx, registry, factory); err != nil {
				return nil, nil, err
			}

			var notes strings.Builder
			notes.WriteString("# Research: " + topic + "\n")
			for round := 1; round <= depth; round++ {
				out, err := rc.Exec.ExecuteAgent(ctx, researchAgentID, map[string]any{
					"topic": topic,
					"round": round,
				}, executor.Options{SessionID: rc.SessionID})
				if err != nil {
					return nil, nil, err
				}
				rc.Step()
				notes.WriteString("\n## Round " + strconv.Itoa(round) + "\n")
				notes.WriteString(renderAgentOutput(out))
			}

			artifact, err := rc.StoreArtifact(ctx, sessions.ArtifactAgentOutput,
				"research-"+topic+".md", []byte(notes.String()),
				map[string]any{"topic": topic, "rounds": depth})
			if err != nil {
				return nil, nil, err
			}

			result := map[string]any{
				"topic":       topic,
				"rounds":      depth,
				"artifact_id": artifact.ID,
			}
			return result, map[string]any{"agent": researchAgentID}, nil
		},
	}
}

func summarizeTemplate() Template {
	return Template{
		ID:          "summarize",
		Name:        "Summarize",
		Description: "Truncates a text to a word budget and files the summary as an artifact",
		Category:    "text",
		Schema: tools.Schema{
			"text":      {Type: "string", Description: "text to summarize", Required: true, MinLength: 1},
			"max_words": {Type: "integer", Description: "word budget", Default: float64(50), Minimum: f(1)},
		},
		Run: func(ctx context.Context, rc *RunContext, params map[string]any) (any, map[string]any, error) {
			text := params["text"].(string)
			maxWords := int(params["max_words"].(float64))

			words := strings.Fields(text)
			summary := text
			truncated := false
			if len(words) > maxWords {
				summary = strings.Join(words[:maxWords], " ") + " …"
				truncated = true
			}
			rc.Step()

			artifact, err := rc.StoreArtifact(ctx, sessions.ArtifactAgentOutput,
				"summary.txt", []byte(summary),
				map[string]any{"source_words": len(words), "max_words": maxWords})
			if err != nil {
				return nil, nil, err
			}

			result := map[string]any{
				"summary":     summary,
				"word_count":  min(len(words), maxWords),
				"truncated":   truncated,
				"artifact_id": artifact.ID,
			}
			return result, nil, nil
		},
	}
}

// ensureResearchAgent provisions the echo-backed assistant once; later
// runs reuse it.
func ensureResearchAgent(ctx context.Context, registry *agents.Registry, factory *agents.Factory) error {
	if _, err := registry.Get(researchAgentID); err == nil {
		return nil
	} else if lserror.KindOf(err) != lserror.KindNotFound {
		return err
	}
	_, err := factory.Create(ctx, agents.Descriptor{
		ID:   researchAgentID,
		Type: "echo",
		Name: "Research Assistant",
	})
	return err
}

func renderAgentOutput(out map[string]any) string {
	for _, key := range []string{"echo", "output", "result"} {
		if v, ok := out[key]; ok {
			return stringify(v) + "\n"
		}
	}
	return stringify(out) + "\n"
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(k + "=" + stringify(t[k]))
		}
		return b.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}

func f(v float64) *float64 { return &v }
