package tools

import (
	"context"

	"github.com/llmspell-dev/llmspell/pkg/lserror"
)

// Builtins returns the tools every runtime ships with.
func Builtins() []Tool {
	return []Tool{Calculator(), EnvironmentReader(), FileReader()}
}

// RegisterBuiltins adds the built-in tools to a registry.
func RegisterBuiltins(r *Registry) error {
	for _, t := range Builtins() {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// Calculator evaluates arithmetic expressions. Safe level: it touches
// nothing outside the expression string.
func Calculator() Tool {
	return Tool{
		Name:          "calculator",
		Description:   "Evaluates an arithmetic expression (+ - * / % ^, parentheses).",
		Category:      "utility",
		SecurityLevel: LevelSafe,
		Schema: Schema{
			"expression": {Type: "string", Required: true, MaxLength: 1024,
				Description: "The expression to evaluate, e.g. \"2 * (3 + 4)\"."},
		},
		Handler: func(_ context.Context, input Args, _ *ExecContext) (any, error) {
			value, err := evalExpression(input.String("expression"))
			if err != nil {
				return nil, lserror.Validation("expression", err.Error())
			}
			return map[string]any{"value": value}, nil
		},
	}
}

// EnvironmentReader reads one environment variable through the sandbox
// env allow-list.
func EnvironmentReader() Tool {
	return Tool{
		Name:          "environment-reader",
		Description:   "Reads an environment variable permitted by the sandbox.",
		Category:      "system",
		SecurityLevel: LevelRestricted,
		Schema: Schema{
			"name": {Type: "string", Required: true, Pattern: `^[A-Za-z_][A-Za-z0-9_]*$`,
				Description: "Environment variable name."},
		},
		Handler: func(_ context.Context, input Args, ec *ExecContext) (any, error) {
			if ec == nil || ec.Sandbox == nil {
				return nil, lserror.SandboxViolation(lserror.ViolationEnvironmentAccess,
					"environment-reader requires a sandbox context")
			}
			name := input.String("name")
			value, err := ec.Sandbox.Getenv(name)
			if err != nil {
				return nil, err
			}
			return map[string]any{"name": name, "value": value}, nil
		},
	}
}

// FileReader reads a file through the sandbox path allow-list.
func FileReader() Tool {
	return Tool{
		Name:          "file-reader",
		Description:   "Reads a file within the sandbox path allow-list.",
		Category:      "filesystem",
		SecurityLevel: LevelRestricted,
		Schema: Schema{
			"path": {Type: "string", Required: true, MinLength: 1,
				Description: "File path, absolute or relative to the sandbox working directory."},
		},
		Handler: func(_ context.Context, input Args, ec *ExecContext) (any, error) {
			if ec == nil || ec.Sandbox == nil {
				return nil, lserror.SandboxViolation(lserror.ViolationFileAccess,
					"file-reader requires a sandbox context")
			}
			path := input.String("path")
			data, err := ec.Sandbox.ReadFile(path)
			if err != nil {
				return nil, err
			}
			if ec.Monitor != nil {
				ec.Monitor.AddDiskBytes(int64(len(data)))
			}
			return map[string]any{"path": path, "content": string(data), "size": len(data)}, nil
		},
	}
}
