package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/llmspell-dev/llmspell"
	"github.com/llmspell-dev/llmspell/pkg/executor"
	"github.com/llmspell-dev/llmspell/pkg/lserror"
	"github.com/llmspell-dev/llmspell/pkg/tools"
)

func newToolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tool",
		Short: "Inspect and invoke registered tools",
	}
	cmd.AddCommand(newToolListCmd())
	cmd.AddCommand(newToolInfoCmd())
	cmd.AddCommand(newToolInvokeCmd())
	cmd.AddCommand(newToolTestCmd())
	cmd.AddCommand(newToolSearchCmd())
	return cmd
}

// withInfra builds infrastructure, runs fn, and closes everything.
func withInfra(fn func(infra *llmspell.Infrastructure) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	infra, err := llmspell.Build(cfg)
	if err != nil {
		return err
	}
	defer infra.Close()
	return fn(infra)
}

func newToolListCmd() *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withInfra(func(infra *llmspell.Infrastructure) error {
				list := infra.Tools.List()
				if category != "" {
					list = infra.Tools.ByCategory(category)
				}
				for _, tool := range list {
					fmt.Printf("%-20s %-12s %s\n", tool.Name, tool.Category, tool.Description)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "only tools in this category")
	return cmd
}

func newToolInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <name>",
		Short: "Show a tool's schema and limits",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withInfra(func(infra *llmspell.Infrastructure) error {
				tool, err := infra.Tools.Get(args[0])
				if err != nil {
					return err
				}
				return printResult(tool)
			})
		},
	}
}

func newToolInvokeCmd() *cobra.Command {
	var (
		params  string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "invoke <name>",
		Short: "Invoke a tool with JSON parameters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := map[string]any{}
			if params != "" {
				if err := json.Unmarshal([]byte(params), &input); err != nil {
					return lserror.Validation("params", "params must be a JSON object")
				}
			}
			return withInfra(func(infra *llmspell.Infrastructure) error {
				start := time.Now()
				result, err := infra.Executor.ExecuteTool(cmd.Context(), args[0], input, executor.Options{
					Timeout: timeout,
				})
				if err != nil {
					return err
				}
				return printResult(map[string]any{
					"status":      "ok",
					"tool":        args[0],
					"duration_ms": time.Since(start).Milliseconds(),
					"result":      result,
				})
			})
		},
	}
	cmd.Flags().StringVarP(&params, "params", "p", "", "tool parameters as a JSON object")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "execution timeout (default from config)")
	return cmd
}

func newToolTestCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "test <name>",
		Short: "Check a tool is registered and well-formed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withInfra(func(infra *llmspell.Infrastructure) error {
				tool, err := infra.Tools.Get(args[0])
				if err != nil {
					return err
				}
				report := map[string]any{"tool": tool.Name, "passed": true}
				if verbose {
					report["descriptor"] = tool
				}
				return printResult(report)
			})
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "include the full descriptor")
	return cmd
}

func newToolSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <term>...",
		Short: "Search tools by name and description",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withInfra(func(infra *llmspell.Infrastructure) error {
				seen := map[string]bool{}
				var matches []tools.Tool
				for _, term := range args {
					for _, tool := range infra.Tools.Search(term) {
						if !seen[tool.Name] {
							seen[tool.Name] = true
							matches = append(matches, tool)
						}
					}
				}
				for _, tool := range matches {
					fmt.Printf("%-20s %s\n", tool.Name, tool.Description)
				}
				return nil
			})
		},
	}
}
