package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/llmspell-dev/llmspell"
	"github.com/llmspell-dev/llmspell/pkg/lserror"
)

func newTemplateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "List and run templates",
	}
	cmd.AddCommand(newTemplateListCmd())
	cmd.AddCommand(newTemplateExecCmd())
	return cmd
}

func newTemplateListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withInfra(func(infra *llmspell.Infrastructure) error {
				for _, t := range infra.Templates.List() {
					fmt.Printf("%-22s %-12s %s\n", t.ID, t.Category, t.Description)
				}
				return nil
			})
		},
	}
}

func newTemplateExecCmd() *cobra.Command {
	var (
		params  string
		session string
	)
	cmd := &cobra.Command{
		Use:   "exec <id>",
		Short: "Run a template with JSON parameters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := map[string]any{}
			if params != "" {
				if err := json.Unmarshal([]byte(params), &input); err != nil {
					return lserror.Validation("params", "params must be a JSON object")
				}
			}
			return withInfra(func(infra *llmspell.Infrastructure) error {
				out, err := infra.Templates.Execute(cmd.Context(), args[0], input, session)
				if err != nil {
					return err
				}
				return printResult(out)
			})
		},
	}
	cmd.Flags().StringVarP(&params, "params", "p", "", "template parameters as a JSON object")
	cmd.Flags().StringVar(&session, "session", "", "existing session id to run under")
	return cmd
}
