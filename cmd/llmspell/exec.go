package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/llmspell-dev/llmspell"
	"github.com/llmspell-dev/llmspell/pkg/lserror"
)

func newExecCmd() *cobra.Command {
	var (
		code    string
		engine  string
		session string
	)

	cmd := &cobra.Command{
		Use:   "exec [script-file]",
		Short: "Run a script through the embedded runtime",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if code == "" && len(args) == 0 {
				return lserror.Validation("script", "pass a script file or -c code")
			}
			if code != "" && len(args) > 0 {
				return lserror.Validation("script", "pass either a script file or -c code, not both")
			}
			if len(args) == 1 {
				data, err := os.ReadFile(args[0])
				if err != nil {
					return lserror.Backend(err)
				}
				code = string(data)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			rt, err := llmspell.NewRuntime(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			result, err := rt.ExecuteScript(cmd.Context(), engine, session, code)
			if err != nil {
				return err
			}
			return printResult(result)
		},
	}

	cmd.Flags().StringVarP(&code, "code", "c", "", "script source to run inline")
	cmd.Flags().StringVar(&engine, "engine", "", "script engine name (default engine when empty)")
	cmd.Flags().StringVar(&session, "session", "", "session id to run under")
	return cmd
}

func printResult(result any) error {
	switch v := result.(type) {
	case nil:
		return nil
	case string:
		fmt.Println(v)
		return nil
	default:
		out, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return lserror.Internal(err)
		}
		fmt.Println(string(out))
		return nil
	}
}
