// Command llmspell is the CLI front-end: script execution, kernel
// lifecycle, and the tool and template surfaces.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/llmspell-dev/llmspell/pkg/config"
	"github.com/llmspell-dev/llmspell/pkg/lserror"
)

// Version is set via ldflags.
var Version = "dev"

var configFile string

func main() {
	root := &cobra.Command{
		Use:           "llmspell",
		Short:         "Scriptable agent orchestration kernel",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "configuration file (YAML)")

	root.AddCommand(newExecCmd())
	root.AddCommand(newKernelCmd())
	root.AddCommand(newToolCmd())
	root.AddCommand(newTemplateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(lserror.ExitCode(err))
	}
}

// loadConfig reads the configured file, or the defaults when none is given.
func loadConfig() (*config.Config, error) {
	if configFile == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	log.Printf("[CLI] loaded configuration from %s", configFile)
	return cfg, nil
}
