package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/llmspell-dev/llmspell"
	"github.com/llmspell-dev/llmspell/internal/observability"
	"github.com/llmspell-dev/llmspell/pkg/config"
	"github.com/llmspell-dev/llmspell/pkg/kernel"
	"github.com/llmspell-dev/llmspell/pkg/lserror"
)

func newKernelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kernel",
		Short: "Run or talk to a protocol kernel",
	}
	cmd.AddCommand(newKernelStartCmd())
	cmd.AddCommand(newKernelConnectCmd())
	return cmd
}

func newKernelStartCmd() *cobra.Command {
	var connectionFile string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a kernel and serve the five channels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if connectionFile != "" {
				cfg.Kernel.ConnectionFile = connectionFile
			}

			rt, err := llmspell.NewRuntime(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()
			infra := rt.Infrastructure()
			infra.Janitor.Start()

			if err := observability.InitTracingFromEnv(); err != nil {
				log.Printf("[CLI] tracing unavailable: %v", err)
			}
			defer func() {
				if err := observability.ShutdownTracing(context.Background()); err != nil {
					log.Printf("[CLI] tracing shutdown: %v", err)
				}
			}()
			if cfg.Telemetry.Metrics {
				observability.InitMetrics()
				srv := observability.NewServer(cfg.Telemetry.MetricsAddr, nil)
				go func() {
					log.Printf("[CLI] metrics on %s", cfg.Telemetry.MetricsAddr)
					if err := srv.Start(); err != nil {
						log.Printf("[CLI] metrics server: %v", err)
					}
				}()
				defer srv.Shutdown(context.Background())
			}

			info := connectionInfo(cfg)
			if cfg.Kernel.ConnectionFile != "" {
				if err := kernel.WriteConnection(cfg.Kernel.ConnectionFile, info); err != nil {
					return err
				}
				log.Printf("[CLI] connection file written to %s", cfg.Kernel.ConnectionFile)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			transport := kernel.NewZMQTransport(ctx)
			k, err := kernel.New(kernel.Config{
				ID:             info.KernelID,
				Connection:     info,
				SessionBackend: cfg.Sessions.Backend,
				MaxClients:     cfg.Kernel.MaxClients,
				Interpreter:    rt.Interpreter(),
				Tenants:        infra.Tenants,
			}, transport, rt.Executor(), infra.Sessions, infra.State, infra.Tools)
			if err != nil {
				return err
			}

			log.Printf("[CLI] kernel %s listening on %s (shell port %d)", k.ID(), info.IP, info.ShellPort)
			return k.Serve(ctx)
		},
	}

	cmd.Flags().StringVar(&connectionFile, "connection-file", "", "where to write the connection file")
	return cmd
}

func newKernelConnectCmd() *cobra.Command {
	var connectionFile string

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect an interactive prompt to a running kernel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if connectionFile == "" {
				return lserror.Validation("connection-file", "a connection file is required")
			}
			info, err := kernel.LoadConnection(connectionFile)
			if err != nil {
				return err
			}

			client, err := kernel.Dial(cmd.Context(), info)
			if err != nil {
				return err
			}
			defer client.Close()

			infoContent, err := client.KernelInfo()
			if err != nil {
				return err
			}
			fmt.Printf("Connected to %s %v (protocol %v)\n",
				infoContent["implementation"], infoContent["implementation_version"], infoContent["protocol_version"])

			return runPrompt(client)
		},
	}

	cmd.Flags().StringVar(&connectionFile, "connection-file", "", "connection file of the running kernel")
	return cmd
}

// runPrompt reads lines until EOF or an exit command, executing each on
// the kernel.
func runPrompt(client *kernel.Client) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	for {
		input, err := line.Prompt("llmspell> ")
		if err == liner.ErrPromptAborted || err == io.EOF {
			fmt.Println()
			return nil
		}
		if err != nil {
			return lserror.Transport("prompt: " + err.Error())
		}

		input = strings.TrimSpace(input)
		switch input {
		case "":
			continue
		case "exit", "quit":
			return nil
		}
		line.AppendHistory(input)

		content, err := client.Execute(input)
		if err != nil {
			return err
		}
		if content["status"] == "error" {
			fmt.Println("error:", content["error"])
			continue
		}
		if payload, ok := content["payload"]; ok {
			if err := printResult(payload); err != nil {
				return err
			}
		}
	}
}

// connectionInfo derives the five-port layout from the kernel section.
func connectionInfo(cfg *config.Config) kernel.ConnectionInfo {
	shell := cfg.Kernel.ShellPort
	return kernel.ConnectionInfo{
		Transport:       "tcp",
		IP:              cfg.Kernel.IP,
		Key:             cfg.Kernel.Key,
		SignatureScheme: "hmac-sha256",
		ShellPort:       shell,
		IOPubPort:       shell + 1,
		StdinPort:       shell + 2,
		ControlPort:     shell + 3,
		HBPort:          shell + 4,
		KernelID:        uuid.New().String(),
	}
}
