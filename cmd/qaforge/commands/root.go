// Package commands defines all Cobra CLI commands for the qaforge binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/qaforge/qaforge/internal/audit"
	"github.com/qaforge/qaforge/internal/config"
	"github.com/qaforge/qaforge/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "qaforge",
		Short: "qaforge — a QA knowledge base built from call-centre transcripts",
		Long: `qaforge turns recorded support-call transcripts into a searchable knowledge base.

An LLM extracts question/answer pairs from each transcript, the pairs are
stored in SQLite and indexed into Qdrant, and the HTTP server answers user
questions using the indexed pairs as retrieval context. A Telegram monitor
can additionally capture expert answers from a group chat.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.qaforge/config.yaml).
See 'qaforge --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.qaforge/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewAskCmd(),
		NewExtractCmd(),
		NewIndexCmd(),
		NewAuditCmd(),
		NewMonitorCmd(),
		NewStatsCmd(),
		NewVersionCmd(),
	)

	return root
}
