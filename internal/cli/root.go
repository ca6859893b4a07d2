// Package cli wires the reconciliation engine into the stackform command.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/stackform-io/stackform/internal/logging"
)

var (
	manifestFile  string
	statePath     string
	backendType   string
	backendConfig map[string]string
	parallelism   int
	logLevel      string
	logFormat     string
)

var rootCmd = &cobra.Command{
	Use:   "stackform",
	Short: "Declarative infrastructure reconciliation",
	Long: `Stackform reconciles declared infrastructure against recorded state.

Given a manifest of desired resources it builds a dependency graph,
plans the minimal set of changes, and applies them in dependency order
with bounded concurrency.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(logLevel, logFormat)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&manifestFile, "file", "f", "stackform.yaml", "Manifest file to reconcile")
	rootCmd.PersistentFlags().StringVar(&statePath, "state", ".stackform/state.json", "Local state file path")
	rootCmd.PersistentFlags().StringVar(&backendType, "backend", "local", "State backend type (local, s3)")
	rootCmd.PersistentFlags().StringToStringVar(&backendConfig, "backend-config", nil, "Backend configuration (format: key=value)")
	rootCmd.PersistentFlags().IntVar(&parallelism, "parallelism", 10, "Maximum concurrent operations within a wave")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text, json)")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(destroyCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(versionCmd)
}
