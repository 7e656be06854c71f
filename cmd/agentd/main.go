// Package main is the entry point for the autonomous agent runtime's
// CLI, agentd. Command implementations are split across command_*.go
// files, mirroring the teacher's cmd/nerd layout (main.go as the
// registration hub, one file per command group).
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	verbose    bool
	configPath string
	repoRoot   string
	timeout    time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "agentd",
	Short: "autonomous self-evolving agent runtime",
	Long: `agentd runs a persistent, self-auditing agent: it journals every
action and economic transaction, routes model calls across configured
backends, periodically diagnoses its own performance, and evolves new
tools when its gating rule decides the journal warrants it.`,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "agent.toml", "path to agent.toml")
	rootCmd.PersistentFlags().StringVarP(&repoRoot, "repo-root", "r", ".", "repository root for self-analysis and tool storage")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "operation timeout (0 = none)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(evolveCmd)
	rootCmd.AddCommand(diagnoseCmd)
	rootCmd.AddCommand(toolsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
