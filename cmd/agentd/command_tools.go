package main

import (
	"fmt"

	"github.com/nerith/agentd/internal/app"
	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "inspect the tool registry",
}

var toolsListCmd = &cobra.Command{
	Use:   "list",
	Short: "list every registered tool",
	RunE:  runToolsList,
}

func init() {
	toolsCmd.AddCommand(toolsListCmd)
}

func runToolsList(cmd *cobra.Command, args []string) error {
	a, err := app.New(configPath, repoRoot, verbose)
	if err != nil {
		return err
	}
	defer a.Close()

	tools, err := a.Journal.ListTools()
	if err != nil {
		return err
	}
	for _, t := range tools {
		fmt.Printf("%-24s uses=%-6d %s\n", t.Name, t.UsageCount, t.Description)
	}
	return nil
}
