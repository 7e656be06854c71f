package main

import (
	"fmt"

	"github.com/nerith/agentd/internal/app"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "show balance, recent actions, and active goals",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := app.New(configPath, repoRoot, verbose)
	if err != nil {
		return err
	}
	defer a.Close()

	balance, err := a.Ledger.Balance()
	if err != nil {
		return err
	}
	fmt.Printf("balance: %.4f (low-balance threshold %.2f)\n", balance, a.Ledger.Threshold())

	actions, err := a.Journal.RecentActions(10)
	if err != nil {
		return err
	}
	fmt.Println("\nrecent actions:")
	for _, act := range actions {
		fmt.Printf("  [%s] %s -> %s\n", act.Timestamp.Format("2006-01-02 15:04:05"), act.Action, act.Outcome)
	}

	goals, err := a.Journal.ActiveGoals()
	if err != nil {
		return err
	}
	fmt.Println("\nactive goals:")
	for _, g := range goals {
		fmt.Printf("  #%d [%s] %s (priority %d)\n", g.ID, g.GoalType, g.GoalText, g.Priority)
	}

	return nil
}
