package main

import (
	"context"
	"fmt"
	"time"

	"github.com/nerith/agentd/internal/app"
	"github.com/spf13/cobra"
)

var evolveCmd = &cobra.Command{
	Use:   "evolve",
	Short: "run one evolution cycle now, bypassing the scheduler",
	RunE:  runEvolve,
}

func runEvolve(cmd *cobra.Command, args []string) error {
	a, err := app.New(configPath, repoRoot, verbose)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cycle, err := a.Evolution.RunCycle(ctx, time.Now())
	if err != nil {
		return err
	}

	fmt.Printf("cycle %s: %s (phase %s)\n", cycle.ID, cycle.State, cycle.Phase)
	if len(cycle.Executed) == 0 {
		fmt.Println("no opportunities executed")
		return nil
	}
	fmt.Println("executed:")
	for _, e := range cycle.Executed {
		fmt.Printf("  - %s\n", e)
	}
	fmt.Printf("tests: %d/%d passed\n", cycle.Tests.TestsPassed, cycle.Tests.TestsRun)
	for _, d := range cycle.Tests.Details {
		fmt.Printf("  %s\n", d)
	}
	if len(cycle.Lessons) > 0 {
		fmt.Println("lessons:")
		for _, l := range cycle.Lessons {
			fmt.Printf("  [%s] %s: %s\n", l.Type, l.Task, l.Lesson)
		}
	}
	return nil
}
