package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerith/agentd/internal/app"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "start the scheduler's tick loop and block until interrupted",
	RunE:  runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	a, err := app.New(configPath, repoRoot, verbose)
	if err != nil {
		return err
	}
	defer a.Close()

	a.RegisterDefaultTasks(time.Now())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fmt.Println("agentd running, press ctrl-c to stop")
	a.Scheduler.Run(ctx)
	return nil
}
