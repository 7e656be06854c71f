package main

import (
	"context"
	"fmt"
	"time"

	"github.com/nerith/agentd/internal/app"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var diagnoseYAML bool

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "run a full diagnosis and print the resulting plan",
	RunE:  runDiagnose,
}

func init() {
	diagnoseCmd.Flags().BoolVar(&diagnoseYAML, "yaml", false, "dump the full diagnosis as YAML instead of the summary text")
}

func runDiagnose(cmd *cobra.Command, args []string) error {
	a, err := app.New(configPath, repoRoot, verbose)
	if err != nil {
		return err
	}
	defer a.Close()

	full, err := a.Diagnosis.PerformFullDiagnosis(context.Background(), time.Now())
	if err != nil {
		return err
	}

	if diagnoseYAML {
		out, err := yaml.Marshal(full)
		if err != nil {
			return fmt.Errorf("diagnose: marshal yaml: %w", err)
		}
		fmt.Print(string(out))
		return nil
	}

	fmt.Printf("actions: %d  errors: %d  error rate: %.1f%%  spend: %.4f\n",
		full.Performance.TotalActions, full.Performance.ErrorActions, full.Performance.ErrorRate*100, full.Performance.TotalCostAccrued)

	fmt.Println("\nbottlenecks:")
	for _, b := range full.Bottlenecks {
		fmt.Printf("  - %s: %s\n", b.Kind, b.Detail)
	}

	fmt.Println("\nimprovement opportunities:")
	for _, o := range full.Opportunities {
		fmt.Printf("  - %s (%dx)\n", o.Action, o.Count)
	}

	fmt.Println("\nplan:")
	for _, r := range full.Plan.Recommendations {
		fmt.Printf("  - %s\n", r)
	}
	return nil
}
