package main

import (
	"fmt"
	"math/rand"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/torosent/crowdbench/internal/action"
	"github.com/torosent/crowdbench/internal/config"
	"github.com/torosent/crowdbench/internal/logging"
	"github.com/torosent/crowdbench/internal/plan"
)

// planPath is where a run's worker plan document is written by default.
func planPath(dir, runID string) string {
	return filepath.Join(dir, "load-"+runID+".json")
}

func newPlanCommand(registry *action.Registry) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Split a test-run definition across the worker inventory",
		Long: `Reads a test-run definition (intervals plus per-action load), draws any
random values, validates it and splits it across the hosts of the inventory.
The worker plan document is written to the data directory and the plan
description is printed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireFlag(cmd, "definition"); err != nil {
				return err
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg, logging.PlanLog(cfg.DataDir), false)
			if err != nil {
				return err
			}
			defer logger.Sync()

			defPath, _ := cmd.Flags().GetString("definition")
			runID, _ := cmd.Flags().GetString("run-id")
			out, _ := cmd.Flags().GetString("out")
			seed, _ := cmd.Flags().GetInt64("seed")

			def, err := plan.LoadDefinition(defPath)
			if err != nil {
				return err
			}
			hosts, err := config.LoadHosts(cfg.HostsFile)
			if err != nil {
				return err
			}
			if len(hosts) == 0 {
				return fmt.Errorf("no hosts in %s", cfg.HostsFile)
			}

			rnd := plan.NewRand()
			if cmd.Flags().Changed("seed") {
				rnd = rand.New(rand.NewSource(seed))
			}
			prepared, err := plan.Prepare(def, config.HostNames(hosts), rnd, registry.Names()...)
			if err != nil {
				return err
			}
			if runID != "" {
				prepared.RunID = runID
			}
			if out == "" {
				out = planPath(cfg.DataDir, prepared.RunID)
			}
			if err := plan.WriteDocument(out, prepared.Document()); err != nil {
				return err
			}
			logger.Info("test run planned",
				zap.String("run", prepared.RunID),
				zap.String("plan", out),
				zap.Int("hosts", len(hosts)))

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Test run: %s\nPlan: %s\n\n", prepared.RunID, out)
			fmt.Fprint(w, prepared.Description)
			return nil
		},
	}
	cmd.Flags().String("definition", "", "Test-run definition file (YAML or JSON)")
	cmd.Flags().String("run-id", "", "Test run id (generated when empty)")
	cmd.Flags().String("out", "", "Where to write the worker plan document")
	cmd.Flags().Int64("seed", 0, "Seed for random load ranges")
	return cmd
}
