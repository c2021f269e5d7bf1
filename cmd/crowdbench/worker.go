package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/torosent/crowdbench/internal/logging"
	"github.com/torosent/crowdbench/internal/plan"
	"github.com/torosent/crowdbench/internal/worker"
)

// runFlags identify a worker's share of a test run.
func runFlags(flags *pflag.FlagSet) {
	flags.String("run-id", "", "Test run id")
	flags.String("worker", "", "Worker name as listed in the plan document")
	flags.String("plan", "", "Worker plan document (defaults to <data-dir>/load-<run-id>.json)")
}

func newWorkerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run this worker's share of a test run, one process per action",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireFlag(cmd, "run-id", "worker"); err != nil {
				return err
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			runID, _ := cmd.Flags().GetString("run-id")
			name, _ := cmd.Flags().GetString("worker")
			planFile, _ := cmd.Flags().GetString("plan")
			if planFile == "" {
				planFile = planPath(cfg.DataDir, runID)
			}

			logger, err := newLogger(cfg, logging.RunLog(cfg.DataDir, runID), true)
			if err != nil {
				return err
			}
			defer logger.Sync()

			doc, err := plan.ReadDocument(planFile)
			if err != nil {
				return err
			}
			spawner, err := worker.SelfSpawner(forwardFlags(cmd.Flags(), map[string]string{"plan": planFile})...)
			if err != nil {
				return err
			}
			spawner.Stdout = cmd.OutOrStdout()
			spawner.Stderr = cmd.ErrOrStderr()
			spawner.WaitDelay = cfg.Grace * 2

			o := &worker.Orchestrator{
				RunID:    runID,
				Worker:   name,
				DataDir:  cfg.DataDir,
				Document: doc,
				Spawner:  spawner,
				Logger:   logger,
			}
			res, err := o.Run(cmd.Context())
			if err != nil {
				return err
			}
			if failed := res.FailedActions(); len(failed) > 0 {
				logger.Warn("some action processes failed", zap.Strings("actions", failed))
				return fmt.Errorf("%d of %d action processes failed: %v", len(failed), len(res.Actions), failed)
			}
			return nil
		},
	}
	runFlags(cmd.Flags())
	return cmd
}

// forwardFlags renders the flags the user set, plus overrides, so a child
// process sees the same configuration.
func forwardFlags(flags *pflag.FlagSet, overrides map[string]string) []string {
	var args []string
	flags.Visit(func(f *pflag.Flag) {
		if _, ok := overrides[f.Name]; ok {
			return
		}
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			for _, v := range sv.GetSlice() {
				args = append(args, fmt.Sprintf("--%s=%s", f.Name, v))
			}
			return
		}
		args = append(args, fmt.Sprintf("--%s=%s", f.Name, f.Value.String()))
	})
	for name, v := range overrides {
		args = append(args, fmt.Sprintf("--%s=%s", name, v))
	}
	return args
}
