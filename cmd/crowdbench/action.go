package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/torosent/crowdbench/internal/action"
	"github.com/torosent/crowdbench/internal/crowd"
	"github.com/torosent/crowdbench/internal/httpclient"
	"github.com/torosent/crowdbench/internal/ledger"
	"github.com/torosent/crowdbench/internal/logging"
	"github.com/torosent/crowdbench/internal/metrics"
	"github.com/torosent/crowdbench/internal/output"
	"github.com/torosent/crowdbench/internal/plan"
	"github.com/torosent/crowdbench/internal/tracing"
	"github.com/torosent/crowdbench/internal/users"
)

const progressInterval = 10 * time.Second

func newActionCommand(registry *action.Registry) *cobra.Command {
	cmd := &cobra.Command{
		Use:    "action",
		Short:  "Replay one action's schedule (started by the worker command)",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireFlag(cmd, "run-id", "worker", "name"); err != nil {
				return err
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			runID, _ := cmd.Flags().GetString("run-id")
			workerName, _ := cmd.Flags().GetString("worker")
			planFile, _ := cmd.Flags().GetString("plan")
			name, _ := cmd.Flags().GetString("name")
			if planFile == "" {
				planFile = planPath(cfg.DataDir, runID)
			}

			logger, err := newLogger(cfg, logging.RunLog(cfg.DataDir, runID), false)
			if err != nil {
				return err
			}
			logger = logger.With(zap.String("run", runID), zap.String("worker", workerName))
			defer logger.Sync()

			doc, err := plan.ReadDocument(planFile)
			if err != nil {
				return err
			}
			part, err := doc.Worker(workerName)
			if err != nil {
				return err
			}
			if _, ok := part.Actions[name]; !ok {
				return fmt.Errorf("action %q is not part of worker %s's plan", name, workerName)
			}
			act, err := registry.New(name, action.Env{Target: cfg.Target})
			if err != nil {
				return err
			}

			store, err := ledger.Open(ledger.Path(cfg.DataDir, runID))
			if err != nil {
				return err
			}
			defer store.Close()

			directory, err := users.Load(cfg.UsersFile)
			if err != nil {
				return err
			}
			headers, err := httpclient.Headers(cfg.Headers)
			if err != nil {
				return err
			}
			tp, err := tracing.Setup(cmd.Context(), cfg.Tracing, tracing.Identity{RunID: runID, Worker: workerName, Action: name})
			if err != nil {
				return err
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				tp.Shutdown(ctx)
			}()

			collector := metrics.NewCollector()
			session := action.NewSession(action.SessionConfig{
				Action:    name,
				Ledger:    store,
				Client:    httpclient.NewClient(cfg.Timeout, cfg.Concurrency),
				Headers:   headers,
				Tracing:   tp,
				Collector: collector,
				Users:     directory,
				Logger:    logger,
			})

			exec := crowd.New(crowd.Options{
				Action:           name,
				Concurrency:      cfg.Concurrency,
				Grace:            cfg.Grace,
				Collector:        collector,
				Logger:           logger,
				Progress:         zap.NewStdLog(logger.Named("progress")).Writer(),
				ProgressInterval: progressInterval,
			})
			report := exec.Run(cmd.Context(), part.Compile(name), part.Users[name], session.Iteration(act))

			stats := collector.Stats(report.Elapsed)
			if cfg.JSONOutput {
				return output.PrintJSONReport(cmd.OutOrStdout(), name, stats)
			}
			output.PrintReport(cmd.OutOrStdout(), name, stats)
			return nil
		},
	}
	runFlags(cmd.Flags())
	cmd.Flags().String("name", "", "Action to run")
	return cmd
}

func newActionsCommand(registry *action.Registry) *cobra.Command {
	return &cobra.Command{
		Use:   "actions",
		Short: "List the registered actions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range registry.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
