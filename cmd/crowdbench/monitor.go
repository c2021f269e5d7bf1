package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/torosent/crowdbench/internal/config"
	"github.com/torosent/crowdbench/internal/logging"
	"github.com/torosent/crowdbench/internal/monitor"
)

func newMonitorCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Serve chart, summary and log views of this worker's ledgers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg, logging.MonitorLog(cfg.DataDir), true)
			if err != nil {
				return err
			}
			defer logger.Sync()

			srv := monitor.NewServer(monitor.Options{
				DataDir:  cfg.DataDir,
				Addr:     cfg.Monitor.Addr(),
				Bucket:   cfg.Monitor.Bucket,
				Window:   cfg.Monitor.Window,
				LogLines: cfg.Monitor.LogLines,
				Logger:   logger,
			})
			return srv.ListenAndServe(cmd.Context())
		},
	}
}

func newAggregateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Merge the monitoring views of every worker in the inventory",
		Long: `Queries the monitoring service of every host in the inventory and merges
the answers. With --listen the merged views are served over HTTP under the same
paths as a worker's monitor; otherwise one merged snapshot is printed as JSON.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg, "", true)
			if err != nil {
				return err
			}
			defer logger.Sync()

			hosts, err := config.LoadHosts(cfg.HostsFile)
			if err != nil {
				return err
			}
			agg := monitor.NewAggregator(hosts, &http.Client{Timeout: cfg.Timeout}, logger)

			listen, _ := cmd.Flags().GetString("listen")
			if listen != "" {
				return serveAggregate(cmd, agg, listen, logger)
			}

			if err := requireFlag(cmd, "run-id"); err != nil {
				return err
			}
			runID, _ := cmd.Flags().GetString("run-id")
			metric, _ := cmd.Flags().GetString("metric")
			actions, _ := cmd.Flags().GetStringSlice("actions")

			ctx := cmd.Context()
			chart, chartErrs := agg.Chart(ctx, monitor.ChartRequest{RunID: runID, Metric: metric, Actions: actions})
			summary, summaryErrs := agg.Summary(ctx, runID)
			logs, logErrs := agg.Logs(ctx, runID)

			snapshot := struct {
				Chart   monitor.Chart         `json:"chart"`
				Summary []monitor.SummaryItem `json:"summary"`
				Logs    []monitor.LogBundle   `json:"logs"`
				Errors  []string              `json:"errors,omitempty"`
			}{Chart: chart, Summary: summary, Logs: logs}
			for _, errs := range [][]monitor.HostError{chartErrs, summaryErrs, logErrs} {
				for _, e := range errs {
					snapshot.Errors = append(snapshot.Errors, e.Error())
				}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(snapshot)
		},
	}
	cmd.Flags().String("run-id", "", "Test run id")
	cmd.Flags().String("metric", monitor.MetricAtomicOps, "Chart metric: "+strings.Join([]string{
		monitor.MetricAtomicOps, monitor.MetricAtomicLatency, monitor.MetricOps, monitor.MetricLatency,
	}, ", "))
	cmd.Flags().StringSlice("actions", nil, "Restrict the chart to these actions")
	cmd.Flags().String("listen", "", "Serve the merged views on this address instead of printing once")
	return cmd
}

func serveAggregate(cmd *cobra.Command, agg *monitor.Aggregator, addr string, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           agg.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("aggregator listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-cmd.Context().Done():
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
