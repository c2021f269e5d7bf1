package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/torosent/crowdbench/internal/action"
	"github.com/torosent/crowdbench/internal/config"
	"github.com/torosent/crowdbench/internal/logging"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand(action.DefaultRegistry()).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCommand builds the command tree around the given action catalog.
func newRootCommand(registry *action.Registry) *cobra.Command {
	root := &cobra.Command{
		Use:           "crowdbench",
		Short:         "Distributed load testing with scheduled crowds of synthetic users",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		newPlanCommand(registry),
		newWorkerCommand(),
		newActionCommand(registry),
		newMonitorCommand(),
		newAggregateCommand(),
		newActionsCommand(registry),
		newHostsCommand(),
	)
	return root
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.NewLoader().Load(cmd.Flags())
}

// newLogger logs to file and, when console is set, to stderr as well.
func newLogger(cfg *config.Config, file string, console bool) (*zap.Logger, error) {
	return logging.New(logging.Options{Level: cfg.LogLevel, File: file, Console: console})
}

func requireFlag(cmd *cobra.Command, names ...string) error {
	for _, name := range names {
		v, err := cmd.Flags().GetString(name)
		if err != nil {
			return err
		}
		if v == "" {
			return fmt.Errorf("--%s is required", name)
		}
	}
	return nil
}
