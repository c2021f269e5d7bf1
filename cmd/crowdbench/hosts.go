package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/torosent/crowdbench/internal/config"
)

func newHostsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hosts",
		Short: "Show or edit the worker inventory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			hosts, err := config.LoadHosts(cfg.HostsFile)
			if err != nil {
				return err
			}
			for _, h := range hosts {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", h.Host, h.MonitorURL(), h.Folder)
			}
			return nil
		},
	}

	add := &cobra.Command{
		Use:   "add HOST",
		Short: "Add a host to the inventory, or update it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			hosts, err := config.LoadHosts(cfg.HostsFile)
			if err != nil {
				return err
			}
			port, _ := cmd.Flags().GetInt("web-port")
			folder, _ := cmd.Flags().GetString("folder")
			user, _ := cmd.Flags().GetString("user")
			entry := config.Host{Host: args[0], WebPort: port, Folder: folder, User: user}

			replaced := false
			for i := range hosts {
				if hosts[i].Host == entry.Host {
					hosts[i], replaced = entry, true
				}
			}
			if !replaced {
				hosts = append(hosts, entry)
			}
			return config.SaveHosts(cfg.HostsFile, hosts)
		},
	}
	add.Flags().Int("web-port", config.DefaultPort, "Port of the host's monitoring service")
	add.Flags().String("folder", "", "Data directory on the host")
	add.Flags().String("user", "", "Login user on the host")

	remove := &cobra.Command{
		Use:   "remove HOST",
		Short: "Remove a host from the inventory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			hosts, err := config.LoadHosts(cfg.HostsFile)
			if err != nil {
				return err
			}
			kept := hosts[:0]
			for _, h := range hosts {
				if h.Host != args[0] {
					kept = append(kept, h)
				}
			}
			if len(kept) == len(hosts) {
				return fmt.Errorf("host %s is not in %s", args[0], cfg.HostsFile)
			}
			return config.SaveHosts(cfg.HostsFile, kept)
		},
	}

	cmd.AddCommand(add, remove)
	return cmd
}
