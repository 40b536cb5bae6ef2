package main

import (
	"fmt"
	"os"

	"github.com/artpar/toolgate/bootstrap"
	"github.com/artpar/toolgate/config"
	"github.com/spf13/cobra"
)

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)

// rootOptions holds the global flags shared by every command.
type rootOptions struct {
	cfgFile string
}

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "toolgate",
		Short: "Tiered admission gateway for tool intelligence data",
		Long: `toolgate serves tool intelligence data behind API keys.

It authenticates API keys, enforces per-tier daily quotas and a
per-IP sandbox quota, records usage, and shapes responses by tier.

Quick start:
  toolgate serve                      # Start the gateway
  toolgate keys create --owner acme   # Issue an API key

Management:
  toolgate keys      # Manage API keys
  toolgate tools     # Load tool records
  toolgate validate  # Validate configuration`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&opts.cfgFile, "config", "c", "toolgate.yaml", "config file path")

	root.AddCommand(
		newServeCmd(opts),
		newValidateCmd(opts),
		newKeysCmd(opts),
		newToolsCmd(opts),
		newVersionCmd(),
	)
	return root
}

// Execute runs the root command.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads the config file, falling back to TOOLGATE_* variables
// when it does not exist.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithFallback(o.cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// openStores opens the configured database for management commands.
func (o *rootOptions) openStores() (*config.Config, *bootstrap.Stores, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.Driver != config.DriverSQLite {
		return nil, nil, fmt.Errorf("management commands need database.driver 'sqlite', got %q", cfg.Database.Driver)
	}
	stores, err := bootstrap.OpenStores(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return cfg, stores, nil
}
