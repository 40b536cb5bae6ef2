package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/artpar/toolgate/bootstrap"
	"github.com/artpar/toolgate/config"
	"github.com/artpar/toolgate/domain/tier"
	"github.com/spf13/cobra"
)

func newValidateCmd(opts *rootOptions) *cobra.Command {
	var checkDatabase bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration before deployment",
		Long: `Validate the toolgate configuration file.

Checks:
  - YAML syntax is valid
  - Tier overrides, windows and features are valid
  - Database is writable (optional)

Examples:
  toolgate validate
  toolgate validate --config /etc/toolgate/config.yaml --check-database`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, opts, checkDatabase)
		},
	}

	cmd.Flags().BoolVar(&checkDatabase, "check-database", false, "check that the database opens and migrates")
	return cmd
}

func runValidate(cmd *cobra.Command, opts *rootOptions, checkDatabase bool) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Validating %s...\n\n", opts.cfgFile)

	if _, err := os.Stat(opts.cfgFile); os.IsNotExist(err) {
		fmt.Fprintf(out, "  %s Config file exists\n", crossMark)
		return fmt.Errorf("config file not found: %s", opts.cfgFile)
	}
	fmt.Fprintf(out, "  %s Config file exists\n", checkMark)

	cfg, err := config.Load(opts.cfgFile)
	if err != nil {
		fmt.Fprintf(out, "  %s Config valid\n", crossMark)
		return fmt.Errorf("config error: %w", err)
	}
	fmt.Fprintf(out, "  %s Config valid\n", checkMark)

	table, err := cfg.TierTable()
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Listen:        %s\n", cfg.Addr())
	fmt.Fprintf(out, "  Database:      %s (%s)\n", cfg.Database.Driver, cfg.Database.DSN)
	fmt.Fprintf(out, "  Quota backend: %s\n", cfg.Quota.Backend)
	for _, t := range []tier.Tier{tier.Sandbox, tier.Free, tier.Professional, tier.Enterprise} {
		p, _ := table.Lookup(t)
		fmt.Fprintf(out, "  Tier %-13s %s per %s\n", string(t)+":", p.Limit, p.Window)
	}
	fmt.Fprintf(out, "  Sandbox tools: %v\n", cfg.Sandbox.Tools)

	if checkDatabase && cfg.Database.Driver == config.DriverSQLite {
		stores, err := bootstrap.OpenStores(cfg.Database)
		if err != nil {
			fmt.Fprintf(out, "  %s Database writable\n", crossMark)
			return err
		}
		defer stores.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := stores.DB.PingContext(ctx); err != nil {
			fmt.Fprintf(out, "  %s Database writable\n", crossMark)
			return fmt.Errorf("database: %w", err)
		}
		fmt.Fprintf(out, "  %s Database writable\n", checkMark)

		version, err := stores.DB.SchemaVersion(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "  %s Schema version %s\n", checkMark, version)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Configuration valid")
	return nil
}
