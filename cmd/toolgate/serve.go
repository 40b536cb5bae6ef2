package main

import (
	"fmt"
	"os"

	"github.com/artpar/toolgate/bootstrap"
	"github.com/artpar/toolgate/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var hotReload bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway server",
		Long: `Start the toolgate HTTP server.

The server will:
  - Load configuration from toolgate.yaml (or --config)
  - Or load configuration from TOOLGATE_* environment variables
  - Open the database and the quota counter backend
  - Serve the route table with authentication, quotas and usage recording

With --hot-reload the config file is watched and SIGHUP triggers a reload.
Tiers, sandbox settings, rate_limit.fail_open and logging.level apply
without a restart.

Examples:
  toolgate serve
  toolgate serve --config /etc/toolgate/config.yaml
  TOOLGATE_QUOTA_BACKEND=redis TOOLGATE_REDIS_ADDR=redis:6379 toolgate serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, hotReload)
		},
	}

	cmd.Flags().BoolVar(&hotReload, "hot-reload", true, "enable hot reload of configuration")
	return cmd
}

func runServe(opts *rootOptions, hotReload bool) error {
	hasConfigFile := false
	if _, err := os.Stat(opts.cfgFile); err == nil {
		hasConfigFile = true
	}

	var holder *config.Holder
	bootLogger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	if hasConfigFile {
		h, err := config.NewHolder(opts.cfgFile, bootLogger)
		if err != nil {
			return err
		}
		holder = h
	} else {
		cfg, err := config.LoadFromEnv()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		holder = config.NewStaticHolder(cfg, bootLogger)
	}

	logger := bootstrap.SetupLogger(holder.Get().Logging)

	application, err := bootstrap.New(holder, logger)
	if err != nil {
		holder.Stop()
		return fmt.Errorf("failed to start: %w", err)
	}

	if hasConfigFile && hotReload {
		if err := holder.WatchFile(); err != nil {
			logger.Warn().Err(err).Msg("config file watch disabled")
		}
		holder.WatchSignals()
	}

	return application.Run()
}
