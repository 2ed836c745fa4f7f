package main

import (
	"github.com/Sternrassler/paradigm-offline/internal/config"
	"github.com/Sternrassler/paradigm-offline/pkg/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands. Set flags override the
// PARADIGM_* environment.
type RootOptions struct {
	LogLevel string
	Pretty   bool
	Version  string
}

// NewRootCommand creates the root command for the paradigm-offline CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "paradigm-offline",
		Short:         "Offline caching and delivery layer for Paradigm Services",
		Long:          "Precaches the application shell, serves it and cached API data while offline, replays deferred attendance syncs and delivers push notifications.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error)")
	cmd.PersistentFlags().BoolVar(&opts.Pretty, "pretty", false, "human-readable log output")
	cmd.PersistentFlags().StringVar(&opts.Version, "app-version", "", "deployment version tag (overrides PARADIGM_VERSION)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewInstallCommand(opts))
	cmd.AddCommand(NewPartitionsCommand(opts))
	cmd.AddCommand(NewPurgeCommand(opts))

	return cmd
}

// load reads the environment, applies flag overrides and sets up logging.
func (o *RootOptions) load(cmd *cobra.Command) (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = o.LogLevel
	}
	if flags.Changed("pretty") {
		cfg.LogPretty = o.Pretty
	}
	if flags.Changed("app-version") {
		cfg.Version = o.Version
		if err := cfg.Validate(); err != nil {
			return config.Config{}, zerolog.Nop(), err
		}
	}

	logger := logging.Setup(logging.Config{
		Level:   logging.LogLevel(cfg.LogLevel),
		Pretty:  cfg.LogPretty,
		Service: "paradigm-offline",
		Output:  cmd.ErrOrStderr(),
	})
	return cfg, logger, nil
}
