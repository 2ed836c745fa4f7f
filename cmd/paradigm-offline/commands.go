package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/Sternrassler/paradigm-offline/pkg/lifecycle"
	"github.com/spf13/cobra"
)

// NewServeCommand creates the serve command.
func NewServeCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the offline proxy daemon",
		Long: `Deploy the configured version in the background and serve the origin
through the fetch interceptor, together with the push, sync and health
endpoints.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			go func() {
				purged, err := a.worker.Deploy(ctx)
				if err != nil {
					event := logger.Error().Err(err).Str("version", cfg.Version)
					if serving, ok := a.controller.Serving(); ok {
						event.Str("serving", serving.Static).Msg("Deploy failed, previous version keeps serving")
						return
					}
					event.Msg("Deploy failed, serving pass-through")
					return
				}
				logger.Info().Str("version", cfg.Version).Strs("purged", purged).Msg("Version active")
			}()

			srv := &http.Server{
				Addr:              cfg.ListenAddr,
				Handler:           a.routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info().
					Str("addr", cfg.ListenAddr).
					Str("origin", cfg.Origin).
					Str("store", cfg.Store).
					Msg("Starting offline proxy")
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			logger.Info().Msg("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

// NewInstallCommand creates the install command.
func NewInstallCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Precache and activate the configured version, then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load(cmd)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			purged, err := a.worker.Deploy(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Version %s is %s\n", cfg.Version, a.controller.State())
			if len(purged) == 0 {
				fmt.Fprintln(out, "No stale partitions")
			} else {
				fmt.Fprintf(out, "Purged: %s\n", strings.Join(purged, ", "))
			}
			return nil
		},
	}
}

// NewPartitionsCommand creates the partitions command.
func NewPartitionsCommand(root *RootOptions) *cobra.Command {
	var showKeys bool

	cmd := &cobra.Command{
		Use:   "partitions",
		Short: "List cache partitions in the configured store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := root.load(cmd)
			if err != nil {
				return err
			}
			current, err := lifecycle.ForVersion(cfg.Version)
			if err != nil {
				return err
			}

			s, err := openStorage(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			names, err := s.store.Names(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PARTITION\tENTRIES\tCURRENT")
			for _, name := range names {
				partition, err := s.store.Open(cmd.Context(), name)
				if err != nil {
					return err
				}
				keys, err := partition.Keys(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%d\t%t\n", name, len(keys), current.Current(name))
				if showKeys {
					for _, key := range keys {
						fmt.Fprintf(tw, "  %s\t\t\n", key)
					}
				}
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&showKeys, "keys", false, "list the request keys of each partition")
	return cmd
}

// NewPurgeCommand creates the purge command.
func NewPurgeCommand(root *RootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "purge <partition>",
		Short: "Delete a cache partition",
		Long: `Delete one partition from the configured store. Partitions of the
configured version are refused unless --force is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load(cmd)
			if err != nil {
				return err
			}
			current, err := lifecycle.ForVersion(cfg.Version)
			if err != nil {
				return err
			}

			name := args[0]
			if current.Current(name) && !force {
				return fmt.Errorf("partition %q belongs to version %s (use --force)", name, cfg.Version)
			}

			s, err := openStorage(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			deleted, err := s.store.Delete(cmd.Context(), name)
			if err != nil {
				return err
			}
			if !deleted {
				return fmt.Errorf("partition %q not found", name)
			}

			logger.Info().Str("partition", name).Msg("Partition purged")
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", name)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "allow deleting partitions of the configured version")
	return cmd
}
