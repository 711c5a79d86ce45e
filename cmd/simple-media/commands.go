package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tendant/simple-media/pkg/simplemedia/api"
	"github.com/tendant/simple-media/pkg/simplemedia/config"
	"github.com/tendant/simple-media/pkg/simplemedia/export"
	repopg "github.com/tendant/simple-media/pkg/simplemedia/repo/postgres"
	s3storage "github.com/tendant/simple-media/pkg/simplemedia/storage/s3"
	"github.com/tendant/simple-media/pkg/simplemedia/sweeper"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(a *app) *cobra.Command {
	var maxUpload int64
	var noSweeper bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduled garbage collector",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			components, err := a.cfg.Build(ctx, a.logger)
			if err != nil {
				return fmt.Errorf("failed to build service: %w", err)
			}
			defer components.Close()

			var sw *sweeper.Sweeper
			if types := a.cfg.GCTypes(); !noSweeper && len(types) > 0 {
				sw = sweeper.New(components.Service, types,
					sweeper.WithSchedule(a.cfg.GCSchedule),
					sweeper.WithLogger(a.logger),
				)
				if err := sw.Start(); err != nil {
					return err
				}
			}

			httpServer := &http.Server{
				Addr: ":" + a.cfg.Port,
				Handler: api.NewRouter(components.Service, api.Config{
					SecretKey:      a.cfg.SecretKey,
					MaxUploadBytes: maxUpload,
					Logger:         a.logger,
				}),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("simple-media server starting",
					"port", a.cfg.Port,
					"env", a.cfg.Environment,
					"database", a.cfg.DatabaseType(),
					"storage_root", a.cfg.StorageRoot,
					"types", components.Registry.Keys(),
				)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server error: %w", err)
				}
			case <-ctx.Done():
			}
			a.logger.Info("shutting down server")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if sw != nil {
				sw.Stop(shutdownCtx)
			}
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server forced to shutdown: %w", err)
			}
			a.logger.Info("server exiting")
			return nil
		},
	}

	cmd.Flags().Int64Var(&maxUpload, "max-upload-bytes", 64<<20, "maximum request body size for uploads")
	cmd.Flags().BoolVar(&noSweeper, "no-sweeper", false, "disable scheduled garbage collection")
	return cmd
}

func newMigrateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate <up|down|version|force N>",
		Short: "Apply or roll back the Postgres schema",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn, err := a.cfg.MigrationDSN()
			if err != nil {
				return err
			}
			return repopg.Migrate(dsn, a.logger, args[0], args[1:])
		},
	}
}

func newGCCommand(a *app) *cobra.Command {
	var batches int

	cmd := &cobra.Command{
		Use:   "gc [type...]",
		Short: "Collect expired unused assets now",
		Long: `Runs garbage collection for the given type keys, or for every type with a
positive retention window when none is given. Each type runs up to --batches
batches and stops early when a batch collects nothing.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			types := args
			if len(types) == 0 {
				types = a.cfg.GCTypes()
			}
			if len(types) == 0 {
				return errors.New("no type has a retention window")
			}

			components, err := a.cfg.Build(cmd.Context(), a.logger)
			if err != nil {
				return fmt.Errorf("failed to build service: %w", err)
			}
			defer components.Close()

			sw := sweeper.New(components.Service, types,
				sweeper.WithMaxBatches(batches),
				sweeper.WithLogger(a.logger),
			)
			collected := sw.RunOnce(cmd.Context())

			sort.Strings(types)
			for _, typeKey := range types {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", typeKey, collected[typeKey])
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&batches, "batches", 100, "maximum batches per type")
	return cmd
}

func newResizeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resize [type...]",
		Short: "Rebuild derived variants from the current profiles",
		Long: `Re-runs variant derivation for every visible asset of the given photo
types, or of every photo type when none is given. Variants the profile no
longer produces are deleted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			types := args
			if len(types) == 0 {
				types = a.cfg.PhotoTypes()
			}
			if len(types) == 0 {
				return errors.New("no photo type is configured")
			}

			components, err := a.cfg.Build(cmd.Context(), a.logger)
			if err != nil {
				return fmt.Errorf("failed to build service: %w", err)
			}
			defer components.Close()

			sort.Strings(types)
			for _, typeKey := range types {
				n, err := components.Service.Rederive(cmd.Context(), typeKey)
				if err != nil {
					return fmt.Errorf("resize %s: %w", typeKey, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", typeKey, n)
			}
			return nil
		},
	}
}

func newExportCommand(a *app) *cobra.Command {
	var pageSize int
	var skipExisting bool

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy visible assets and covers to the S3 bucket",
		RunE: func(cmd *cobra.Command, args []string) error {
			s3cfg, err := a.cfg.S3Config()
			if err != nil {
				return err
			}

			components, err := a.cfg.Build(cmd.Context(), a.logger)
			if err != nil {
				return fmt.Errorf("failed to build service: %w", err)
			}
			defer components.Close()

			target, err := s3storage.New(cmd.Context(), s3cfg)
			if err != nil {
				return fmt.Errorf("failed to create S3 backend: %w", err)
			}

			exporter := export.New(components.Repository, components.Store, target,
				export.WithLogger(a.logger),
				export.WithPageSize(pageSize),
				export.WithSkipExisting(skipExisting),
			)
			stats, err := exporter.Run(cmd.Context())
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		},
	}

	cmd.Flags().IntVar(&pageSize, "page-size", export.DefaultPageSize, "records fetched per page")
	cmd.Flags().BoolVar(&skipExisting, "skip-existing", true, "skip keys already present in the bucket")
	return cmd
}

func newEnvCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "List the environment variables understood by the service",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), config.EnvUsage())
			return err
		},
	}
}
