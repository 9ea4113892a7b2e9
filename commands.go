package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	intconfig "logbook/internal/config"
	router "logbook/internal/http"
	"logbook/internal/http/handlers"
	"logbook/internal/migration"
	"logbook/internal/repositories"
	"logbook/internal/services"
	"logbook/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type app struct {
	cfg     intconfig.Env
	log     *logrus.Logger
	storage *intconfig.Storage
	loc     *time.Location
}

func newRootCmd() *cobra.Command {
	var envFile string
	root := &cobra.Command{
		Use:           "logbook",
		Short:         "Passenger transport logbook",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "load variables from this file instead of ./.env")

	boot := func(ctx context.Context) (*app, error) {
		var files []string
		if envFile != "" {
			files = append(files, envFile)
		}
		cfg, err := intconfig.LoadEnv(files...)
		if err != nil {
			return nil, err
		}
		logger := utils.SetupLogger(cfg.LogFile, cfg.LogLevel)
		loc, err := utils.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, err
		}
		storage, err := intconfig.OpenStore(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return &app{cfg: cfg, log: logger, storage: storage, loc: loc}, nil
	}

	root.AddCommand(serveCmd(boot), migrateCmd(boot), importCmd(boot))
	return root
}

type bootFunc func(ctx context.Context) (*app, error)

// prepare runs the one-shot legacy migration and then loads every mirrored
// collection into the cache, in that order so the mirror starts from the
// migrated store. Legacy snapshots live outside the mirror dir, so a failed
// migration keeps its source intact for the next start.
func (a *app) prepare(ctx context.Context) migration.Outcome {
	out := migration.NewManager(a.storage.Store, a.storage.Legacy, a.log).Migrate(ctx)
	if out.Err != nil {
		a.log.WithError(out.Err).Error("legacy migration failed; continuing with store contents")
	}
	if err := a.storage.Facade.Refresh(ctx); err != nil {
		a.log.WithError(err).Warn("initial refresh incomplete; reads fall back to the cache")
	}
	return out
}

func serveCmd(boot bootFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := boot(ctx)
			if err != nil {
				return err
			}
			defer a.storage.Close()
			if a.cfg.JWTSecret == "" {
				return errors.New("JWT_SECRET is required to serve")
			}
			if a.cfg.GinMode != "" {
				gin.SetMode(a.cfg.GinMode)
			}
			_ = a.prepare(ctx)

			f := a.storage.Facade
			auth := services.AuthService{
				Users:       repositories.NewUserRepository(f),
				Credentials: repositories.NewCredentialRepository(f),
				Conductors:  repositories.NewConductorRepository(f),
				Secret:      []byte(a.cfg.JWTSecret),
				TTL:         a.cfg.JWTTTL,
			}
			if _, err := auth.EnsureRoot(ctx, a.cfg.RootUsername, a.cfg.RootPassword); err != nil {
				return fmt.Errorf("ensure root account: %w", err)
			}

			groups := services.NewGroupRegistry(a.storage.Cache, a.loc, a.log)
			api := &handlers.API{
				Facade:    f,
				Lifecycle: services.NewTripLifecycle(f, groups, a.cfg.SeatCapacity, a.log),
				Groups:    groups,
				Loc:       a.loc,
				Secret:    []byte(a.cfg.JWTSecret),
				TokenTTL:  a.cfg.JWTTTL,
				Log:       a.log,
			}
			r := router.NewRouter(a.cfg, api, a.log)

			srv := &http.Server{
				Addr:              a.cfg.AppAddr,
				Handler:           r,
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       20 * time.Second,
				WriteTimeout:      20 * time.Second,
				IdleTimeout:       60 * time.Second,
			}

			errc := make(chan error, 1)
			go func() {
				a.log.Infof("server listening on %s", a.cfg.AppAddr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errc <- err
				}
				close(errc)
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
			select {
			case err := <-errc:
				if err != nil {
					return fmt.Errorf("listen: %w", err)
				}
			case <-quit:
			}

			a.log.Info("shutting down server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			a.log.Info("server stopped cleanly")
			return nil
		},
	}
}

func migrateCmd(boot bootFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Upgrade the schema and copy legacy cache data into the store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := boot(cmd.Context())
			if err != nil {
				return err
			}
			defer a.storage.Close()

			out := migration.NewManager(a.storage.Store, a.storage.Legacy, a.log).Migrate(cmd.Context())
			switch {
			case out.Err != nil:
				return out.Err
			case out.Skipped:
				fmt.Fprintln(cmd.OutOrStdout(), "legacy data already migrated")
			default:
				for coll, n := range out.Migrated {
					fmt.Fprintf(cmd.OutOrStdout(), "%-22s %d migrated, %d dropped\n", coll, n, out.Dropped[coll])
				}
			}
			version, err := a.storage.Store.Version(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
			return nil
		},
	}
}

func importCmd(boot bootFunc) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "import <csv>",
		Short: "Import passengers from a CSV roster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			candidates, err := services.ReadCSV(f)
			if err != nil {
				return err
			}
			if dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "%d rows mapped\n", len(candidates))
				return nil
			}

			a, err := boot(cmd.Context())
			if err != nil {
				return err
			}
			defer a.storage.Close()
			_ = a.prepare(cmd.Context())

			svc := services.ImportService{Repo: repositories.NewPassengerRepository(a.storage.Facade)}
			report, err := svc.Import(cmd.Context(), candidates)
			for _, issue := range report.Skipped {
				fmt.Fprintf(cmd.OutOrStdout(), "row %d skipped (%s): %s\n", issue.Row, issue.Cedula, issue.Reason)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d imported\n", report.Imported, report.Total)
			return err
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only map the rows, do not write")
	return cmd
}
