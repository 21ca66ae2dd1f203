package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/morningdrive/internal/auth"
	"github.com/mohammad-safakhou/morningdrive/internal/runtime"
	srv "github.com/mohammad-safakhou/morningdrive/internal/server"
)

func serveCMD(cfgPath *string) *cobra.Command {
	var serveAddr string
	var autoMigrate bool
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server and scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := runtime.SignalContext(context.Background(), "serve")
			defer stop()

			a, err := bootstrap(ctx, *cfgPath, "morningdrive-api")
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			if autoMigrate {
				dsn, _ := runtime.BuildPostgresDSN(a.cfg)
				if err := srv.Migrate(a.cfg.Server.MigrationsDir, dsn, "up", 0); err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
			}
			secret, err := runtime.LoadJWTSecret(a.cfg)
			if err != nil {
				return err
			}

			if a.cfg.Scheduler.Enabled {
				sched := &srv.Scheduler{
					Store:   a.store,
					Queue:   a.publisher,
					Rdb:     a.rdb,
					Tick:    a.cfg.Scheduler.Tick,
					LockTTL: a.cfg.Scheduler.LockTTL,
					Logger:  newLogger("SCHED"),
				}
				go sched.Run(ctx)
			}

			e := srv.New(srv.Deps{
				Store:     a.store,
				Queue:     a.publisher,
				Media:     a.media,
				Sessions:  auth.NewSessionStore(a.rdb, a.cfg.Server.SessionTTL),
				Secret:    secret,
				AdminHash: a.cfg.Server.AdminPasswordHash,
				Metrics:   a.metricsHandler(),
				Logger:    newLogger("HTTP"),
				Debug:     a.cfg.General.Debug,
			})
			addr := serveAddr
			if addr == "" {
				addr = a.cfg.Server.Address
			}
			return srv.Run(ctx, e, addr)
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (default server.address)")
	serve.Flags().BoolVar(&autoMigrate, "migrate", true, "apply pending migrations on start")
	return serve
}
