package main

import (
	"context"
	"fmt"
	"os"

	"Gin_postgres_redis_library/app"
	"Gin_postgres_redis_library/config"
	"Gin_postgres_redis_library/db"
	"Gin_postgres_redis_library/routes"
	"Gin_postgres_redis_library/seed"
	"Gin_postgres_redis_library/sheets"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	config.LoadEnv()
	cfg := config.Load()
	log, err := app.NewLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := rootCmd(cfg, log).Execute(); err != nil {
		log.Error("command failed", zap.Error(err))
		os.Exit(1)
	}
}

func rootCmd(cfg config.Config, log *zap.Logger) *cobra.Command {
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE:  func(cmd *cobra.Command, _ []string) error { return runServe(cmd.Context(), cfg, log) },
	}
	root := &cobra.Command{
		Use:           "biblioteca",
		Short:         "Library circulation manager",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}

	root.AddCommand(
		serve,
		&cobra.Command{
			Use:   "migrate",
			Short: "Create or update the database schema",
			RunE: func(*cobra.Command, []string) error {
				conn, err := db.ConnectDB(cfg, log) // ConnectDB 自带迁移
				if err != nil {
					return err
				}
				sqlDB, err := conn.DB()
				if err == nil {
					_ = sqlDB.Close()
				}
				log.Info("schema up to date")
				return nil
			},
		},
		&cobra.Command{
			Use:   "seed",
			Short: "Load the sample catalog into an empty database",
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := open(cfg, log)
				if err != nil {
					return err
				}
				defer a.Close()
				return seed.Seed(cmd.Context(), a.DB, a.Engine, log)
			},
		},
		&cobra.Command{
			Use:   "import <file.xlsx>",
			Short: "Import books from the first sheet of an Excel workbook",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				a, err := open(cfg, log)
				if err != nil {
					return err
				}
				defer a.Close()

				res, err := sheets.ImportBooks(cmd.Context(), f, a.Engine)
				if err != nil {
					return err
				}
				for _, e := range res.Errors {
					log.Warn("row skipped", zap.String("reason", e))
				}
				log.Info("import finished", zap.Int("imported", res.Imported), zap.Int("skipped", len(res.Errors)))
				return nil
			},
		},
		&cobra.Command{
			Use:   "reconcile",
			Short: "Recompute book availability from active loans",
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := open(cfg, log)
				if err != nil {
					return err
				}
				defer a.Close()
				fixed, err := a.Engine.Reconcile(cmd.Context())
				if err != nil {
					return err
				}
				log.Info("reconcile finished", zap.Int("corrected", len(fixed)))
				return nil
			},
		},
	)
	return root
}

func open(cfg config.Config, log *zap.Logger) (*app.App, error) {
	conn, rdb, err := app.Open(cfg, log)
	if err != nil {
		return nil, err
	}
	return app.New(cfg, conn, rdb, log), nil
}

func runServe(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	application := app.MustNew(cfg, log)
	defer application.Close()

	if cfg.SeedOnStart {
		if err := seed.Seed(ctx, application.DB, application.Engine, log); err != nil {
			return err
		}
	}

	routes.RegisterRoutes(application.Router, application)

	log.Info("listening", zap.String("port", cfg.Port), zap.String("env", cfg.Env))
	return application.Router.Run(":" + cfg.Port)
}
