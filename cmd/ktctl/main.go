// Package main is ktctl, the operator CLI of the KT hub.
//
// It runs schema migrations, provisions the first admin account and
// seeds projects and employees from a YAML file. Configuration comes
// from the same environment as the server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/learnpro/kt-hub/config"
	"github.com/learnpro/kt-hub/internal/infrastructure/persistence/postgres"
	"github.com/learnpro/kt-hub/pkg/logger"
)

var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ktctl",
		Short:         "ktctl - operator tooling for the KT hub",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(migrateCmd())
	cmd.AddCommand(provisionAdminCmd())
	cmd.AddCommand(seedCmd())

	return cmd
}

// env is what every subcommand needs: config, a logger and a database.
type env struct {
	cfg  *config.Config
	log  *logger.Logger
	conn *postgres.Connection
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.App.Store != config.StorePostgres {
		return nil, fmt.Errorf("ktctl requires APP_STORE=%s, got %q", config.StorePostgres, cfg.App.Store)
	}

	opts := logger.DefaultOptions()
	opts.Output = os.Stderr
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	log := logger.New(opts).With(logger.Component("ktctl"))

	poolOpts := postgres.DefaultPoolOptions()
	poolOpts.MaxConns = 2
	poolOpts.MinConns = 0
	conn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL, poolOpts)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &env{cfg: cfg, log: log, conn: conn}, nil
}

func (e *env) Close() {
	e.conn.Close()
}
