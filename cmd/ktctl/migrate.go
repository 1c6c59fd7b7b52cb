package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/learnpro/kt-hub/internal/infrastructure/persistence/postgres"
	"github.com/learnpro/kt-hub/pkg/logger"
)

func migrateCmd() *cobra.Command {
	var rollback bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Long: `Apply all pending schema migrations in version order.

Examples:
  ktctl migrate
  ktctl migrate --rollback
  ktctl migrate status`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			migrator := postgres.NewMigrator(e.conn)
			if rollback {
				if err := migrator.Rollback(ctx); err != nil {
					return fmt.Errorf("rollback: %w", err)
				}
				e.log.Info("rolled back the last migration")
				return nil
			}

			applied, err := migrator.Migrate(ctx)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			e.log.Info("migrations completed", logger.Int("applied", applied))
			return nil
		},
	}

	cmd.Flags().BoolVar(&rollback, "rollback", false, "roll back the most recently applied migration")
	cmd.AddCommand(migrateStatusCmd())

	return cmd
}

func migrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			migrations, err := postgres.NewMigrator(e.conn).Status(ctx)
			if err != nil {
				return fmt.Errorf("migration status: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "VERSION\tNAME\tSTATUS\tAPPLIED AT")
			for _, m := range migrations {
				status, at := "pending", "-"
				if m.IsApplied {
					status = "applied"
					at = m.AppliedAt.Format("2006-01-02 15:04:05")
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", m.Version, m.Name, status, at)
			}
			return w.Flush()
		},
	}
}
