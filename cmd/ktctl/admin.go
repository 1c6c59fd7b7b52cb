package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/learnpro/kt-hub/internal/application/command"
	"github.com/learnpro/kt-hub/internal/infrastructure/auth"
	"github.com/learnpro/kt-hub/internal/infrastructure/persistence/postgres"
	"github.com/learnpro/kt-hub/pkg/logger"
)

func provisionAdminCmd() *cobra.Command {
	var in command.ProvisionAdminCommand

	cmd := &cobra.Command{
		Use:   "provision-admin",
		Short: "Create the admin account if it does not exist",
		Long: `Create an admin account. Running it again with the same email is a
no-op, so it is safe to call from deploy scripts.

Examples:
  ktctl provision-admin --email admin@example.com --password 's3cret-pass'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			handler := command.NewProvisionAdminHandler(postgres.NewEmployeeRepository(e.conn), auth.BcryptHasher{}, nil, nil)
			result, err := handler.Handle(ctx, in)
			if err != nil {
				return fmt.Errorf("provision admin: %w", err)
			}

			if result.Created {
				e.log.Info("admin created", logger.Email(result.Employee.Email), logger.EmployeeID(result.Employee.ID))
			} else {
				e.log.Info("admin already exists", logger.Email(result.Employee.Email))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&in.Email, "email", "", "admin email (required)")
	cmd.Flags().StringVar(&in.Password, "password", "", "admin password (required)")
	cmd.Flags().StringVar(&in.Name, "name", "Administrator", "display name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}
