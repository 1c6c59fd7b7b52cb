package command

import (
	"context"
	"fmt"

	"github.com/learnpro/kt-hub/internal/domain/employee"
	"github.com/learnpro/kt-hub/internal/domain/shared"
	"github.com/learnpro/kt-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROVISION ADMIN COMMAND
// Deployment-time bootstrap of the first administrator. Never runs on the
// request path.
// ══════════════════════════════════════════════════════════════════════════════

// ProvisionAdminCommand contains the admin credentials.
type ProvisionAdminCommand struct {
	Email    string
	Name     string
	Password string
}

// ProvisionAdminResult reports whether an account was created.
type ProvisionAdminResult struct {
	Employee *employee.Employee
	Created  bool
}

// ProvisionAdminHandler handles ProvisionAdminCommand.
type ProvisionAdminHandler struct {
	employees employee.Repository
	hasher    PasswordHasher
	newID     IDGenerator
	clock     timeutil.Clock
}

// NewProvisionAdminHandler creates a new ProvisionAdminHandler.
func NewProvisionAdminHandler(employees employee.Repository, hasher PasswordHasher, newID IDGenerator, clock timeutil.Clock) *ProvisionAdminHandler {
	if newID == nil {
		newID = NewID
	}
	if clock == nil {
		clock = timeutil.SystemClock
	}
	return &ProvisionAdminHandler{employees: employees, hasher: hasher, newID: newID, clock: clock}
}

// Handle executes the command. An existing admin with the same email is a
// no-op; an existing non-admin account with that email is a conflict.
func (h *ProvisionAdminHandler) Handle(ctx context.Context, cmd ProvisionAdminCommand) (*ProvisionAdminResult, error) {
	existing, err := h.employees.GetByEmail(ctx, employee.NormalizeEmail(cmd.Email))
	switch {
	case err == nil:
		if !existing.IsAdmin() {
			return nil, fmt.Errorf("provision_admin: %w", shared.ErrEmployeeExists)
		}
		return &ProvisionAdminResult{Employee: existing}, nil
	case !shared.IsNotFound(err):
		return nil, fmt.Errorf("provision_admin: %w", err)
	}

	if err := validatePassword("ProvisionAdmin", cmd.Password); err != nil {
		return nil, fmt.Errorf("provision_admin: %w", err)
	}
	admin, err := newAccount(h.hasher, h.newID(), cmd.Email, cmd.Name, cmd.Password, employee.RoleAdmin, h.clock)
	if err != nil {
		return nil, fmt.Errorf("provision_admin: %w", err)
	}
	if err := h.employees.Create(ctx, admin); err != nil {
		return nil, fmt.Errorf("provision_admin: %w", err)
	}
	return &ProvisionAdminResult{Employee: admin, Created: true}, nil
}
