package command

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/learnpro/kt-hub/internal/domain/employee"
	"github.com/learnpro/kt-hub/internal/domain/shared"
	"github.com/learnpro/kt-hub/pkg/timeutil"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// RegisterEmployeeCommand contains the new account.
type RegisterEmployeeCommand struct {
	ActorID  string
	Email    string
	Name     string
	Password string
}

// Validate validates the command.
func (c RegisterEmployeeCommand) Validate() error {
	return validatePassword("RegisterEmployee", c.Password)
}

func validatePassword(op, password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return shared.NewDomainError("employee", op, shared.ErrValidation,
			fmt.Sprintf("password must have at least %d characters", MinPasswordLength))
	}
	return nil
}

// RegisterEmployeeHandler handles RegisterEmployeeCommand.
type RegisterEmployeeHandler struct {
	employees employee.Repository
	hasher    PasswordHasher
	newID     IDGenerator
	clock     timeutil.Clock
}

// NewRegisterEmployeeHandler creates a new RegisterEmployeeHandler.
func NewRegisterEmployeeHandler(employees employee.Repository, hasher PasswordHasher, newID IDGenerator, clock timeutil.Clock) *RegisterEmployeeHandler {
	if newID == nil {
		newID = NewID
	}
	if clock == nil {
		clock = timeutil.SystemClock
	}
	return &RegisterEmployeeHandler{employees: employees, hasher: hasher, newID: newID, clock: clock}
}

// Handle executes the command. Only admins register employees.
func (h *RegisterEmployeeHandler) Handle(ctx context.Context, cmd RegisterEmployeeCommand) (*employee.Employee, error) {
	if _, err := requireAdmin(ctx, h.employees, cmd.ActorID); err != nil {
		return nil, fmt.Errorf("register_employee: %w", err)
	}
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("register_employee: %w", err)
	}
	e, err := newAccount(h.hasher, h.newID(), cmd.Email, cmd.Name, cmd.Password, employee.RoleEmployee, h.clock)
	if err != nil {
		return nil, fmt.Errorf("register_employee: %w", err)
	}
	if err := h.employees.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("register_employee: %w", err)
	}
	return e, nil
}

func newAccount(hasher PasswordHasher, id, email, name, password string, role employee.Role, clock timeutil.Clock) (*employee.Employee, error) {
	hash, err := hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return employee.NewEmployee(employee.NewEmployeeParams{
		ID:           id,
		Email:        email,
		Name:         name,
		Role:         role,
		PasswordHash: hash,
	}, clock())
}
