package command

import (
	"context"
	"fmt"

	"github.com/learnpro/kt-hub/internal/domain/employee"
	"github.com/learnpro/kt-hub/internal/domain/shared"
)

// LoginCommand contains credentials.
type LoginCommand struct {
	Email    string
	Password string
}

// LoginResult contains the issued access token.
type LoginResult struct {
	Token    string
	Employee *employee.Employee
}

// LoginHandler handles LoginCommand.
type LoginHandler struct {
	employees employee.Repository
	hasher    PasswordHasher
	tokens    TokenIssuer
}

// NewLoginHandler creates a new LoginHandler.
func NewLoginHandler(employees employee.Repository, hasher PasswordHasher, tokens TokenIssuer) *LoginHandler {
	return &LoginHandler{employees: employees, hasher: hasher, tokens: tokens}
}

// Handle executes the command. Unknown email and wrong password fail the
// same way.
func (h *LoginHandler) Handle(ctx context.Context, cmd LoginCommand) (*LoginResult, error) {
	if cmd.Email == "" || cmd.Password == "" {
		return nil, fmt.Errorf("login: %w", shared.ErrBadCredentials)
	}
	e, err := h.employees.GetByEmail(ctx, employee.NormalizeEmail(cmd.Email))
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, fmt.Errorf("login: %w", shared.ErrBadCredentials)
		}
		return nil, fmt.Errorf("login: %w", err)
	}
	if err := h.hasher.Compare(e.PasswordHash, cmd.Password); err != nil {
		return nil, fmt.Errorf("login: %w", shared.ErrBadCredentials)
	}

	token, err := h.tokens.Issue(AccessToken{EmployeeID: e.ID, Email: e.Email, Role: string(e.Role)})
	if err != nil {
		return nil, fmt.Errorf("login: issue token: %w", err)
	}
	return &LoginResult{Token: token, Employee: e}, nil
}
