// Package employee содержит модель пользователя платформы: администратора
// или сотрудника, проходящего онбординг.
package employee

import (
	"net/mail"
	"strings"
	"time"

	"github.com/learnpro/kt-hub/internal/domain/shared"
)

// Role - роль пользователя.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleEmployee Role = "employee"
)

// IsValid проверяет, что роль известна.
func (r Role) IsValid() bool {
	return r == RoleAdmin || r == RoleEmployee
}

// Employee - пользователь платформы.
type Employee struct {
	ID                string
	Email             string
	Name              string
	Role              Role
	PasswordHash      string
	AssignedProjectID string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewEmployeeParams - параметры создания пользователя.
type NewEmployeeParams struct {
	ID           string
	Email        string
	Name         string
	Role         Role
	PasswordHash string
}

// NewEmployee создаёт пользователя с проверкой полей.
func NewEmployee(p NewEmployeeParams, now time.Time) (*Employee, error) {
	if strings.TrimSpace(p.ID) == "" {
		return nil, shared.NewDomainError("employee", "New", shared.ErrInvalidID, "id is required")
	}
	email := NormalizeEmail(p.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, shared.WrapError("employee", "New", shared.ErrInvalidInput, "invalid email", err)
	}
	if !p.Role.IsValid() {
		return nil, shared.NewDomainError("employee", "New", shared.ErrInvalidInput, "invalid role")
	}
	name := strings.TrimSpace(p.Name)
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}
	return &Employee{
		ID:           p.ID,
		Email:        email,
		Name:         name,
		Role:         p.Role,
		PasswordHash: p.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// NormalizeEmail приводит email к каноническому виду.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsAdmin возвращает true для администратора.
func (e *Employee) IsAdmin() bool {
	return e.Role == RoleAdmin
}

// AssignProject назначает сотруднику проект.
func (e *Employee) AssignProject(projectID string, now time.Time) {
	e.AssignedProjectID = projectID
	e.UpdatedAt = now
}
