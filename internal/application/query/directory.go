package query

import (
	"context"
	"fmt"
	"time"

	"github.com/learnpro/kt-hub/internal/domain/employee"
	"github.com/learnpro/kt-hub/internal/domain/project"
	"github.com/learnpro/kt-hub/internal/domain/shared"
)

// EmployeeDTO - сотрудник без хэша пароля.
type EmployeeDTO struct {
	ID                string    `json:"id"`
	Email             string    `json:"email"`
	Name              string    `json:"name"`
	Role              string    `json:"role"`
	AssignedProjectID string    `json:"assigned_project_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// NewEmployeeDTO конвертирует сотрудника в DTO.
func NewEmployeeDTO(e *employee.Employee) EmployeeDTO {
	return EmployeeDTO{
		ID:                e.ID,
		Email:             e.Email,
		Name:              e.Name,
		Role:              string(e.Role),
		AssignedProjectID: e.AssignedProjectID,
		CreatedAt:         e.CreatedAt,
	}
}

// ProjectDTO - проект с предметами и темами.
type ProjectDTO struct {
	ID          string                   `json:"id"`
	Name        string                   `json:"name"`
	Description string                   `json:"description,omitempty"`
	Subjects    []project.SubjectOutline `json:"subjects"`
	HasQuiz     bool                     `json:"has_skill_quiz"`
	CreatedAt   time.Time                `json:"created_at"`
}

// NewProjectDTO конвертирует проект в DTO.
func NewProjectDTO(p *project.Project) ProjectDTO {
	return ProjectDTO{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Subjects:    p.Subjects,
		HasQuiz:     p.Quiz != nil,
		CreatedAt:   p.CreatedAt,
	}
}

// DirectoryHandler отдаёт справочники сотрудников и проектов.
// Список сотрудников доступен только администратору.
type DirectoryHandler struct {
	employees employee.Repository
	projects  project.Repository
}

// NewDirectoryHandler создаёт обработчик.
func NewDirectoryHandler(employees employee.Repository, projects project.Repository) *DirectoryHandler {
	return &DirectoryHandler{employees: employees, projects: projects}
}

// Me возвращает профиль вызывающего.
func (h *DirectoryHandler) Me(ctx context.Context, callerID string) (*EmployeeDTO, error) {
	e, err := h.employees.GetByID(ctx, callerID)
	if err != nil {
		return nil, fmt.Errorf("me: %w", err)
	}
	dto := NewEmployeeDTO(e)
	return &dto, nil
}

// Employees возвращает сотрудников с ролью role (пусто = все).
func (h *DirectoryHandler) Employees(ctx context.Context, callerID string, role employee.Role) ([]EmployeeDTO, error) {
	caller, err := h.employees.GetByID(ctx, callerID)
	if err != nil {
		return nil, fmt.Errorf("list_employees: %w", err)
	}
	if !caller.IsAdmin() {
		return nil, fmt.Errorf("list_employees: %w", shared.ErrAdminOnly)
	}
	list, err := h.employees.List(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("list_employees: %w", err)
	}
	out := make([]EmployeeDTO, 0, len(list))
	for _, e := range list {
		out = append(out, NewEmployeeDTO(e))
	}
	return out, nil
}

// Projects возвращает все проекты.
func (h *DirectoryHandler) Projects(ctx context.Context) ([]ProjectDTO, error) {
	list, err := h.projects.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list_projects: %w", err)
	}
	out := make([]ProjectDTO, 0, len(list))
	for _, p := range list {
		out = append(out, NewProjectDTO(p))
	}
	return out, nil
}
