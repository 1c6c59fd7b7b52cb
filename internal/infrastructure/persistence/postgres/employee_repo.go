package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/learnpro/kt-hub/internal/domain/employee"
	"github.com/learnpro/kt-hub/internal/domain/learning"
	"github.com/learnpro/kt-hub/internal/domain/project"
	"github.com/learnpro/kt-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// EMPLOYEE REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// EmployeeRepository implements employee.Repository for PostgreSQL.
type EmployeeRepository struct {
	conn *Connection
}

var _ employee.Repository = (*EmployeeRepository)(nil)

// NewEmployeeRepository creates a new EmployeeRepository.
func NewEmployeeRepository(conn *Connection) *EmployeeRepository {
	return &EmployeeRepository{conn: conn}
}

const employeeColumns = `id, email, name, role, password_hash, assigned_project_id, created_at, updated_at`

// Create inserts an employee; a duplicate email is a conflict.
func (r *EmployeeRepository) Create(ctx context.Context, e *employee.Employee) error {
	query := `
		INSERT INTO employees (` + employeeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.conn.Exec(ctx, query,
		e.ID,
		e.Email,
		e.Name,
		string(e.Role),
		e.PasswordHash,
		nullString(e.AssignedProjectID),
		e.CreatedAt,
		e.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrEmployeeExists
		}
		return fmt.Errorf("failed to create employee: %w", err)
	}
	return nil
}

// GetByID returns an employee by ID.
func (r *EmployeeRepository) GetByID(ctx context.Context, id string) (*employee.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetByEmail returns an employee by normalized email.
func (r *EmployeeRepository) GetByEmail(ctx context.Context, email string) (*employee.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE email = $1`
	return r.getOne(ctx, query, employee.NormalizeEmail(email))
}

func (r *EmployeeRepository) getOne(ctx context.Context, query string, arg string) (*employee.Employee, error) {
	e, err := scanEmployee(r.conn.QueryRow(ctx, query, arg))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrEmployeeNotFound
		}
		return nil, fmt.Errorf("failed to get employee: %w", err)
	}
	return e, nil
}

// Update updates name, role, password hash and assignment.
func (r *EmployeeRepository) Update(ctx context.Context, e *employee.Employee) error {
	query := `
		UPDATE employees SET
			name = $1,
			role = $2,
			password_hash = $3,
			assigned_project_id = $4,
			updated_at = $5
		WHERE id = $6
	`

	result, err := r.conn.Exec(ctx, query,
		e.Name,
		string(e.Role),
		e.PasswordHash,
		nullString(e.AssignedProjectID),
		e.UpdatedAt,
		e.ID,
	)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return shared.ErrProjectNotFound
		}
		return fmt.Errorf("failed to update employee: %w", err)
	}
	if result.RowsAffected() == 0 {
		return shared.ErrEmployeeNotFound
	}
	return nil
}

// List returns employees with the role, or all when role is empty.
func (r *EmployeeRepository) List(ctx context.Context, role employee.Role) ([]*employee.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees`
	var args []any
	if role != "" {
		query += ` WHERE role = $1`
		args = append(args, string(role))
	}
	query += ` ORDER BY created_at, id`

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}
	defer rows.Close()

	var out []*employee.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan employee: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEmployee(row pgx.Row) (*employee.Employee, error) {
	var (
		e         employee.Employee
		role      string
		projectID *string
	)
	err := row.Scan(
		&e.ID,
		&e.Email,
		&e.Name,
		&role,
		&e.PasswordHash,
		&projectID,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Role = employee.Role(role)
	e.AssignedProjectID = derefString(projectID)
	return &e, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PROJECT REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// ProjectRepository implements project.Repository for PostgreSQL.
type ProjectRepository struct {
	conn *Connection
}

var _ project.Repository = (*ProjectRepository)(nil)

// NewProjectRepository creates a new ProjectRepository.
func NewProjectRepository(conn *Connection) *ProjectRepository {
	return &ProjectRepository{conn: conn}
}

// Create inserts a project; a duplicate name is a conflict.
func (r *ProjectRepository) Create(ctx context.Context, p *project.Project) error {
	subjects, err := json.Marshal(p.Subjects)
	if err != nil {
		return fmt.Errorf("failed to marshal subjects: %w", err)
	}
	var quiz []byte
	if p.Quiz != nil {
		if quiz, err = json.Marshal(p.Quiz); err != nil {
			return fmt.Errorf("failed to marshal skill quiz: %w", err)
		}
	}

	_, err = r.conn.Exec(ctx,
		`INSERT INTO projects (id, name, description, subjects, skill_quiz, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.Name, p.Description, subjects, quiz, p.CreatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrProjectExists
		}
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

// GetByID returns a project by ID.
func (r *ProjectRepository) GetByID(ctx context.Context, id string) (*project.Project, error) {
	row := r.conn.QueryRow(ctx,
		`SELECT id, name, description, subjects, skill_quiz, created_at FROM projects WHERE id = $1`, id)
	p, err := scanProject(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return p, nil
}

// List returns all projects by name.
func (r *ProjectRepository) List(ctx context.Context) ([]*project.Project, error) {
	rows, err := r.conn.Query(ctx,
		`SELECT id, name, description, subjects, skill_quiz, created_at FROM projects ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var out []*project.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanProject(row pgx.Row) (*project.Project, error) {
	var (
		p        project.Project
		subjects []byte
		quiz     []byte
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &subjects, &quiz, &p.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(subjects, &p.Subjects); err != nil {
		return nil, fmt.Errorf("failed to unmarshal project subjects: %w", err)
	}
	if len(quiz) > 0 {
		p.Quiz = new(learning.SkillQuiz)
		if err := json.Unmarshal(quiz, p.Quiz); err != nil {
			return nil, fmt.Errorf("failed to unmarshal project skill quiz: %w", err)
		}
	}
	return &p, nil
}
