package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/learnpro/kt-hub/internal/domain/employee"
	"github.com/learnpro/kt-hub/internal/domain/project"
	"github.com/learnpro/kt-hub/internal/domain/shared"
)

// EmployeeRepository implements employee.Repository in memory.
type EmployeeRepository struct {
	view view
}

var _ employee.Repository = (*EmployeeRepository)(nil)

func (r *EmployeeRepository) Create(_ context.Context, e *employee.Employee) error {
	return r.view.do(func(st *state) error {
		if _, ok := st.employees[e.ID]; ok {
			return shared.ErrEmployeeExists
		}
		for _, existing := range st.employees {
			if existing.Email == e.Email {
				return shared.ErrEmployeeExists
			}
		}
		st.employees[e.ID] = *e
		return nil
	})
}

func (r *EmployeeRepository) GetByID(_ context.Context, id string) (*employee.Employee, error) {
	var out *employee.Employee
	err := r.view.do(func(st *state) error {
		e, ok := st.employees[id]
		if !ok {
			return shared.ErrEmployeeNotFound
		}
		out = &e
		return nil
	})
	return out, err
}

func (r *EmployeeRepository) GetByEmail(_ context.Context, email string) (*employee.Employee, error) {
	email = employee.NormalizeEmail(email)
	var out *employee.Employee
	err := r.view.do(func(st *state) error {
		for _, e := range st.employees {
			if e.Email == email {
				c := e
				out = &c
				return nil
			}
		}
		return shared.ErrEmployeeNotFound
	})
	return out, err
}

func (r *EmployeeRepository) Update(_ context.Context, e *employee.Employee) error {
	return r.view.do(func(st *state) error {
		if _, ok := st.employees[e.ID]; !ok {
			return shared.ErrEmployeeNotFound
		}
		if e.AssignedProjectID != "" {
			if _, ok := st.projects[e.AssignedProjectID]; !ok {
				return shared.ErrProjectNotFound
			}
		}
		st.employees[e.ID] = *e
		return nil
	})
}

func (r *EmployeeRepository) List(_ context.Context, role employee.Role) ([]*employee.Employee, error) {
	var out []*employee.Employee
	err := r.view.do(func(st *state) error {
		for _, e := range st.employees {
			if role == "" || e.Role == role {
				c := e
				out = append(out, &c)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		return olderFirst(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	return out, err
}

// ProjectRepository implements project.Repository in memory.
type ProjectRepository struct {
	view view
}

var _ project.Repository = (*ProjectRepository)(nil)

func (r *ProjectRepository) Create(_ context.Context, p *project.Project) error {
	return r.view.do(func(st *state) error {
		if _, ok := st.projects[p.ID]; ok {
			return shared.ErrProjectExists
		}
		for _, existing := range st.projects {
			if existing.Name == p.Name {
				return shared.ErrProjectExists
			}
		}
		st.projects[p.ID] = copyProject(*p)
		return nil
	})
}

func (r *ProjectRepository) GetByID(_ context.Context, id string) (*project.Project, error) {
	var out *project.Project
	err := r.view.do(func(st *state) error {
		p, ok := st.projects[id]
		if !ok {
			return shared.ErrProjectNotFound
		}
		c := copyProject(p)
		out = &c
		return nil
	})
	return out, err
}

func (r *ProjectRepository) List(_ context.Context) ([]*project.Project, error) {
	var out []*project.Project
	err := r.view.do(func(st *state) error {
		for _, p := range st.projects {
			c := copyProject(p)
			out = append(out, &c)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		return strings.Compare(out[i].Name, out[j].Name) < 0
	})
	return out, err
}

func copyProject(p project.Project) project.Project {
	subjects := make([]project.SubjectOutline, len(p.Subjects))
	for i, s := range p.Subjects {
		subjects[i] = project.SubjectOutline{Name: s.Name, Topics: append([]string(nil), s.Topics...)}
	}
	p.Subjects = subjects
	if p.Quiz != nil {
		quiz := p.Quiz.Clone()
		p.Quiz = &quiz
	}
	return p
}
