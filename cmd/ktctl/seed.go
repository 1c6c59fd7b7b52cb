package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/learnpro/kt-hub/internal/application/command"
	"github.com/learnpro/kt-hub/internal/application/saga"
	"github.com/learnpro/kt-hub/internal/domain/employee"
	"github.com/learnpro/kt-hub/internal/domain/learning"
	"github.com/learnpro/kt-hub/internal/domain/project"
	"github.com/learnpro/kt-hub/internal/domain/shared"
	"github.com/learnpro/kt-hub/internal/infrastructure/auth"
	"github.com/learnpro/kt-hub/internal/infrastructure/external/llm"
	"github.com/learnpro/kt-hub/internal/infrastructure/messaging"
	"github.com/learnpro/kt-hub/internal/infrastructure/persistence/postgres"
	"github.com/learnpro/kt-hub/pkg/logger"
)

// SeedFile is the YAML layout accepted by ktctl seed.
//
//	projects:
//	  - name: Billing
//	    description: Payments backend
//	    subjects:
//	      - name: Go
//	        topics: [goroutines, channels]
//	employees:
//	  - email: dev@example.com
//	    name: Dev
//	    password: changeme123
//	    project: Billing
//	    scores: {goroutines: 0.8}
type SeedFile struct {
	Projects  []SeedProject  `yaml:"projects"`
	Employees []SeedEmployee `yaml:"employees"`
}

type SeedProject struct {
	Name        string                   `yaml:"name"`
	Description string                   `yaml:"description"`
	Subjects    []project.SubjectOutline `yaml:"subjects"`
}

type SeedEmployee struct {
	Email    string             `yaml:"email"`
	Name     string             `yaml:"name"`
	Password string             `yaml:"password"`
	Project  string             `yaml:"project"`
	Scores   map[string]float64 `yaml:"scores"`
}

// LoadSeedFile parses a seed document.
func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var f SeedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return &f, nil
}

func seedCmd() *cobra.Command {
	var (
		file    string
		asEmail string
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load projects and employees from a YAML file",
		Long: `Create the projects and employees listed in a YAML file, acting as an
existing admin. Entries that already exist are skipped. Employees with a
project get it assigned, which also generates their first learning path.

Examples:
  ktctl seed --file seed.yaml --as admin@example.com`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			f, err := LoadSeedFile(file)
			if err != nil {
				return err
			}

			e, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{Logger: e.log.Slog()})
			defer bus.Close()

			return postgresSeeder(e, bus).Run(ctx, f, asEmail)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "path to the seed YAML (required)")
	cmd.Flags().StringVar(&asEmail, "as", "", "email of the admin performing the seed (required)")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("as")

	return cmd
}

type seeder struct {
	log       *logger.Logger
	employees employee.Repository
	projects  project.Repository

	createProject  *command.CreateProjectHandler
	createEmployee *command.RegisterEmployeeHandler
	assign         *saga.AssignProjectSaga
}

func newSeeder(
	log *logger.Logger,
	employees employee.Repository,
	projects project.Repository,
	paths learning.Store,
	generator command.PathGenerator,
	quizzes command.QuizGenerator,
	publisher shared.EventPublisher,
	pathConfig command.GeneratePathConfig,
) *seeder {
	generate := command.NewGeneratePathHandler(paths, generator, publisher, nil, nil, log, pathConfig)

	return &seeder{
		log:            log,
		employees:      employees,
		projects:       projects,
		createProject:  command.NewCreateProjectHandler(projects, employees, quizzes, nil, nil, log),
		createEmployee: command.NewRegisterEmployeeHandler(employees, auth.BcryptHasher{}, nil, nil),
		assign:         saga.NewAssignProjectSaga(employees, projects, generate, publisher, nil, log.Slog()),
	}
}

// postgresSeeder wires the seeder to the database and the configured LLM.
// Generation failures fall back to the minimal path.
func postgresSeeder(e *env, publisher shared.EventPublisher) *seeder {
	llmConfig := llm.DefaultClientConfig(e.cfg.LLM.BaseURL, e.cfg.LLM.APIKey)
	llmConfig.Model = e.cfg.LLM.Model
	llmConfig.Timeout = e.cfg.LLM.Timeout
	llmConfig.Logger = e.log.Slog()

	pathConfig := command.DefaultGeneratePathConfig()
	pathConfig.Attempts = e.cfg.LLM.PathAttempts

	client := llm.NewClient(llmConfig)
	return newSeeder(
		e.log,
		postgres.NewEmployeeRepository(e.conn),
		postgres.NewProjectRepository(e.conn),
		postgres.NewLearningPathStore(e.conn),
		llm.NewPathGenerator(client),
		llm.NewQuizGenerator(client),
		publisher,
		pathConfig,
	)
}

// Run applies the seed file. Existing projects (by name) and employees
// (by email) are reused rather than recreated.
func (s *seeder) Run(ctx context.Context, f *SeedFile, asEmail string) error {
	admin, err := s.employees.GetByEmail(ctx, employee.NormalizeEmail(asEmail))
	if err != nil {
		return fmt.Errorf("look up admin %s: %w", asEmail, err)
	}
	if !admin.IsAdmin() {
		return shared.ErrAdminOnly
	}

	byName, err := s.existingProjects(ctx)
	if err != nil {
		return err
	}

	for _, sp := range f.Projects {
		if _, ok := byName[sp.Name]; ok {
			s.log.Info("project exists, skipping", logger.String("project", sp.Name))
			continue
		}
		p, err := s.createProject.Handle(ctx, command.CreateProjectCommand{
			ActorID:     admin.ID,
			Name:        sp.Name,
			Description: sp.Description,
			Subjects:    sp.Subjects,
		})
		if err != nil {
			return fmt.Errorf("create project %q: %w", sp.Name, err)
		}
		byName[p.Name] = p
		s.log.Info("project created", logger.String("project", p.Name))
	}

	for _, se := range f.Employees {
		emp, err := s.ensureEmployee(ctx, admin.ID, se)
		if err != nil {
			return err
		}
		if se.Project == "" {
			continue
		}
		p, ok := byName[se.Project]
		if !ok {
			return fmt.Errorf("employee %s: %w", se.Email, shared.ErrProjectNotFound)
		}
		if emp.AssignedProjectID == p.ID {
			continue
		}
		result, err := s.assign.Execute(ctx, saga.AssignProjectInput{
			ActorID:    admin.ID,
			EmployeeID: emp.ID,
			ProjectID:  p.ID,
			Scores:     se.Scores,
		})
		if err != nil {
			return fmt.Errorf("assign %s to %q: %w", se.Email, p.Name, err)
		}
		s.log.Info("project assigned",
			logger.Email(emp.Email),
			logger.String("project", p.Name),
			logger.Bool("fallback_path", result.Fallback),
		)
	}
	return nil
}

func (s *seeder) existingProjects(ctx context.Context) (map[string]*project.Project, error) {
	list, err := s.projects.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	byName := make(map[string]*project.Project, len(list))
	for _, p := range list {
		byName[p.Name] = p
	}
	return byName, nil
}

func (s *seeder) ensureEmployee(ctx context.Context, actorID string, se SeedEmployee) (*employee.Employee, error) {
	existing, err := s.employees.GetByEmail(ctx, employee.NormalizeEmail(se.Email))
	if err == nil {
		s.log.Info("employee exists, skipping", logger.Email(existing.Email))
		return existing, nil
	}
	if !shared.IsNotFound(err) {
		return nil, fmt.Errorf("look up %s: %w", se.Email, err)
	}

	emp, err := s.createEmployee.Handle(ctx, command.RegisterEmployeeCommand{
		ActorID:  actorID,
		Email:    se.Email,
		Name:     se.Name,
		Password: se.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", se.Email, err)
	}
	s.log.Info("employee registered", logger.Email(emp.Email))
	return emp, nil
}
