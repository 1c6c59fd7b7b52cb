package command

import (
	"context"
	"fmt"
	"time"

	"github.com/learnpro/kt-hub/internal/domain/employee"
	"github.com/learnpro/kt-hub/internal/domain/learning"
	"github.com/learnpro/kt-hub/internal/domain/project"
	"github.com/learnpro/kt-hub/pkg/logger"
	"github.com/learnpro/kt-hub/pkg/timeutil"
)

// quizTimeout bounds the quiz generator call of a project creation.
const quizTimeout = 90 * time.Second

// CreateProjectCommand contains the project outline.
type CreateProjectCommand struct {
	ActorID     string
	Name        string
	Description string
	Subjects    []project.SubjectOutline
}

// CreateProjectHandler handles CreateProjectCommand.
type CreateProjectHandler struct {
	projects  project.Repository
	employees employee.Repository
	quizzes   QuizGenerator
	newID     IDGenerator
	clock     timeutil.Clock
	logger    *logger.Logger
}

// NewCreateProjectHandler creates a new CreateProjectHandler. quizzes may be nil;
// the project is then created without a skill-assessment quiz.
func NewCreateProjectHandler(
	projects project.Repository,
	employees employee.Repository,
	quizzes QuizGenerator,
	newID IDGenerator,
	clock timeutil.Clock,
	log *logger.Logger,
) *CreateProjectHandler {
	if newID == nil {
		newID = NewID
	}
	if clock == nil {
		clock = timeutil.SystemClock
	}
	if log == nil {
		log = logger.Default()
	}
	return &CreateProjectHandler{
		projects:  projects,
		employees: employees,
		quizzes:   quizzes,
		newID:     newID,
		clock:     clock,
		logger:    log.With(logger.Component("create_project")),
	}
}

// Handle executes the command. Duplicate names fail with shared.ErrProjectExists.
// A quiz generator failure is logged and never fails the command.
func (h *CreateProjectHandler) Handle(ctx context.Context, cmd CreateProjectCommand) (*project.Project, error) {
	if _, err := requireAdmin(ctx, h.employees, cmd.ActorID); err != nil {
		return nil, fmt.Errorf("create_project: %w", err)
	}
	p, err := project.NewProject(h.newID(), cmd.Name, cmd.Description, cmd.Subjects, h.clock())
	if err != nil {
		return nil, fmt.Errorf("create_project: %w", err)
	}

	if h.quizzes != nil {
		quiz, err := h.quiz(ctx, p)
		if err != nil {
			h.logger.Warn("skill quiz generation failed, creating project without quiz",
				logger.ProjectID(p.ID), logger.Err(err))
		} else {
			p.Quiz = &quiz
		}
	}

	if err := h.projects.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create_project: %w", err)
	}
	return p, nil
}

func (h *CreateProjectHandler) quiz(ctx context.Context, p *project.Project) (learning.SkillQuiz, error) {
	ctx, cancel := context.WithTimeout(ctx, quizTimeout)
	defer cancel()

	shape, err := h.quizzes.GenerateQuiz(ctx, p.Subjects)
	if err != nil {
		return learning.SkillQuiz{}, err
	}
	return learning.NormalizeSkillQuiz(shape, p.Topics())
}
