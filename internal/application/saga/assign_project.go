// Package saga contains business processes that orchestrate
// multiple domain operations in a coordinated manner.
// Sagas ensure consistency across operations and handle compensation on failures.
package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/learnpro/kt-hub/internal/application/command"
	"github.com/learnpro/kt-hub/internal/domain/employee"
	"github.com/learnpro/kt-hub/internal/domain/learning"
	"github.com/learnpro/kt-hub/internal/domain/project"
	"github.com/learnpro/kt-hub/internal/domain/shared"
	"github.com/learnpro/kt-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ASSIGN PROJECT SAGA
// Onboarding of an employee onto a project.
// Flow: Validate → Authorize → Load Project → Assign → Generate Path → Publish
// Compensation: the previous assignment is restored when no path was stored.
// ══════════════════════════════════════════════════════════════════════════════

// DefaultPriorScore is the prior knowledge assumed for topics without a score.
const DefaultPriorScore = learning.NeutralScore

// AssignProjectInput contains the data to onboard an employee.
type AssignProjectInput struct {
	ActorID    string
	EmployeeID string
	ProjectID  string

	// Scores maps topic to prior knowledge (0..1).
	Scores map[string]float64

	CorrelationID string
}

// Validate checks if the input is valid.
func (i AssignProjectInput) Validate() error {
	if i.EmployeeID == "" {
		return shared.NewDomainError("onboarding", "AssignProject", shared.ErrEmptyValue, "employee_id is required")
	}
	if i.ProjectID == "" {
		return shared.NewDomainError("onboarding", "AssignProject", shared.ErrEmptyValue, "project_id is required")
	}
	for topic, s := range i.Scores {
		if s < 0 || s > 1 {
			return shared.NewDomainError("onboarding", "AssignProject", shared.ErrInvalidInput,
				fmt.Sprintf("score for %q must be between 0 and 1", topic))
		}
	}
	return nil
}

// AssignProjectResult contains the outcome of a successful onboarding.
type AssignProjectResult struct {
	Employee *employee.Employee
	Project  *project.Project
	Path     *learning.LearningPath

	// Fallback is true when the generator failed and the minimal path was stored.
	Fallback bool

	CompletedAt time.Time
}

// AssignProjectStep represents a step in the saga.
type AssignProjectStep string

const (
	StepValidateInput AssignProjectStep = "validate_input"
	StepAuthorize     AssignProjectStep = "authorize"
	StepLoadProject   AssignProjectStep = "load_project"
	StepAssign        AssignProjectStep = "assign"
	StepGeneratePath  AssignProjectStep = "generate_path"
	StepPublishEvent  AssignProjectStep = "publish_event"
	StepComplete      AssignProjectStep = "complete"
)

// StepError reports the step at which the saga stopped.
type StepError struct {
	Step        AssignProjectStep
	Compensated bool
	Err         error
}

func (e *StepError) Error() string {
	if e.Compensated {
		return fmt.Sprintf("assign project: %s (compensated): %v", e.Step, e.Err)
	}
	return fmt.Sprintf("assign project: %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// PathGenerator is the part of the path generation command the saga needs.
type PathGenerator interface {
	Handle(ctx context.Context, cmd command.GeneratePathCommand) (*command.GeneratePathResult, error)
}

// AssignProjectSaga orchestrates assignment and initial path generation.
type AssignProjectSaga struct {
	employees      employee.Repository
	projects       project.Repository
	paths          PathGenerator
	eventPublisher shared.EventPublisher
	clock          timeutil.Clock
	logger         *slog.Logger
}

// NewAssignProjectSaga creates a new AssignProjectSaga.
func NewAssignProjectSaga(
	employees employee.Repository,
	projects project.Repository,
	paths PathGenerator,
	eventPublisher shared.EventPublisher,
	clock timeutil.Clock,
	logger *slog.Logger,
) *AssignProjectSaga {
	if clock == nil {
		clock = timeutil.SystemClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AssignProjectSaga{
		employees:      employees,
		projects:       projects,
		paths:          paths,
		eventPublisher: eventPublisher,
		clock:          clock,
		logger:         logger.With(slog.String("saga", "assign_project")),
	}
}

// Execute runs the saga.
func (s *AssignProjectSaga) Execute(ctx context.Context, input AssignProjectInput) (*AssignProjectResult, error) {
	if err := input.Validate(); err != nil {
		return nil, &StepError{Step: StepValidateInput, Err: err}
	}

	actor, err := s.employees.GetByID(ctx, input.ActorID)
	if err != nil || !actor.IsAdmin() {
		return nil, &StepError{Step: StepAuthorize, Err: shared.ErrAdminOnly}
	}

	proj, err := s.projects.GetByID(ctx, input.ProjectID)
	if err != nil {
		return nil, &StepError{Step: StepLoadProject, Err: err}
	}

	emp, err := s.employees.GetByID(ctx, input.EmployeeID)
	if err != nil {
		return nil, &StepError{Step: StepAssign, Err: err}
	}
	previous := emp.AssignedProjectID
	emp.AssignProject(proj.ID, s.clock())
	if err := s.employees.Update(ctx, emp); err != nil {
		return nil, &StepError{Step: StepAssign, Err: err}
	}

	topics := proj.Topics()
	generated, err := s.paths.Handle(ctx, command.GeneratePathCommand{
		OwnerID:       emp.ID,
		Topics:        topics,
		Scores:        withDefaultScores(topics, input.Scores),
		CorrelationID: input.CorrelationID,
	})
	if err != nil {
		compensated := s.compensate(ctx, emp, previous)
		return nil, &StepError{Step: StepGeneratePath, Compensated: compensated, Err: err}
	}

	event := shared.NewProjectAssignedEvent(emp.ID, proj.ID, generated.Path.ID)
	if input.CorrelationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(input.CorrelationID)
	}
	if s.eventPublisher != nil {
		if err := s.eventPublisher.Publish(event); err != nil {
			s.logger.Warn("failed to publish project assigned event",
				slog.String("employee_id", emp.ID), slog.String("error", err.Error()))
		}
	}

	s.logger.Info("project assigned",
		slog.String("employee_id", emp.ID),
		slog.String("project_id", proj.ID),
		slog.String("path_id", generated.Path.ID),
		slog.Bool("fallback", generated.Path.Fallback),
	)

	return &AssignProjectResult{
		Employee:    emp,
		Project:     proj,
		Path:        generated.Path,
		Fallback:    generated.Path.Fallback,
		CompletedAt: s.clock(),
	}, nil
}

// compensate restores the previous assignment. Returns false if the
// restore itself failed; the failure is logged.
func (s *AssignProjectSaga) compensate(ctx context.Context, emp *employee.Employee, previous string) bool {
	emp.AssignProject(previous, s.clock())
	// Компенсация выполняется даже если исходный контекст отменён.
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.employees.Update(cctx, emp); err != nil {
		s.logger.Error("failed to restore previous project assignment",
			slog.String("employee_id", emp.ID),
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}

// withDefaultScores fills DefaultPriorScore for topics missing from scores.
func withDefaultScores(topics []string, scores map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(topics))
	for _, t := range topics {
		out[t] = DefaultPriorScore
	}
	for t, v := range scores {
		out[t] = v
	}
	return out
}

// IsStep reports whether err stopped the saga at step.
func IsStep(err error, step AssignProjectStep) bool {
	var se *StepError
	return errors.As(err, &se) && se.Step == step
}
