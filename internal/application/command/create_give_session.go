package command

import (
	"context"
	"fmt"

	"github.com/learnpro/kt-hub/internal/domain/employee"
	"github.com/learnpro/kt-hub/internal/domain/knowledge"
	"github.com/learnpro/kt-hub/internal/domain/project"
	"github.com/learnpro/kt-hub/internal/domain/shared"
	"github.com/learnpro/kt-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CREATE GIVE SESSION COMMAND
// An admin obliges an employee to hand over knowledge about a scope.
// At most one give session exists per (employee, scope).
// ══════════════════════════════════════════════════════════════════════════════

// CreateGiveSessionCommand contains the data to assign a give session.
type CreateGiveSessionCommand struct {
	// ActorID is the admin performing the assignment.
	ActorID string

	// EmployeeID is the employee who must give knowledge.
	EmployeeID string

	// Scope is the project or (repo, username) pair.
	Scope knowledge.Scope

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c CreateGiveSessionCommand) Validate() error {
	if c.EmployeeID == "" {
		return shared.NewDomainError("knowledge", "CreateGiveSession", shared.ErrEmptyValue, "employee_id is required")
	}
	return c.Scope.Validate()
}

// CreateGiveSessionResult contains the created session.
type CreateGiveSessionResult struct {
	Session *knowledge.GiveSession
	Events  []shared.Event
}

// CreateGiveSessionHandler handles CreateGiveSessionCommand.
type CreateGiveSessionHandler struct {
	store          knowledge.Store
	employees      employee.Repository
	projects       project.Repository
	repos          RepoResolver
	eventPublisher shared.EventPublisher
	newID          IDGenerator
	clock          timeutil.Clock
}

// NewCreateGiveSessionHandler creates a new CreateGiveSessionHandler.
// repos may be nil; repository scopes are then accepted without a lookup.
func NewCreateGiveSessionHandler(
	store knowledge.Store,
	employees employee.Repository,
	projects project.Repository,
	repos RepoResolver,
	eventPublisher shared.EventPublisher,
	newID IDGenerator,
	clock timeutil.Clock,
) *CreateGiveSessionHandler {
	if newID == nil {
		newID = NewID
	}
	if clock == nil {
		clock = timeutil.SystemClock
	}
	return &CreateGiveSessionHandler{
		store:          store,
		employees:      employees,
		projects:       projects,
		repos:          repos,
		eventPublisher: eventPublisher,
		newID:          newID,
		clock:          clock,
	}
}

// Handle executes the command. The duplicate check and the insert run in one
// transaction under the scope lock; a unique violation from a concurrent
// insert surfaces as shared.ErrConflict.
func (h *CreateGiveSessionHandler) Handle(ctx context.Context, cmd CreateGiveSessionCommand) (*CreateGiveSessionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("create_give_session: %w", err)
	}
	if _, err := requireAdmin(ctx, h.employees, cmd.ActorID); err != nil {
		return nil, fmt.Errorf("create_give_session: %w", err)
	}

	giver, err := h.employees.GetByID(ctx, cmd.EmployeeID)
	if err != nil {
		return nil, fmt.Errorf("create_give_session: load employee: %w", err)
	}
	if err := resolveScope(ctx, cmd.Scope, h.projects, h.repos); err != nil {
		return nil, fmt.Errorf("create_give_session: resolve scope: %w", err)
	}

	session, err := knowledge.NewGiveSession(h.newID(), giver.ID, cmd.Scope, h.clock())
	if err != nil {
		return nil, fmt.Errorf("create_give_session: %w", err)
	}

	key := cmd.Scope.Key()
	err = h.store.WithinTx(ctx, func(ctx context.Context, repo knowledge.Repository) error {
		if err := repo.LockScope(ctx, key); err != nil {
			return err
		}
		existing, err := repo.ListGiveSessions(ctx, knowledge.SessionFilter{EmployeeID: giver.ID, ScopeKey: key})
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return shared.ErrGiveSessionExists
		}
		return repo.CreateGiveSession(ctx, session)
	})
	if err != nil {
		return nil, fmt.Errorf("create_give_session: %w", err)
	}

	event := shared.NewGiveSessionCreatedEvent(session.ID, giver.ID, giver.Email, string(cmd.Scope.Kind), key)
	if cmd.CorrelationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	result := &CreateGiveSessionResult{Session: session, Events: []shared.Event{event}}

	// Reminder scheduling subscribes to this event; its failure never
	// reaches the caller.
	publishAll(h.eventPublisher, result.Events...)
	return result, nil
}
