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
// CREATE RECEIVE SESSION COMMAND
// An admin obliges an employee to consume the digest of a scope. The session
// starts ReadyToConsume when a digest already exists, AwaitingDigest otherwise.
// ══════════════════════════════════════════════════════════════════════════════

// CreateReceiveSessionCommand contains the data to assign a receive session.
type CreateReceiveSessionCommand struct {
	ActorID    string
	EmployeeID string
	Scope      knowledge.Scope

	CorrelationID string
}

// Validate validates the command.
func (c CreateReceiveSessionCommand) Validate() error {
	if c.EmployeeID == "" {
		return shared.NewDomainError("knowledge", "CreateReceiveSession", shared.ErrEmptyValue, "employee_id is required")
	}
	return c.Scope.Validate()
}

// CreateReceiveSessionResult contains the created session.
type CreateReceiveSessionResult struct {
	Session *knowledge.ReceiveSession
	Events  []shared.Event
}

// CreateReceiveSessionHandler handles CreateReceiveSessionCommand.
type CreateReceiveSessionHandler struct {
	store          knowledge.Store
	employees      employee.Repository
	projects       project.Repository
	repos          RepoResolver
	eventPublisher shared.EventPublisher
	newID          IDGenerator
	clock          timeutil.Clock
}

// NewCreateReceiveSessionHandler creates a new CreateReceiveSessionHandler.
func NewCreateReceiveSessionHandler(
	store knowledge.Store,
	employees employee.Repository,
	projects project.Repository,
	repos RepoResolver,
	eventPublisher shared.EventPublisher,
	newID IDGenerator,
	clock timeutil.Clock,
) *CreateReceiveSessionHandler {
	if newID == nil {
		newID = NewID
	}
	if clock == nil {
		clock = timeutil.SystemClock
	}
	return &CreateReceiveSessionHandler{
		store:          store,
		employees:      employees,
		projects:       projects,
		repos:          repos,
		eventPublisher: eventPublisher,
		newID:          newID,
		clock:          clock,
	}
}

// Handle executes the command. Reading the digest state and inserting the
// session happen under the same scope lock that completion takes, so a digest
// produced concurrently is seen either here or by the completion's fan-out.
func (h *CreateReceiveSessionHandler) Handle(ctx context.Context, cmd CreateReceiveSessionCommand) (*CreateReceiveSessionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("create_receive_session: %w", err)
	}
	if _, err := requireAdmin(ctx, h.employees, cmd.ActorID); err != nil {
		return nil, fmt.Errorf("create_receive_session: %w", err)
	}
	receiver, err := h.employees.GetByID(ctx, cmd.EmployeeID)
	if err != nil {
		return nil, fmt.Errorf("create_receive_session: load employee: %w", err)
	}
	if err := resolveScope(ctx, cmd.Scope, h.projects, h.repos); err != nil {
		return nil, fmt.Errorf("create_receive_session: resolve scope: %w", err)
	}

	key := cmd.Scope.Key()
	var session *knowledge.ReceiveSession
	err = h.store.WithinTx(ctx, func(ctx context.Context, repo knowledge.Repository) error {
		if err := repo.LockScope(ctx, key); err != nil {
			return err
		}
		existing, err := repo.ListReceiveSessions(ctx, knowledge.SessionFilter{EmployeeID: receiver.ID, ScopeKey: key})
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return shared.ErrReceiveSessionExists
		}

		digest, err := repo.LatestDigestForScope(ctx, key)
		if err != nil && !shared.IsNotFound(err) {
			return err
		}

		session, err = knowledge.NewReceiveSession(h.newID(), receiver.ID, cmd.Scope, digest, h.clock())
		if err != nil {
			return err
		}
		return repo.CreateReceiveSession(ctx, session)
	})
	if err != nil {
		return nil, fmt.Errorf("create_receive_session: %w", err)
	}

	event := shared.NewReceiveSessionCreatedEvent(session.ID, receiver.ID, key, string(session.Status))
	if cmd.CorrelationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	result := &CreateReceiveSessionResult{Session: session, Events: []shared.Event{event}}
	publishAll(h.eventPublisher, result.Events...)
	return result, nil
}
