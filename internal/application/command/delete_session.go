package command

import (
	"context"
	"fmt"

	"github.com/learnpro/kt-hub/internal/domain/employee"
	"github.com/learnpro/kt-hub/internal/domain/knowledge"
	"github.com/learnpro/kt-hub/internal/domain/shared"
	"github.com/learnpro/kt-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// DELETE SESSION COMMAND
// Unassigns a give or receive session. Deleting a give session removes its
// digest; receivers that pointed at it are repointed to the newest remaining
// digest of the scope or returned to AwaitingDigest.
// ══════════════════════════════════════════════════════════════════════════════

// Direction tells which kind of session a command targets.
type Direction string

const (
	DirectionGive    Direction = "give"
	DirectionReceive Direction = "receive"
)

// IsValid checks the direction value.
func (d Direction) IsValid() bool {
	return d == DirectionGive || d == DirectionReceive
}

// DeleteSessionCommand contains the session to delete.
type DeleteSessionCommand struct {
	ActorID   string
	SessionID string
	Direction Direction

	CorrelationID string
}

// Validate validates the command.
func (c DeleteSessionCommand) Validate() error {
	if c.SessionID == "" {
		return shared.NewDomainError("knowledge", "DeleteSession", shared.ErrEmptyValue, "session_id is required")
	}
	if !c.Direction.IsValid() {
		return shared.NewDomainError("knowledge", "DeleteSession", shared.ErrInvalidInput, "direction must be give or receive")
	}
	return nil
}

// DeleteSessionResult contains the outcome of a deletion.
type DeleteSessionResult struct {
	SessionID string
	Direction Direction
	ScopeKey  string

	// Repointed lists receive sessions whose digest reference changed.
	Repointed []*knowledge.ReceiveSession
}

// DeleteSessionHandler handles DeleteSessionCommand.
type DeleteSessionHandler struct {
	store          knowledge.Store
	employees      employee.Repository
	eventPublisher shared.EventPublisher
	clock          timeutil.Clock
}

// NewDeleteSessionHandler creates a new DeleteSessionHandler.
func NewDeleteSessionHandler(
	store knowledge.Store,
	employees employee.Repository,
	eventPublisher shared.EventPublisher,
	clock timeutil.Clock,
) *DeleteSessionHandler {
	if clock == nil {
		clock = timeutil.SystemClock
	}
	return &DeleteSessionHandler{
		store:          store,
		employees:      employees,
		eventPublisher: eventPublisher,
		clock:          clock,
	}
}

// Handle executes the command.
func (h *DeleteSessionHandler) Handle(ctx context.Context, cmd DeleteSessionCommand) (*DeleteSessionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("delete_session: %w", err)
	}
	if _, err := requireAdmin(ctx, h.employees, cmd.ActorID); err != nil {
		return nil, fmt.Errorf("delete_session: %w", err)
	}

	result := &DeleteSessionResult{SessionID: cmd.SessionID, Direction: cmd.Direction}
	var err error
	switch cmd.Direction {
	case DirectionGive:
		err = h.store.WithinTx(ctx, func(ctx context.Context, repo knowledge.Repository) error {
			return h.deleteGive(ctx, repo, cmd.SessionID, result)
		})
	case DirectionReceive:
		err = h.store.WithinTx(ctx, func(ctx context.Context, repo knowledge.Repository) error {
			session, err := repo.GetReceiveSession(ctx, cmd.SessionID)
			if err != nil {
				return err
			}
			result.ScopeKey = session.Scope.Key()
			return repo.DeleteReceiveSession(ctx, session.ID)
		})
	}
	if err != nil {
		return nil, fmt.Errorf("delete_session: %w", err)
	}

	event := shared.NewSessionDeletedEvent(result.SessionID, string(result.Direction), result.ScopeKey, len(result.Repointed))
	if cmd.CorrelationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	publishAll(h.eventPublisher, event)
	return result, nil
}

// deleteGive removes the session (the store cascades its digest) and then
// repoints every receiver that referenced the removed digest.
func (h *DeleteSessionHandler) deleteGive(ctx context.Context, repo knowledge.Repository, id string, result *DeleteSessionResult) error {
	session, err := repo.GetGiveSession(ctx, id)
	if err != nil {
		return err
	}
	key := session.Scope.Key()
	result.ScopeKey = key
	if err := repo.LockScope(ctx, key); err != nil {
		return err
	}

	var affected []*knowledge.ReceiveSession
	if session.IsCompleted() {
		affected, err = repo.ListReceiversByDigest(ctx, session.DigestID)
		if err != nil {
			return err
		}
	}

	if err := repo.DeleteGiveSession(ctx, session.ID); err != nil {
		return err
	}
	if len(affected) == 0 {
		return nil
	}

	replacement, err := repo.LatestDigestForScope(ctx, key)
	if err != nil {
		if !shared.IsNotFound(err) {
			return err
		}
		replacement = nil
	}

	now := h.clock()
	for _, r := range affected {
		r.Repoint(replacement, now)
		if err := repo.UpdateReceiveSession(ctx, r); err != nil {
			return err
		}
	}
	result.Repointed = affected
	return nil
}
