package command

import (
	"context"
	"fmt"

	"github.com/learnpro/kt-hub/internal/domain/knowledge"
	"github.com/learnpro/kt-hub/internal/domain/shared"
	"github.com/learnpro/kt-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// MARK CONSUMED COMMAND
// Accepts the voice/chat agent's report that a receive session is finished.
// ══════════════════════════════════════════════════════════════════════════════

// MarkConsumedCommand contains the receive session to close.
type MarkConsumedCommand struct {
	SessionID string
}

// MarkConsumedResult contains the session after the transition.
type MarkConsumedResult struct {
	Session *knowledge.ReceiveSession

	// Changed is false when the session was already Consumed.
	Changed bool
}

// MarkConsumedHandler handles MarkConsumedCommand.
type MarkConsumedHandler struct {
	store          knowledge.Store
	eventPublisher shared.EventPublisher
	clock          timeutil.Clock
}

// NewMarkConsumedHandler creates a new MarkConsumedHandler.
func NewMarkConsumedHandler(store knowledge.Store, eventPublisher shared.EventPublisher, clock timeutil.Clock) *MarkConsumedHandler {
	if clock == nil {
		clock = timeutil.SystemClock
	}
	return &MarkConsumedHandler{store: store, eventPublisher: eventPublisher, clock: clock}
}

// Handle executes the command. Repeating it for a Consumed session succeeds
// without changes; an AwaitingDigest session fails with shared.ErrInvalidState.
func (h *MarkConsumedHandler) Handle(ctx context.Context, cmd MarkConsumedCommand) (*MarkConsumedResult, error) {
	if cmd.SessionID == "" {
		return nil, fmt.Errorf("mark_consumed: %w", shared.ErrSessionNotFound)
	}

	result := &MarkConsumedResult{}
	err := h.store.WithinTx(ctx, func(ctx context.Context, repo knowledge.Repository) error {
		session, err := repo.GetReceiveSession(ctx, cmd.SessionID)
		if err != nil {
			return err
		}
		changed, err := session.MarkConsumed(h.clock())
		if err != nil {
			return err
		}
		if changed {
			if err := repo.UpdateReceiveSession(ctx, session); err != nil {
				return err
			}
		}
		result.Session = session
		result.Changed = changed
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("mark_consumed: %w", err)
	}

	if result.Changed {
		publishAll(h.eventPublisher, shared.NewReceiveSessionConsumedEvent(
			result.Session.ID, result.Session.EmployeeID, result.Session.DigestID))
	}
	return result, nil
}
