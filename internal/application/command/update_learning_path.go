package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/learnpro/kt-hub/internal/domain/employee"
	"github.com/learnpro/kt-hub/internal/domain/learning"
	"github.com/learnpro/kt-hub/internal/domain/shared"
	"github.com/learnpro/kt-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE LEARNING PATH COMMAND
// Applies a partial update (admin edits or topic completion reported by the
// voice agent) to the owner's newest path and recomputes the counters.
// ══════════════════════════════════════════════════════════════════════════════

// UpdateLearningPathCommand contains the patch.
type UpdateLearningPathCommand struct {
	ActorID string
	OwnerID string
	Patch   learning.Patch

	// System marks trusted callers (agent callbacks); no actor check.
	System bool

	CorrelationID string
}

// Validate validates the command.
func (c UpdateLearningPathCommand) Validate() error {
	if strings.TrimSpace(c.OwnerID) == "" {
		return shared.NewDomainError("learning", "UpdateLearningPath", shared.ErrEmptyValue, "owner_id is required")
	}
	if c.Patch.IsEmpty() {
		return shared.NewDomainError("learning", "UpdateLearningPath", shared.ErrEmptyValue, "patch is empty")
	}
	return nil
}

// UpdateLearningPathHandler handles UpdateLearningPathCommand.
type UpdateLearningPathHandler struct {
	store          learning.Store
	employees      employee.Repository
	eventPublisher shared.EventPublisher
	clock          timeutil.Clock
}

// NewUpdateLearningPathHandler creates a new UpdateLearningPathHandler.
func NewUpdateLearningPathHandler(
	store learning.Store,
	employees employee.Repository,
	eventPublisher shared.EventPublisher,
	clock timeutil.Clock,
) *UpdateLearningPathHandler {
	if clock == nil {
		clock = timeutil.SystemClock
	}
	return &UpdateLearningPathHandler{
		store:          store,
		employees:      employees,
		eventPublisher: eventPublisher,
		clock:          clock,
	}
}

// Handle executes the command. A patch that would leave more than one
// subject in progress is rejected and nothing is saved.
func (h *UpdateLearningPathHandler) Handle(ctx context.Context, cmd UpdateLearningPathCommand) (*learning.LearningPath, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("update_learning_path: %w", err)
	}
	if !cmd.System {
		if err := authorizeOwnerOrAdmin(ctx, h.employees, cmd.ActorID, cmd.OwnerID); err != nil {
			return nil, fmt.Errorf("update_learning_path: %w", err)
		}
	}

	var updated *learning.LearningPath
	err := h.store.WithinTx(ctx, func(ctx context.Context, repo learning.Repository) error {
		path, err := repo.Latest(ctx, cmd.OwnerID)
		if err != nil {
			return err
		}
		if err := path.ApplyPatch(cmd.Patch, h.clock()); err != nil {
			return err
		}
		if err := repo.Save(ctx, path); err != nil {
			return err
		}
		updated = path
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update_learning_path: %w", err)
	}

	event := shared.NewLearningPathUpdatedEvent(updated.ID, updated.OwnerID, updated.CompletedTopics, updated.TotalTopics)
	if cmd.CorrelationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	publishAll(h.eventPublisher, event)
	return updated, nil
}
