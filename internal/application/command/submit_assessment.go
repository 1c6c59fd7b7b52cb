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
// SUBMIT ASSESSMENT COMMAND
// Records a subject's test score on the owner's newest path. A passing score
// completes the subject and starts the next one.
// ══════════════════════════════════════════════════════════════════════════════

// SubmitAssessmentCommand contains an assessment result.
type SubmitAssessmentCommand struct {
	ActorID string
	OwnerID string
	Subject string
	Score   float64

	// System marks trusted callers (agent callbacks); no actor check.
	System bool

	CorrelationID string
}

// Validate validates the command.
func (c SubmitAssessmentCommand) Validate() error {
	if strings.TrimSpace(c.OwnerID) == "" {
		return shared.NewDomainError("learning", "SubmitAssessment", shared.ErrEmptyValue, "owner_id is required")
	}
	if strings.TrimSpace(c.Subject) == "" {
		return shared.NewDomainError("learning", "SubmitAssessment", shared.ErrEmptyValue, "subject is required")
	}
	if c.Score < 0 || c.Score > 100 {
		return shared.ErrInvalidScore
	}
	return nil
}

// SubmitAssessmentResult contains the outcome and the saved path.
type SubmitAssessmentResult struct {
	Outcome learning.AssessmentOutcome
	Path    *learning.LearningPath
}

// SubmitAssessmentHandler handles SubmitAssessmentCommand.
type SubmitAssessmentHandler struct {
	store          learning.Store
	employees      employee.Repository
	eventPublisher shared.EventPublisher
	clock          timeutil.Clock
}

// NewSubmitAssessmentHandler creates a new SubmitAssessmentHandler.
func NewSubmitAssessmentHandler(
	store learning.Store,
	employees employee.Repository,
	eventPublisher shared.EventPublisher,
	clock timeutil.Clock,
) *SubmitAssessmentHandler {
	if clock == nil {
		clock = timeutil.SystemClock
	}
	return &SubmitAssessmentHandler{
		store:          store,
		employees:      employees,
		eventPublisher: eventPublisher,
		clock:          clock,
	}
}

// Handle executes the command. Reading the path, applying the score and
// advancing the current subject happen in one transaction.
func (h *SubmitAssessmentHandler) Handle(ctx context.Context, cmd SubmitAssessmentCommand) (*SubmitAssessmentResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("submit_assessment: %w", err)
	}
	if !cmd.System {
		if err := authorizeOwnerOrAdmin(ctx, h.employees, cmd.ActorID, cmd.OwnerID); err != nil {
			return nil, fmt.Errorf("submit_assessment: %w", err)
		}
	}

	result := &SubmitAssessmentResult{}
	err := h.store.WithinTx(ctx, func(ctx context.Context, repo learning.Repository) error {
		path, err := repo.Latest(ctx, cmd.OwnerID)
		if err != nil {
			return err
		}
		outcome, err := path.SubmitAssessment(cmd.Subject, cmd.Score, h.clock())
		if err != nil {
			return err
		}
		if err := path.Validate(); err != nil {
			return err
		}
		if err := repo.Save(ctx, path); err != nil {
			return err
		}
		result.Outcome = outcome
		result.Path = path
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("submit_assessment: %w", err)
	}

	o := result.Outcome
	event := shared.NewAssessmentSubmittedEvent(result.Path.ID, result.Path.OwnerID, o.Subject, o.Score, o.Threshold, o.Passed(), o.NextSubject)
	if cmd.CorrelationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	publishAll(h.eventPublisher, event)
	return result, nil
}
