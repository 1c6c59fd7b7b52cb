package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/learnpro/kt-hub/internal/domain/learning"
	"github.com/learnpro/kt-hub/internal/domain/shared"
	"github.com/learnpro/kt-hub/pkg/logger"
	"github.com/learnpro/kt-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GENERATE PATH COMMAND
// Asks the path generator for a curriculum, coerces the untrusted document
// into a LearningPath and stores it as the owner's newest version. When every
// attempt fails the owner still gets the deterministic fallback path.
// ══════════════════════════════════════════════════════════════════════════════

// GeneratePathCommand contains the input of a path generation.
type GeneratePathCommand struct {
	OwnerID string
	Topics  []string

	// Scores maps topic to prior knowledge (0..1). Missing topics are unknown.
	Scores map[string]float64

	CorrelationID string
}

// Validate validates the command.
func (c GeneratePathCommand) Validate() error {
	if strings.TrimSpace(c.OwnerID) == "" {
		return shared.NewDomainError("learning", "GeneratePath", shared.ErrEmptyValue, "owner_id is required")
	}
	return nil
}

// GeneratePathResult contains the stored path.
type GeneratePathResult struct {
	Path *learning.LearningPath

	// Attempts is the number of generator calls made.
	Attempts int

	// Cause is the last generator or normalisation error when the
	// fallback path was used.
	Cause error

	Events []shared.Event
}

// GeneratePathConfig tunes path generation.
type GeneratePathConfig struct {
	// Attempts is the total number of generator calls before falling back.
	Attempts int

	// AttemptTimeout bounds a single generator call.
	AttemptTimeout time.Duration
}

// DefaultGeneratePathConfig returns default configuration.
func DefaultGeneratePathConfig() GeneratePathConfig {
	return GeneratePathConfig{
		Attempts:       3,
		AttemptTimeout: 90 * time.Second,
	}
}

// GeneratePathHandler handles GeneratePathCommand.
type GeneratePathHandler struct {
	store          learning.Store
	generator      PathGenerator
	eventPublisher shared.EventPublisher
	config         GeneratePathConfig
	newID          IDGenerator
	clock          timeutil.Clock
	logger         *logger.Logger
}

// NewGeneratePathHandler creates a new GeneratePathHandler.
func NewGeneratePathHandler(
	store learning.Store,
	generator PathGenerator,
	eventPublisher shared.EventPublisher,
	newID IDGenerator,
	clock timeutil.Clock,
	log *logger.Logger,
	config GeneratePathConfig,
) *GeneratePathHandler {
	defaults := DefaultGeneratePathConfig()
	if config.Attempts <= 0 {
		config.Attempts = defaults.Attempts
	}
	if config.AttemptTimeout <= 0 {
		config.AttemptTimeout = defaults.AttemptTimeout
	}
	if newID == nil {
		newID = NewID
	}
	if clock == nil {
		clock = timeutil.SystemClock
	}
	if log == nil {
		log = logger.Default()
	}
	return &GeneratePathHandler{
		store:          store,
		generator:      generator,
		eventPublisher: eventPublisher,
		config:         config,
		newID:          newID,
		clock:          clock,
		logger:         log.With(logger.Component("generate_path")),
	}
}

// Handle executes the command. Generator failures never reach the caller;
// only a failure to store the path does.
func (h *GeneratePathHandler) Handle(ctx context.Context, cmd GeneratePathCommand) (*GeneratePathResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("generate_path: %w", err)
	}

	draft, attempts, cause := h.draft(ctx, cmd.Topics, cmd.Scores)
	if cause != nil {
		h.logger.Warn("path generation failed, using fallback path",
			logger.EmployeeID(cmd.OwnerID),
			logger.Int("attempts", attempts),
			logger.Err(cause),
		)
	}

	path, err := learning.NewLearningPath(h.newID(), cmd.OwnerID, draft, h.clock())
	if err != nil {
		return nil, fmt.Errorf("generate_path: %w", err)
	}
	if err := h.store.Create(ctx, path); err != nil {
		return nil, fmt.Errorf("generate_path: store path: %w", err)
	}

	event := shared.NewLearningPathGeneratedEvent(path.ID, path.OwnerID, len(path.Subjects), path.Fallback)
	if cmd.CorrelationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	result := &GeneratePathResult{
		Path:     path,
		Attempts: attempts,
		Cause:    cause,
		Events:   []shared.Event{event},
	}

	h.logger.Info("learning path generated",
		logger.PathID(path.ID),
		logger.EmployeeID(path.OwnerID),
		logger.Int("subjects", len(path.Subjects)),
		logger.Bool("fallback", path.Fallback),
	)
	publishAll(h.eventPublisher, result.Events...)
	return result, nil
}

// draft asks the generator up to Attempts times. A document without usable
// subjects counts as a failed attempt. On exhaustion the fallback draft is
// returned with the last error.
func (h *GeneratePathHandler) draft(ctx context.Context, topics []string, scores map[string]float64) (learning.Draft, int, error) {
	var lastErr error
	attempts := 0
	for attempts < h.config.Attempts {
		if ctx.Err() != nil {
			if lastErr == nil {
				lastErr = ctx.Err()
			}
			break
		}
		attempts++

		draft, err := h.attempt(ctx, topics, scores)
		if err == nil {
			return draft, attempts, nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) {
			break
		}
	}
	return learning.FallbackDraft(topics), attempts, shared.WrapError("learning", "GeneratePath", shared.ErrGenerationFailed, "path generator output unusable", lastErr)
}

func (h *GeneratePathHandler) attempt(ctx context.Context, topics []string, scores map[string]float64) (learning.Draft, error) {
	if h.generator == nil {
		return learning.Draft{}, shared.ErrServiceUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, h.config.AttemptTimeout)
	defer cancel()

	shape, err := h.generator.Generate(ctx, topics, scores)
	if err != nil {
		return learning.Draft{}, err
	}
	return learning.Normalize(shape)
}
