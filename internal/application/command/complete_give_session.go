package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/learnpro/kt-hub/internal/domain/knowledge"
	"github.com/learnpro/kt-hub/internal/domain/shared"
	"github.com/learnpro/kt-hub/pkg/logger"
	"github.com/learnpro/kt-hub/pkg/retry"
	"github.com/learnpro/kt-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETE GIVE SESSION COMMAND
// The owning employee supplies raw material (transcripts or, for a repository
// scope, commit history). The digest is generated outside any transaction;
// only the finished result is written, together with the fan-out to every
// receive session still waiting on the scope.
// ══════════════════════════════════════════════════════════════════════════════

// CompleteGiveSessionCommand contains the data to complete a give session.
type CompleteGiveSessionCommand struct {
	SessionID string
	CallerID  string

	// Material is the raw transcript. May be empty for repository scopes:
	// commit history is collected instead.
	Material []string

	CorrelationID string
}

// Validate validates the command.
func (c CompleteGiveSessionCommand) Validate() error {
	if c.SessionID == "" {
		return shared.NewDomainError("knowledge", "CompleteGiveSession", shared.ErrEmptyValue, "session_id is required")
	}
	if c.CallerID == "" {
		return shared.ErrNotSessionOwner
	}
	return nil
}

// CompleteGiveSessionResult contains the outcome of a completion.
type CompleteGiveSessionResult struct {
	Session *knowledge.GiveSession
	Digest  *knowledge.DigestRecord

	// FannedOut lists the receive sessions moved to ReadyToConsume.
	FannedOut []*knowledge.ReceiveSession

	Events []shared.Event
}

// CompleteGiveSessionConfig tunes digest generation.
type CompleteGiveSessionConfig struct {
	// DigestAttempts is the attempt budget for the generator (minimum 2).
	DigestAttempts int

	// DigestTimeout bounds all attempts together.
	DigestTimeout time.Duration
}

// DefaultCompleteGiveSessionConfig returns default configuration.
func DefaultCompleteGiveSessionConfig() CompleteGiveSessionConfig {
	return CompleteGiveSessionConfig{
		DigestAttempts: 3,
		DigestTimeout:  2 * time.Minute,
	}
}

// CompleteGiveSessionHandler handles CompleteGiveSessionCommand.
type CompleteGiveSessionHandler struct {
	store          knowledge.Store
	generator      DigestGenerator
	commits        CommitHistory
	eventPublisher shared.EventPublisher
	retrier        *retry.Retrier
	timeout        time.Duration
	newID          IDGenerator
	clock          timeutil.Clock
	logger         *logger.Logger
}

// NewCompleteGiveSessionHandler creates a new CompleteGiveSessionHandler.
// commits may be nil when repository scopes are not used.
func NewCompleteGiveSessionHandler(
	store knowledge.Store,
	generator DigestGenerator,
	commits CommitHistory,
	eventPublisher shared.EventPublisher,
	newID IDGenerator,
	clock timeutil.Clock,
	log *logger.Logger,
	config CompleteGiveSessionConfig,
) *CompleteGiveSessionHandler {
	if newID == nil {
		newID = NewID
	}
	if clock == nil {
		clock = timeutil.SystemClock
	}
	if log == nil {
		log = logger.Default()
	}
	if config.DigestTimeout <= 0 {
		config.DigestTimeout = DefaultCompleteGiveSessionConfig().DigestTimeout
	}
	log = log.With(logger.Component("complete_give_session"))

	retrier := retry.LLMRetrier(config.DigestAttempts,
		retry.WithRetryIf(func(err error) bool {
			return !errors.Is(err, context.Canceled)
		}),
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			log.Warn("digest generation failed, retrying",
				logger.Int("attempt", attempt), logger.Err(err), logger.Duration("delay", delay))
		}),
	)

	return &CompleteGiveSessionHandler{
		store:          store,
		generator:      generator,
		commits:        commits,
		eventPublisher: eventPublisher,
		retrier:        retrier,
		timeout:        config.DigestTimeout,
		newID:          newID,
		clock:          clock,
		logger:         log,
	}
}

// Handle executes the command.
//
// Forbidden and AlreadyCompleted are checked before the generator is called
// and again inside the transaction, so a concurrent completion of the same
// session loses with shared.ErrGiveSessionCompleted and writes nothing.
func (h *CompleteGiveSessionHandler) Handle(ctx context.Context, cmd CompleteGiveSessionCommand) (*CompleteGiveSessionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("complete_give_session: %w", err)
	}

	session, err := h.store.GetGiveSession(ctx, cmd.SessionID)
	if err != nil {
		return nil, fmt.Errorf("complete_give_session: %w", err)
	}
	if err := session.AuthorizeCompletion(cmd.CallerID); err != nil {
		return nil, fmt.Errorf("complete_give_session: %w", err)
	}

	material, err := h.collectMaterial(ctx, session, cmd.Material)
	if err != nil {
		return nil, fmt.Errorf("complete_give_session: %w", err)
	}

	content, err := h.generateDigest(ctx, material)
	if err != nil {
		return nil, fmt.Errorf("complete_give_session: %w", err)
	}

	result, err := h.persist(ctx, cmd, content, material)
	if err != nil {
		return nil, fmt.Errorf("complete_give_session: %w", err)
	}

	h.logger.Info("give session completed",
		logger.SessionID(result.Session.ID),
		logger.EmployeeID(result.Session.EmployeeID),
		logger.ScopeKey(result.Session.Scope.Key()),
		logger.Int("fanned_out", len(result.FannedOut)),
	)
	publishAll(h.eventPublisher, result.Events...)
	return result, nil
}

// collectMaterial falls back to commit history for repository scopes
// when no transcript was supplied.
func (h *CompleteGiveSessionHandler) collectMaterial(ctx context.Context, session *knowledge.GiveSession, material []string) ([]string, error) {
	if !knowledge.MaterialIsEmpty(material) {
		return material, nil
	}
	if session.Scope.Kind != knowledge.ScopeRepo || h.commits == nil {
		return nil, shared.ErrEmptyMaterial
	}

	collected, err := h.commits.CollectMaterial(ctx, session.Scope.RepoURL, session.Scope.Username)
	if err != nil {
		return nil, fmt.Errorf("collect commit history: %w", err)
	}
	if knowledge.MaterialIsEmpty(collected) {
		return nil, shared.ErrEmptyMaterial
	}
	return collected, nil
}

// generateDigest calls the generator with retries. Any failure, including a
// timeout, is reported as shared.ErrDigestUnavailable.
func (h *CompleteGiveSessionHandler) generateDigest(ctx context.Context, material []string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	content, err := retry.DoWithData(ctx, h.retrier, func(ctx context.Context) (string, error) {
		return h.generator.Digest(ctx, material)
	})
	if err != nil {
		return "", shared.WrapError("knowledge", "Digest", shared.ErrDigestUnavailable, "digest generator failed after retries", err)
	}
	return content, nil
}

// persist writes the digest, completes the session and fans out in one transaction.
func (h *CompleteGiveSessionHandler) persist(ctx context.Context, cmd CompleteGiveSessionCommand, content string, material []string) (*CompleteGiveSessionResult, error) {
	result := &CompleteGiveSessionResult{}
	digestID := h.newID()

	err := h.store.WithinTx(ctx, func(ctx context.Context, repo knowledge.Repository) error {
		session, err := repo.GetGiveSession(ctx, cmd.SessionID)
		if err != nil {
			return err
		}
		key := session.Scope.Key()
		if err := repo.LockScope(ctx, key); err != nil {
			return err
		}
		if err := session.AuthorizeCompletion(cmd.CallerID); err != nil {
			return err
		}

		now := h.clock()
		digest, err := knowledge.NewDigestRecord(digestID, session, content, material, now)
		if err != nil {
			return err
		}
		if err := repo.CreateDigest(ctx, digest); err != nil {
			return err
		}
		if err := session.Complete(digest.ID, now); err != nil {
			return err
		}
		if err := repo.UpdateGiveSession(ctx, session); err != nil {
			return err
		}

		waiting, err := repo.ListAwaitingReceivers(ctx, key)
		if err != nil {
			return err
		}
		changed := knowledge.FanOut(digest, waiting, now)
		for _, r := range changed {
			if err := repo.UpdateReceiveSession(ctx, r); err != nil {
				return err
			}
		}

		result.Session = session
		result.Digest = digest
		result.FannedOut = changed
		return nil
	})
	if err != nil {
		return nil, err
	}

	key := result.Session.Scope.Key()
	completed := shared.NewGiveSessionCompletedEvent(result.Session.ID, result.Session.EmployeeID, result.Digest.ID, key)
	if cmd.CorrelationID != "" {
		completed.BaseEvent = completed.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	result.Events = append(result.Events, completed)
	if len(result.FannedOut) > 0 {
		ids := make([]string, len(result.FannedOut))
		for i, r := range result.FannedOut {
			ids[i] = r.ID
		}
		result.Events = append(result.Events, shared.NewDigestFannedOutEvent(result.Digest.ID, key, ids))
	}
	return result, nil
}
