// Package shared contains common domain types, errors and events
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound = errors.New("entity not found")
	ErrConflict = errors.New("conflict")

	// Validation errors
	ErrValidation   = errors.New("validation error")
	ErrInvalidID    = errors.New("invalid ID")
	ErrInvalidInput = errors.New("invalid input")
	ErrEmptyValue   = errors.New("value cannot be empty")

	// State errors
	ErrInvalidState     = errors.New("invalid state")
	ErrAlreadyCompleted = fmt.Errorf("already completed: %w", ErrConflict)

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Generation errors
	ErrGenerationFailed  = errors.New("generation failed")
	ErrDigestUnavailable = errors.New("digest unavailable")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrRateLimited        = errors.New("rate limited")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "knowledge", "learning", "employee"
	Op      string // Operation that failed, e.g., "CreateGiveSession"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Knowledge transfer domain errors
var (
	ErrSessionNotFound        = NewDomainError("knowledge", "Find", ErrNotFound, "session not found")
	ErrDigestNotFound         = NewDomainError("knowledge", "FindDigest", ErrNotFound, "digest not found")
	ErrGiveSessionExists      = NewDomainError("knowledge", "CreateGiveSession", ErrConflict, "give session already exists for employee and scope")
	ErrReceiveSessionExists   = NewDomainError("knowledge", "CreateReceiveSession", ErrConflict, "receive session already exists for employee and scope")
	ErrGiveSessionCompleted   = NewDomainError("knowledge", "CompleteGiveSession", ErrAlreadyCompleted, "give session already has a digest")
	ErrNotSessionOwner        = NewDomainError("knowledge", "CompleteGiveSession", ErrForbidden, "only the assigned employee may complete this session")
	ErrInvalidScope           = NewDomainError("knowledge", "Validate", ErrInvalidInput, "invalid scope")
	ErrEmptyMaterial          = NewDomainError("knowledge", "CompleteGiveSession", ErrEmptyValue, "raw material is empty")
	ErrReceiveNotReady        = NewDomainError("knowledge", "MarkConsumed", ErrInvalidState, "receive session has no digest yet")
	ErrAdminOnly              = NewDomainError("knowledge", "Authorize", ErrForbidden, "admin role required")
	ErrDigestGeneratorFailure = NewDomainError("knowledge", "Digest", ErrDigestUnavailable, "digest generator failed after retries")
)

// Learning path domain errors
var (
	ErrPathNotFound        = NewDomainError("learning", "FindLatest", ErrNotFound, "no learning path for owner")
	ErrSubjectNotFound     = NewDomainError("learning", "FindSubject", ErrNotFound, "subject not found in learning path")
	ErrTopicNotFound       = NewDomainError("learning", "FindTopic", ErrNotFound, "topic not found in learning path")
	ErrInvalidScore        = NewDomainError("learning", "SubmitAssessment", ErrInvalidInput, "score must be between 0 and 100")
	ErrMalformedPath       = NewDomainError("learning", "Normalize", ErrGenerationFailed, "adapter output has no usable subjects")
	ErrMultipleCurrent     = NewDomainError("learning", "Validate", ErrInvalidState, "more than one subject is in progress")
	ErrEmptyPath           = NewDomainError("learning", "Validate", ErrInvalidState, "learning path has no subjects")
	ErrCompletedNotStarted = NewDomainError("learning", "Validate", ErrInvalidState, "completed subject is not started")
	ErrMalformedQuiz       = NewDomainError("learning", "NormalizeQuiz", ErrGenerationFailed, "adapter output has no usable quiz questions")
	ErrUnknownQuestion     = NewDomainError("learning", "GradeQuiz", ErrInvalidInput, "answer refers to an unknown question")
)

// Employee and project domain errors
var (
	ErrEmployeeNotFound  = NewDomainError("employee", "Find", ErrNotFound, "employee not found")
	ErrEmployeeExists    = NewDomainError("employee", "Create", ErrConflict, "employee with this email already exists")
	ErrBadCredentials    = NewDomainError("employee", "Authenticate", ErrUnauthorized, "invalid email or password")
	ErrProjectNotFound   = NewDomainError("project", "Find", ErrNotFound, "project not found")
	ErrProjectExists     = NewDomainError("project", "Create", ErrConflict, "project with this name already exists")
	ErrNoAssignedProject = NewDomainError("project", "FindAssigned", ErrNotFound, "no project assigned to employee")
	ErrQuizNotFound      = NewDomainError("project", "FindQuiz", ErrNotFound, "no skill assessment quiz available for this project")
)

// External collaborator errors
var (
	ErrLLMUnavailable     = NewDomainError("llm", "Request", ErrServiceUnavailable, "LLM API is unavailable")
	ErrLLMRateLimited     = NewDomainError("llm", "Request", ErrRateLimited, "LLM API rate limit exceeded")
	ErrGitHubUnavailable  = NewDomainError("github", "Request", ErrServiceUnavailable, "GitHub API is unavailable")
	ErrGitHubRepoNotFound = NewDomainError("github", "Request", ErrNotFound, "repository not found")
	ErrCalendarFailed     = NewDomainError("calendar", "Schedule", ErrExternalService, "calendar request failed")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict checks if the error is a conflict (duplicate or double completion).
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsForbidden checks if the error is an authorization error.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue)
}

// IsExternalService checks if the error is from an external service.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited)
}

// IsRetryable checks if the operation can be retried.
// Conflict, Forbidden and NotFound are never retryable.
func IsRetryable(err error) bool {
	if IsConflict(err) || IsForbidden(err) || IsNotFound(err) {
		return false
	}
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited)
}
