package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Handlers subscribe to these to run side effects
// after a state change has been committed.
const (
	// Knowledge transfer events
	EventGiveSessionCreated     EventType = "kt.give_session.created"
	EventGiveSessionCompleted   EventType = "kt.give_session.completed"
	EventDigestFannedOut        EventType = "kt.digest.fanned_out"
	EventReceiveSessionCreated  EventType = "kt.receive_session.created"
	EventReceiveSessionConsumed EventType = "kt.receive_session.consumed"
	EventSessionDeleted         EventType = "kt.session.deleted"

	// Learning events
	EventLearningPathGenerated EventType = "learning.path.generated"
	EventAssessmentSubmitted   EventType = "learning.assessment.submitted"
	EventLearningPathUpdated   EventType = "learning.path.updated"

	// Onboarding events
	EventProjectAssigned EventType = "onboarding.project_assigned"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Knowledge Transfer Events
// ═══════════════════════════════════════════════════════════════════════════

// GiveSessionCreatedEvent is emitted after an admin assigns a give session.
type GiveSessionCreatedEvent struct {
	BaseEvent
	EmployeeID    string `json:"employee_id"`
	EmployeeEmail string `json:"employee_email"`
	ScopeKind     string `json:"scope_kind"`
	ScopeKey      string `json:"scope_key"`
}

// Payload implements Event interface.
func (e GiveSessionCreatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"employee_id":    e.EmployeeID,
		"employee_email": e.EmployeeEmail,
		"scope_kind":     e.ScopeKind,
		"scope_key":      e.ScopeKey,
	}
}

// NewGiveSessionCreatedEvent creates a new GiveSessionCreatedEvent.
func NewGiveSessionCreatedEvent(sessionID, employeeID, email, scopeKind, scopeKey string) GiveSessionCreatedEvent {
	return GiveSessionCreatedEvent{
		BaseEvent:     NewBaseEvent(EventGiveSessionCreated, sessionID),
		EmployeeID:    employeeID,
		EmployeeEmail: email,
		ScopeKind:     scopeKind,
		ScopeKey:      scopeKey,
	}
}

// GiveSessionCompletedEvent is emitted when a give session receives its digest.
type GiveSessionCompletedEvent struct {
	BaseEvent
	EmployeeID string `json:"employee_id"`
	DigestID   string `json:"digest_id"`
	ScopeKey   string `json:"scope_key"`
}

// Payload implements Event interface.
func (e GiveSessionCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"employee_id": e.EmployeeID,
		"digest_id":   e.DigestID,
		"scope_key":   e.ScopeKey,
	}
}

// NewGiveSessionCompletedEvent creates a new GiveSessionCompletedEvent.
func NewGiveSessionCompletedEvent(sessionID, employeeID, digestID, scopeKey string) GiveSessionCompletedEvent {
	return GiveSessionCompletedEvent{
		BaseEvent:  NewBaseEvent(EventGiveSessionCompleted, sessionID),
		EmployeeID: employeeID,
		DigestID:   digestID,
		ScopeKey:   scopeKey,
	}
}

// DigestFannedOutEvent is emitted when waiting receive sessions were moved
// to ReadyToConsume.
type DigestFannedOutEvent struct {
	BaseEvent
	ScopeKey          string   `json:"scope_key"`
	ReceiveSessionIDs []string `json:"receive_session_ids"`
}

// Payload implements Event interface.
func (e DigestFannedOutEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"scope_key":           e.ScopeKey,
		"receive_session_ids": e.ReceiveSessionIDs,
		"count":               len(e.ReceiveSessionIDs),
	}
}

// NewDigestFannedOutEvent creates a new DigestFannedOutEvent.
func NewDigestFannedOutEvent(digestID, scopeKey string, receiveIDs []string) DigestFannedOutEvent {
	return DigestFannedOutEvent{
		BaseEvent:         NewBaseEvent(EventDigestFannedOut, digestID),
		ScopeKey:          scopeKey,
		ReceiveSessionIDs: receiveIDs,
	}
}

// ReceiveSessionCreatedEvent is emitted when a receive session is assigned.
type ReceiveSessionCreatedEvent struct {
	BaseEvent
	EmployeeID string `json:"employee_id"`
	ScopeKey   string `json:"scope_key"`
	Status     string `json:"status"`
}

// Payload implements Event interface.
func (e ReceiveSessionCreatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"employee_id": e.EmployeeID,
		"scope_key":   e.ScopeKey,
		"status":      e.Status,
	}
}

// NewReceiveSessionCreatedEvent creates a new ReceiveSessionCreatedEvent.
func NewReceiveSessionCreatedEvent(sessionID, employeeID, scopeKey, status string) ReceiveSessionCreatedEvent {
	return ReceiveSessionCreatedEvent{
		BaseEvent:  NewBaseEvent(EventReceiveSessionCreated, sessionID),
		EmployeeID: employeeID,
		ScopeKey:   scopeKey,
		Status:     status,
	}
}

// ReceiveSessionConsumedEvent is emitted when the voice/chat agent reports
// that the employee finished consuming a digest.
type ReceiveSessionConsumedEvent struct {
	BaseEvent
	EmployeeID string `json:"employee_id"`
	DigestID   string `json:"digest_id"`
}

// Payload implements Event interface.
func (e ReceiveSessionConsumedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"employee_id": e.EmployeeID,
		"digest_id":   e.DigestID,
	}
}

// NewReceiveSessionConsumedEvent creates a new ReceiveSessionConsumedEvent.
func NewReceiveSessionConsumedEvent(sessionID, employeeID, digestID string) ReceiveSessionConsumedEvent {
	return ReceiveSessionConsumedEvent{
		BaseEvent:  NewBaseEvent(EventReceiveSessionConsumed, sessionID),
		EmployeeID: employeeID,
		DigestID:   digestID,
	}
}

// SessionDeletedEvent is emitted when an admin removes a session.
type SessionDeletedEvent struct {
	BaseEvent
	Direction      string `json:"direction"`
	ScopeKey       string `json:"scope_key"`
	ResetReceivers int    `json:"reset_receivers"`
}

// Payload implements Event interface.
func (e SessionDeletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"direction":       e.Direction,
		"scope_key":       e.ScopeKey,
		"reset_receivers": e.ResetReceivers,
	}
}

// NewSessionDeletedEvent creates a new SessionDeletedEvent.
func NewSessionDeletedEvent(sessionID, direction, scopeKey string, resetReceivers int) SessionDeletedEvent {
	return SessionDeletedEvent{
		BaseEvent:      NewBaseEvent(EventSessionDeleted, sessionID),
		Direction:      direction,
		ScopeKey:       scopeKey,
		ResetReceivers: resetReceivers,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Learning Events
// ═══════════════════════════════════════════════════════════════════════════

// LearningPathGeneratedEvent is emitted when a new path version is stored.
type LearningPathGeneratedEvent struct {
	BaseEvent
	OwnerID      string `json:"owner_id"`
	SubjectCount int    `json:"subject_count"`
	Fallback     bool   `json:"fallback"`
}

// Payload implements Event interface.
func (e LearningPathGeneratedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"owner_id":      e.OwnerID,
		"subject_count": e.SubjectCount,
		"fallback":      e.Fallback,
	}
}

// NewLearningPathGeneratedEvent creates a new LearningPathGeneratedEvent.
func NewLearningPathGeneratedEvent(pathID, ownerID string, subjectCount int, fallback bool) LearningPathGeneratedEvent {
	return LearningPathGeneratedEvent{
		BaseEvent:    NewBaseEvent(EventLearningPathGenerated, pathID),
		OwnerID:      ownerID,
		SubjectCount: subjectCount,
		Fallback:     fallback,
	}
}

// AssessmentSubmittedEvent is emitted after a subject assessment is scored.
type AssessmentSubmittedEvent struct {
	BaseEvent
	OwnerID     string  `json:"owner_id"`
	Subject     string  `json:"subject"`
	Score       float64 `json:"score"`
	Threshold   float64 `json:"threshold"`
	Passed      bool    `json:"passed"`
	NextSubject string  `json:"next_subject,omitempty"`
}

// Payload implements Event interface.
func (e AssessmentSubmittedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"owner_id":     e.OwnerID,
		"subject":      e.Subject,
		"score":        e.Score,
		"threshold":    e.Threshold,
		"passed":       e.Passed,
		"next_subject": e.NextSubject,
	}
}

// NewAssessmentSubmittedEvent creates a new AssessmentSubmittedEvent.
func NewAssessmentSubmittedEvent(pathID, ownerID, subject string, score, threshold float64, passed bool, next string) AssessmentSubmittedEvent {
	return AssessmentSubmittedEvent{
		BaseEvent:   NewBaseEvent(EventAssessmentSubmitted, pathID),
		OwnerID:     ownerID,
		Subject:     subject,
		Score:       score,
		Threshold:   threshold,
		Passed:      passed,
		NextSubject: next,
	}
}

// LearningPathUpdatedEvent is emitted after a patch was applied to a path.
type LearningPathUpdatedEvent struct {
	BaseEvent
	OwnerID         string `json:"owner_id"`
	CompletedTopics int    `json:"completed_topics"`
	TotalTopics     int    `json:"total_topics"`
}

// Payload implements Event interface.
func (e LearningPathUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"owner_id":         e.OwnerID,
		"completed_topics": e.CompletedTopics,
		"total_topics":     e.TotalTopics,
	}
}

// NewLearningPathUpdatedEvent creates a new LearningPathUpdatedEvent.
func NewLearningPathUpdatedEvent(pathID, ownerID string, completed, total int) LearningPathUpdatedEvent {
	return LearningPathUpdatedEvent{
		BaseEvent:       NewBaseEvent(EventLearningPathUpdated, pathID),
		OwnerID:         ownerID,
		CompletedTopics: completed,
		TotalTopics:     total,
	}
}

// ProjectAssignedEvent is emitted when onboarding assigns a project to an employee.
type ProjectAssignedEvent struct {
	BaseEvent
	ProjectID string `json:"project_id"`
	PathID    string `json:"path_id"`
}

// Payload implements Event interface.
func (e ProjectAssignedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"project_id": e.ProjectID,
		"path_id":    e.PathID,
	}
}

// NewProjectAssignedEvent creates a new ProjectAssignedEvent.
func NewProjectAssignedEvent(employeeID, projectID, pathID string) ProjectAssignedEvent {
	return ProjectAssignedEvent{
		BaseEvent: NewBaseEvent(EventProjectAssigned, employeeID),
		ProjectID: projectID,
		PathID:    pathID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEventEnvelope serializes an event into an envelope.
func NewEventEnvelope(id string, event Event) (EventEnvelope, error) {
	payload, err := json.Marshal(event.Payload())
	if err != nil {
		return EventEnvelope{}, err
	}
	env := EventEnvelope{
		ID:          id,
		Type:        event.EventType(),
		AggregateID: event.AggregateID(),
		Timestamp:   event.OccurredAt(),
		Version:     1,
		Payload:     payload,
	}
	if b, ok := event.(interface{ Correlation() string }); ok {
		env.CorrelationID = b.Correlation()
	}
	return env, nil
}

// Correlation returns the correlation ID carried by the event.
func (e BaseEvent) Correlation() string {
	return e.CorrelationID
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
