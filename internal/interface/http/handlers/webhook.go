package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/learnpro/kt-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// AGENT WEBHOOK
// The voice/chat agent reports finished sessions and learning progress.
// Requests are signed with HMAC-SHA256 over the raw body:
//
//	X-Agent-Signature: sha256=<hex>
// ══════════════════════════════════════════════════════════════════════════════

// SignatureHeader carries the request signature.
const SignatureHeader = "X-Agent-Signature"

// AgentEventType identifies a callback.
type AgentEventType string

const (
	// AgentSessionConsumed - a receive session was completed by the agent.
	AgentSessionConsumed AgentEventType = "session.consumed"

	// AgentTopicCompleted - a topic was covered in a voice session.
	AgentTopicCompleted AgentEventType = "topic.completed"

	// AgentAssessmentSubmitted - the agent graded a subject's quiz.
	AgentAssessmentSubmitted AgentEventType = "assessment.submitted"
)

// AgentEvent is the callback body.
type AgentEvent struct {
	Type AgentEventType `json:"type"`

	// SessionID - receive session (session.consumed).
	SessionID string `json:"session_id,omitempty"`

	// OwnerID - learning path owner (topic.completed, assessment.submitted).
	OwnerID string `json:"owner_id,omitempty"`

	Subject string   `json:"subject,omitempty"`
	Topic   string   `json:"topic,omitempty"`
	Score   *float64 `json:"score,omitempty"`
}

// Validate checks that the fields required by the event type are present.
func (e AgentEvent) Validate() error {
	invalid := func(msg string) error {
		return shared.NewDomainError("agent", "Webhook", shared.ErrValidation, msg)
	}
	switch e.Type {
	case AgentSessionConsumed:
		if e.SessionID == "" {
			return invalid("session_id is required")
		}
	case AgentTopicCompleted:
		if e.OwnerID == "" || e.Topic == "" {
			return invalid("owner_id and topic are required")
		}
	case AgentAssessmentSubmitted:
		if e.OwnerID == "" || e.Subject == "" || e.Score == nil {
			return invalid("owner_id, subject and score are required")
		}
	default:
		return invalid(fmt.Sprintf("unknown event type %q", e.Type))
	}
	return nil
}

// ErrBadSignature is returned for unsigned or wrongly signed requests.
var ErrBadSignature = shared.NewDomainError("agent", "Webhook", shared.ErrUnauthorized, "invalid webhook signature")

// AgentWebhook verifies and decodes agent callbacks.
type AgentWebhook struct {
	secret []byte
}

// NewAgentWebhook creates a verifier. An empty secret rejects every request.
func NewAgentWebhook(secret string) *AgentWebhook {
	return &AgentWebhook{secret: []byte(secret)}
}

// Sign returns the header value for body.
func (h *AgentWebhook) Sign(body []byte) string {
	mac := hmac.New(sha256.New, h.secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks the signature in constant time.
func (h *AgentWebhook) Verify(body []byte, signature string) error {
	if len(h.secret) == 0 {
		return ErrBadSignature
	}
	got, ok := strings.CutPrefix(strings.TrimSpace(signature), "sha256=")
	if !ok {
		return ErrBadSignature
	}
	gotMAC, err := hex.DecodeString(got)
	if err != nil {
		return ErrBadSignature
	}
	mac := hmac.New(sha256.New, h.secret)
	mac.Write(body)
	if !hmac.Equal(gotMAC, mac.Sum(nil)) {
		return ErrBadSignature
	}
	return nil
}

// Decode verifies the body and parses it into an AgentEvent.
func (h *AgentWebhook) Decode(body []byte, signature string) (AgentEvent, error) {
	if err := h.Verify(body, signature); err != nil {
		return AgentEvent{}, err
	}
	var e AgentEvent
	if err := json.Unmarshal(body, &e); err != nil {
		return AgentEvent{}, shared.WrapError("agent", "Webhook", shared.ErrValidation, "invalid JSON body", err)
	}
	if err := e.Validate(); err != nil {
		return AgentEvent{}, err
	}
	return e, nil
}

// IsBadSignature reports whether err is a signature failure.
func IsBadSignature(err error) bool {
	return errors.Is(err, ErrBadSignature)
}
