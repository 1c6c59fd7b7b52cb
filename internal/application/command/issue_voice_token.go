package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/learnpro/kt-hub/internal/domain/employee"
	"github.com/learnpro/kt-hub/internal/domain/learning"
	"github.com/learnpro/kt-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ISSUE VOICE TOKEN COMMAND
// Signs a voice-session credential carrying the caller's next topic so the
// agent knows what to teach. A caller without a learning path gets no token.
// ══════════════════════════════════════════════════════════════════════════════

// IssueVoiceTokenCommand contains the caller and the room to join.
type IssueVoiceTokenCommand struct {
	CallerID string
	Room     string
}

// Validate validates the command.
func (c IssueVoiceTokenCommand) Validate() error {
	if strings.TrimSpace(c.Room) == "" {
		return shared.NewDomainError("voice", "IssueToken", shared.ErrValidation, "room name is required")
	}
	if c.CallerID == "" {
		return shared.ErrUnauthorized
	}
	return nil
}

// IssueVoiceTokenResult is returned to the client.
type IssueVoiceTokenResult struct {
	ParticipantToken string `json:"participantToken"`
	ServerURL        string `json:"serverUrl"`

	// AssignmentDetails is nil when every topic is completed.
	AssignmentDetails *learning.TopicRef `json:"assignmentDetails"`
}

// IssueVoiceTokenHandler handles IssueVoiceTokenCommand.
type IssueVoiceTokenHandler struct {
	paths     learning.Repository
	employees employee.Repository
	issuer    VoiceTokenIssuer
}

// NewIssueVoiceTokenHandler creates a new IssueVoiceTokenHandler.
func NewIssueVoiceTokenHandler(paths learning.Repository, employees employee.Repository, issuer VoiceTokenIssuer) *IssueVoiceTokenHandler {
	return &IssueVoiceTokenHandler{paths: paths, employees: employees, issuer: issuer}
}

// Handle executes the command.
func (h *IssueVoiceTokenHandler) Handle(ctx context.Context, cmd IssueVoiceTokenCommand) (*IssueVoiceTokenResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("issue_voice_token: %w", err)
	}
	if h.issuer == nil {
		return nil, fmt.Errorf("issue_voice_token: %w", shared.ErrServiceUnavailable)
	}

	caller, err := h.employees.GetByID(ctx, cmd.CallerID)
	if err != nil {
		return nil, fmt.Errorf("issue_voice_token: load caller: %w", err)
	}

	path, err := h.paths.Latest(ctx, caller.ID)
	if err != nil {
		return nil, fmt.Errorf("issue_voice_token: %w", err)
	}

	metadata := map[string]string{}
	var details *learning.TopicRef
	if ref, ok := path.NextIncompleteTopic(); ok {
		details = &ref
		metadata["subject"] = ref.Subject
		metadata["topic"] = ref.Topic
	}

	token, err := h.issuer.IssueVoiceToken(VoiceGrant{
		Identity: caller.ID,
		Name:     caller.Email,
		Room:     strings.TrimSpace(cmd.Room),
		Metadata: metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("issue_voice_token: sign: %w", err)
	}

	return &IssueVoiceTokenResult{
		ParticipantToken:  token,
		ServerURL:         h.issuer.ServerURL(),
		AssignmentDetails: details,
	}, nil
}
