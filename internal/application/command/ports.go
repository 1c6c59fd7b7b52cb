package command

import (
	"context"

	"github.com/google/uuid"

	"github.com/learnpro/kt-hub/internal/domain/learning"
	"github.com/learnpro/kt-hub/internal/domain/project"
)

// ══════════════════════════════════════════════════════════════════════════════
// EXTERNAL COLLABORATORS
// ══════════════════════════════════════════════════════════════════════════════

// DigestGenerator turns raw material into one opaque digest string.
// It may fail transiently; callers retry.
type DigestGenerator interface {
	Digest(ctx context.Context, material []string) (string, error)
}

// CommitHistory returns the formatted commit material authored by username.
type CommitHistory interface {
	CollectMaterial(ctx context.Context, repoURL, username string) ([]string, error)
}

// RepoResolver confirms that a repository exists before a session is
// created for it. Optional.
type RepoResolver interface {
	ResolveRepo(ctx context.Context, repoURL string) error
}

// PathGenerator returns an untrusted path document for the topics.
type PathGenerator interface {
	Generate(ctx context.Context, topics []string, scores map[string]float64) (learning.PathShape, error)
}

// QuizGenerator returns an untrusted skill-assessment quiz document for the
// project outline. Optional.
type QuizGenerator interface {
	GenerateQuiz(ctx context.Context, subjects []project.SubjectOutline) (learning.QuizShape, error)
}

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// AccessToken holds the identity embedded in an API token.
type AccessToken struct {
	EmployeeID string
	Email      string
	Role       string
}

// TokenIssuer signs API access tokens.
type TokenIssuer interface {
	Issue(claims AccessToken) (string, error)
}

// VoiceGrant is the input of a voice-session credential.
type VoiceGrant struct {
	Identity string
	Name     string
	Room     string
	Metadata map[string]string
}

// VoiceTokenIssuer signs voice-session credentials.
type VoiceTokenIssuer interface {
	IssueVoiceToken(grant VoiceGrant) (string, error)
	ServerURL() string
}

// IDGenerator returns a new unique identifier.
type IDGenerator func() string

// NewID is the default IDGenerator.
func NewID() string {
	return uuid.NewString()
}
