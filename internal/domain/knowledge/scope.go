// Package knowledge содержит доменную модель передачи знаний (KT):
// сессии передачи (GiveSession), сессии получения (ReceiveSession)
// и итоговый дайджест (DigestRecord).
//
// Обе разновидности сессий (по разговору и по истории коммитов) описываются
// одним типом, параметризованным областью знаний Scope. Пакет не имеет
// внешних зависимостей, кроме стандартной библиотеки и shared.
package knowledge

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/learnpro/kt-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCOPE
// ══════════════════════════════════════════════════════════════════════════════

// ScopeKind определяет разновидность области знаний.
type ScopeKind string

const (
	// ScopeProject - знания о проекте, передаются через разговор.
	ScopeProject ScopeKind = "project"

	// ScopeRepo - знания о репозитории, извлекаются из истории коммитов автора.
	ScopeRepo ScopeKind = "repo"
)

// IsValid проверяет, что разновидность известна.
func (k ScopeKind) IsValid() bool {
	return k == ScopeProject || k == ScopeRepo
}

// Scope - единица, о которой идёт обмен знаниями:
// либо проект, либо пара (репозиторий, имя пользователя).
type Scope struct {
	Kind      ScopeKind `json:"kind"`
	ProjectID string    `json:"project_id,omitempty"`
	RepoURL   string    `json:"repo_url,omitempty"`
	Username  string    `json:"username,omitempty"`
}

// ProjectScope создаёт область знаний для проекта.
func ProjectScope(projectID string) Scope {
	return Scope{Kind: ScopeProject, ProjectID: strings.TrimSpace(projectID)}
}

// RepoScope создаёт область знаний для репозитория и автора коммитов.
func RepoScope(repoURL, username string) Scope {
	return Scope{
		Kind:     ScopeRepo,
		RepoURL:  strings.TrimSpace(repoURL),
		Username: strings.TrimSpace(username),
	}
}

var githubRepoPattern = regexp.MustCompile(`github\.com[:/](?P<owner>[\w\-.]+)/(?P<repo>[\w\-.]+?)(\.git)?/?$`)

// ParseRepoURL извлекает владельца и имя репозитория из GitHub URL.
// Поддерживаются https://github.com/owner/repo(.git) и git@github.com:owner/repo.git.
func ParseRepoURL(url string) (owner, repo string, ok bool) {
	m := githubRepoPattern.FindStringSubmatch(strings.TrimSpace(url))
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// Validate проверяет корректность области знаний.
func (s Scope) Validate() error {
	switch s.Kind {
	case ScopeProject:
		if s.ProjectID == "" {
			return shared.WrapError("knowledge", "Validate", shared.ErrInvalidInput, "project scope requires project id", shared.ErrInvalidScope)
		}
	case ScopeRepo:
		if s.Username == "" {
			return shared.WrapError("knowledge", "Validate", shared.ErrInvalidInput, "repo scope requires username", shared.ErrInvalidScope)
		}
		if _, _, ok := ParseRepoURL(s.RepoURL); !ok {
			return shared.WrapError("knowledge", "Validate", shared.ErrInvalidInput,
				fmt.Sprintf("invalid GitHub repository URL %q", s.RepoURL), shared.ErrInvalidScope)
		}
	default:
		return shared.ErrInvalidScope
	}
	return nil
}

// Key возвращает канонический ключ области знаний.
// Две области с одинаковым ключом считаются одной и той же.
func (s Scope) Key() string {
	switch s.Kind {
	case ScopeProject:
		return "project:" + s.ProjectID
	case ScopeRepo:
		owner, repo, ok := ParseRepoURL(s.RepoURL)
		if !ok {
			return "repo:" + strings.ToLower(s.RepoURL) + "@" + strings.ToLower(s.Username)
		}
		return fmt.Sprintf("repo:github.com/%s/%s@%s",
			strings.ToLower(owner), strings.ToLower(repo), strings.ToLower(s.Username))
	default:
		return ""
	}
}

// String реализует fmt.Stringer.
func (s Scope) String() string {
	return s.Key()
}
