// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/learnpro/kt-hub/internal/domain/employee"
	"github.com/learnpro/kt-hub/internal/domain/knowledge"
	"github.com/learnpro/kt-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST SESSIONS QUERY
// Список сессий передачи и получения знаний. Администратор видит все сессии,
// сотрудник - только свои.
// ══════════════════════════════════════════════════════════════════════════════

// ListSessionsQuery содержит параметры запроса.
type ListSessionsQuery struct {
	// CallerID - кто запрашивает список.
	CallerID string

	// Direction - "give", "receive" или пусто (обе).
	Direction string

	// ScopeKey - фильтр по области (опционально).
	ScopeKey string
}

// ScopeDTO - область в ответе API.
type ScopeDTO struct {
	Kind      string `json:"kind"`
	Key       string `json:"key"`
	ProjectID string `json:"project_id,omitempty"`
	RepoURL   string `json:"repo_url,omitempty"`
	Username  string `json:"username,omitempty"`
}

// NewScopeDTO конвертирует область в DTO.
func NewScopeDTO(s knowledge.Scope) ScopeDTO {
	return ScopeDTO{
		Kind:      string(s.Kind),
		Key:       s.Key(),
		ProjectID: s.ProjectID,
		RepoURL:   s.RepoURL,
		Username:  s.Username,
	}
}

// SessionDTO - сессия в ответе API.
type SessionDTO struct {
	ID         string     `json:"id"`
	Direction  string     `json:"direction"`
	Scope      ScopeDTO   `json:"scope"`
	EmployeeID string     `json:"employee_id"`
	Email      string     `json:"email,omitempty"`
	Status     string     `json:"status"`
	DigestID   string     `json:"digest_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`

	// Digest - содержимое дайджеста (только в GetSession для владельца или админа).
	Digest string `json:"digest,omitempty"`
}

// FromGiveSession конвертирует сессию передачи в DTO.
func FromGiveSession(g *knowledge.GiveSession, email string) SessionDTO {
	return SessionDTO{
		ID:         g.ID,
		Direction:  "give",
		Scope:      NewScopeDTO(g.Scope),
		EmployeeID: g.EmployeeID,
		Email:      email,
		Status:     string(g.Status()),
		DigestID:   g.DigestID,
		CreatedAt:  g.CreatedAt,
		UpdatedAt:  g.CompletedAt,
	}
}

// FromReceiveSession конвертирует сессию получения в DTO.
func FromReceiveSession(r *knowledge.ReceiveSession, email string) SessionDTO {
	updated := r.UpdatedAt
	return SessionDTO{
		ID:         r.ID,
		Direction:  "receive",
		Scope:      NewScopeDTO(r.Scope),
		EmployeeID: r.EmployeeID,
		Email:      email,
		Status:     string(r.Status),
		DigestID:   r.DigestID,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  &updated,
	}
}

// ListSessionsHandler обрабатывает запрос списка сессий.
type ListSessionsHandler struct {
	sessions  knowledge.Repository
	employees employee.Repository
}

// NewListSessionsHandler создаёт обработчик.
func NewListSessionsHandler(sessions knowledge.Repository, employees employee.Repository) *ListSessionsHandler {
	return &ListSessionsHandler{sessions: sessions, employees: employees}
}

// Handle выполняет запрос. Сессии отсортированы по времени создания.
func (h *ListSessionsHandler) Handle(ctx context.Context, q ListSessionsQuery) ([]SessionDTO, error) {
	caller, err := h.employees.GetByID(ctx, q.CallerID)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, fmt.Errorf("list_sessions: %w", shared.ErrUnauthorized)
		}
		return nil, fmt.Errorf("list_sessions: load caller: %w", err)
	}

	filter := knowledge.SessionFilter{ScopeKey: q.ScopeKey}
	if !caller.IsAdmin() {
		filter.EmployeeID = caller.ID
	}

	emails := newEmailLookup(h.employees)
	var out []SessionDTO

	if q.Direction == "" || q.Direction == "give" {
		gives, err := h.sessions.ListGiveSessions(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("list_sessions: give: %w", err)
		}
		for _, g := range gives {
			out = append(out, FromGiveSession(g, emails.get(ctx, g.EmployeeID)))
		}
	}
	if q.Direction == "" || q.Direction == "receive" {
		receives, err := h.sessions.ListReceiveSessions(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("list_sessions: receive: %w", err)
		}
		for _, r := range receives {
			out = append(out, FromReceiveSession(r, emails.get(ctx, r.EmployeeID)))
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// emailLookup кэширует email сотрудников в пределах одного запроса.
type emailLookup struct {
	employees employee.Repository
	cache     map[string]string
}

func newEmailLookup(employees employee.Repository) *emailLookup {
	return &emailLookup{employees: employees, cache: make(map[string]string)}
}

func (l *emailLookup) get(ctx context.Context, id string) string {
	if email, ok := l.cache[id]; ok {
		return email
	}
	email := ""
	if e, err := l.employees.GetByID(ctx, id); err == nil {
		email = e.Email
	}
	l.cache[id] = email
	return email
}
