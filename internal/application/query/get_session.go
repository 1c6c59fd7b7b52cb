package query

import (
	"context"
	"fmt"

	"github.com/learnpro/kt-hub/internal/domain/employee"
	"github.com/learnpro/kt-hub/internal/domain/knowledge"
	"github.com/learnpro/kt-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET SESSION QUERY
// Одна сессия вместе с текстом дайджеста. Доступна владельцу и администратору.
// ══════════════════════════════════════════════════════════════════════════════

// GetSessionQuery содержит параметры запроса.
type GetSessionQuery struct {
	CallerID  string
	SessionID string

	// Direction - "give" или "receive".
	Direction string
}

// GetSessionHandler обрабатывает запрос.
type GetSessionHandler struct {
	sessions  knowledge.Repository
	employees employee.Repository
}

// NewGetSessionHandler создаёт обработчик.
func NewGetSessionHandler(sessions knowledge.Repository, employees employee.Repository) *GetSessionHandler {
	return &GetSessionHandler{sessions: sessions, employees: employees}
}

// Handle выполняет запрос. Чужая сессия для не-админа - shared.ErrForbidden.
func (h *GetSessionHandler) Handle(ctx context.Context, q GetSessionQuery) (*SessionDTO, error) {
	caller, err := h.employees.GetByID(ctx, q.CallerID)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, fmt.Errorf("get_session: %w", shared.ErrUnauthorized)
		}
		return nil, fmt.Errorf("get_session: load caller: %w", err)
	}

	var dto SessionDTO
	switch q.Direction {
	case "give":
		g, err := h.sessions.GetGiveSession(ctx, q.SessionID)
		if err != nil {
			return nil, fmt.Errorf("get_session: %w", err)
		}
		dto = FromGiveSession(g, h.email(ctx, g.EmployeeID))
	case "receive":
		r, err := h.sessions.GetReceiveSession(ctx, q.SessionID)
		if err != nil {
			return nil, fmt.Errorf("get_session: %w", err)
		}
		dto = FromReceiveSession(r, h.email(ctx, r.EmployeeID))
	default:
		return nil, fmt.Errorf("get_session: %w",
			shared.NewDomainError("knowledge", "GetSession", shared.ErrInvalidInput, "direction must be give or receive"))
	}

	if !caller.IsAdmin() && caller.ID != dto.EmployeeID {
		return nil, fmt.Errorf("get_session: %w", shared.ErrForbidden)
	}

	if dto.DigestID != "" {
		d, err := h.sessions.GetDigest(ctx, dto.DigestID)
		switch {
		case err == nil:
			dto.Digest = d.Content
		case !shared.IsNotFound(err):
			return nil, fmt.Errorf("get_session: load digest: %w", err)
		}
	}
	return &dto, nil
}

func (h *GetSessionHandler) email(ctx context.Context, id string) string {
	if e, err := h.employees.GetByID(ctx, id); err == nil {
		return e.Email
	}
	return ""
}
