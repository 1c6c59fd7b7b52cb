package query

import (
	"context"
	"fmt"
	"time"

	"github.com/learnpro/kt-hub/internal/domain/learning"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEARNING PATH QUERIES
// Текущая версия пути и вся история версий владельца.
// ══════════════════════════════════════════════════════════════════════════════

// LearningPathDTO - путь с показателями прогресса.
type LearningPathDTO struct {
	ID                  string             `json:"id"`
	OwnerID             string             `json:"owner_id"`
	Name                string             `json:"path_name"`
	TotalEstimatedHours float64            `json:"total_estimated_hours"`
	Subjects            []learning.Subject `json:"subjects"`
	Fallback            bool               `json:"fallback"`
	CompletedTopics     int                `json:"completed_topics"`
	TotalTopics         int                `json:"total_topics"`
	ProgressPercent     float64            `json:"progress_percent"`
	CurrentSubject      string             `json:"current_subject,omitempty"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
}

// NewLearningPathDTO конвертирует путь в DTO.
func NewLearningPathDTO(p *learning.LearningPath) LearningPathDTO {
	dto := LearningPathDTO{
		ID:                  p.ID,
		OwnerID:             p.OwnerID,
		Name:                p.Name,
		TotalEstimatedHours: p.TotalEstimatedHours,
		Subjects:            p.Subjects,
		Fallback:            p.Fallback,
		CompletedTopics:     p.CompletedTopics,
		TotalTopics:         p.TotalTopics,
		ProgressPercent:     p.ProgressPercent(),
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
	}
	if cur := p.CurrentSubject(); cur >= 0 {
		dto.CurrentSubject = p.Subjects[cur].Name
	}
	return dto
}

// GetLearningPathHandler возвращает последнюю версию пути.
type GetLearningPathHandler struct {
	paths learning.Repository
}

// NewGetLearningPathHandler создаёт обработчик.
func NewGetLearningPathHandler(paths learning.Repository) *GetLearningPathHandler {
	return &GetLearningPathHandler{paths: paths}
}

// Handle выполняет запрос.
func (h *GetLearningPathHandler) Handle(ctx context.Context, ownerID string) (*LearningPathDTO, error) {
	p, err := h.paths.Latest(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("get_learning_path: %w", err)
	}
	dto := NewLearningPathDTO(p)
	return &dto, nil
}

// ListLearningPathsHandler возвращает все версии пути, новые первыми.
type ListLearningPathsHandler struct {
	paths learning.Repository
}

// NewListLearningPathsHandler создаёт обработчик.
func NewListLearningPathsHandler(paths learning.Repository) *ListLearningPathsHandler {
	return &ListLearningPathsHandler{paths: paths}
}

// Handle выполняет запрос. Пустая история - пустой список, не ошибка.
func (h *ListLearningPathsHandler) Handle(ctx context.Context, ownerID string) ([]LearningPathDTO, error) {
	paths, err := h.paths.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list_learning_paths: %w", err)
	}
	out := make([]LearningPathDTO, 0, len(paths))
	for _, p := range paths {
		out = append(out, NewLearningPathDTO(p))
	}
	return out, nil
}
