package query

import (
	"context"
	"fmt"

	"github.com/learnpro/kt-hub/internal/domain/learning"
)

// ══════════════════════════════════════════════════════════════════════════════
// NEXT INCOMPLETE TOPIC QUERY
// Следующая тема для изучения. Используется при выдаче токена голосовой
// сессии, поэтому результат структурированный, а не текст.
// ══════════════════════════════════════════════════════════════════════════════

// NextIncompleteTopicQuery содержит владельца пути.
type NextIncompleteTopicQuery struct {
	OwnerID string
}

// NextTopicDTO - результат запроса.
type NextTopicDTO struct {
	PathID string `json:"path_id"`

	// Remaining - false, если все темы пройдены. Topic тогда nil.
	Remaining bool               `json:"remaining"`
	Topic     *learning.TopicRef `json:"topic"`
}

// NextIncompleteTopicHandler обрабатывает запрос.
type NextIncompleteTopicHandler struct {
	paths learning.Repository
}

// NewNextIncompleteTopicHandler создаёт обработчик.
func NewNextIncompleteTopicHandler(paths learning.Repository) *NextIncompleteTopicHandler {
	return &NextIncompleteTopicHandler{paths: paths}
}

// Handle выполняет запрос. Нет пути - shared.ErrPathNotFound,
// все темы пройдены - Remaining=false без ошибки.
func (h *NextIncompleteTopicHandler) Handle(ctx context.Context, q NextIncompleteTopicQuery) (*NextTopicDTO, error) {
	path, err := h.paths.Latest(ctx, q.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("next_incomplete_topic: %w", err)
	}

	out := &NextTopicDTO{PathID: path.ID}
	if ref, ok := path.NextIncompleteTopic(); ok {
		out.Remaining = true
		out.Topic = &ref
	}
	return out, nil
}
