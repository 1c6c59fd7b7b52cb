// Package eventhandler содержит обработчики доменных событий.
package eventhandler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/learnpro/kt-hub/internal/domain/shared"
	"github.com/learnpro/kt-hub/pkg/timeutil"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON GIVE SESSION CREATED HANDLER
// Ставит сотруднику в календарь напоминание о передаче знаний.
// Ошибка календаря только логируется: сессия уже создана и не откатывается.
// ═══════════════════════════════════════════════════════════════════════════

// Reminder - напоминание для календаря.
type Reminder struct {
	Email       string
	Title       string
	Description string
	Window      timeutil.Window
}

// ReminderScheduler - внешний календарь.
type ReminderScheduler interface {
	ScheduleReminder(ctx context.Context, r Reminder) error
}

// ReminderSchedulerFunc адаптирует функцию к ReminderScheduler.
type ReminderSchedulerFunc func(ctx context.Context, r Reminder) error

// ScheduleReminder вызывает f.
func (f ReminderSchedulerFunc) ScheduleReminder(ctx context.Context, r Reminder) error {
	return f(ctx, r)
}

// ReminderConfig содержит конфигурацию обработчика.
type ReminderConfig struct {
	// Lead - через сколько от создания сессии назначить встречу.
	Lead time.Duration

	// Length - длительность встречи.
	Length time.Duration

	// StartHour - час начала встречи в часовом поясе Location.
	StartHour int

	Location *time.Location

	// Timeout - ограничение на вызов календаря.
	Timeout time.Duration
}

// DefaultReminderConfig возвращает конфигурацию по умолчанию:
// через неделю, 3 часа, с 10:00.
func DefaultReminderConfig() ReminderConfig {
	return ReminderConfig{
		Lead:      7 * 24 * time.Hour,
		Length:    3 * time.Hour,
		StartHour: 10,
		Location:  time.UTC,
		Timeout:   10 * time.Second,
	}
}

// OnGiveSessionCreatedHandler планирует напоминание.
type OnGiveSessionCreatedHandler struct {
	scheduler ReminderScheduler
	config    ReminderConfig
	clock     timeutil.Clock
	logger    *slog.Logger
}

// NewOnGiveSessionCreatedHandler создаёт обработчик.
func NewOnGiveSessionCreatedHandler(scheduler ReminderScheduler, config ReminderConfig, clock timeutil.Clock, logger *slog.Logger) *OnGiveSessionCreatedHandler {
	defaults := DefaultReminderConfig()
	if config.Lead <= 0 {
		config.Lead = defaults.Lead
	}
	if config.Length <= 0 {
		config.Length = defaults.Length
	}
	if config.Location == nil {
		config.Location = defaults.Location
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if clock == nil {
		clock = timeutil.SystemClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OnGiveSessionCreatedHandler{
		scheduler: scheduler,
		config:    config,
		clock:     clock,
		logger:    logger.With(slog.String("handler", "on_give_session_created")),
	}
}

// Handle реализует shared.EventHandler. Всегда возвращает nil
// для ошибок календаря, чтобы шина не считала событие проваленным.
func (h *OnGiveSessionCreatedHandler) Handle(event shared.Event) error {
	e, ok := event.(shared.GiveSessionCreatedEvent)
	if !ok {
		return fmt.Errorf("on_give_session_created: unexpected event %s", event.EventType())
	}
	if h.scheduler == nil || e.EmployeeEmail == "" {
		return nil
	}

	window := timeutil.ReminderWindow(h.clock(), h.config.Lead, h.config.Length, h.config.StartHour, h.config.Location)
	reminder := Reminder{
		Email:       e.EmployeeEmail,
		Title:       "Knowledge transfer session",
		Description: fmt.Sprintf("Please record a knowledge transfer session for %s.", e.ScopeKey),
		Window:      window,
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	if err := h.scheduler.ScheduleReminder(ctx, reminder); err != nil {
		h.logger.Warn("failed to schedule reminder",
			slog.String("session_id", e.AggregateID()),
			slog.String("email", e.EmployeeEmail),
			slog.String("error", err.Error()),
		)
		return nil
	}

	h.logger.Info("reminder scheduled",
		slog.String("session_id", e.AggregateID()),
		slog.String("window", window.String()),
	)
	return nil
}
