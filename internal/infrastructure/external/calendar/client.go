// Package calendar schedules reminder events through a calendar webhook.
// The webhook receives a calendar-style event document and is expected to
// create the event and invite the attendee.
package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/learnpro/kt-hub/internal/domain/shared"
	"github.com/learnpro/kt-hub/pkg/timeutil"
)

// Reminder describes one event to schedule.
type Reminder struct {
	Email       string
	Title       string
	Description string
	Window      timeutil.Window
}

// EventTime is a point in time with its zone name.
type EventTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

// Attendee is an invited participant.
type Attendee struct {
	Email string `json:"email"`
}

// Event is the document posted to the webhook.
type Event struct {
	Summary     string     `json:"summary"`
	Description string     `json:"description,omitempty"`
	Location    string     `json:"location"`
	Start       EventTime  `json:"start"`
	End         EventTime  `json:"end"`
	Attendees   []Attendee `json:"attendees"`
	SendUpdates string     `json:"sendUpdates"`
}

// NewEvent builds the webhook document for a reminder.
func NewEvent(r Reminder) Event {
	return Event{
		Summary:     r.Title,
		Description: r.Description,
		Location:    "Virtual",
		Start:       eventTime(r.Window.Start),
		End:         eventTime(r.Window.End),
		Attendees:   []Attendee{{Email: r.Email}},
		SendUpdates: "all",
	}
}

func eventTime(t time.Time) EventTime {
	return EventTime{DateTime: t.Format(time.RFC3339), TimeZone: t.Location().String()}
}

// Client posts reminders to the webhook. With an empty URL it only logs.
type Client struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new calendar client.
func NewClient(webhookURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		url:        webhookURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// ScheduleReminder creates the reminder event.
func (c *Client) ScheduleReminder(ctx context.Context, r Reminder) error {
	if c.url == "" {
		c.logger.Info("calendar webhook not configured, reminder skipped",
			"email", r.Email, "window", r.Window.String())
		return nil
	}

	body, err := json.Marshal(NewEvent(r))
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return shared.WrapError("calendar", "Schedule", shared.ErrExternalService, "webhook request failed", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return shared.WrapError("calendar", "Schedule", shared.ErrExternalService,
			fmt.Sprintf("webhook returned status %d", resp.StatusCode), shared.ErrCalendarFailed)
	}
	return nil
}
