package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnpro/kt-hub/internal/domain/shared"
	"github.com/learnpro/kt-hub/pkg/logger"
	"github.com/learnpro/kt-hub/pkg/timeutil"
)

func testReminder() Reminder {
	start := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	return Reminder{
		Email:  "dev@example.com",
		Title:  "Knowledge transfer session",
		Window: timeutil.Window{Start: start, End: start.Add(3 * time.Hour)},
	}
}

func TestClient_ScheduleReminder(t *testing.T) {
	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, logger.Discard().Slog())
	require.NoError(t, c.ScheduleReminder(context.Background(), testReminder()))

	assert.Equal(t, "Knowledge transfer session", got.Summary)
	assert.Equal(t, "2026-03-09T10:00:00Z", got.Start.DateTime)
	assert.Equal(t, "2026-03-09T13:00:00Z", got.End.DateTime)
	assert.Equal(t, "UTC", got.Start.TimeZone)
	assert.Equal(t, []Attendee{{Email: "dev@example.com"}}, got.Attendees)
}

func TestClient_ScheduleReminder_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, logger.Discard().Slog())
	err := c.ScheduleReminder(context.Background(), testReminder())
	assert.ErrorIs(t, err, shared.ErrExternalService)
}

func TestClient_NotConfigured(t *testing.T) {
	c := NewClient("", time.Second, logger.Discard().Slog())
	assert.NoError(t, c.ScheduleReminder(context.Background(), testReminder()))
}
