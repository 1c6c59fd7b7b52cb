package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnpro/kt-hub/internal/domain/learning"
	"github.com/learnpro/kt-hub/internal/domain/project"
	"github.com/learnpro/kt-hub/internal/domain/shared"
	"github.com/learnpro/kt-hub/pkg/circuitbreaker"
)

func completionServer(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status >= 400 {
			_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": content}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testClient(url string, breaker *circuitbreaker.CircuitBreaker) *Client {
	cfg := DefaultClientConfig(url, "test-key")
	cfg.Model = "test-model"
	cfg.Timeout = 5 * time.Second
	cfg.Breaker = breaker
	return NewClient(cfg)
}

type recordingObserver struct {
	calls int
	last  error
}

func (o *recordingObserver) ObserveAdapter(_ string, _ time.Duration, err error) {
	o.calls++
	o.last = err
}

func TestClient_Complete(t *testing.T) {
	srv := completionServer(t, http.StatusOK, "hello")
	obs := &recordingObserver{}
	c := testClient(srv.URL, nil)
	c.config.Observer = obs

	out, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, false)
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Equal(t, 1, obs.calls)
	assert.NoError(t, obs.last)
}

func TestClient_Complete_StatusErrors(t *testing.T) {
	t.Run("server error is service unavailable", func(t *testing.T) {
		srv := completionServer(t, http.StatusBadGateway, "")
		_, err := testClient(srv.URL, nil).Complete(context.Background(), nil, false)
		require.Error(t, err)

		var se *StatusError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, "boom", se.Message)
		assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
		assert.True(t, shared.IsRetryable(err))
	})

	t.Run("rate limit", func(t *testing.T) {
		srv := completionServer(t, http.StatusTooManyRequests, "")
		_, err := testClient(srv.URL, nil).Complete(context.Background(), nil, false)
		assert.ErrorIs(t, err, shared.ErrRateLimited)
	})

	t.Run("bad request is not retryable", func(t *testing.T) {
		srv := completionServer(t, http.StatusBadRequest, "")
		_, err := testClient(srv.URL, nil).Complete(context.Background(), nil, false)
		require.Error(t, err)
		assert.False(t, shared.IsRetryable(err))
	})
}

func TestClient_Complete_CircuitOpens(t *testing.T) {
	srv := completionServer(t, http.StatusInternalServerError, "")
	breaker := circuitbreaker.New("llm-test",
		circuitbreaker.WithFailureThreshold(1),
		circuitbreaker.WithTimeout(time.Hour),
	)
	c := testClient(srv.URL, breaker)

	_, err := c.Complete(context.Background(), nil, false)
	require.Error(t, err)
	assert.Equal(t, circuitbreaker.StateOpen, breaker.State())

	_, err = c.Complete(context.Background(), nil, false)
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
}

type stubCompleter struct {
	out      string
	err      error
	messages []Message
	jsonMode bool
}

func (s *stubCompleter) Complete(_ context.Context, messages []Message, jsonMode bool) (string, error) {
	s.messages = messages
	s.jsonMode = jsonMode
	return s.out, s.err
}

func TestDigestGenerator(t *testing.T) {
	stub := &stubCompleter{out: "  the digest \n"}
	g := NewDigestGenerator(stub)

	out, err := g.Digest(context.Background(), []string{"a", "", "b"})
	require.NoError(t, err)
	assert.Equal(t, "the digest", out)
	require.Len(t, stub.messages, 2)
	assert.Equal(t, "a\nb\n", stub.messages[1].Content)
	assert.False(t, stub.jsonMode)

	stub.out = "   "
	_, err = g.Digest(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, shared.ErrDigestUnavailable)
}

func TestPathGenerator_ExtractsJSON(t *testing.T) {
	stub := &stubCompleter{out: "Here is your path:\n```json\n{\"path_name\": \"Go\", \"subjects\": [{\"subject_name\": \"Basics\"}]}\n```"}
	g := NewPathGenerator(stub)

	shape, err := g.Generate(context.Background(), []string{"Go", "SQL"}, map[string]float64{"Go": 0.8})
	require.NoError(t, err)
	assert.Equal(t, "Go", shape["path_name"])
	assert.True(t, stub.jsonMode)
	assert.Contains(t, stub.messages[1].Content, "Go: 0.8")
	assert.Contains(t, stub.messages[1].Content, "SQL: N/A")
}

func TestQuizGenerator_DecodesQuiz(t *testing.T) {
	stub := &stubCompleter{out: `{"title": "Payments", "questions": [{"question": "Which isolation level?", "options": ["Read committed", "Serializable"], "correctAnswer": "Serializable", "topic": "SQL"}]}`}
	g := NewQuizGenerator(stub)

	shape, err := g.GenerateQuiz(context.Background(), []project.SubjectOutline{
		{Name: "Backend", Topics: []string{"Go", "SQL"}},
	})
	require.NoError(t, err)
	assert.True(t, stub.jsonMode)
	assert.Contains(t, stub.messages[1].Content, "- Backend: Go, SQL")

	quiz, err := learning.NormalizeSkillQuiz(shape, []string{"Go", "SQL"})
	require.NoError(t, err)
	assert.Equal(t, "Payments", quiz.Title)
	require.Len(t, quiz.Questions, 1)
	assert.Equal(t, "SQL", quiz.Questions[0].Topic)

	stub.out = "I cannot write a quiz"
	_, err = g.GenerateQuiz(context.Background(), nil)
	assert.ErrorIs(t, err, shared.ErrGenerationFailed)
}

func TestExtractJSONObject_Invalid(t *testing.T) {
	for _, text := range []string{"", "no json here", "} backwards {", "{not: json}"} {
		_, err := ExtractJSONObject(text)
		assert.ErrorIs(t, err, shared.ErrGenerationFailed, text)
	}
}
