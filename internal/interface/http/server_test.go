package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/learnpro/kt-hub/internal/application/command"
	"github.com/learnpro/kt-hub/internal/application/query"
	"github.com/learnpro/kt-hub/internal/application/saga"
	"github.com/learnpro/kt-hub/internal/domain/employee"
	"github.com/learnpro/kt-hub/internal/domain/learning"
	"github.com/learnpro/kt-hub/internal/domain/project"
	"github.com/learnpro/kt-hub/internal/domain/shared"
	"github.com/learnpro/kt-hub/internal/infrastructure/auth"
	"github.com/learnpro/kt-hub/internal/infrastructure/persistence/memory"
	"github.com/learnpro/kt-hub/internal/interface/http/handlers"
	"github.com/learnpro/kt-hub/pkg/logger"
)

const testPassword = "correct-horse"

type staticDigester struct{}

func (staticDigester) Digest(_ context.Context, material []string) (string, error) {
	return fmt.Sprintf("## Digest of %d chunks", len(material)), nil
}

type brokenPaths struct{}

func (brokenPaths) Generate(context.Context, []string, map[string]float64) (learning.PathShape, error) {
	return nil, shared.ErrLLMUnavailable
}

type testAPI struct {
	t       *testing.T
	handler http.Handler
	db      *memory.DB
	tokens  *auth.Manager
	webhook *handlers.AgentWebhook
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	ctx := context.Background()
	db := memory.NewDB()
	hasher := auth.BcryptHasher{Cost: bcrypt.MinCost}

	hash, err := hasher.Hash(testPassword)
	require.NoError(t, err)
	for id, role := range map[string]employee.Role{"admin": employee.RoleAdmin, "emp-7": employee.RoleEmployee, "emp-8": employee.RoleEmployee} {
		e, err := employee.NewEmployee(employee.NewEmployeeParams{ID: id, Email: id + "@example.com", Role: role, PasswordHash: hash}, time.Now())
		require.NoError(t, err)
		require.NoError(t, db.Employees().Create(ctx, e))
	}
	p, err := project.NewProject("42", "Billing", "", []project.SubjectOutline{{Name: "Go", Topics: []string{"goroutines", "channels"}}}, time.Now())
	require.NoError(t, err)
	p.Quiz = &learning.SkillQuiz{Title: "Billing basics", Questions: []learning.SkillQuestion{
		{ID: 1, Question: "What does close(ch) do?", Options: []string{"Frees ch", "Signals no more sends"}, CorrectAnswer: "Signals no more sends", Points: 10, Topic: "channels"},
		{ID: 2, Question: "How do you start a goroutine?", Options: []string{"go f()", "spawn f()"}, CorrectAnswer: "go f()", Points: 10, Topic: "goroutines"},
	}}
	require.NoError(t, db.Projects().Create(ctx, p))

	tokens, err := auth.NewManager("test-secret", "kt-hub-test", time.Hour)
	require.NoError(t, err)
	webhook := handlers.NewAgentWebhook("hook-secret")
	log := logger.Discard()

	generate := command.NewGeneratePathHandler(db.Learning(), brokenPaths{}, nil, nil, nil, log,
		command.GeneratePathConfig{Attempts: 1, AttemptTimeout: time.Second})

	deps := Dependencies{
		Login:                command.NewLoginHandler(db.Employees(), hasher, tokens),
		RegisterEmployee:     command.NewRegisterEmployeeHandler(db.Employees(), hasher, nil, nil),
		CreateProject:        command.NewCreateProjectHandler(db.Projects(), db.Employees(), nil, nil, nil, log),
		CreateGiveSession:    command.NewCreateGiveSessionHandler(db.Knowledge(), db.Employees(), db.Projects(), nil, nil, nil, nil),
		CompleteGiveSession:  command.NewCompleteGiveSessionHandler(db.Knowledge(), staticDigester{}, nil, nil, nil, nil, log, command.CompleteGiveSessionConfig{}),
		CreateReceiveSession: command.NewCreateReceiveSessionHandler(db.Knowledge(), db.Employees(), db.Projects(), nil, nil, nil, nil),
		MarkConsumed:         command.NewMarkConsumedHandler(db.Knowledge(), nil, nil),
		DeleteSession:        command.NewDeleteSessionHandler(db.Knowledge(), db.Employees(), nil, nil),
		SubmitAssessment:     command.NewSubmitAssessmentHandler(db.Learning(), db.Employees(), nil, nil),
		UpdateLearningPath:   command.NewUpdateLearningPathHandler(db.Learning(), db.Employees(), nil, nil),
		RegeneratePath:       command.NewRegeneratePathHandler(db.Learning(), db.Employees(), db.Projects(), generate),
		SubmitSkillQuiz:      command.NewSubmitSkillQuizHandler(db.Employees(), db.Projects(), generate),
		AssignProject:        saga.NewAssignProjectSaga(db.Employees(), db.Projects(), generate, nil, nil, nil),
		ListSessions:         query.NewListSessionsHandler(db.Knowledge(), db.Employees()),
		GetSession:           query.NewGetSessionHandler(db.Knowledge(), db.Employees()),
		GetLearningPath:      query.NewGetLearningPathHandler(db.Learning()),
		ListLearningPaths:    query.NewListLearningPathsHandler(db.Learning()),
		NextTopic:            query.NewNextIncompleteTopicHandler(db.Learning()),
		Directory:            query.NewDirectoryHandler(db.Employees(), db.Projects()),
		SkillQuiz:            query.NewGetSkillAssessmentQuizHandler(db.Employees(), db.Projects()),
		Tokens:               tokens,
		AgentWebhook:         webhook,
		Logger:               log,
	}

	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 0
	cfg.EnableMetrics = false
	cfg.Version = "test"
	srv := NewServer(cfg, deps)

	return &testAPI{t: t, handler: srv.Handler(), db: db, tokens: tokens, webhook: webhook}
}

func (a *testAPI) token(id, role string) string {
	a.t.Helper()
	tok, err := a.tokens.Issue(command.AccessToken{EmployeeID: id, Email: id + "@example.com", Role: role})
	require.NoError(a.t, err)
	return tok
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
}

func (a *testAPI) do(method, path, token string, body interface{}) (int, envelope) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	var env envelope
	require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func TestLoginAndMe(t *testing.T) {
	api := newTestAPI(t)

	code, env := api.do(http.MethodPost, "/api/v1/auth/login", "", loginRequest{Email: "EMP-7@example.com", Password: testPassword})
	require.Equal(t, http.StatusOK, code)
	login := decodeData[loginResponse](t, env)
	assert.Equal(t, "Bearer", login.TokenType)
	assert.Equal(t, "emp-7", login.Employee.ID)

	code, env = api.do(http.MethodGet, "/api/v1/me", login.Token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "emp-7@example.com", decodeData[query.EmployeeDTO](t, env).Email)

	code, env = api.do(http.MethodPost, "/api/v1/auth/login", "", loginRequest{Email: "emp-7@example.com", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "unauthorized", env.Error.Code)
}

func TestAuthorization(t *testing.T) {
	api := newTestAPI(t)

	code, _ := api.do(http.MethodGet, "/api/v1/sessions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = api.do(http.MethodGet, "/api/v1/sessions", "forged", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, env := api.do(http.MethodPost, "/api/v1/sessions/give", api.token("emp-7", "employee"), createSessionRequest{
		EmployeeID: "emp-8", Scope: scopeRequest{ProjectID: "42"},
	})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "forbidden", env.Error.Code)

	code, _ = api.do(http.MethodGet, "/api/v1/employees/emp-8/learning-path", api.token("emp-7", "employee"), nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestKnowledgeTransferFlow(t *testing.T) {
	api := newTestAPI(t)
	admin := api.token("admin", "admin")
	giver := api.token("emp-7", "employee")
	receiver := api.token("emp-8", "employee")

	code, env := api.do(http.MethodPost, "/api/v1/sessions/give", admin, createSessionRequest{EmployeeID: "emp-7", Scope: scopeRequest{ProjectID: "42"}})
	require.Equal(t, http.StatusCreated, code, env.Error)
	give := decodeData[query.SessionDTO](t, env)
	assert.Equal(t, "Pending", give.Status)
	assert.Equal(t, "project:42", give.Scope.Key)

	code, _ = api.do(http.MethodPost, "/api/v1/sessions/give", admin, createSessionRequest{EmployeeID: "emp-7", Scope: scopeRequest{ProjectID: "42"}})
	assert.Equal(t, http.StatusConflict, code)

	code, env = api.do(http.MethodPost, "/api/v1/sessions/receive", admin, createSessionRequest{EmployeeID: "emp-8", Scope: scopeRequest{Kind: "project", ProjectID: "42"}})
	require.Equal(t, http.StatusCreated, code)
	recv := decodeData[query.SessionDTO](t, env)
	assert.Equal(t, "AwaitingDigest", recv.Status)

	code, env = api.do(http.MethodPost, "/api/v1/sessions/receive/"+recv.ID+"/consumed", receiver, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "invalid_state", env.Error.Code)

	completeURL := "/api/v1/sessions/give/" + give.ID + "/complete"
	code, _ = api.do(http.MethodPost, completeURL, receiver, completeGiveSessionRequest{Transcript: "hi"})
	assert.Equal(t, http.StatusForbidden, code)

	code, env = api.do(http.MethodPost, completeURL, giver, completeGiveSessionRequest{})
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = api.do(http.MethodPost, completeURL, giver, completeGiveSessionRequest{
		Transcript: "Invoices are generated nightly.", Material: []string{"Retries go through the outbox."},
	})
	require.Equal(t, http.StatusOK, code, env.Error)
	done := decodeData[completeGiveSessionResponse](t, env)
	assert.Equal(t, "## Digest of 2 chunks", done.Digest)
	assert.Equal(t, 1, done.FannedOut)

	code, env = api.do(http.MethodPost, completeURL, giver, completeGiveSessionRequest{Transcript: "again"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "already_completed", env.Error.Code)

	code, env = api.do(http.MethodGet, "/api/v1/sessions/receive/"+recv.ID, receiver, nil)
	require.Equal(t, http.StatusOK, code)
	got := decodeData[query.SessionDTO](t, env)
	assert.Equal(t, "ReadyToConsume", got.Status)
	assert.Equal(t, done.Digest, got.Digest)

	code, _ = api.do(http.MethodPost, "/api/v1/sessions/receive/"+recv.ID+"/consumed", giver, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, env = api.do(http.MethodPost, "/api/v1/sessions/receive/"+recv.ID+"/consumed", receiver, nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, decodeData[markConsumedResponse](t, env).Changed)

	code, env = api.do(http.MethodPost, "/api/v1/sessions/receive/"+recv.ID+"/consumed", receiver, nil)
	require.Equal(t, http.StatusOK, code)
	assert.False(t, decodeData[markConsumedResponse](t, env).Changed)

	code, env = api.do(http.MethodGet, "/api/v1/sessions", receiver, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decodeData[[]query.SessionDTO](t, env), 1)

	code, env = api.do(http.MethodDelete, "/api/v1/sessions/give/"+give.ID, admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, decodeData[deleteSessionResponse](t, env).Repointed)

	code, _ = api.do(http.MethodDelete, "/api/v1/sessions/sideways/"+give.ID, admin, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestLearningPathFlow(t *testing.T) {
	api := newTestAPI(t)
	admin := api.token("admin", "admin")
	emp := api.token("emp-7", "employee")

	code, env := api.do(http.MethodPost, "/api/v1/employees/emp-7/project", admin, assignProjectRequest{ProjectID: "42"})
	require.Equal(t, http.StatusCreated, code, env.Error)
	assigned := decodeData[assignProjectResponse](t, env)
	assert.True(t, assigned.Fallback)
	assert.Equal(t, 2, assigned.LearningPath.TotalTopics)

	code, env = api.do(http.MethodGet, "/api/v1/employees/me/learning-path/next-topic", emp, nil)
	require.Equal(t, http.StatusOK, code)
	next := decodeData[query.NextTopicDTO](t, env)
	require.NotNil(t, next.Topic)
	assert.Equal(t, "goroutines", next.Topic.Topic)

	code, _ = api.do(http.MethodPost, "/api/v1/employees/me/learning-path/assessments", emp, submitAssessmentRequest{Subject: "goroutines"})
	assert.Equal(t, http.StatusBadRequest, code)

	score := 95.0
	code, env = api.do(http.MethodPost, "/api/v1/employees/me/learning-path/assessments", emp, submitAssessmentRequest{Subject: "goroutines", Score: &score})
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.True(t, decodeData[submitAssessmentResponse](t, env).Outcome.Passed())

	code, env = api.do(http.MethodPost, "/api/v1/employees/emp-7/learning-path/regenerate", admin, nil)
	require.Equal(t, http.StatusCreated, code, env.Error)

	code, env = api.do(http.MethodGet, "/api/v1/employees/emp-7/learning-paths", emp, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decodeData[[]query.LearningPathDTO](t, env), 2)
}

func TestSkillAssessmentFlow(t *testing.T) {
	api := newTestAPI(t)
	admin := api.token("admin", "admin")
	emp := api.token("emp-7", "employee")

	code, env := api.do(http.MethodGet, "/api/v1/skill-assessment/quiz", emp, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, env = api.do(http.MethodPost, "/api/v1/employees/emp-7/project", admin, assignProjectRequest{ProjectID: "42"})
	require.Equal(t, http.StatusCreated, code, env.Error)

	code, env = api.do(http.MethodGet, "/api/v1/skill-assessment/quiz", emp, nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	public := decodeData[query.SkillQuizDTO](t, env)
	assert.Equal(t, "Billing", public.ProjectName)
	require.Len(t, public.Quiz.Questions, 2)
	assert.Empty(t, public.Quiz.Questions[0].CorrectAnswer)

	code, env = api.do(http.MethodGet, "/api/v1/skill-assessment/quiz?project_id=42", admin, nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.Equal(t, "go f()", decodeData[query.SkillQuizDTO](t, env).Quiz.Questions[1].CorrectAnswer)

	code, _ = api.do(http.MethodPost, "/api/v1/employees/me/skill-assessment", emp, submitSkillQuizRequest{Answers: map[int]string{7: "go f()"}})
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = api.do(http.MethodPost, "/api/v1/employees/me/skill-assessment", emp, submitSkillQuizRequest{Answers: map[int]string{1: "Frees ch", 2: "go f()"}})
	require.Equal(t, http.StatusCreated, code, env.Error)
	graded := decodeData[submitSkillQuizResponse](t, env)
	assert.Equal(t, map[string]float64{"goroutines": 1, "channels": 0}, graded.Scores)
	assert.True(t, graded.Fallback)

	code, env = api.do(http.MethodGet, "/api/v1/employees/emp-7/learning-paths", emp, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decodeData[[]query.LearningPathDTO](t, env), 2)
}

func TestAgentWebhook(t *testing.T) {
	api := newTestAPI(t)
	admin := api.token("admin", "admin")

	code, _ := api.do(http.MethodPost, "/api/v1/employees/emp-7/project", admin, assignProjectRequest{ProjectID: "42"})
	require.Equal(t, http.StatusCreated, code)

	send := func(body []byte, signature string) (int, envelope) {
		req := httptest.NewRequest(http.MethodPost, "/webhook/agent", bytes.NewReader(body))
		req.Header.Set(handlers.SignatureHeader, signature)
		rec := httptest.NewRecorder()
		api.handler.ServeHTTP(rec, req)
		var env envelope
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
		return rec.Code, env
	}

	body := []byte(`{"type":"topic.completed","owner_id":"emp-7","topic":"goroutines"}`)
	code, env := send(body, api.webhook.Sign(body))
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.Equal(t, 1, decodeData[query.LearningPathDTO](t, env).CompletedTopics)

	code, _ = send(body, "sha256=deadbeef")
	assert.Equal(t, http.StatusUnauthorized, code)

	bad := []byte(`{"type":"topic.completed"}`)
	code, _ = send(bad, api.webhook.Sign(bad))
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHealthEndpoints(t *testing.T) {
	api := newTestAPI(t)

	for _, path := range []string{"/health", "/healthz", "/ready", "/live", "/"} {
		code, env := api.do(http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusOK, code, path)
		assert.True(t, env.Success, path)
	}

	code, env := api.do(http.MethodPost, "/api/v1/voice/token", api.token("emp-7", "employee"), voiceTokenRequest{Room: "kt"})
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "voice_disabled", env.Error.Code)
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{shared.ErrSessionNotFound, http.StatusNotFound, "not_found"},
		{fmt.Errorf("complete: %w", shared.ErrGiveSessionCompleted), http.StatusConflict, "already_completed"},
		{shared.ErrGiveSessionExists, http.StatusConflict, "conflict"},
		{shared.ErrBadCredentials, http.StatusUnauthorized, "unauthorized"},
		{shared.ErrAdminOnly, http.StatusForbidden, "forbidden"},
		{shared.ErrEmptyMaterial, http.StatusBadRequest, "invalid_request"},
		{shared.ErrInvalidScope, http.StatusBadRequest, "invalid_request"},
		{shared.ErrReceiveNotReady, http.StatusConflict, "invalid_state"},
		{shared.ErrDigestGeneratorFailure, http.StatusBadGateway, "generation_failed"},
		{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
		{shared.ErrGitHubUnavailable, http.StatusBadGateway, "upstream_unavailable"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_server_error"},
	}
	for _, tt := range tests {
		t.Run(tt.code+"/"+tt.err.Error(), func(t *testing.T) {
			status, code := errorStatus(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}
