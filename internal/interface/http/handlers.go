package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/learnpro/kt-hub/internal/application/command"
	"github.com/learnpro/kt-hub/internal/application/query"
	"github.com/learnpro/kt-hub/internal/application/saga"
	"github.com/learnpro/kt-hub/internal/domain/employee"
	"github.com/learnpro/kt-hub/internal/domain/knowledge"
	"github.com/learnpro/kt-hub/internal/domain/learning"
	"github.com/learnpro/kt-hub/internal/domain/project"
	"github.com/learnpro/kt-hub/internal/domain/shared"
	"github.com/learnpro/kt-hub/internal/interface/http/handlers"
	"github.com/learnpro/kt-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth returns the health status of the service.
// GET /health, GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())

	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, status)
}

// handleReady returns readiness status. Optional checks do not count.
// GET /ready
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())

	if !status.Ready {
		writeJSONError(w, http.StatusServiceUnavailable, "not_ready", status.Message)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive returns liveness status.
// GET /live
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// handleRoot returns basic API information.
// GET /
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"name":    "KT Hub API",
		"version": s.config.Version,
		"uptime":  s.Uptime().Round(time.Second).String(),
		"endpoints": map[string]string{
			"health":   "/health",
			"login":    "/api/v1/auth/login",
			"sessions": "/api/v1/sessions",
			"projects": "/api/v1/projects",
		},
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// AUTH & DIRECTORY HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string            `json:"token"`
	TokenType string            `json:"token_type"`
	Employee  query.EmployeeDTO `json:"employee"`
}

// handleLogin exchanges credentials for an access token.
// POST /api/v1/auth/login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.deps.Login.Handle(r.Context(), command.LoginCommand{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, loginResponse{
		Token:     result.Token,
		TokenType: "Bearer",
		Employee:  query.NewEmployeeDTO(result.Employee),
	})
}

// handleMe returns the caller's profile.
// GET /api/v1/me
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	me, err := s.deps.Directory.Me(r.Context(), caller(r).EmployeeID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, me)
}

// handleListProjects returns all projects.
// GET /api/v1/projects
func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Directory.Projects(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, list, &ResponseMeta{TotalCount: len(list)})
}

type createProjectRequest struct {
	Name        string                   `json:"name"`
	Description string                   `json:"description"`
	Subjects    []project.SubjectOutline `json:"subjects"`
}

// handleCreateProject creates a project.
// POST /api/v1/projects
func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if !s.decode(w, r, &req) {
		return
	}

	p, err := s.deps.CreateProject.Handle(r.Context(), command.CreateProjectCommand{
		ActorID:     caller(r).EmployeeID,
		Name:        req.Name,
		Description: req.Description,
		Subjects:    req.Subjects,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, query.NewProjectDTO(p))
}

// handleListEmployees returns employees, optionally filtered by role.
// GET /api/v1/employees?role=employee
func (s *Server) handleListEmployees(w http.ResponseWriter, r *http.Request) {
	role := employee.Role(getQueryParam(r, "role", ""))
	if role != "" && !role.IsValid() {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "role must be admin or employee")
		return
	}

	list, err := s.deps.Directory.Employees(r.Context(), caller(r).EmployeeID, role)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, list, &ResponseMeta{TotalCount: len(list)})
}

type registerEmployeeRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// handleRegisterEmployee creates an employee account.
// POST /api/v1/employees
func (s *Server) handleRegisterEmployee(w http.ResponseWriter, r *http.Request) {
	var req registerEmployeeRequest
	if !s.decode(w, r, &req) {
		return
	}

	e, err := s.deps.RegisterEmployee.Handle(r.Context(), command.RegisterEmployeeCommand{
		ActorID:  caller(r).EmployeeID,
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, query.NewEmployeeDTO(e))
}

type assignProjectRequest struct {
	ProjectID string             `json:"project_id"`
	Scores    map[string]float64 `json:"scores"`
}

type assignProjectResponse struct {
	Employee     query.EmployeeDTO     `json:"employee"`
	Project      query.ProjectDTO      `json:"project"`
	LearningPath query.LearningPathDTO `json:"learning_path"`
	Fallback     bool                  `json:"fallback"`
}

// handleAssignProject assigns a project and generates the learning path.
// POST /api/v1/employees/{id}/project
func (s *Server) handleAssignProject(w http.ResponseWriter, r *http.Request) {
	var req assignProjectRequest
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.deps.AssignProject.Execute(r.Context(), saga.AssignProjectInput{
		ActorID:       caller(r).EmployeeID,
		EmployeeID:    r.PathValue("id"),
		ProjectID:     req.ProjectID,
		Scores:        req.Scores,
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, assignProjectResponse{
		Employee:     query.NewEmployeeDTO(result.Employee),
		Project:      query.NewProjectDTO(result.Project),
		LearningPath: query.NewLearningPathDTO(result.Path),
		Fallback:     result.Fallback,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// KNOWLEDGE TRANSFER HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type scopeRequest struct {
	Kind      string `json:"kind"`
	ProjectID string `json:"project_id"`
	RepoURL   string `json:"repo_url"`
	Username  string `json:"username"`
}

// toScope builds a scope. The kind may be omitted when only one of
// project_id and repo_url is given.
func (sr scopeRequest) toScope() knowledge.Scope {
	kind := knowledge.ScopeKind(strings.ToLower(strings.TrimSpace(sr.Kind)))
	if kind == "" {
		switch {
		case sr.ProjectID != "" && sr.RepoURL == "":
			kind = knowledge.ScopeProject
		case sr.RepoURL != "" && sr.ProjectID == "":
			kind = knowledge.ScopeRepo
		}
	}
	switch kind {
	case knowledge.ScopeProject:
		return knowledge.ProjectScope(sr.ProjectID)
	case knowledge.ScopeRepo:
		return knowledge.RepoScope(sr.RepoURL, sr.Username)
	default:
		return knowledge.Scope{Kind: kind}
	}
}

type createSessionRequest struct {
	EmployeeID string       `json:"employee_id"`
	Scope      scopeRequest `json:"scope"`
}

// handleListSessions lists sessions visible to the caller.
// GET /api/v1/sessions?direction=give&scope=project:p1
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	direction := getQueryParam(r, "direction", "")
	if direction != "" && !command.Direction(direction).IsValid() {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "direction must be give or receive")
		return
	}

	list, err := s.deps.ListSessions.Handle(r.Context(), query.ListSessionsQuery{
		CallerID:  caller(r).EmployeeID,
		Direction: direction,
		ScopeKey:  getQueryParam(r, "scope", ""),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, list, &ResponseMeta{TotalCount: len(list)})
}

// handleCreateGiveSession assigns a give session.
// POST /api/v1/sessions/give
func (s *Server) handleCreateGiveSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.deps.CreateGiveSession.Handle(r.Context(), command.CreateGiveSessionCommand{
		ActorID:       caller(r).EmployeeID,
		EmployeeID:    req.EmployeeID,
		Scope:         req.Scope.toScope(),
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, query.FromGiveSession(result.Session, ""))
}

// handleCreateReceiveSession assigns a receive session. It is ready at once
// when a digest for the scope already exists.
// POST /api/v1/sessions/receive
func (s *Server) handleCreateReceiveSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.deps.CreateReceiveSession.Handle(r.Context(), command.CreateReceiveSessionCommand{
		ActorID:       caller(r).EmployeeID,
		EmployeeID:    req.EmployeeID,
		Scope:         req.Scope.toScope(),
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, query.FromReceiveSession(result.Session, ""))
}

// handleGetSession returns one session with its digest.
// GET /api/v1/sessions/{direction}/{id}
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	direction, ok := pathDirection(w, r)
	if !ok {
		return
	}

	dto, err := s.deps.GetSession.Handle(r.Context(), query.GetSessionQuery{
		CallerID:  caller(r).EmployeeID,
		SessionID: r.PathValue("id"),
		Direction: string(direction),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

type deleteSessionResponse struct {
	SessionID string `json:"session_id"`
	Direction string `json:"direction"`
	Scope     string `json:"scope"`
	Repointed int    `json:"repointed_receivers"`
}

// handleDeleteSession deletes a session. Receivers of a deleted digest are
// moved to the newest remaining digest or back to waiting.
// DELETE /api/v1/sessions/{direction}/{id}
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	direction, ok := pathDirection(w, r)
	if !ok {
		return
	}

	result, err := s.deps.DeleteSession.Handle(r.Context(), command.DeleteSessionCommand{
		ActorID:       caller(r).EmployeeID,
		SessionID:     r.PathValue("id"),
		Direction:     direction,
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, deleteSessionResponse{
		SessionID: result.SessionID,
		Direction: string(result.Direction),
		Scope:     result.ScopeKey,
		Repointed: len(result.Repointed),
	})
}

type completeGiveSessionRequest struct {
	// Transcript is the conversation as one text.
	Transcript string `json:"transcript"`

	// Material is the conversation split into chunks.
	Material []string `json:"material"`
}

type completeGiveSessionResponse struct {
	Session   query.SessionDTO `json:"session"`
	DigestID  string           `json:"digest_id"`
	Digest    string           `json:"digest"`
	FannedOut int              `json:"fanned_out"`
}

// handleCompleteGiveSession submits the material and produces the digest.
// POST /api/v1/sessions/give/{id}/complete
func (s *Server) handleCompleteGiveSession(w http.ResponseWriter, r *http.Request) {
	var req completeGiveSessionRequest
	if !s.decode(w, r, &req) {
		return
	}

	material := req.Material
	if strings.TrimSpace(req.Transcript) != "" {
		material = append([]string{req.Transcript}, material...)
	}

	id := caller(r)
	result, err := s.deps.CompleteGiveSession.Handle(r.Context(), command.CompleteGiveSessionCommand{
		SessionID:     r.PathValue("id"),
		CallerID:      id.EmployeeID,
		Material:      material,
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, completeGiveSessionResponse{
		Session:   query.FromGiveSession(result.Session, id.Email),
		DigestID:  result.Digest.ID,
		Digest:    result.Digest.Content,
		FannedOut: len(result.FannedOut),
	})
}

type markConsumedResponse struct {
	Session query.SessionDTO `json:"session"`
	Changed bool             `json:"changed"`
}

// handleMarkConsumed marks a ready receive session as consumed.
// Repeating the call is a no-op.
// POST /api/v1/sessions/receive/{id}/consumed
func (s *Server) handleMarkConsumed(w http.ResponseWriter, r *http.Request) {
	id := caller(r)
	sessionID := r.PathValue("id")

	// GetSession enforces owner-or-admin access.
	if _, err := s.deps.GetSession.Handle(r.Context(), query.GetSessionQuery{
		CallerID:  id.EmployeeID,
		SessionID: sessionID,
		Direction: string(command.DirectionReceive),
	}); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	result, err := s.deps.MarkConsumed.Handle(r.Context(), command.MarkConsumedCommand{SessionID: sessionID})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, markConsumedResponse{
		Session: query.FromReceiveSession(result.Session, id.Email),
		Changed: result.Changed,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// LEARNING PATH HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetLearningPath returns the owner's newest path.
// GET /api/v1/employees/{id}/learning-path
func (s *Server) handleGetLearningPath(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := pathOwner(w, r)
	if !ok {
		return
	}

	dto, err := s.deps.GetLearningPath.Handle(r.Context(), ownerID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

// handleListLearningPaths returns every path of the owner, newest first.
// GET /api/v1/employees/{id}/learning-paths
func (s *Server) handleListLearningPaths(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := pathOwner(w, r)
	if !ok {
		return
	}

	list, err := s.deps.ListLearningPaths.Handle(r.Context(), ownerID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, list, &ResponseMeta{TotalCount: len(list)})
}

// handleUpdateLearningPath applies a partial update.
// PATCH /api/v1/employees/{id}/learning-path
func (s *Server) handleUpdateLearningPath(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := pathOwner(w, r)
	if !ok {
		return
	}
	var patch learning.Patch
	if !s.decode(w, r, &patch) {
		return
	}

	path, err := s.deps.UpdateLearningPath.Handle(r.Context(), command.UpdateLearningPathCommand{
		ActorID:       caller(r).EmployeeID,
		OwnerID:       ownerID,
		Patch:         patch,
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, query.NewLearningPathDTO(path))
}

// handleNextTopic returns the first incomplete topic.
// GET /api/v1/employees/{id}/learning-path/next-topic
func (s *Server) handleNextTopic(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := pathOwner(w, r)
	if !ok {
		return
	}

	dto, err := s.deps.NextTopic.Handle(r.Context(), query.NextIncompleteTopicQuery{OwnerID: ownerID})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

type submitAssessmentRequest struct {
	Subject string   `json:"subject"`
	Score   *float64 `json:"score"`
}

type submitAssessmentResponse struct {
	Outcome      learning.AssessmentOutcome `json:"outcome"`
	LearningPath query.LearningPathDTO      `json:"learning_path"`
}

// handleSubmitAssessment records a test score (0..100).
// POST /api/v1/employees/{id}/learning-path/assessments
func (s *Server) handleSubmitAssessment(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := pathOwner(w, r)
	if !ok {
		return
	}
	var req submitAssessmentRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Score == nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "score is required")
		return
	}

	result, err := s.deps.SubmitAssessment.Handle(r.Context(), command.SubmitAssessmentCommand{
		ActorID:       caller(r).EmployeeID,
		OwnerID:       ownerID,
		Subject:       req.Subject,
		Score:         *req.Score,
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, submitAssessmentResponse{
		Outcome:      result.Outcome,
		LearningPath: query.NewLearningPathDTO(result.Path),
	})
}

type regeneratePathResponse struct {
	LearningPath query.LearningPathDTO `json:"learning_path"`
	Fallback     bool                  `json:"fallback"`
	Attempts     int                   `json:"attempts"`
}

// handleRegeneratePath stores a new path for the assigned project.
// Earlier paths are kept.
// POST /api/v1/employees/{id}/learning-path/regenerate
func (s *Server) handleRegeneratePath(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := pathOwner(w, r)
	if !ok {
		return
	}

	result, err := s.deps.RegeneratePath.Handle(r.Context(), command.RegeneratePathCommand{
		ActorID:       caller(r).EmployeeID,
		OwnerID:       ownerID,
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, regeneratePathResponse{
		LearningPath: query.NewLearningPathDTO(result.Path),
		Fallback:     result.Path.Fallback,
		Attempts:     result.Attempts,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// SKILL ASSESSMENT HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetSkillQuiz returns the skill-assessment quiz of the caller's project.
// Admins may pass project_id and see the correct answers.
// GET /api/v1/skill-assessment/quiz
func (s *Server) handleGetSkillQuiz(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.SkillQuiz.Handle(r.Context(), query.GetSkillAssessmentQuizParams{
		CallerID:  caller(r).EmployeeID,
		ProjectID: r.URL.Query().Get("project_id"),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

type submitSkillQuizRequest struct {
	Answers map[int]string `json:"answers"`
}

type submitSkillQuizResponse struct {
	Scores       map[string]float64    `json:"scores"`
	LearningPath query.LearningPathDTO `json:"learning_path"`
	Fallback     bool                  `json:"fallback"`
}

// handleSubmitSkillQuiz grades the quiz and stores a path built from the scores.
// POST /api/v1/employees/{id}/skill-assessment
func (s *Server) handleSubmitSkillQuiz(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := pathOwner(w, r)
	if !ok {
		return
	}
	var req submitSkillQuizRequest
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.deps.SubmitSkillQuiz.Handle(r.Context(), command.SubmitSkillQuizCommand{
		ActorID:       caller(r).EmployeeID,
		OwnerID:       ownerID,
		Answers:       req.Answers,
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, submitSkillQuizResponse{
		Scores:       result.Scores,
		LearningPath: query.NewLearningPathDTO(result.Path),
		Fallback:     result.Path.Fallback,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// VOICE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type voiceTokenRequest struct {
	Room string `json:"room"`
}

// handleVoiceToken issues a voice-session credential for the caller.
// POST /api/v1/voice/token
func (s *Server) handleVoiceToken(w http.ResponseWriter, r *http.Request) {
	if s.deps.IssueVoiceToken == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "voice_disabled", "Voice sessions are not configured")
		return
	}
	var req voiceTokenRequest
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.deps.IssueVoiceToken.Handle(r.Context(), command.IssueVoiceTokenCommand{
		CallerID: caller(r).EmployeeID,
		Room:     req.Room,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// WEBHOOK HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleAgentWebhook applies a signed callback from the voice/chat agent.
// POST /webhook/agent
func (s *Server) handleAgentWebhook(w http.ResponseWriter, r *http.Request) {
	if s.deps.AgentWebhook == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "webhook_disabled", "Agent webhook is not configured")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Failed to read request body")
		return
	}

	event, err := s.deps.AgentWebhook.Decode(body, r.Header.Get(handlers.SignatureHeader))
	if err != nil {
		if handlers.IsBadSignature(err) {
			logger.FromContext(r.Context()).Warn("agent webhook rejected", logger.String("ip", getClientIP(r)))
		}
		s.writeDomainError(w, r, err)
		return
	}

	ctx := r.Context()
	correlationID := getRequestID(ctx)

	switch event.Type {
	case handlers.AgentSessionConsumed:
		result, err := s.deps.MarkConsumed.Handle(ctx, command.MarkConsumedCommand{SessionID: event.SessionID})
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]bool{"changed": result.Changed})

	case handlers.AgentTopicCompleted:
		path, err := s.deps.UpdateLearningPath.Handle(ctx, command.UpdateLearningPathCommand{
			OwnerID: event.OwnerID,
			Patch: learning.Patch{Topics: []learning.TopicUpdate{
				{Subject: event.Subject, Topic: event.Topic, Completed: true},
			}},
			System:        true,
			CorrelationID: correlationID,
		})
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, query.NewLearningPathDTO(path))

	case handlers.AgentAssessmentSubmitted:
		result, err := s.deps.SubmitAssessment.Handle(ctx, command.SubmitAssessmentCommand{
			OwnerID:       event.OwnerID,
			Subject:       event.Subject,
			Score:         *event.Score,
			System:        true,
			CorrelationID: correlationID,
		})
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, result.Outcome)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// caller returns the authenticated identity. Routes registered through
// private/admin always have one.
func caller(r *http.Request) command.AccessToken {
	id, _ := handlers.IdentityFromContext(r.Context())
	return id
}

// pathOwner resolves {id} ("me" is the caller) and allows only the owner
// or an admin.
func pathOwner(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := caller(r)
	ownerID := r.PathValue("id")
	if ownerID == "me" {
		ownerID = id.EmployeeID
	}
	if ownerID != id.EmployeeID && id.Role != string(employee.RoleAdmin) {
		writeJSONError(w, http.StatusForbidden, "forbidden", "Access to another employee's learning path requires the admin role")
		return "", false
	}
	return ownerID, true
}

// pathDirection parses {direction}.
func pathDirection(w http.ResponseWriter, r *http.Request) (command.Direction, bool) {
	d := command.Direction(r.PathValue("direction"))
	if !d.IsValid() {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "direction must be give or receive")
		return "", false
	}
	return d, true
}

// decode reads a JSON body into v and writes 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		writeJSONError(w, http.StatusRequestEntityTooLarge, "request_too_large", "Request body too large")
	case errors.Is(err, io.EOF):
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Request body is required")
	default:
		s.writeDomainError(w, r, shared.WrapError("http", "Decode", shared.ErrValidation, "invalid JSON body", err))
	}
	return false
}
