package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnpro/kt-hub/internal/domain/employee"
	"github.com/learnpro/kt-hub/internal/domain/knowledge"
	"github.com/learnpro/kt-hub/internal/domain/learning"
	"github.com/learnpro/kt-hub/internal/domain/project"
	"github.com/learnpro/kt-hub/internal/domain/shared"
	"github.com/learnpro/kt-hub/internal/infrastructure/persistence/memory"
)

var t0 = time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)

// seed создаёт администратора, двух сотрудников, завершённую передачу
// знаний по проекту 42 и одну сессию получения.
func seed(t *testing.T) *memory.DB {
	t.Helper()
	ctx := context.Background()
	db := memory.NewDB()

	for id, role := range map[string]employee.Role{"admin": employee.RoleAdmin, "emp-7": employee.RoleEmployee, "emp-8": employee.RoleEmployee} {
		e, err := employee.NewEmployee(employee.NewEmployeeParams{ID: id, Email: id + "@example.com", Role: role}, t0)
		require.NoError(t, err)
		require.NoError(t, db.Employees().Create(ctx, e))
	}
	p, err := project.NewProject("42", "Billing", "", []project.SubjectOutline{{Name: "Go", Topics: []string{"channels"}}}, t0)
	require.NoError(t, err)
	require.NoError(t, db.Projects().Create(ctx, p))

	store := db.Knowledge()
	scope := knowledge.ProjectScope("42")
	g, err := knowledge.NewGiveSession("g1", "emp-7", scope, t0)
	require.NoError(t, err)
	require.NoError(t, store.CreateGiveSession(ctx, g))
	d, err := knowledge.NewDigestRecord("d1", g, "## Billing", []string{"invoices"}, t0.Add(time.Minute))
	require.NoError(t, err)
	require.NoError(t, store.CreateDigest(ctx, d))
	require.NoError(t, g.Complete(d.ID, t0.Add(time.Minute)))
	require.NoError(t, store.UpdateGiveSession(ctx, g))

	r, err := knowledge.NewReceiveSession("r1", "emp-8", scope, d, t0.Add(2*time.Minute))
	require.NoError(t, err)
	require.NoError(t, store.CreateReceiveSession(ctx, r))
	return db
}

func TestListSessions(t *testing.T) {
	db := seed(t)
	h := NewListSessionsHandler(db.Knowledge(), db.Employees())
	ctx := context.Background()

	all, err := h.Handle(ctx, ListSessionsQuery{CallerID: "admin"})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "g1", all[0].ID)
	assert.Equal(t, "give", all[0].Direction)
	assert.Equal(t, "Completed", all[0].Status)
	assert.Equal(t, "emp-7@example.com", all[0].Email)
	assert.Equal(t, "receive", all[1].Direction)
	assert.Equal(t, string(knowledge.ReadyToConsume), all[1].Status)
	assert.Equal(t, "project:42", all[1].Scope.Key)

	own, err := h.Handle(ctx, ListSessionsQuery{CallerID: "emp-8"})
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, "r1", own[0].ID)

	gives, err := h.Handle(ctx, ListSessionsQuery{CallerID: "admin", Direction: "give"})
	require.NoError(t, err)
	assert.Len(t, gives, 1)

	none, err := h.Handle(ctx, ListSessionsQuery{CallerID: "admin", ScopeKey: "project:43"})
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = h.Handle(ctx, ListSessionsQuery{CallerID: "ghost"})
	assert.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestGetSession(t *testing.T) {
	db := seed(t)
	h := NewGetSessionHandler(db.Knowledge(), db.Employees())
	ctx := context.Background()

	dto, err := h.Handle(ctx, GetSessionQuery{CallerID: "emp-8", SessionID: "r1", Direction: "receive"})
	require.NoError(t, err)
	assert.Equal(t, "d1", dto.DigestID)
	assert.Equal(t, "## Billing", dto.Digest)

	_, err = h.Handle(ctx, GetSessionQuery{CallerID: "emp-8", SessionID: "g1", Direction: "give"})
	assert.True(t, shared.IsForbidden(err))

	dto, err = h.Handle(ctx, GetSessionQuery{CallerID: "admin", SessionID: "g1", Direction: "give"})
	require.NoError(t, err)
	assert.NotNil(t, dto.UpdatedAt)

	_, err = h.Handle(ctx, GetSessionQuery{CallerID: "admin", SessionID: "r1", Direction: "both"})
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(ctx, GetSessionQuery{CallerID: "admin", SessionID: "nope", Direction: "give"})
	assert.True(t, shared.IsNotFound(err))
}

func TestLearningPathQueries(t *testing.T) {
	db := seed(t)
	ctx := context.Background()

	_, err := NewGetLearningPathHandler(db.Learning()).Handle(ctx, "emp-7")
	assert.ErrorIs(t, err, shared.ErrPathNotFound)

	draft := learning.Draft{Name: "Billing", Subjects: []learning.Subject{
		{Name: "Go", Assessment: learning.Assessment{Threshold: 70}, Topics: []learning.Topic{{Name: "channels"}, {Name: "select"}}},
	}}
	p, err := learning.NewLearningPath("p1", "emp-7", draft, t0)
	require.NoError(t, err)
	require.NoError(t, db.Learning().Create(ctx, p))

	dto, err := NewGetLearningPathHandler(db.Learning()).Handle(ctx, "emp-7")
	require.NoError(t, err)
	assert.Equal(t, "Go", dto.CurrentSubject)
	assert.Equal(t, 2, dto.TotalTopics)
	assert.Zero(t, dto.ProgressPercent)

	next, err := NewNextIncompleteTopicHandler(db.Learning()).Handle(ctx, NextIncompleteTopicQuery{OwnerID: "emp-7"})
	require.NoError(t, err)
	assert.True(t, next.Remaining)
	assert.Equal(t, "channels", next.Topic.Topic)

	_, err = p.SubmitAssessment("Go", 100, t0.Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, db.Learning().Save(ctx, p))

	next, err = NewNextIncompleteTopicHandler(db.Learning()).Handle(ctx, NextIncompleteTopicQuery{OwnerID: "emp-7"})
	require.NoError(t, err)
	assert.False(t, next.Remaining)
	assert.Nil(t, next.Topic)

	list, err := NewListLearningPathsHandler(db.Learning()).Handle(ctx, "emp-7")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 100.0, list[0].ProgressPercent)
}

func TestDirectory(t *testing.T) {
	db := seed(t)
	h := NewDirectoryHandler(db.Employees(), db.Projects())
	ctx := context.Background()

	me, err := h.Me(ctx, "emp-7")
	require.NoError(t, err)
	assert.Equal(t, "emp-7@example.com", me.Email)

	list, err := h.Employees(ctx, "admin", employee.RoleEmployee)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = h.Employees(ctx, "emp-7", "")
	assert.True(t, shared.IsForbidden(err))

	projects, err := h.Projects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "Billing", projects[0].Name)
}

func TestGetSkillAssessmentQuiz(t *testing.T) {
	db := seed(t)
	ctx := context.Background()

	p, err := project.NewProject("43", "Search", "", []project.SubjectOutline{{Name: "SQL", Topics: []string{"joins"}}}, t0)
	require.NoError(t, err)
	p.Quiz = &learning.SkillQuiz{Title: "Search basics", Questions: []learning.SkillQuestion{
		{ID: 1, Question: "Which join keeps unmatched left rows?", Options: []string{"INNER", "LEFT"}, CorrectAnswer: "LEFT", Points: 10, Topic: "joins"},
	}}
	require.NoError(t, db.Projects().Create(ctx, p))

	e, err := db.Employees().GetByID(ctx, "emp-7")
	require.NoError(t, err)
	e.AssignProject("43", t0)
	require.NoError(t, db.Employees().Update(ctx, e))

	h := NewGetSkillAssessmentQuizHandler(db.Employees(), db.Projects())

	own, err := h.Handle(ctx, GetSkillAssessmentQuizParams{CallerID: "emp-7"})
	require.NoError(t, err)
	assert.Equal(t, "Search", own.ProjectName)
	require.Len(t, own.Quiz.Questions, 1)
	assert.Empty(t, own.Quiz.Questions[0].CorrectAnswer, "сотрудник не видит ответы")

	full, err := h.Handle(ctx, GetSkillAssessmentQuizParams{CallerID: "admin", ProjectID: "43"})
	require.NoError(t, err)
	assert.Equal(t, "LEFT", full.Quiz.Questions[0].CorrectAnswer)

	_, err = h.Handle(ctx, GetSkillAssessmentQuizParams{CallerID: "emp-7", ProjectID: "42"})
	assert.True(t, shared.IsForbidden(err))

	_, err = h.Handle(ctx, GetSkillAssessmentQuizParams{CallerID: "emp-8"})
	assert.ErrorIs(t, err, shared.ErrNoAssignedProject)

	_, err = h.Handle(ctx, GetSkillAssessmentQuizParams{CallerID: "admin", ProjectID: "42"})
	assert.ErrorIs(t, err, shared.ErrQuizNotFound)
	assert.True(t, shared.IsNotFound(err))
}
