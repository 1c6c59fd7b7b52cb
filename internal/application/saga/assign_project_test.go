package saga

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnpro/kt-hub/internal/application/command"
	"github.com/learnpro/kt-hub/internal/domain/employee"
	"github.com/learnpro/kt-hub/internal/domain/learning"
	"github.com/learnpro/kt-hub/internal/domain/project"
	"github.com/learnpro/kt-hub/internal/domain/shared"
	"github.com/learnpro/kt-hub/internal/infrastructure/persistence/memory"
	"github.com/learnpro/kt-hub/pkg/logger"
)

var t0 = time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)

type capturePublisher struct{ events []shared.Event }

func (p *capturePublisher) Publish(e shared.Event) error {
	p.events = append(p.events, e)
	return nil
}

type scoreSpy struct {
	topics []string
	scores map[string]float64
	err    error
}

func (s *scoreSpy) Generate(_ context.Context, topics []string, scores map[string]float64) (learning.PathShape, error) {
	s.topics, s.scores = topics, scores
	if s.err != nil {
		return nil, s.err
	}
	return learning.PathShape{"subjects": []interface{}{
		map[string]interface{}{"subject_name": "Go", "topics": []interface{}{"goroutines", "channels"}},
	}}, nil
}

type failingPaths struct{ err error }

func (f failingPaths) Handle(context.Context, command.GeneratePathCommand) (*command.GeneratePathResult, error) {
	return nil, f.err
}

func setup(t *testing.T) *memory.DB {
	t.Helper()
	ctx := context.Background()
	db := memory.NewDB()
	for id, role := range map[string]employee.Role{"admin": employee.RoleAdmin, "emp-7": employee.RoleEmployee} {
		e, err := employee.NewEmployee(employee.NewEmployeeParams{ID: id, Email: id + "@example.com", Role: role}, t0)
		require.NoError(t, err)
		require.NoError(t, db.Employees().Create(ctx, e))
	}
	for id, name := range map[string]string{"42": "Billing", "43": "Search"} {
		p, err := project.NewProject(id, name, "", []project.SubjectOutline{
			{Name: "Go", Topics: []string{"goroutines", "channels"}},
		}, t0)
		require.NoError(t, err)
		require.NoError(t, db.Projects().Create(ctx, p))
	}
	return db
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func generator(db *memory.DB, gen command.PathGenerator) *command.GeneratePathHandler {
	return command.NewGeneratePathHandler(db.Learning(), gen, nil, nil, nil, logger.Discard(),
		command.GeneratePathConfig{Attempts: 2, AttemptTimeout: time.Second})
}

func TestAssignProject_Success(t *testing.T) {
	ctx := context.Background()
	db := setup(t)
	spy := &scoreSpy{}
	pub := &capturePublisher{}
	s := NewAssignProjectSaga(db.Employees(), db.Projects(), generator(db, spy), pub, nil, quiet())

	res, err := s.Execute(ctx, AssignProjectInput{
		ActorID: "admin", EmployeeID: "emp-7", ProjectID: "42",
		Scores: map[string]float64{"channels": 0.9}, CorrelationID: "req-3",
	})
	require.NoError(t, err)
	assert.False(t, res.Fallback)
	assert.Equal(t, "42", res.Employee.AssignedProjectID)
	assert.Equal(t, []string{"goroutines", "channels"}, spy.topics)
	assert.Equal(t, map[string]float64{"goroutines": DefaultPriorScore, "channels": 0.9}, spy.scores)

	stored, err := db.Employees().GetByID(ctx, "emp-7")
	require.NoError(t, err)
	assert.Equal(t, "42", stored.AssignedProjectID)

	path, err := db.Learning().Latest(ctx, "emp-7")
	require.NoError(t, err)
	assert.Equal(t, res.Path.ID, path.ID)

	require.Len(t, pub.events, 1)
	assert.Equal(t, shared.EventProjectAssigned, pub.events[0].EventType())
}

func TestAssignProject_GeneratorFailureStoresFallback(t *testing.T) {
	db := setup(t)
	spy := &scoreSpy{err: shared.ErrLLMUnavailable}
	s := NewAssignProjectSaga(db.Employees(), db.Projects(), generator(db, spy), nil, nil, quiet())

	res, err := s.Execute(context.Background(), AssignProjectInput{ActorID: "admin", EmployeeID: "emp-7", ProjectID: "42"})
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Equal(t, []string{"goroutines", "channels"}, res.Path.Topics())
}

func TestAssignProject_CompensatesWhenPathNotStored(t *testing.T) {
	ctx := context.Background()
	db := setup(t)

	e, err := db.Employees().GetByID(ctx, "emp-7")
	require.NoError(t, err)
	e.AssignProject("43", t0)
	require.NoError(t, db.Employees().Update(ctx, e))

	boom := errors.New("store down")
	s := NewAssignProjectSaga(db.Employees(), db.Projects(), failingPaths{err: boom}, nil, nil, quiet())

	_, err = s.Execute(ctx, AssignProjectInput{ActorID: "admin", EmployeeID: "emp-7", ProjectID: "42"})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, IsStep(err, StepGeneratePath))

	var se *StepError
	require.ErrorAs(t, err, &se)
	assert.True(t, se.Compensated)

	stored, err := db.Employees().GetByID(ctx, "emp-7")
	require.NoError(t, err)
	assert.Equal(t, "43", stored.AssignedProjectID)
}

func TestAssignProject_Rejections(t *testing.T) {
	db := setup(t)
	s := NewAssignProjectSaga(db.Employees(), db.Projects(), generator(db, &scoreSpy{}), nil, nil, quiet())
	ctx := context.Background()

	_, err := s.Execute(ctx, AssignProjectInput{ActorID: "emp-7", EmployeeID: "emp-7", ProjectID: "42"})
	assert.True(t, IsStep(err, StepAuthorize))
	assert.True(t, shared.IsForbidden(err))

	_, err = s.Execute(ctx, AssignProjectInput{ActorID: "admin", EmployeeID: "emp-7", ProjectID: "404"})
	assert.True(t, IsStep(err, StepLoadProject))
	assert.ErrorIs(t, err, shared.ErrProjectNotFound)

	_, err = s.Execute(ctx, AssignProjectInput{ActorID: "admin", EmployeeID: "emp-7", ProjectID: "42", Scores: map[string]float64{"x": 1.5}})
	assert.True(t, IsStep(err, StepValidateInput))
	assert.True(t, shared.IsValidation(err))

	_, err = s.Execute(ctx, AssignProjectInput{ActorID: "admin", EmployeeID: "ghost", ProjectID: "42"})
	assert.True(t, IsStep(err, StepAssign))
	assert.True(t, shared.IsNotFound(err))
}
