package command

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/learnpro/kt-hub/internal/domain/employee"
	"github.com/learnpro/kt-hub/internal/domain/learning"
	"github.com/learnpro/kt-hub/internal/domain/project"
	"github.com/learnpro/kt-hub/internal/domain/shared"
	"github.com/learnpro/kt-hub/internal/infrastructure/persistence/memory"
	"github.com/learnpro/kt-hub/pkg/logger"
)

var t0 = time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)

// fixture is a memory database with an admin, three employees and project "42".
type fixture struct {
	db     *memory.DB
	events *recordingPublisher
	ids    func() string
	clock  func() time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db := memory.NewDB()

	add := func(id string, role employee.Role) {
		e, err := employee.NewEmployee(employee.NewEmployeeParams{ID: id, Email: id + "@example.com", Role: role}, t0)
		require.NoError(t, err)
		require.NoError(t, db.Employees().Create(ctx, e))
	}
	add("admin", employee.RoleAdmin)
	add("emp-7", employee.RoleEmployee)
	add("emp-8", employee.RoleEmployee)
	add("emp-9", employee.RoleEmployee)

	p, err := project.NewProject("42", "Billing", "", []project.SubjectOutline{
		{Name: "Go", Topics: []string{"goroutines", "channels"}},
		{Name: "SQL"},
	}, t0)
	require.NoError(t, err)
	require.NoError(t, db.Projects().Create(ctx, p))

	var seq atomic.Int64
	var tick atomic.Int64
	return &fixture{
		db:     db,
		events: &recordingPublisher{},
		ids:    func() string { return fmt.Sprintf("id-%d", seq.Add(1)) },
		clock:  func() time.Time { return t0.Add(time.Duration(tick.Add(1)) * time.Minute) },
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(e shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []shared.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]shared.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType()
	}
	return out
}

// fakeDigester returns a fixed digest after failing the first failFirst calls.
type fakeDigester struct {
	calls     atomic.Int32
	failFirst int32
	content   string
	seen      [][]string
	mu        sync.Mutex
}

func (g *fakeDigester) Digest(_ context.Context, material []string) (string, error) {
	n := g.calls.Add(1)
	g.mu.Lock()
	g.seen = append(g.seen, material)
	g.mu.Unlock()
	if n <= g.failFirst {
		return "", shared.ErrLLMUnavailable
	}
	return g.content, nil
}

type fakeCommits struct {
	material []string
	err      error
}

func (c fakeCommits) CollectMaterial(context.Context, string, string) ([]string, error) {
	return c.material, c.err
}

type fakeRepos struct{ err error }

func (r fakeRepos) ResolveRepo(context.Context, string) error { return r.err }

// fakePathGenerator returns shapes in order; a nil shape means an error.
type fakePathGenerator struct {
	calls  atomic.Int32
	shapes []learning.PathShape
}

func (g *fakePathGenerator) Generate(_ context.Context, _ []string, _ map[string]float64) (learning.PathShape, error) {
	n := int(g.calls.Add(1)) - 1
	if n >= len(g.shapes) || g.shapes[n] == nil {
		return nil, shared.ErrLLMUnavailable
	}
	return g.shapes[n], nil
}

func goShape() learning.PathShape {
	return learning.PathShape{
		"path_name": "Backend",
		"subjects": []interface{}{
			map[string]interface{}{"subject_name": "Go", "topics": []interface{}{"goroutines", "channels"}},
			map[string]interface{}{"subject_name": "SQL", "topics": []interface{}{"joins"}},
		},
	}
}

func quietLogger() *logger.Logger { return logger.Discard() }
