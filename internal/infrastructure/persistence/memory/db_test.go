package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnpro/kt-hub/internal/domain/employee"
	"github.com/learnpro/kt-hub/internal/domain/knowledge"
	"github.com/learnpro/kt-hub/internal/domain/learning"
	"github.com/learnpro/kt-hub/internal/domain/project"
	"github.com/learnpro/kt-hub/internal/domain/shared"
)

var t0 = time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)

func seedEmployees(t *testing.T, db *DB, ids ...string) {
	t.Helper()
	for _, id := range ids {
		e, err := employee.NewEmployee(employee.NewEmployeeParams{
			ID: id, Email: id + "@example.com", Role: employee.RoleEmployee,
		}, t0)
		require.NoError(t, err)
		require.NoError(t, db.Employees().Create(context.Background(), e))
	}
}

func TestEmployeeRepository(t *testing.T) {
	ctx := context.Background()
	db := NewDB()
	seedEmployees(t, db, "emp-1")

	dup, err := employee.NewEmployee(employee.NewEmployeeParams{
		ID: "emp-2", Email: "EMP-1@example.com", Role: employee.RoleEmployee,
	}, t0)
	require.NoError(t, err)
	assert.ErrorIs(t, db.Employees().Create(ctx, dup), shared.ErrConflict)

	e, err := db.Employees().GetByEmail(ctx, " Emp-1@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, "emp-1", e.ID)

	e.AssignProject("proj-1", t0)
	require.NoError(t, db.Employees().Update(ctx, e))
	got, err := db.Employees().GetByID(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, "proj-1", got.AssignedProjectID)

	_, err = db.Employees().GetByID(ctx, "missing")
	assert.True(t, shared.IsNotFound(err))
}

func TestProjectRepository(t *testing.T) {
	ctx := context.Background()
	db := NewDB()

	p, err := project.NewProject("proj-1", "Billing", "", []project.SubjectOutline{{Name: "Go", Topics: []string{"channels"}}}, t0)
	require.NoError(t, err)
	require.NoError(t, db.Projects().Create(ctx, p))

	same, err := project.NewProject("proj-2", "Billing", "", []project.SubjectOutline{{Name: "SQL"}}, t0)
	require.NoError(t, err)
	assert.ErrorIs(t, db.Projects().Create(ctx, same), shared.ErrConflict)

	got, err := db.Projects().GetByID(ctx, "proj-1")
	require.NoError(t, err)
	got.Subjects[0].Topics[0] = "mutated"

	again, err := db.Projects().GetByID(ctx, "proj-1")
	require.NoError(t, err)
	assert.Equal(t, "channels", again.Subjects[0].Topics[0])
}

func TestKnowledgeStore_UniquePerEmployeeAndScope(t *testing.T) {
	ctx := context.Background()
	db := NewDB()
	seedEmployees(t, db, "emp-7", "emp-8")
	store := db.Knowledge()

	g1, _ := knowledge.NewGiveSession("g1", "emp-7", knowledge.ProjectScope("42"), t0)
	require.NoError(t, store.CreateGiveSession(ctx, g1))

	g2, _ := knowledge.NewGiveSession("g2", "emp-7", knowledge.ProjectScope("42"), t0)
	assert.ErrorIs(t, store.CreateGiveSession(ctx, g2), shared.ErrConflict)

	g3, _ := knowledge.NewGiveSession("g3", "emp-8", knowledge.ProjectScope("42"), t0)
	assert.NoError(t, store.CreateGiveSession(ctx, g3))

	g4, _ := knowledge.NewGiveSession("g4", "ghost", knowledge.ProjectScope("42"), t0)
	assert.True(t, shared.IsNotFound(store.CreateGiveSession(ctx, g4)))
}

func TestKnowledgeStore_TxRollback(t *testing.T) {
	ctx := context.Background()
	db := NewDB()
	seedEmployees(t, db, "emp-7")
	store := db.Knowledge()

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(ctx context.Context, repo knowledge.Repository) error {
		g, _ := knowledge.NewGiveSession("g1", "emp-7", knowledge.ProjectScope("42"), t0)
		require.NoError(t, repo.CreateGiveSession(ctx, g))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = store.GetGiveSession(ctx, "g1")
	assert.ErrorIs(t, err, shared.ErrSessionNotFound)
}

func TestKnowledgeStore_CompletedGiveIsImmutable(t *testing.T) {
	ctx := context.Background()
	db := NewDB()
	seedEmployees(t, db, "emp-7")
	store := db.Knowledge()

	g, _ := knowledge.NewGiveSession("g1", "emp-7", knowledge.ProjectScope("42"), t0)
	require.NoError(t, store.CreateGiveSession(ctx, g))
	require.NoError(t, g.Complete("d1", t0))
	require.NoError(t, store.UpdateGiveSession(ctx, g))

	g.DigestID = "d2"
	assert.ErrorIs(t, store.UpdateGiveSession(ctx, g), shared.ErrAlreadyCompleted)
}

func TestKnowledgeStore_DeleteGiveDetachesReceivers(t *testing.T) {
	ctx := context.Background()
	db := NewDB()
	seedEmployees(t, db, "emp-7", "emp-8")
	store := db.Knowledge()
	scope := knowledge.ProjectScope("42")

	g, _ := knowledge.NewGiveSession("g1", "emp-7", scope, t0)
	require.NoError(t, store.CreateGiveSession(ctx, g))
	d, err := knowledge.NewDigestRecord("d1", g, "digest", []string{"m"}, t0)
	require.NoError(t, err)
	require.NoError(t, store.CreateDigest(ctx, d))

	r, _ := knowledge.NewReceiveSession("r1", "emp-8", scope, d, t0)
	require.NoError(t, store.CreateReceiveSession(ctx, r))

	byDigest, err := store.ListReceiversByDigest(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, byDigest, 1)

	require.NoError(t, store.DeleteGiveSession(ctx, "g1"))

	_, err = store.GetDigest(ctx, "d1")
	assert.ErrorIs(t, err, shared.ErrDigestNotFound)

	got, err := store.GetReceiveSession(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, got.DigestID)
	assert.Equal(t, knowledge.AwaitingDigest, got.Status)

	awaiting, err := store.ListAwaitingReceivers(ctx, scope.Key())
	require.NoError(t, err)
	assert.Len(t, awaiting, 1)
}

func TestKnowledgeStore_LatestDigestForScope(t *testing.T) {
	ctx := context.Background()
	db := NewDB()
	seedEmployees(t, db, "emp-7", "emp-9")
	store := db.Knowledge()
	scope := knowledge.ProjectScope("42")

	_, err := store.LatestDigestForScope(ctx, scope.Key())
	assert.ErrorIs(t, err, shared.ErrDigestNotFound)

	for i, emp := range []string{"emp-7", "emp-9"} {
		g, _ := knowledge.NewGiveSession("g-"+emp, emp, scope, t0)
		require.NoError(t, store.CreateGiveSession(ctx, g))
		d, err := knowledge.NewDigestRecord("d-"+emp, g, "digest", []string{"m"}, t0.Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
		require.NoError(t, store.CreateDigest(ctx, d))
	}

	latest, err := store.LatestDigestForScope(ctx, scope.Key())
	require.NoError(t, err)
	assert.Equal(t, "d-emp-9", latest.ID)
}

func TestLearningStore_Versions(t *testing.T) {
	ctx := context.Background()
	db := NewDB()
	seedEmployees(t, db, "emp-1")
	store := db.Learning()

	_, err := store.Latest(ctx, "emp-1")
	assert.ErrorIs(t, err, shared.ErrPathNotFound)

	for i, id := range []string{"p1", "p2"} {
		p, err := learning.NewLearningPath(id, "emp-1", learning.FallbackDraft([]string{"Go"}), t0.Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
		require.NoError(t, store.Create(ctx, p))
	}

	latest, err := store.Latest(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, "p2", latest.ID)

	_, err = latest.SubmitAssessment("Go", 90, t0.Add(3*time.Hour))
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, latest))

	all, err := store.ListByOwner(ctx, "emp-1")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "p2", all[0].ID)
	assert.True(t, all[0].AllCompleted())
	assert.False(t, all[1].AllCompleted())
}

func TestLearningStore_CreateRequiresOwner(t *testing.T) {
	db := NewDB()
	p, err := learning.NewLearningPath("p1", "ghost", learning.FallbackDraft(nil), t0)
	require.NoError(t, err)
	assert.True(t, shared.IsNotFound(db.Learning().Create(context.Background(), p)))
}

func TestWithinTx_CanceledContext(t *testing.T) {
	db := NewDB()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := db.Learning().WithinTx(ctx, func(context.Context, learning.Repository) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
