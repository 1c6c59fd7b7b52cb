package command

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnpro/kt-hub/internal/domain/employee"
	"github.com/learnpro/kt-hub/internal/domain/knowledge"
	"github.com/learnpro/kt-hub/internal/domain/shared"
)

type ktHandlers struct {
	createGive    *CreateGiveSessionHandler
	complete      *CompleteGiveSessionHandler
	createReceive *CreateReceiveSessionHandler
	markConsumed  *MarkConsumedHandler
	deleteSession *DeleteSessionHandler
	digester      *fakeDigester
}

func newKTHandlers(f *fixture, digester *fakeDigester, commits CommitHistory, repos RepoResolver) *ktHandlers {
	store := f.db.Knowledge()
	return &ktHandlers{
		createGive:    NewCreateGiveSessionHandler(store, f.db.Employees(), f.db.Projects(), repos, f.events, f.ids, f.clock),
		complete:      NewCompleteGiveSessionHandler(store, digester, commits, f.events, f.ids, f.clock, quietLogger(), CompleteGiveSessionConfig{DigestAttempts: 2, DigestTimeout: 5 * time.Second}),
		createReceive: NewCreateReceiveSessionHandler(store, f.db.Employees(), f.db.Projects(), repos, f.events, f.ids, f.clock),
		markConsumed:  NewMarkConsumedHandler(store, f.events, f.clock),
		deleteSession: NewDeleteSessionHandler(store, f.db.Employees(), f.events, f.clock),
		digester:      digester,
	}
}

func (h *ktHandlers) give(t *testing.T, employeeID string, scope knowledge.Scope) *knowledge.GiveSession {
	t.Helper()
	res, err := h.createGive.Handle(context.Background(), CreateGiveSessionCommand{ActorID: "admin", EmployeeID: employeeID, Scope: scope})
	require.NoError(t, err)
	return res.Session
}

func (h *ktHandlers) receive(t *testing.T, employeeID string, scope knowledge.Scope) *knowledge.ReceiveSession {
	t.Helper()
	res, err := h.createReceive.Handle(context.Background(), CreateReceiveSessionCommand{ActorID: "admin", EmployeeID: employeeID, Scope: scope})
	require.NoError(t, err)
	return res.Session
}

func TestCreateGiveSession(t *testing.T) {
	f := newFixture(t)
	h := newKTHandlers(f, &fakeDigester{content: "digest"}, nil, nil)

	res, err := h.createGive.Handle(context.Background(), CreateGiveSessionCommand{
		ActorID: "admin", EmployeeID: "emp-7", Scope: knowledge.ProjectScope("42"), CorrelationID: "req-1",
	})
	require.NoError(t, err)
	assert.Equal(t, knowledge.GivePending, res.Session.Status())
	assert.Equal(t, "project:42", res.Session.Scope.Key())

	require.Len(t, res.Events, 1)
	created, ok := res.Events[0].(shared.GiveSessionCreatedEvent)
	require.True(t, ok)
	assert.Equal(t, "emp-7@example.com", created.EmployeeEmail)
	assert.Equal(t, "req-1", created.CorrelationID)
	assert.Equal(t, []shared.EventType{shared.EventGiveSessionCreated}, f.events.types())
}

func TestCreateGiveSession_Duplicate(t *testing.T) {
	f := newFixture(t)
	h := newKTHandlers(f, &fakeDigester{content: "digest"}, nil, nil)
	h.give(t, "emp-7", knowledge.ProjectScope("42"))

	_, err := h.createGive.Handle(context.Background(), CreateGiveSessionCommand{
		ActorID: "admin", EmployeeID: "emp-7", Scope: knowledge.ProjectScope("42"),
	})
	assert.ErrorIs(t, err, shared.ErrGiveSessionExists)
	assert.True(t, shared.IsConflict(err))

	// Другой сотрудник может отдавать ту же область.
	h.give(t, "emp-9", knowledge.ProjectScope("42"))
}

func TestCreateGiveSession_Rejections(t *testing.T) {
	f := newFixture(t)
	h := newKTHandlers(f, &fakeDigester{}, nil, fakeRepos{err: shared.ErrGitHubRepoNotFound})
	ctx := context.Background()

	_, err := h.createGive.Handle(ctx, CreateGiveSessionCommand{ActorID: "emp-8", EmployeeID: "emp-7", Scope: knowledge.ProjectScope("42")})
	assert.True(t, shared.IsForbidden(err))

	_, err = h.createGive.Handle(ctx, CreateGiveSessionCommand{ActorID: "admin", EmployeeID: "emp-7", Scope: knowledge.ProjectScope("404")})
	assert.ErrorIs(t, err, shared.ErrProjectNotFound)

	_, err = h.createGive.Handle(ctx, CreateGiveSessionCommand{ActorID: "admin", EmployeeID: "ghost", Scope: knowledge.ProjectScope("42")})
	assert.True(t, shared.IsNotFound(err))

	_, err = h.createGive.Handle(ctx, CreateGiveSessionCommand{ActorID: "admin", EmployeeID: "emp-7", Scope: knowledge.RepoScope("not a url", "alice")})
	assert.True(t, shared.IsValidation(err))

	_, err = h.createGive.Handle(ctx, CreateGiveSessionCommand{ActorID: "admin", EmployeeID: "emp-7", Scope: knowledge.RepoScope("https://github.com/acme/gone", "alice")})
	assert.ErrorIs(t, err, shared.ErrGitHubRepoNotFound)

	assert.Empty(t, f.events.types())
}

func TestCompleteGiveSession_FansOut(t *testing.T) {
	f := newFixture(t)
	h := newKTHandlers(f, &fakeDigester{content: "## Billing digest"}, nil, nil)
	ctx := context.Background()
	scope := knowledge.ProjectScope("42")

	g := h.give(t, "emp-7", scope)
	r8 := h.receive(t, "emp-8", scope)
	r9 := h.receive(t, "emp-9", scope)
	other := h.receive(t, "emp-8", knowledge.RepoScope("https://github.com/acme/api", "alice"))
	assert.Equal(t, knowledge.AwaitingDigest, r8.Status)

	res, err := h.complete.Handle(ctx, CompleteGiveSessionCommand{
		SessionID: g.ID, CallerID: "emp-7", Material: []string{"we bill monthly"},
	})
	require.NoError(t, err)
	assert.Equal(t, knowledge.GiveCompleted, res.Session.Status())
	assert.Equal(t, "## Billing digest", res.Digest.Content)
	assert.Equal(t, []string{"we bill monthly"}, res.Digest.RawMaterial)
	assert.Len(t, res.FannedOut, 2)

	for _, id := range []string{r8.ID, r9.ID} {
		got, err := f.db.Knowledge().GetReceiveSession(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, knowledge.ReadyToConsume, got.Status)
		assert.Equal(t, res.Digest.ID, got.DigestID)
	}
	untouched, err := f.db.Knowledge().GetReceiveSession(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, knowledge.AwaitingDigest, untouched.Status)

	assert.Contains(t, f.events.types(), shared.EventGiveSessionCompleted)
	assert.Contains(t, f.events.types(), shared.EventDigestFannedOut)
}

func TestCompleteGiveSession_SecondCompletionConflicts(t *testing.T) {
	f := newFixture(t)
	h := newKTHandlers(f, &fakeDigester{content: "digest"}, nil, nil)
	ctx := context.Background()
	scope := knowledge.ProjectScope("42")
	g := h.give(t, "emp-7", scope)

	first, err := h.complete.Handle(ctx, CompleteGiveSessionCommand{SessionID: g.ID, CallerID: "emp-7", Material: []string{"a"}})
	require.NoError(t, err)

	_, err = h.complete.Handle(ctx, CompleteGiveSessionCommand{SessionID: g.ID, CallerID: "emp-7", Material: []string{"b"}})
	assert.ErrorIs(t, err, shared.ErrAlreadyCompleted)
	assert.True(t, shared.IsConflict(err))

	assert.EqualValues(t, 1, h.digester.calls.Load())
	latest, err := f.db.Knowledge().LatestDigestForScope(ctx, scope.Key())
	require.NoError(t, err)
	assert.Equal(t, first.Digest.ID, latest.ID)
}

func TestCompleteGiveSession_OnlyOwner(t *testing.T) {
	f := newFixture(t)
	h := newKTHandlers(f, &fakeDigester{content: "digest"}, nil, nil)
	g := h.give(t, "emp-7", knowledge.ProjectScope("42"))

	_, err := h.complete.Handle(context.Background(), CompleteGiveSessionCommand{SessionID: g.ID, CallerID: "admin", Material: []string{"a"}})
	assert.ErrorIs(t, err, shared.ErrNotSessionOwner)
	assert.Zero(t, h.digester.calls.Load())

	_, err = h.complete.Handle(context.Background(), CompleteGiveSessionCommand{SessionID: "missing", CallerID: "emp-7", Material: []string{"a"}})
	assert.ErrorIs(t, err, shared.ErrSessionNotFound)
}

func TestCompleteGiveSession_EmptyMaterial(t *testing.T) {
	f := newFixture(t)
	h := newKTHandlers(f, &fakeDigester{content: "digest"}, nil, nil)
	g := h.give(t, "emp-7", knowledge.ProjectScope("42"))

	_, err := h.complete.Handle(context.Background(), CompleteGiveSessionCommand{SessionID: g.ID, CallerID: "emp-7", Material: []string{" ", ""}})
	assert.ErrorIs(t, err, shared.ErrEmptyMaterial)
	assert.Zero(t, h.digester.calls.Load())
}

func TestCompleteGiveSession_RepoScopeUsesCommitHistory(t *testing.T) {
	f := newFixture(t)
	commits := fakeCommits{material: []string{"abc123 fix: retry webhook delivery"}}
	h := newKTHandlers(f, &fakeDigester{content: "digest"}, commits, nil)
	g := h.give(t, "emp-7", knowledge.RepoScope("https://github.com/acme/api", "alice"))

	res, err := h.complete.Handle(context.Background(), CompleteGiveSessionCommand{SessionID: g.ID, CallerID: "emp-7"})
	require.NoError(t, err)
	assert.Equal(t, commits.material, res.Digest.RawMaterial)
	require.Len(t, h.digester.seen, 1)
	assert.Equal(t, commits.material, h.digester.seen[0])
}

func TestCompleteGiveSession_RepoScopeWithoutCommits(t *testing.T) {
	f := newFixture(t)
	h := newKTHandlers(f, &fakeDigester{content: "digest"}, fakeCommits{}, nil)
	g := h.give(t, "emp-7", knowledge.RepoScope("https://github.com/acme/api", "alice"))

	_, err := h.complete.Handle(context.Background(), CompleteGiveSessionCommand{SessionID: g.ID, CallerID: "emp-7"})
	assert.ErrorIs(t, err, shared.ErrEmptyMaterial)
}

func TestCompleteGiveSession_GeneratorFailureLeavesSessionPending(t *testing.T) {
	f := newFixture(t)
	digester := &fakeDigester{failFirst: 100}
	h := newKTHandlers(f, digester, nil, nil)
	h.complete = NewCompleteGiveSessionHandler(f.db.Knowledge(), digester, nil, f.events, f.ids, f.clock, quietLogger(),
		CompleteGiveSessionConfig{DigestAttempts: 2, DigestTimeout: 50 * time.Millisecond})
	ctx := context.Background()
	g := h.give(t, "emp-7", knowledge.ProjectScope("42"))

	_, err := h.complete.Handle(ctx, CompleteGiveSessionCommand{SessionID: g.ID, CallerID: "emp-7", Material: []string{"a"}})
	assert.ErrorIs(t, err, shared.ErrDigestUnavailable)
	assert.GreaterOrEqual(t, digester.calls.Load(), int32(1))

	got, err := f.db.Knowledge().GetGiveSession(ctx, g.ID)
	require.NoError(t, err)
	assert.False(t, got.IsCompleted())
	_, err = f.db.Knowledge().LatestDigestForScope(ctx, g.Scope.Key())
	assert.ErrorIs(t, err, shared.ErrDigestNotFound)
}

func TestCompleteGiveSession_RetriesTransientFailure(t *testing.T) {
	f := newFixture(t)
	h := newKTHandlers(f, &fakeDigester{failFirst: 1, content: "digest"}, nil, nil)
	g := h.give(t, "emp-7", knowledge.ProjectScope("42"))

	res, err := h.complete.Handle(context.Background(), CompleteGiveSessionCommand{SessionID: g.ID, CallerID: "emp-7", Material: []string{"a"}})
	require.NoError(t, err)
	assert.Equal(t, "digest", res.Digest.Content)
	assert.EqualValues(t, 2, h.digester.calls.Load())
}

func TestCreateReceiveSession_AfterDigestIsReady(t *testing.T) {
	f := newFixture(t)
	h := newKTHandlers(f, &fakeDigester{content: "digest"}, nil, nil)
	scope := knowledge.ProjectScope("42")
	g := h.give(t, "emp-7", scope)
	done, err := h.complete.Handle(context.Background(), CompleteGiveSessionCommand{SessionID: g.ID, CallerID: "emp-7", Material: []string{"a"}})
	require.NoError(t, err)

	r := h.receive(t, "emp-8", scope)
	assert.Equal(t, knowledge.ReadyToConsume, r.Status)
	assert.Equal(t, done.Digest.ID, r.DigestID)

	_, err = h.createReceive.Handle(context.Background(), CreateReceiveSessionCommand{ActorID: "admin", EmployeeID: "emp-8", Scope: scope})
	assert.ErrorIs(t, err, shared.ErrReceiveSessionExists)
}

func TestMarkConsumed(t *testing.T) {
	f := newFixture(t)
	h := newKTHandlers(f, &fakeDigester{content: "digest"}, nil, nil)
	ctx := context.Background()
	scope := knowledge.ProjectScope("42")

	r := h.receive(t, "emp-8", scope)
	_, err := h.markConsumed.Handle(ctx, MarkConsumedCommand{SessionID: r.ID})
	assert.ErrorIs(t, err, shared.ErrInvalidState)

	g := h.give(t, "emp-7", scope)
	_, err = h.complete.Handle(ctx, CompleteGiveSessionCommand{SessionID: g.ID, CallerID: "emp-7", Material: []string{"a"}})
	require.NoError(t, err)

	res, err := h.markConsumed.Handle(ctx, MarkConsumedCommand{SessionID: r.ID})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, knowledge.Consumed, res.Session.Status)

	again, err := h.markConsumed.Handle(ctx, MarkConsumedCommand{SessionID: r.ID})
	require.NoError(t, err)
	assert.False(t, again.Changed)

	consumed := 0
	for _, typ := range f.events.types() {
		if typ == shared.EventReceiveSessionConsumed {
			consumed++
		}
	}
	assert.Equal(t, 1, consumed)

	_, err = h.markConsumed.Handle(ctx, MarkConsumedCommand{SessionID: "missing"})
	assert.True(t, shared.IsNotFound(err))
}

func TestDeleteSession_RepointsToRemainingDigest(t *testing.T) {
	f := newFixture(t)
	h := newKTHandlers(f, &fakeDigester{content: "digest"}, nil, nil)
	ctx := context.Background()
	scope := knowledge.ProjectScope("42")

	older := h.give(t, "emp-9", scope)
	olderDone, err := h.complete.Handle(ctx, CompleteGiveSessionCommand{SessionID: older.ID, CallerID: "emp-9", Material: []string{"old"}})
	require.NoError(t, err)

	newer := h.give(t, "emp-7", scope)
	_, err = h.complete.Handle(ctx, CompleteGiveSessionCommand{SessionID: newer.ID, CallerID: "emp-7", Material: []string{"new"}})
	require.NoError(t, err)

	r := h.receive(t, "emp-8", scope)
	require.NotEqual(t, olderDone.Digest.ID, r.DigestID)

	res, err := h.deleteSession.Handle(ctx, DeleteSessionCommand{ActorID: "admin", SessionID: newer.ID, Direction: DirectionGive})
	require.NoError(t, err)
	require.Len(t, res.Repointed, 1)

	got, err := f.db.Knowledge().GetReceiveSession(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, olderDone.Digest.ID, got.DigestID)
	assert.Equal(t, knowledge.ReadyToConsume, got.Status)
}

func TestDeleteSession_LastDigestResetsReceivers(t *testing.T) {
	f := newFixture(t)
	h := newKTHandlers(f, &fakeDigester{content: "digest"}, nil, nil)
	ctx := context.Background()
	scope := knowledge.ProjectScope("42")

	g := h.give(t, "emp-7", scope)
	_, err := h.complete.Handle(ctx, CompleteGiveSessionCommand{SessionID: g.ID, CallerID: "emp-7", Material: []string{"a"}})
	require.NoError(t, err)
	r := h.receive(t, "emp-8", scope)

	_, err = h.deleteSession.Handle(ctx, DeleteSessionCommand{ActorID: "admin", SessionID: g.ID, Direction: DirectionGive})
	require.NoError(t, err)

	got, err := f.db.Knowledge().GetReceiveSession(ctx, r.ID)
	require.NoError(t, err)
	assert.Empty(t, got.DigestID)
	assert.Equal(t, knowledge.AwaitingDigest, got.Status)

	// Новая передача знаний снова раздаёт дайджест.
	g2 := h.give(t, "emp-7", scope)
	res, err := h.complete.Handle(ctx, CompleteGiveSessionCommand{SessionID: g2.ID, CallerID: "emp-7", Material: []string{"b"}})
	require.NoError(t, err)
	assert.Len(t, res.FannedOut, 1)
}

func TestDeleteSession_Receive(t *testing.T) {
	f := newFixture(t)
	h := newKTHandlers(f, &fakeDigester{content: "digest"}, nil, nil)
	ctx := context.Background()
	r := h.receive(t, "emp-8", knowledge.ProjectScope("42"))

	_, err := h.deleteSession.Handle(ctx, DeleteSessionCommand{ActorID: "emp-8", SessionID: r.ID, Direction: DirectionReceive})
	assert.True(t, shared.IsForbidden(err))

	_, err = h.deleteSession.Handle(ctx, DeleteSessionCommand{ActorID: "admin", SessionID: r.ID, Direction: "sideways"})
	assert.True(t, shared.IsValidation(err))

	res, err := h.deleteSession.Handle(ctx, DeleteSessionCommand{ActorID: "admin", SessionID: r.ID, Direction: DirectionReceive})
	require.NoError(t, err)
	assert.Equal(t, "project:42", res.ScopeKey)

	_, err = f.db.Knowledge().GetReceiveSession(ctx, r.ID)
	assert.True(t, errors.Is(err, shared.ErrSessionNotFound))
}

func TestCreateGiveSession_ConcurrentDuplicates(t *testing.T) {
	f := newFixture(t)
	h := newKTHandlers(f, &fakeDigester{content: "digest"}, nil, nil)

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.createGive.Handle(context.Background(), CreateGiveSessionCommand{
				ActorID: "admin", EmployeeID: "emp-7", Scope: knowledge.ProjectScope("42"),
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, shared.IsConflict(err), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)

	gives, err := f.db.Knowledge().ListGiveSessions(context.Background(), knowledge.SessionFilter{EmployeeID: "emp-7"})
	require.NoError(t, err)
	assert.Len(t, gives, 1)
}

func TestCompleteGiveSession_ConcurrentCompletions(t *testing.T) {
	f := newFixture(t)
	h := newKTHandlers(f, &fakeDigester{content: "digest"}, nil, nil)
	ctx := context.Background()
	scope := knowledge.ProjectScope("42")

	g := h.give(t, "emp-7", scope)
	r8 := h.receive(t, "emp-8", scope)
	r9 := h.receive(t, "emp-9", scope)

	const n = 6
	results := make([]*CompleteGiveSessionResult, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = h.complete.Handle(ctx, CompleteGiveSessionCommand{
				SessionID: g.ID, CallerID: "emp-7", Material: []string{"a", "b"},
			})
		}(i)
	}
	wg.Wait()

	var winner *CompleteGiveSessionResult
	for i, err := range errs {
		if err == nil {
			require.Nil(t, winner, "second completion succeeded")
			winner = results[i]
			continue
		}
		assert.ErrorIs(t, err, shared.ErrGiveSessionCompleted)
		assert.True(t, shared.IsConflict(err))
	}
	require.NotNil(t, winner)

	digests := 0
	for i := 1; i <= 100; i++ {
		if _, err := f.db.Knowledge().GetDigest(ctx, fmt.Sprintf("id-%d", i)); err == nil {
			digests++
		}
	}
	assert.Equal(t, 1, digests)

	for _, id := range []string{r8.ID, r9.ID} {
		got, err := f.db.Knowledge().GetReceiveSession(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, knowledge.ReadyToConsume, got.Status)
		assert.Equal(t, winner.Digest.ID, got.DigestID)
	}
}

func TestCompleteGiveSession_RacesReceiveCreation(t *testing.T) {
	f := newFixture(t)
	h := newKTHandlers(f, &fakeDigester{content: "digest"}, nil, nil)
	ctx := context.Background()
	scope := knowledge.ProjectScope("42")

	receivers := make([]string, 0, 10)
	for i := 10; i < 20; i++ {
		id := fmt.Sprintf("emp-%d", i)
		e, err := employee.NewEmployee(employee.NewEmployeeParams{ID: id, Email: id + "@example.com", Role: employee.RoleEmployee}, t0)
		require.NoError(t, err)
		require.NoError(t, f.db.Employees().Create(ctx, e))
		receivers = append(receivers, id)
	}
	g := h.give(t, "emp-7", scope)

	var (
		wg         sync.WaitGroup
		completed  *CompleteGiveSessionResult
		completeEr error
	)
	sessions := make([]*knowledge.ReceiveSession, len(receivers))
	errs := make([]error, len(receivers))

	wg.Add(1)
	go func() {
		defer wg.Done()
		completed, completeEr = h.complete.Handle(ctx, CompleteGiveSessionCommand{
			SessionID: g.ID, CallerID: "emp-7", Material: []string{"a", "b"},
		})
	}()
	for i, id := range receivers {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			res, err := h.createReceive.Handle(ctx, CreateReceiveSessionCommand{ActorID: "admin", EmployeeID: id, Scope: scope})
			errs[i] = err
			if err == nil {
				sessions[i] = res.Session
			}
		}(i, id)
	}
	wg.Wait()

	require.NoError(t, completeEr)
	for i := range receivers {
		require.NoError(t, errs[i])
		got, err := f.db.Knowledge().GetReceiveSession(ctx, sessions[i].ID)
		require.NoError(t, err)
		assert.Equal(t, knowledge.ReadyToConsume, got.Status, "receiver %s missed the digest", receivers[i])
		assert.Equal(t, completed.Digest.ID, got.DigestID)
	}
}
