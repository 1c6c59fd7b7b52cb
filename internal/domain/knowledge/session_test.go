package knowledge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnpro/kt-hub/internal/domain/shared"
)

var t0 = time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)

func TestScope_Key(t *testing.T) {
	tests := []struct {
		name  string
		scope Scope
		want  string
	}{
		{"project", ProjectScope("42"), "project:42"},
		{"project trimmed", ProjectScope("  42 "), "project:42"},
		{"repo https", RepoScope("https://github.com/Acme/API", "Alice"), "repo:github.com/acme/api@alice"},
		{"repo .git", RepoScope("https://github.com/acme/api.git", "alice"), "repo:github.com/acme/api@alice"},
		{"repo ssh", RepoScope("git@github.com:acme/api.git", "alice"), "repo:github.com/acme/api@alice"},
		{"unknown kind", Scope{Kind: "team"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.scope.Key())
		})
	}
}

func TestScope_Validate(t *testing.T) {
	assert.NoError(t, ProjectScope("42").Validate())
	assert.NoError(t, RepoScope("https://github.com/acme/api", "alice").Validate())

	for name, s := range map[string]Scope{
		"empty project":  ProjectScope(""),
		"no username":    RepoScope("https://github.com/acme/api", ""),
		"not github":     RepoScope("https://gitlab.com/acme/api", "alice"),
		"unknown kind":   {Kind: "team", ProjectID: "42"},
		"zero value":     {},
		"repo no owner":  RepoScope("https://github.com/api", "alice"),
		"whitespace url": RepoScope("   ", "alice"),
	} {
		t.Run(name, func(t *testing.T) {
			err := s.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, shared.ErrInvalidInput)
		})
	}
}

func TestGiveSession_Complete(t *testing.T) {
	g, err := NewGiveSession("g1", "emp-7", ProjectScope("42"), t0)
	require.NoError(t, err)
	assert.Equal(t, GivePending, g.Status())

	require.NoError(t, g.AuthorizeCompletion("emp-7"))
	assert.ErrorIs(t, g.AuthorizeCompletion("emp-8"), shared.ErrForbidden)

	require.NoError(t, g.Complete("d1", t0.Add(time.Hour)))
	assert.Equal(t, GiveCompleted, g.Status())
	require.NotNil(t, g.CompletedAt)

	err = g.Complete("d2", t0.Add(2*time.Hour))
	assert.ErrorIs(t, err, shared.ErrAlreadyCompleted)
	assert.True(t, shared.IsConflict(err))
	assert.Equal(t, "d1", g.DigestID)

	assert.ErrorIs(t, g.AuthorizeCompletion("emp-7"), shared.ErrAlreadyCompleted)
}

func TestGiveSession_CompleteRequiresDigestID(t *testing.T) {
	g, err := NewGiveSession("g1", "emp-7", ProjectScope("42"), t0)
	require.NoError(t, err)
	assert.ErrorIs(t, g.Complete("", t0), shared.ErrInvalidID)
	assert.False(t, g.IsCompleted())
}

func TestNewGiveSession_Invalid(t *testing.T) {
	_, err := NewGiveSession("", "emp-7", ProjectScope("42"), t0)
	assert.ErrorIs(t, err, shared.ErrInvalidID)

	_, err = NewGiveSession("g1", "emp-7", ProjectScope(""), t0)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestNewReceiveSession(t *testing.T) {
	scope := ProjectScope("42")

	r, err := NewReceiveSession("r1", "emp-8", scope, nil, t0)
	require.NoError(t, err)
	assert.Equal(t, AwaitingDigest, r.Status)
	assert.Empty(t, r.DigestID)

	digest := &DigestRecord{ID: "d1", Scope: scope}
	r, err = NewReceiveSession("r2", "emp-8", scope, digest, t0)
	require.NoError(t, err)
	assert.Equal(t, ReadyToConsume, r.Status)
	assert.Equal(t, "d1", r.DigestID)

	// Дайджест другой области не подходит.
	other := &DigestRecord{ID: "d2", Scope: ProjectScope("43")}
	r, err = NewReceiveSession("r3", "emp-8", scope, other, t0)
	require.NoError(t, err)
	assert.Equal(t, AwaitingDigest, r.Status)
}

func TestReceiveSession_MarkConsumed(t *testing.T) {
	r, err := NewReceiveSession("r1", "emp-8", ProjectScope("42"), nil, t0)
	require.NoError(t, err)

	changed, err := r.MarkConsumed(t0)
	assert.False(t, changed)
	assert.ErrorIs(t, err, shared.ErrInvalidState)

	require.True(t, r.AttachDigest("d1", t0))

	changed, err = r.MarkConsumed(t0.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, Consumed, r.Status)

	changed, err = r.MarkConsumed(t0.Add(2 * time.Minute))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, t0.Add(time.Minute), r.UpdatedAt)
}

func TestReceiveSession_AttachDigestOnlyWhenAwaiting(t *testing.T) {
	r, err := NewReceiveSession("r1", "emp-8", ProjectScope("42"), &DigestRecord{ID: "d1", Scope: ProjectScope("42")}, t0)
	require.NoError(t, err)

	assert.False(t, r.AttachDigest("d2", t0))
	assert.Equal(t, "d1", r.DigestID)

	r, err = NewReceiveSession("r2", "emp-8", ProjectScope("42"), nil, t0)
	require.NoError(t, err)
	assert.False(t, r.AttachDigest("", t0))
	assert.Equal(t, AwaitingDigest, r.Status)
}

func TestReceiveSession_Repoint(t *testing.T) {
	scope := ProjectScope("42")
	replacement := &DigestRecord{ID: "d0", Scope: scope}

	t.Run("to older digest", func(t *testing.T) {
		r, _ := NewReceiveSession("r1", "emp-8", scope, &DigestRecord{ID: "d1", Scope: scope}, t0)
		r.Repoint(replacement, t0.Add(time.Hour))
		assert.Equal(t, "d0", r.DigestID)
		assert.Equal(t, ReadyToConsume, r.Status)
	})

	t.Run("no replacement resets ready", func(t *testing.T) {
		r, _ := NewReceiveSession("r1", "emp-8", scope, &DigestRecord{ID: "d1", Scope: scope}, t0)
		r.Repoint(nil, t0.Add(time.Hour))
		assert.Empty(t, r.DigestID)
		assert.Equal(t, AwaitingDigest, r.Status)
	})

	t.Run("consumed stays consumed", func(t *testing.T) {
		r, _ := NewReceiveSession("r1", "emp-8", scope, &DigestRecord{ID: "d1", Scope: scope}, t0)
		_, err := r.MarkConsumed(t0)
		require.NoError(t, err)
		r.Repoint(nil, t0.Add(time.Hour))
		assert.Empty(t, r.DigestID)
		assert.Equal(t, Consumed, r.Status)
	})
}

func TestNewDigestRecord(t *testing.T) {
	g, err := NewGiveSession("g1", "emp-7", ProjectScope("42"), t0)
	require.NoError(t, err)

	material := []string{"commit: add billing"}
	d, err := NewDigestRecord("d1", g, "## Billing\n...", material, t0)
	require.NoError(t, err)
	assert.Equal(t, "g1", d.GiveSessionID)
	assert.Equal(t, "emp-7", d.ProducedBy)
	assert.Equal(t, "project:42", d.Scope.Key())

	material[0] = "mutated"
	assert.Equal(t, "commit: add billing", d.RawMaterial[0])

	_, err = NewDigestRecord("d2", g, "   ", material, t0)
	assert.ErrorIs(t, err, shared.ErrDigestUnavailable)
}

func TestFanOut(t *testing.T) {
	scope := ProjectScope("42")
	g, err := NewGiveSession("g1", "emp-7", scope, t0)
	require.NoError(t, err)
	digest, err := NewDigestRecord("d1", g, "digest", []string{"x"}, t0)
	require.NoError(t, err)

	waiting, _ := NewReceiveSession("r1", "emp-8", scope, nil, t0)
	otherScope, _ := NewReceiveSession("r2", "emp-9", ProjectScope("43"), nil, t0)
	alreadyReady, _ := NewReceiveSession("r3", "emp-10", scope, &DigestRecord{ID: "d0", Scope: scope}, t0)

	changed := FanOut(digest, []*ReceiveSession{waiting, otherScope, alreadyReady}, t0.Add(time.Hour))
	require.Len(t, changed, 1)
	assert.Equal(t, "r1", changed[0].ID)
	assert.Equal(t, ReadyToConsume, waiting.Status)
	assert.Equal(t, "d1", waiting.DigestID)
	assert.Equal(t, AwaitingDigest, otherScope.Status)
	assert.Equal(t, "d0", alreadyReady.DigestID)

	assert.Empty(t, FanOut(digest, []*ReceiveSession{waiting, otherScope, alreadyReady}, t0.Add(2*time.Hour)))
}

func TestMaterialIsEmpty(t *testing.T) {
	assert.True(t, MaterialIsEmpty(nil))
	assert.True(t, MaterialIsEmpty([]string{"", "  \n"}))
	assert.False(t, MaterialIsEmpty([]string{"", "fix: retry"}))
}
