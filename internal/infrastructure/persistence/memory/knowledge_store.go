package memory

import (
	"context"
	"sort"

	"github.com/learnpro/kt-hub/internal/domain/knowledge"
	"github.com/learnpro/kt-hub/internal/domain/shared"
)

// KnowledgeStore implements knowledge.Store in memory.
type KnowledgeStore struct {
	knowledgeRepo
}

var _ knowledge.Store = (*KnowledgeStore)(nil)

// WithinTx runs fn atomically against a snapshot of the database.
func (s *KnowledgeStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repo knowledge.Repository) error) error {
	return s.view.db.withinTx(ctx, func(tx *state) error {
		return fn(ctx, &knowledgeRepo{view: view{db: s.view.db, tx: tx}})
	})
}

type knowledgeRepo struct {
	view view
}

// LockScope is a no-op: the transaction already holds the database mutex.
func (r *knowledgeRepo) LockScope(ctx context.Context, scopeKey string) error {
	return ctx.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Give sessions
// ─────────────────────────────────────────────────────────────────────────────

func (r *knowledgeRepo) CreateGiveSession(_ context.Context, s *knowledge.GiveSession) error {
	return r.view.do(func(st *state) error {
		if _, ok := st.gives[s.ID]; ok {
			return shared.ErrGiveSessionExists
		}
		key := s.Scope.Key()
		for _, g := range st.gives {
			if g.EmployeeID == s.EmployeeID && g.Scope.Key() == key {
				return shared.ErrGiveSessionExists
			}
		}
		if err := st.requireEmployee("CreateGiveSession", s.EmployeeID); err != nil {
			return err
		}
		st.gives[s.ID] = copyGive(*s)
		return nil
	})
}

func (r *knowledgeRepo) GetGiveSession(_ context.Context, id string) (*knowledge.GiveSession, error) {
	var out *knowledge.GiveSession
	err := r.view.do(func(st *state) error {
		g, ok := st.gives[id]
		if !ok {
			return shared.ErrSessionNotFound
		}
		c := copyGive(g)
		out = &c
		return nil
	})
	return out, err
}

func (r *knowledgeRepo) UpdateGiveSession(_ context.Context, s *knowledge.GiveSession) error {
	return r.view.do(func(st *state) error {
		g, ok := st.gives[s.ID]
		if !ok {
			return shared.ErrSessionNotFound
		}
		if g.DigestID != "" && g.DigestID != s.DigestID {
			return shared.ErrGiveSessionCompleted
		}
		g.DigestID = s.DigestID
		g.CompletedAt = s.CompletedAt
		st.gives[s.ID] = copyGive(g)
		return nil
	})
}

func (r *knowledgeRepo) DeleteGiveSession(_ context.Context, id string) error {
	return r.view.do(func(st *state) error {
		if _, ok := st.gives[id]; !ok {
			return shared.ErrSessionNotFound
		}
		delete(st.gives, id)
		for did, d := range st.digests {
			if d.GiveSessionID == id {
				delete(st.digests, did)
				detachDigest(st, did)
			}
		}
		return nil
	})
}

func (r *knowledgeRepo) ListGiveSessions(_ context.Context, filter knowledge.SessionFilter) ([]*knowledge.GiveSession, error) {
	var out []*knowledge.GiveSession
	err := r.view.do(func(st *state) error {
		for _, g := range st.gives {
			if !matches(filter, g.EmployeeID, g.Scope.Key()) {
				continue
			}
			c := copyGive(g)
			out = append(out, &c)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		return olderFirst(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	return out, err
}

// ─────────────────────────────────────────────────────────────────────────────
// Receive sessions
// ─────────────────────────────────────────────────────────────────────────────

func (r *knowledgeRepo) CreateReceiveSession(_ context.Context, s *knowledge.ReceiveSession) error {
	return r.view.do(func(st *state) error {
		if _, ok := st.receives[s.ID]; ok {
			return shared.ErrReceiveSessionExists
		}
		key := s.Scope.Key()
		for _, rs := range st.receives {
			if rs.EmployeeID == s.EmployeeID && rs.Scope.Key() == key {
				return shared.ErrReceiveSessionExists
			}
		}
		if err := st.requireEmployee("CreateReceiveSession", s.EmployeeID); err != nil {
			return err
		}
		if s.DigestID != "" {
			if _, ok := st.digests[s.DigestID]; !ok {
				return shared.ErrDigestNotFound
			}
		}
		st.receives[s.ID] = *s
		return nil
	})
}

func (r *knowledgeRepo) GetReceiveSession(_ context.Context, id string) (*knowledge.ReceiveSession, error) {
	var out *knowledge.ReceiveSession
	err := r.view.do(func(st *state) error {
		rs, ok := st.receives[id]
		if !ok {
			return shared.ErrSessionNotFound
		}
		out = &rs
		return nil
	})
	return out, err
}

func (r *knowledgeRepo) UpdateReceiveSession(_ context.Context, s *knowledge.ReceiveSession) error {
	return r.view.do(func(st *state) error {
		rs, ok := st.receives[s.ID]
		if !ok {
			return shared.ErrSessionNotFound
		}
		rs.DigestID = s.DigestID
		rs.Status = s.Status
		rs.UpdatedAt = s.UpdatedAt
		st.receives[s.ID] = rs
		return nil
	})
}

func (r *knowledgeRepo) DeleteReceiveSession(_ context.Context, id string) error {
	return r.view.do(func(st *state) error {
		if _, ok := st.receives[id]; !ok {
			return shared.ErrSessionNotFound
		}
		delete(st.receives, id)
		return nil
	})
}

func (r *knowledgeRepo) ListReceiveSessions(_ context.Context, filter knowledge.SessionFilter) ([]*knowledge.ReceiveSession, error) {
	return r.listReceivers(func(rs knowledge.ReceiveSession) bool {
		return matches(filter, rs.EmployeeID, rs.Scope.Key())
	})
}

func (r *knowledgeRepo) ListAwaitingReceivers(_ context.Context, scopeKey string) ([]*knowledge.ReceiveSession, error) {
	return r.listReceivers(func(rs knowledge.ReceiveSession) bool {
		return rs.Status == knowledge.AwaitingDigest && rs.Scope.Key() == scopeKey
	})
}

func (r *knowledgeRepo) ListReceiversByDigest(_ context.Context, digestID string) ([]*knowledge.ReceiveSession, error) {
	return r.listReceivers(func(rs knowledge.ReceiveSession) bool {
		return digestID != "" && rs.DigestID == digestID
	})
}

func (r *knowledgeRepo) listReceivers(keep func(knowledge.ReceiveSession) bool) ([]*knowledge.ReceiveSession, error) {
	var out []*knowledge.ReceiveSession
	err := r.view.do(func(st *state) error {
		for _, rs := range st.receives {
			if keep(rs) {
				c := rs
				out = append(out, &c)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		return olderFirst(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	return out, err
}

// ─────────────────────────────────────────────────────────────────────────────
// Digests
// ─────────────────────────────────────────────────────────────────────────────

func (r *knowledgeRepo) CreateDigest(_ context.Context, d *knowledge.DigestRecord) error {
	return r.view.do(func(st *state) error {
		if _, ok := st.digests[d.ID]; ok {
			return shared.WrapError("memory", "CreateDigest", shared.ErrConflict, "digest id already used", nil)
		}
		for _, existing := range st.digests {
			if existing.GiveSessionID == d.GiveSessionID {
				return shared.ErrGiveSessionCompleted
			}
		}
		if _, ok := st.gives[d.GiveSessionID]; !ok {
			return shared.ErrSessionNotFound
		}
		st.digests[d.ID] = copyDigest(*d)
		return nil
	})
}

func (r *knowledgeRepo) GetDigest(_ context.Context, id string) (*knowledge.DigestRecord, error) {
	var out *knowledge.DigestRecord
	err := r.view.do(func(st *state) error {
		d, ok := st.digests[id]
		if !ok {
			return shared.ErrDigestNotFound
		}
		c := copyDigest(d)
		out = &c
		return nil
	})
	return out, err
}

func (r *knowledgeRepo) DeleteDigest(_ context.Context, id string) error {
	return r.view.do(func(st *state) error {
		if _, ok := st.digests[id]; !ok {
			return shared.ErrDigestNotFound
		}
		delete(st.digests, id)
		detachDigest(st, id)
		return nil
	})
}

func (r *knowledgeRepo) LatestDigestForScope(_ context.Context, scopeKey string) (*knowledge.DigestRecord, error) {
	var out *knowledge.DigestRecord
	err := r.view.do(func(st *state) error {
		for _, d := range st.digests {
			if d.Scope.Key() != scopeKey {
				continue
			}
			if out == nil || olderFirst(out.CreatedAt, d.CreatedAt, out.ID, d.ID) {
				c := copyDigest(d)
				out = &c
			}
		}
		if out == nil {
			return shared.ErrDigestNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// detachDigest mirrors ON DELETE SET NULL on receive_sessions.digest_id.
func detachDigest(st *state, digestID string) {
	for id, rs := range st.receives {
		if rs.DigestID == digestID {
			rs.DigestID = ""
			if rs.Status == knowledge.ReadyToConsume {
				rs.Status = knowledge.AwaitingDigest
			}
			st.receives[id] = rs
		}
	}
}

func copyGive(g knowledge.GiveSession) knowledge.GiveSession {
	if g.CompletedAt != nil {
		t := *g.CompletedAt
		g.CompletedAt = &t
	}
	return g
}

func copyDigest(d knowledge.DigestRecord) knowledge.DigestRecord {
	d.RawMaterial = append([]string(nil), d.RawMaterial...)
	return d
}

func matches(filter knowledge.SessionFilter, employeeID, scopeKey string) bool {
	if filter.EmployeeID != "" && filter.EmployeeID != employeeID {
		return false
	}
	if filter.ScopeKey != "" && filter.ScopeKey != scopeKey {
		return false
	}
	return true
}
