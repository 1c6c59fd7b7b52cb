package memory

import (
	"context"
	"sort"
	"time"

	"github.com/learnpro/kt-hub/internal/domain/learning"
	"github.com/learnpro/kt-hub/internal/domain/shared"
)

// LearningStore implements learning.Store in memory.
type LearningStore struct {
	pathRepo
}

var _ learning.Store = (*LearningStore)(nil)

// WithinTx runs fn atomically against a snapshot of the database.
func (s *LearningStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repo learning.Repository) error) error {
	return s.view.db.withinTx(ctx, func(tx *state) error {
		return fn(ctx, &pathRepo{view: view{db: s.view.db, tx: tx}})
	})
}

type pathRepo struct {
	view view
}

func (r *pathRepo) Create(_ context.Context, p *learning.LearningPath) error {
	return r.view.do(func(st *state) error {
		if _, ok := st.paths[p.ID]; ok {
			return shared.WrapError("memory", "CreatePath", shared.ErrConflict, "learning path id already used", nil)
		}
		if err := st.requireEmployee("CreatePath", p.OwnerID); err != nil {
			return err
		}
		st.paths[p.ID] = *p.Clone()
		return nil
	})
}

func (r *pathRepo) Latest(_ context.Context, ownerID string) (*learning.LearningPath, error) {
	var latest *learning.LearningPath
	err := r.view.do(func(st *state) error {
		for _, p := range st.paths {
			if p.OwnerID != ownerID {
				continue
			}
			if latest == nil || olderFirst(latest.CreatedAt, p.CreatedAt, latest.ID, p.ID) {
				latest = p.Clone()
			}
		}
		if latest == nil {
			return shared.ErrPathNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return latest, nil
}

func (r *pathRepo) Save(_ context.Context, p *learning.LearningPath) error {
	return r.view.do(func(st *state) error {
		if _, ok := st.paths[p.ID]; !ok {
			return shared.ErrPathNotFound
		}
		st.paths[p.ID] = *p.Clone()
		return nil
	})
}

func (r *pathRepo) ListByOwner(_ context.Context, ownerID string) ([]*learning.LearningPath, error) {
	var out []*learning.LearningPath
	err := r.view.do(func(st *state) error {
		for _, p := range st.paths {
			if p.OwnerID == ownerID {
				out = append(out, p.Clone())
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		return olderFirst(out[j].CreatedAt, out[i].CreatedAt, out[j].ID, out[i].ID)
	})
	return out, err
}

// olderFirst orders by creation time, then by id.
func olderFirst(a, b time.Time, aID, bID string) bool {
	if !a.Equal(b) {
		return a.Before(b)
	}
	return aID < bID
}
