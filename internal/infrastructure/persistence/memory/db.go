// Package memory provides in-memory implementations of the KT hub stores,
// used by tests and by APP_STORE=memory. One mutex guards the whole state;
// a transaction works on a cloned state that replaces the original on success.
package memory

import (
	"context"
	"sync"

	"github.com/learnpro/kt-hub/internal/domain/employee"
	"github.com/learnpro/kt-hub/internal/domain/knowledge"
	"github.com/learnpro/kt-hub/internal/domain/learning"
	"github.com/learnpro/kt-hub/internal/domain/project"
	"github.com/learnpro/kt-hub/internal/domain/shared"
)

type state struct {
	employees map[string]employee.Employee
	projects  map[string]project.Project
	gives     map[string]knowledge.GiveSession
	receives  map[string]knowledge.ReceiveSession
	digests   map[string]knowledge.DigestRecord
	paths     map[string]learning.LearningPath
}

func newState() *state {
	return &state{
		employees: make(map[string]employee.Employee),
		projects:  make(map[string]project.Project),
		gives:     make(map[string]knowledge.GiveSession),
		receives:  make(map[string]knowledge.ReceiveSession),
		digests:   make(map[string]knowledge.DigestRecord),
		paths:     make(map[string]learning.LearningPath),
	}
}

// clone copies the maps. Stored values own their slices: every write stores
// a fresh copy, so sharing them between the clone and the original is safe.
func (s *state) clone() *state {
	c := newState()
	for k, v := range s.employees {
		c.employees[k] = v
	}
	for k, v := range s.projects {
		c.projects[k] = v
	}
	for k, v := range s.gives {
		c.gives[k] = v
	}
	for k, v := range s.receives {
		c.receives[k] = v
	}
	for k, v := range s.digests {
		c.digests[k] = v
	}
	for k, v := range s.paths {
		c.paths[k] = v
	}
	return c
}

func (s *state) requireEmployee(op, id string) error {
	if _, ok := s.employees[id]; !ok {
		return shared.WrapError("memory", op, shared.ErrNotFound, "employee does not exist", shared.ErrEmployeeNotFound)
	}
	return nil
}

// DB is the shared in-memory database behind every memory store.
type DB struct {
	mu sync.Mutex
	st *state
}

// NewDB creates an empty database.
func NewDB() *DB {
	return &DB{st: newState()}
}

// Knowledge returns the knowledge.Store view of the database.
func (db *DB) Knowledge() *KnowledgeStore {
	return &KnowledgeStore{knowledgeRepo: knowledgeRepo{view: view{db: db}}}
}

// Learning returns the learning.Store view of the database.
func (db *DB) Learning() *LearningStore {
	return &LearningStore{pathRepo: pathRepo{view: view{db: db}}}
}

// Employees returns the employee repository.
func (db *DB) Employees() *EmployeeRepository {
	return &EmployeeRepository{view: view{db: db}}
}

// Projects returns the project repository.
func (db *DB) Projects() *ProjectRepository {
	return &ProjectRepository{view: view{db: db}}
}

// withinTx runs fn on a cloned state and commits it when fn succeeds.
// fn must not call non-transactional methods of the same DB.
func (db *DB) withinTx(ctx context.Context, fn func(tx *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	tx := db.st.clone()
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	db.st = tx
	return nil
}

// view runs a repository call either inside a transaction or under the lock.
type view struct {
	db *DB
	tx *state
}

func (v view) do(fn func(st *state) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.db.mu.Lock()
	defer v.db.mu.Unlock()
	return fn(v.db.st)
}
