package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/learnpro/kt-hub/internal/domain/learning"
	"github.com/learnpro/kt-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEARNING PATH STORE
// ══════════════════════════════════════════════════════════════════════════════

// LearningPathStore implements learning.Store for PostgreSQL.
// Subjects are stored as one JSONB document per path version.
type LearningPathStore struct {
	pathRepo
	conn *Connection
}

var _ learning.Store = (*LearningPathStore)(nil)

// NewLearningPathStore creates a new LearningPathStore.
func NewLearningPathStore(conn *Connection) *LearningPathStore {
	return &LearningPathStore{pathRepo: pathRepo{q: conn}, conn: conn}
}

// WithinTx runs fn in a transaction; Latest locks the returned row.
func (s *LearningPathStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repo learning.Repository) error) error {
	return s.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		return fn(ctx, &pathRepo{q: tx, forUpdate: true})
	})
}

type pathRepo struct {
	q         Querier
	forUpdate bool
}

const pathColumns = `id, owner_id, name, total_estimated_hours, subjects, fallback, completed_topics, total_topics, created_at, updated_at`

// Create inserts a new path version.
func (r *pathRepo) Create(ctx context.Context, p *learning.LearningPath) error {
	query := `
		INSERT INTO learning_paths (` + pathColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	subjects, err := json.Marshal(p.Subjects)
	if err != nil {
		return fmt.Errorf("failed to marshal subjects: %w", err)
	}

	_, err = r.q.Exec(ctx, query,
		p.ID,
		p.OwnerID,
		p.Name,
		p.TotalEstimatedHours,
		subjects,
		p.Fallback,
		p.CompletedTopics,
		p.TotalTopics,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.WrapError("learning", "Create", shared.ErrConflict, "learning path id already used", err)
		}
		if IsForeignKeyViolation(err) {
			return shared.ErrEmployeeNotFound
		}
		return fmt.Errorf("failed to create learning path: %w", err)
	}
	return nil
}

// Latest returns the newest version for the owner.
func (r *pathRepo) Latest(ctx context.Context, ownerID string) (*learning.LearningPath, error) {
	query := `SELECT ` + pathColumns + ` FROM learning_paths
		WHERE owner_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`
	if r.forUpdate {
		query += " FOR UPDATE"
	}

	p, err := scanPath(r.q.QueryRow(ctx, query, ownerID))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrPathNotFound
		}
		return nil, fmt.Errorf("failed to get latest learning path: %w", err)
	}
	return p, nil
}

// Save persists progress of an existing version.
func (r *pathRepo) Save(ctx context.Context, p *learning.LearningPath) error {
	query := `
		UPDATE learning_paths
		SET name = $1, total_estimated_hours = $2, subjects = $3,
		    completed_topics = $4, total_topics = $5, updated_at = $6
		WHERE id = $7
	`

	subjects, err := json.Marshal(p.Subjects)
	if err != nil {
		return fmt.Errorf("failed to marshal subjects: %w", err)
	}

	result, err := r.q.Exec(ctx, query,
		p.Name,
		p.TotalEstimatedHours,
		subjects,
		p.CompletedTopics,
		p.TotalTopics,
		p.UpdatedAt,
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to save learning path: %w", err)
	}
	if result.RowsAffected() == 0 {
		return shared.ErrPathNotFound
	}
	return nil
}

// ListByOwner returns every version for the owner, newest first.
func (r *pathRepo) ListByOwner(ctx context.Context, ownerID string) ([]*learning.LearningPath, error) {
	query := `SELECT ` + pathColumns + ` FROM learning_paths
		WHERE owner_id = $1
		ORDER BY created_at DESC, id DESC`

	rows, err := r.q.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list learning paths: %w", err)
	}
	defer rows.Close()

	var paths []*learning.LearningPath
	for rows.Next() {
		p, err := scanPath(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan learning path: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

func scanPath(row pgx.Row) (*learning.LearningPath, error) {
	var (
		p        learning.LearningPath
		subjects []byte
	)
	err := row.Scan(
		&p.ID,
		&p.OwnerID,
		&p.Name,
		&p.TotalEstimatedHours,
		&subjects,
		&p.Fallback,
		&p.CompletedTopics,
		&p.TotalTopics,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(subjects, &p.Subjects); err != nil {
		return nil, fmt.Errorf("failed to unmarshal subjects: %w", err)
	}
	return &p, nil
}
