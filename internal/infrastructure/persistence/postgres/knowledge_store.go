package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/learnpro/kt-hub/internal/domain/knowledge"
	"github.com/learnpro/kt-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// KNOWLEDGE STORE
// ══════════════════════════════════════════════════════════════════════════════

// KnowledgeStore implements knowledge.Store for PostgreSQL.
// Outside WithinTx every call runs on the pool in its own implicit transaction.
type KnowledgeStore struct {
	knowledgeRepo
	conn *Connection
}

var _ knowledge.Store = (*KnowledgeStore)(nil)

// NewKnowledgeStore creates a new KnowledgeStore.
func NewKnowledgeStore(conn *Connection) *KnowledgeStore {
	return &KnowledgeStore{knowledgeRepo: knowledgeRepo{q: conn}, conn: conn}
}

// WithinTx runs fn in a read-committed transaction. Rows read through the
// transactional repository are locked with FOR UPDATE.
func (s *KnowledgeStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repo knowledge.Repository) error) error {
	return s.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		return fn(ctx, &knowledgeRepo{q: tx, forUpdate: true})
	})
}

// knowledgeRepo is bound either to the pool or to one transaction.
type knowledgeRepo struct {
	q         Querier
	forUpdate bool
}

func (r *knowledgeRepo) lockClause() string {
	if r.forUpdate {
		return " FOR UPDATE"
	}
	return ""
}

// LockScope takes a transaction-scoped advisory lock on the scope key.
// On the pool it is released as soon as the statement's implicit transaction ends.
func (r *knowledgeRepo) LockScope(ctx context.Context, scopeKey string) error {
	if _, err := r.q.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", scopeKey); err != nil {
		return fmt.Errorf("failed to lock scope %s: %w", scopeKey, err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Give sessions
// ─────────────────────────────────────────────────────────────────────────────

const giveColumns = `id, employee_id, scope_kind, project_id, repo_url, repo_username, digest_id, created_at, completed_at`

// CreateGiveSession inserts a give session; a duplicate (employee, scope) is a conflict.
func (r *knowledgeRepo) CreateGiveSession(ctx context.Context, s *knowledge.GiveSession) error {
	query := `
		INSERT INTO give_sessions (
			id, employee_id, scope_kind, project_id, repo_url, repo_username,
			scope_key, digest_id, created_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.q.Exec(ctx, query,
		s.ID,
		s.EmployeeID,
		string(s.Scope.Kind),
		nullString(s.Scope.ProjectID),
		s.Scope.RepoURL,
		s.Scope.Username,
		s.Scope.Key(),
		nullString(s.DigestID),
		s.CreatedAt,
		s.CompletedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrGiveSessionExists
		}
		if IsForeignKeyViolation(err) {
			return shared.WrapError("knowledge", "CreateGiveSession", shared.ErrNotFound, "employee or project does not exist", err)
		}
		return fmt.Errorf("failed to create give session: %w", err)
	}
	return nil
}

// GetGiveSession returns a give session by ID.
func (r *knowledgeRepo) GetGiveSession(ctx context.Context, id string) (*knowledge.GiveSession, error) {
	query := `SELECT ` + giveColumns + ` FROM give_sessions WHERE id = $1` + r.lockClause()

	s, err := scanGiveSession(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get give session: %w", err)
	}
	return s, nil
}

// UpdateGiveSession persists the completion fields. The digest reference is
// only ever set, never cleared, so the update is guarded on digest_id IS NULL.
func (r *knowledgeRepo) UpdateGiveSession(ctx context.Context, s *knowledge.GiveSession) error {
	query := `
		UPDATE give_sessions
		SET digest_id = $1, completed_at = $2
		WHERE id = $3 AND (digest_id IS NULL OR digest_id = $1)
	`

	result, err := r.q.Exec(ctx, query, nullString(s.DigestID), s.CompletedAt, s.ID)
	if err != nil {
		return fmt.Errorf("failed to update give session: %w", err)
	}
	if result.RowsAffected() == 0 {
		var exists bool
		if err := r.q.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM give_sessions WHERE id = $1)", s.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check give session existence: %w", err)
		}
		if !exists {
			return shared.ErrSessionNotFound
		}
		return shared.ErrGiveSessionCompleted
	}
	return nil
}

// DeleteGiveSession deletes a give session.
func (r *knowledgeRepo) DeleteGiveSession(ctx context.Context, id string) error {
	result, err := r.q.Exec(ctx, "DELETE FROM give_sessions WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete give session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return shared.ErrSessionNotFound
	}
	return nil
}

// ListGiveSessions returns give sessions matching the filter, oldest first.
func (r *knowledgeRepo) ListGiveSessions(ctx context.Context, filter knowledge.SessionFilter) ([]*knowledge.GiveSession, error) {
	where, args := filterClause(filter)
	query := `SELECT ` + giveColumns + ` FROM give_sessions` + where + ` ORDER BY created_at, id`

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list give sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*knowledge.GiveSession
	for rows.Next() {
		s, err := scanGiveSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan give session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func scanGiveSession(row pgx.Row) (*knowledge.GiveSession, error) {
	var (
		s         knowledge.GiveSession
		kind      string
		projectID *string
		digestID  *string
	)
	err := row.Scan(
		&s.ID,
		&s.EmployeeID,
		&kind,
		&projectID,
		&s.Scope.RepoURL,
		&s.Scope.Username,
		&digestID,
		&s.CreatedAt,
		&s.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Scope.Kind = knowledge.ScopeKind(kind)
	s.Scope.ProjectID = derefString(projectID)
	s.DigestID = derefString(digestID)
	return &s, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Receive sessions
// ─────────────────────────────────────────────────────────────────────────────

const receiveColumns = `id, employee_id, scope_kind, project_id, repo_url, repo_username, digest_id, status, created_at, updated_at`

// CreateReceiveSession inserts a receive session; a duplicate (employee, scope) is a conflict.
func (r *knowledgeRepo) CreateReceiveSession(ctx context.Context, s *knowledge.ReceiveSession) error {
	query := `
		INSERT INTO receive_sessions (
			id, employee_id, scope_kind, project_id, repo_url, repo_username,
			scope_key, digest_id, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.q.Exec(ctx, query,
		s.ID,
		s.EmployeeID,
		string(s.Scope.Kind),
		nullString(s.Scope.ProjectID),
		s.Scope.RepoURL,
		s.Scope.Username,
		s.Scope.Key(),
		nullString(s.DigestID),
		string(s.Status),
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrReceiveSessionExists
		}
		if IsForeignKeyViolation(err) {
			return shared.WrapError("knowledge", "CreateReceiveSession", shared.ErrNotFound, "employee, project or digest does not exist", err)
		}
		return fmt.Errorf("failed to create receive session: %w", err)
	}
	return nil
}

// GetReceiveSession returns a receive session by ID.
func (r *knowledgeRepo) GetReceiveSession(ctx context.Context, id string) (*knowledge.ReceiveSession, error) {
	query := `SELECT ` + receiveColumns + ` FROM receive_sessions WHERE id = $1` + r.lockClause()

	s, err := scanReceiveSession(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get receive session: %w", err)
	}
	return s, nil
}

// UpdateReceiveSession persists digest reference and status.
func (r *knowledgeRepo) UpdateReceiveSession(ctx context.Context, s *knowledge.ReceiveSession) error {
	query := `
		UPDATE receive_sessions
		SET digest_id = $1, status = $2, updated_at = $3
		WHERE id = $4
	`

	result, err := r.q.Exec(ctx, query, nullString(s.DigestID), string(s.Status), s.UpdatedAt, s.ID)
	if err != nil {
		return fmt.Errorf("failed to update receive session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return shared.ErrSessionNotFound
	}
	return nil
}

// DeleteReceiveSession deletes a receive session.
func (r *knowledgeRepo) DeleteReceiveSession(ctx context.Context, id string) error {
	result, err := r.q.Exec(ctx, "DELETE FROM receive_sessions WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete receive session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return shared.ErrSessionNotFound
	}
	return nil
}

// ListReceiveSessions returns receive sessions matching the filter, oldest first.
func (r *knowledgeRepo) ListReceiveSessions(ctx context.Context, filter knowledge.SessionFilter) ([]*knowledge.ReceiveSession, error) {
	where, args := filterClause(filter)
	query := `SELECT ` + receiveColumns + ` FROM receive_sessions` + where + ` ORDER BY created_at, id`
	return r.queryReceivers(ctx, query, args...)
}

// ListAwaitingReceivers returns the scope's sessions still waiting for a digest.
func (r *knowledgeRepo) ListAwaitingReceivers(ctx context.Context, scopeKey string) ([]*knowledge.ReceiveSession, error) {
	query := `SELECT ` + receiveColumns + ` FROM receive_sessions
		WHERE scope_key = $1 AND status = $2
		ORDER BY created_at, id` + r.lockClause()
	return r.queryReceivers(ctx, query, scopeKey, string(knowledge.AwaitingDigest))
}

// ListReceiversByDigest returns sessions referencing the digest.
func (r *knowledgeRepo) ListReceiversByDigest(ctx context.Context, digestID string) ([]*knowledge.ReceiveSession, error) {
	query := `SELECT ` + receiveColumns + ` FROM receive_sessions
		WHERE digest_id = $1
		ORDER BY created_at, id` + r.lockClause()
	return r.queryReceivers(ctx, query, digestID)
}

func (r *knowledgeRepo) queryReceivers(ctx context.Context, query string, args ...any) ([]*knowledge.ReceiveSession, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query receive sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*knowledge.ReceiveSession
	for rows.Next() {
		s, err := scanReceiveSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan receive session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func scanReceiveSession(row pgx.Row) (*knowledge.ReceiveSession, error) {
	var (
		s         knowledge.ReceiveSession
		kind      string
		status    string
		projectID *string
		digestID  *string
	)
	err := row.Scan(
		&s.ID,
		&s.EmployeeID,
		&kind,
		&projectID,
		&s.Scope.RepoURL,
		&s.Scope.Username,
		&digestID,
		&status,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Scope.Kind = knowledge.ScopeKind(kind)
	s.Scope.ProjectID = derefString(projectID)
	s.DigestID = derefString(digestID)
	s.Status = knowledge.ReceiveStatus(status)
	return &s, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Digests
// ─────────────────────────────────────────────────────────────────────────────

const digestColumns = `id, give_session_id, produced_by, scope_kind, project_id, repo_url, repo_username, content, raw_material, created_at`

// CreateDigest inserts a digest. A second digest for the same give session is a conflict.
func (r *knowledgeRepo) CreateDigest(ctx context.Context, d *knowledge.DigestRecord) error {
	query := `
		INSERT INTO digests (
			id, give_session_id, produced_by, scope_kind, project_id, repo_url,
			repo_username, scope_key, content, raw_material, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	material, err := json.Marshal(d.RawMaterial)
	if err != nil {
		return fmt.Errorf("failed to marshal raw material: %w", err)
	}

	_, err = r.q.Exec(ctx, query,
		d.ID,
		d.GiveSessionID,
		d.ProducedBy,
		string(d.Scope.Kind),
		nullString(d.Scope.ProjectID),
		d.Scope.RepoURL,
		d.Scope.Username,
		d.Scope.Key(),
		d.Content,
		material,
		d.CreatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrGiveSessionCompleted
		}
		return fmt.Errorf("failed to create digest: %w", err)
	}
	return nil
}

// GetDigest returns a digest by ID.
func (r *knowledgeRepo) GetDigest(ctx context.Context, id string) (*knowledge.DigestRecord, error) {
	query := `SELECT ` + digestColumns + ` FROM digests WHERE id = $1`

	d, err := scanDigest(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrDigestNotFound
		}
		return nil, fmt.Errorf("failed to get digest: %w", err)
	}
	return d, nil
}

// DeleteDigest deletes a digest.
func (r *knowledgeRepo) DeleteDigest(ctx context.Context, id string) error {
	result, err := r.q.Exec(ctx, "DELETE FROM digests WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete digest: %w", err)
	}
	if result.RowsAffected() == 0 {
		return shared.ErrDigestNotFound
	}
	return nil
}

// LatestDigestForScope returns the newest digest of the scope.
func (r *knowledgeRepo) LatestDigestForScope(ctx context.Context, scopeKey string) (*knowledge.DigestRecord, error) {
	query := `SELECT ` + digestColumns + ` FROM digests
		WHERE scope_key = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`

	d, err := scanDigest(r.q.QueryRow(ctx, query, scopeKey))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrDigestNotFound
		}
		return nil, fmt.Errorf("failed to get latest digest: %w", err)
	}
	return d, nil
}

func scanDigest(row pgx.Row) (*knowledge.DigestRecord, error) {
	var (
		d         knowledge.DigestRecord
		kind      string
		projectID *string
		material  []byte
	)
	err := row.Scan(
		&d.ID,
		&d.GiveSessionID,
		&d.ProducedBy,
		&kind,
		&projectID,
		&d.Scope.RepoURL,
		&d.Scope.Username,
		&d.Content,
		&material,
		&d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.Scope.Kind = knowledge.ScopeKind(kind)
	d.Scope.ProjectID = derefString(projectID)
	if len(material) > 0 {
		if err := json.Unmarshal(material, &d.RawMaterial); err != nil {
			return nil, fmt.Errorf("failed to unmarshal raw material: %w", err)
		}
	}
	return &d, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func filterClause(filter knowledge.SessionFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if filter.EmployeeID != "" {
		args = append(args, filter.EmployeeID)
		conds = append(conds, fmt.Sprintf("employee_id = $%d", len(args)))
	}
	if filter.ScopeKey != "" {
		args = append(args, filter.ScopeKey)
		conds = append(conds, fmt.Sprintf("scope_key = $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
