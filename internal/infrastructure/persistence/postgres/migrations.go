package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATOR
// ══════════════════════════════════════════════════════════════════════════════

// Migration represents a database migration.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// Migrator handles database migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
	tableName  string
}

// NewMigrator creates a new migrator with embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{
		conn:       conn,
		migrations: GetMigrations(),
		tableName:  "schema_migrations",
	}
}

// EnsureMigrationTable creates the migration tracking table if it doesn't exist.
func (m *Migrator) EnsureMigrationTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`, m.tableName)

	if _, err := m.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

// GetAppliedMigrations returns all applied migrations.
func (m *Migrator) GetAppliedMigrations(ctx context.Context) (map[int]time.Time, error) {
	query := fmt.Sprintf("SELECT version, applied_at FROM %s ORDER BY version", m.tableName)

	rows, err := m.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var appliedAt time.Time
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[version] = appliedAt
	}
	return applied, rows.Err()
}

// Migrate applies all pending migrations and returns how many ran.
func (m *Migrator) Migrate(ctx context.Context) (int, error) {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return 0, err
	}

	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return 0, err
	}

	ran := 0
	for _, mig := range m.migrations {
		if _, ok := applied[mig.Version]; ok {
			continue
		}
		if mig.UpSQL == "" {
			return ran, fmt.Errorf("%w: missing up SQL for migration %d", ErrMigrationFailed, mig.Version)
		}

		err := m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return fmt.Errorf("failed to execute migration %d: %w", mig.Version, err)
			}
			insertQuery := fmt.Sprintf("INSERT INTO %s (version, name) VALUES ($1, $2)", m.tableName)
			_, err := tx.Exec(ctx, insertQuery, mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return ran, fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, mig.Version, err)
		}
		ran++
	}
	return ran, nil
}

// Rollback rolls back the last applied migration.
func (m *Migrator) Rollback(ctx context.Context) error {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return err
	}

	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	var lastVersion int
	for v := range applied {
		if v > lastVersion {
			lastVersion = v
		}
	}
	if lastVersion == 0 {
		return nil
	}

	var migration *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == lastVersion {
			migration = &m.migrations[i]
			break
		}
	}
	if migration == nil || migration.DownSQL == "" {
		return fmt.Errorf("%w: missing down SQL for migration %d", ErrMigrationFailed, lastVersion)
	}

	return m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, migration.DownSQL); err != nil {
			return fmt.Errorf("failed to rollback migration %d: %w", lastVersion, err)
		}
		deleteQuery := fmt.Sprintf("DELETE FROM %s WHERE version = $1", m.tableName)
		_, err := tx.Exec(ctx, deleteQuery, lastVersion)
		return err
	})
}

// Status returns the migration status.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return nil, err
	}

	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]Migration, len(m.migrations))
	copy(result, m.migrations)
	for i := range result {
		if appliedAt, ok := applied[result[i].Version]; ok {
			result[i].IsApplied = true
			result[i].AppliedAt = appliedAt
		}
	}
	return result, nil
}

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_employees_and_projects", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_knowledge_transfer", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_learning_paths", UpSQL: migration003Up, DownSQL: migration003Down},
		{Version: 4, Name: "add_project_skill_quiz", UpSQL: migration004Up, DownSQL: migration004Down},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: EMPLOYEES AND PROJECTS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS projects (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    subjects JSONB NOT NULL DEFAULT '[]'::jsonb,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT projects_name_key UNIQUE (name)
);

CREATE TABLE IF NOT EXISTS employees (
    id TEXT PRIMARY KEY,
    email TEXT NOT NULL,
    name TEXT NOT NULL,
    role VARCHAR(20) NOT NULL DEFAULT 'employee',
    password_hash TEXT NOT NULL DEFAULT '',
    assigned_project_id TEXT REFERENCES projects(id) ON DELETE SET NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT employees_email_key UNIQUE (email),
    CONSTRAINT valid_role CHECK (role IN ('admin', 'employee'))
);

CREATE INDEX IF NOT EXISTS idx_employees_role ON employees(role);
`

const migration001Down = `
DROP TABLE IF EXISTS employees;
DROP TABLE IF EXISTS projects;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: KNOWLEDGE TRANSFER
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS give_sessions (
    id TEXT PRIMARY KEY,
    employee_id TEXT NOT NULL REFERENCES employees(id) ON DELETE CASCADE,
    scope_kind VARCHAR(10) NOT NULL,
    project_id TEXT REFERENCES projects(id) ON DELETE CASCADE,
    repo_url TEXT NOT NULL DEFAULT '',
    repo_username TEXT NOT NULL DEFAULT '',
    scope_key TEXT NOT NULL,
    digest_id TEXT,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    completed_at TIMESTAMP WITH TIME ZONE,

    CONSTRAINT give_sessions_employee_scope_key UNIQUE (employee_id, scope_key),
    CONSTRAINT valid_give_scope CHECK (scope_kind IN ('project', 'repo'))
);

CREATE INDEX IF NOT EXISTS idx_give_sessions_scope ON give_sessions(scope_key);

CREATE TABLE IF NOT EXISTS digests (
    id TEXT PRIMARY KEY,
    give_session_id TEXT NOT NULL REFERENCES give_sessions(id) ON DELETE CASCADE,
    produced_by TEXT NOT NULL,
    scope_kind VARCHAR(10) NOT NULL,
    project_id TEXT,
    repo_url TEXT NOT NULL DEFAULT '',
    repo_username TEXT NOT NULL DEFAULT '',
    scope_key TEXT NOT NULL,
    content TEXT NOT NULL,
    raw_material JSONB NOT NULL DEFAULT '[]'::jsonb,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT digests_give_session_key UNIQUE (give_session_id)
);

CREATE INDEX IF NOT EXISTS idx_digests_scope_created ON digests(scope_key, created_at DESC, id DESC);

CREATE TABLE IF NOT EXISTS receive_sessions (
    id TEXT PRIMARY KEY,
    employee_id TEXT NOT NULL REFERENCES employees(id) ON DELETE CASCADE,
    scope_kind VARCHAR(10) NOT NULL,
    project_id TEXT REFERENCES projects(id) ON DELETE CASCADE,
    repo_url TEXT NOT NULL DEFAULT '',
    repo_username TEXT NOT NULL DEFAULT '',
    scope_key TEXT NOT NULL,
    digest_id TEXT REFERENCES digests(id) ON DELETE SET NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'AwaitingDigest',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT receive_sessions_employee_scope_key UNIQUE (employee_id, scope_key),
    CONSTRAINT valid_receive_scope CHECK (scope_kind IN ('project', 'repo')),
    CONSTRAINT valid_receive_status CHECK (status IN ('AwaitingDigest', 'ReadyToConsume', 'Consumed')),
    CONSTRAINT ready_has_digest CHECK (status <> 'ReadyToConsume' OR digest_id IS NOT NULL)
);

CREATE INDEX IF NOT EXISTS idx_receive_sessions_scope_status ON receive_sessions(scope_key, status);
CREATE INDEX IF NOT EXISTS idx_receive_sessions_digest ON receive_sessions(digest_id);
`

const migration002Down = `
DROP TABLE IF EXISTS receive_sessions;
DROP TABLE IF EXISTS digests;
DROP TABLE IF EXISTS give_sessions;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: LEARNING PATHS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS learning_paths (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL REFERENCES employees(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    total_estimated_hours DOUBLE PRECISION NOT NULL DEFAULT 0,
    subjects JSONB NOT NULL,
    fallback BOOLEAN NOT NULL DEFAULT FALSE,
    completed_topics INTEGER NOT NULL DEFAULT 0,
    total_topics INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_topic_counters CHECK (completed_topics >= 0 AND completed_topics <= total_topics)
);

CREATE INDEX IF NOT EXISTS idx_learning_paths_owner_latest ON learning_paths(owner_id, created_at DESC, id DESC);
`

const migration003Down = `
DROP TABLE IF EXISTS learning_paths;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 004: PROJECT SKILL QUIZ
// ══════════════════════════════════════════════════════════════════════════════

const migration004Up = `
ALTER TABLE projects ADD COLUMN IF NOT EXISTS skill_quiz JSONB;
`

const migration004Down = `
ALTER TABLE projects DROP COLUMN IF EXISTS skill_quiz;
`
