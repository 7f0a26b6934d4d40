package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a versioned schema change for both dialects
type Migration struct {
	Version     int
	Description string
	Postgres    string
	SQLite      string
}

// SQL returns the statement text for a dialect
func (m Migration) SQL(dialect Dialect) string {
	if dialect == DialectSQLite {
		return m.SQLite
	}
	return m.Postgres
}

// GetMigrations returns all schema migrations in order
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create organizations and users tables",
			Postgres: `
				CREATE TABLE IF NOT EXISTS organizations (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					slug VARCHAR(255) NOT NULL UNIQUE,
					created_at TIMESTAMPTZ NOT NULL,
					updated_at TIMESTAMPTZ NOT NULL
				);

				CREATE TABLE IF NOT EXISTS users (
					id BIGSERIAL PRIMARY KEY,
					external_id VARCHAR(255) NOT NULL UNIQUE,
					email VARCHAR(255) NOT NULL DEFAULT '',
					display_name VARCHAR(255) NOT NULL DEFAULT '',
					organization_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE RESTRICT,
					role VARCHAR(32) NOT NULL CHECK (role IN ('SUPER_ADMIN', 'ORG_ADMIN', 'MANAGER', 'USER', 'VIEWER')),
					role_version BIGINT NOT NULL DEFAULT 1,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMPTZ NOT NULL,
					updated_at TIMESTAMPTZ NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_users_organization_id ON users(organization_id);
			`,
			SQLite: `
				CREATE TABLE IF NOT EXISTS organizations (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT NOT NULL,
					slug TEXT NOT NULL UNIQUE,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);

				CREATE TABLE IF NOT EXISTS users (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					external_id TEXT NOT NULL UNIQUE,
					email TEXT NOT NULL DEFAULT '',
					display_name TEXT NOT NULL DEFAULT '',
					organization_id INTEGER NOT NULL REFERENCES organizations(id) ON DELETE RESTRICT,
					role TEXT NOT NULL CHECK (role IN ('SUPER_ADMIN', 'ORG_ADMIN', 'MANAGER', 'USER', 'VIEWER')),
					role_version INTEGER NOT NULL DEFAULT 1,
					is_active BOOLEAN NOT NULL DEFAULT 1,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_users_organization_id ON users(organization_id);
			`,
		},
		{
			Version:     2,
			Description: "Create projects and project_members tables",
			Postgres: `
				CREATE TABLE IF NOT EXISTS projects (
					id BIGSERIAL PRIMARY KEY,
					organization_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					name VARCHAR(255) NOT NULL,
					slug VARCHAR(255) NOT NULL,
					status VARCHAR(32) NOT NULL DEFAULT 'active',
					member_version BIGINT NOT NULL DEFAULT 1,
					created_at TIMESTAMPTZ NOT NULL,
					updated_at TIMESTAMPTZ NOT NULL,
					UNIQUE(organization_id, slug)
				);

				CREATE TABLE IF NOT EXISTS project_members (
					id BIGSERIAL PRIMARY KEY,
					project_id BIGINT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					role VARCHAR(32) NOT NULL CHECK (role IN ('OWNER', 'ADMIN', 'MEMBER', 'VIEWER')),
					joined_at TIMESTAMPTZ NOT NULL,
					UNIQUE(project_id, user_id)
				);

				CREATE INDEX IF NOT EXISTS idx_project_members_user_id ON project_members(user_id);
				CREATE INDEX IF NOT EXISTS idx_project_members_owner ON project_members(project_id, role);
			`,
			SQLite: `
				CREATE TABLE IF NOT EXISTS projects (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					organization_id INTEGER NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					name TEXT NOT NULL,
					slug TEXT NOT NULL,
					status TEXT NOT NULL DEFAULT 'active',
					member_version INTEGER NOT NULL DEFAULT 1,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL,
					UNIQUE(organization_id, slug)
				);

				CREATE TABLE IF NOT EXISTS project_members (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
					user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					role TEXT NOT NULL CHECK (role IN ('OWNER', 'ADMIN', 'MEMBER', 'VIEWER')),
					joined_at TIMESTAMP NOT NULL,
					UNIQUE(project_id, user_id)
				);

				CREATE INDEX IF NOT EXISTS idx_project_members_user_id ON project_members(user_id);
				CREATE INDEX IF NOT EXISTS idx_project_members_owner ON project_members(project_id, role);
			`,
		},
		{
			Version:     3,
			Description: "Create role_change_events table",
			Postgres: `
				CREATE TABLE IF NOT EXISTS role_change_events (
					id VARCHAR(26) PRIMARY KEY,
					scope VARCHAR(32) NOT NULL,
					action VARCHAR(32) NOT NULL,
					organization_id BIGINT NOT NULL,
					project_id BIGINT,
					target_actor_id BIGINT NOT NULL,
					old_role VARCHAR(32),
					new_role VARCHAR(32),
					performed_by BIGINT NOT NULL,
					request_id VARCHAR(100),
					occurred_at TIMESTAMPTZ NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_role_change_events_org ON role_change_events(organization_id, occurred_at DESC);
				CREATE INDEX IF NOT EXISTS idx_role_change_events_project ON role_change_events(project_id);
				CREATE INDEX IF NOT EXISTS idx_role_change_events_target ON role_change_events(target_actor_id);
			`,
			SQLite: `
				CREATE TABLE IF NOT EXISTS role_change_events (
					id TEXT PRIMARY KEY,
					scope TEXT NOT NULL,
					action TEXT NOT NULL,
					organization_id INTEGER NOT NULL,
					project_id INTEGER,
					target_actor_id INTEGER NOT NULL,
					old_role TEXT,
					new_role TEXT,
					performed_by INTEGER NOT NULL,
					request_id TEXT,
					occurred_at TIMESTAMP NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_role_change_events_org ON role_change_events(organization_id, occurred_at DESC);
				CREATE INDEX IF NOT EXISTS idx_role_change_events_project ON role_change_events(project_id);
				CREATE INDEX IF NOT EXISTS idx_role_change_events_target ON role_change_events(target_actor_id);
			`,
		},
	}
}

// Migrate applies every migration not yet recorded in schema_migrations
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	applied := make(map[int]bool)
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[v] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate migrations: %w", err)
	}

	for _, m := range GetMigrations() {
		if applied[m.Version] {
			continue
		}
		if err := applyMigration(ctx, db, dialect, m); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, dialect Dialect, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration %d: %w", m.Version, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.SQL(dialect)); err != nil {
		return fmt.Errorf("failed to apply migration %d (%s): %w", m.Version, m.Description, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, description, applied_at) VALUES ($1, $2, $3)`,
		m.Version, m.Description, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
	}
	return tx.Commit()
}
