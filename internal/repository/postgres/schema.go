package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS web_sessions (
		id                UUID PRIMARY KEY,
		token             TEXT NOT NULL UNIQUE,
		csrf_token        TEXT NOT NULL,
		user_id           TEXT NOT NULL,
		user_email        TEXT NOT NULL,
		user_name         TEXT NOT NULL DEFAULT '',
		access_token      BYTEA,
		refresh_token     BYTEA,
		access_expires_at TIMESTAMPTZ,
		expires_at        TIMESTAMPTZ NOT NULL,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_web_sessions_expires_at ON web_sessions (expires_at)`,
}

// EnsureSchema creates the session table and its indexes in one
// transaction.
func EnsureSchema(ctx context.Context, tm *TxManager) error {
	return tm.WithTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range schemaStatements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to apply schema: %w", err)
			}
		}
		return nil
	})
}
