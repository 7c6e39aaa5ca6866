package config

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"
)

// NewPostgresConnection opens the session store database and verifies it
// answers within ctx.
func NewPostgresConnection(ctx context.Context, dbURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, err
	}

	// Session lookups are short; a small pool is enough
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
