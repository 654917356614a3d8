package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema brings up the users table on startup. The unique index on
// email is the source of truth for registration conflicts.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id            BIGSERIAL PRIMARY KEY,
			email         VARCHAR(255) NOT NULL,
			password_hash VARCHAR(500) NOT NULL,
			avatar_path   VARCHAR(500),
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)

	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, `
		CREATE UNIQUE INDEX IF NOT EXISTS users_email_uniq ON users (email)
	`)

	return err
}
