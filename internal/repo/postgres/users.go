package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/geocoder89/authhub/internal/domain/user"
	"github.com/geocoder89/authhub/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UsersRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewUsersRepo(pool *pgxpool.Pool, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{
		pool: pool,
		prom: prom,
	}
}

func (r *UsersRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

// Emails are normalized to lowercase on both write and read so uniqueness
// does not depend on the storage collation.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (u user.User, err error) {
	err = r.observe("users.get_by_email", func() error {
		return r.pool.QueryRow(
			ctx,
			`SELECT id, email, password_hash, avatar_path, created_at
	         FROM users
	         WHERE email = $1`,
			normalizeEmail(email),
		).Scan(
			&u.ID,
			&u.Email,
			&u.PasswordHash,
			&u.AvatarPath,
			&u.CreatedAt,
		)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = user.ErrNotFound
		}

		u = user.User{}
		return
	}
	return
}

func (r *UsersRepo) GetByID(ctx context.Context, id int64) (u user.User, err error) {
	err = r.observe("users.get_by_id", func() error {
		return r.pool.QueryRow(
			ctx,
			`SELECT id, email, password_hash, avatar_path, created_at
	         FROM users
	         WHERE id = $1`,
			id,
		).Scan(
			&u.ID,
			&u.Email,
			&u.PasswordHash,
			&u.AvatarPath,
			&u.CreatedAt,
		)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = user.ErrNotFound
		}

		u = user.User{}
		return
	}
	return
}

// Create inserts the new user in a single statement and lets the unique
// index decide conflicts, so there is no check-then-insert race.
func (r *UsersRepo) Create(ctx context.Context, email, passwordHash string) (u user.User, err error) {
	u.Email = normalizeEmail(email)
	u.PasswordHash = passwordHash

	err = r.observe("users.create", func() error {
		return r.pool.QueryRow(
			ctx,
			`INSERT INTO users (email, password_hash)
			 VALUES ($1, $2)
			 RETURNING id, created_at`,
			u.Email, u.PasswordHash,
		).Scan(&u.ID, &u.CreatedAt)
	})

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			err = user.ErrEmailTaken
		}

		u = user.User{}
		return
	}
	return
}

func (r *UsersRepo) UpdateAvatarPath(ctx context.Context, id int64, path *string) (err error) {
	var tag pgconn.CommandTag

	err = r.observe("users.update_avatar_path", func() error {
		var e error
		tag, e = r.pool.Exec(ctx,
			`UPDATE users SET avatar_path = $1 WHERE id = $2`,
			path, id,
		)
		return e
	})

	if err != nil {
		return
	}

	if tag.RowsAffected() == 0 {
		err = user.ErrNotFound
		return
	}

	return
}
