package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/marcogenualdo/ridegate/internal/config"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id           TEXT PRIMARY KEY,
	email        TEXT NOT NULL DEFAULT '',
	username     TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL DEFAULT '',
	photo_url    TEXT NOT NULL DEFAULT '',
	provider     TEXT NOT NULL DEFAULT '',
	bio          TEXT NOT NULL DEFAULT '',
	bike         TEXT NOT NULL DEFAULT '',
	city         TEXT NOT NULL DEFAULT '',
	privacy      JSONB NOT NULL DEFAULT '{}',
	stats        JSONB NOT NULL DEFAULT '{}',
	following    JSONB NOT NULL DEFAULT '[]',
	created_at   TIMESTAMPTZ NOT NULL,
	last_active  TIMESTAMPTZ NOT NULL
)`

// PostgresStore keeps user records in a single users table; the nested
// profile fields are JSONB columns.
type PostgresStore struct {
	db *pgxpool.Pool
}

var _ UserStore = (*PostgresStore)(nil)

func NewPostgresStore(ctx context.Context, cfg config.PostgresConfig) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 10 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &PostgresStore{db: pool}, nil
}

func (s *PostgresStore) ReadUserRecord(ctx context.Context, subjectID string) (*User, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, email, username, display_name, photo_url, provider, bio, bike, city,
		        privacy, stats, following, created_at, last_active
		 FROM users
		 WHERE id = $1`,
		subjectID)

	var u User
	err := row.Scan(
		&u.ID, &u.Email, &u.Username, &u.DisplayName, &u.PhotoURL, &u.Provider,
		&u.Bio, &u.Bike, &u.City, &u.Privacy, &u.Stats, &u.Following,
		&u.CreatedAt, &u.LastActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select user %s: %w", subjectID, err)
	}
	return &u, nil
}

func (s *PostgresStore) CreateUserRecord(ctx context.Context, u *User) error {
	following := u.Following
	if following == nil {
		following = []string{}
	}

	tag, err := s.db.Exec(ctx,
		`INSERT INTO users (id, email, username, display_name, photo_url, provider, bio, bike, city,
		                    privacy, stats, following, created_at, last_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (id) DO NOTHING`,
		u.ID, u.Email, u.Username, u.DisplayName, u.PhotoURL, u.Provider, u.Bio, u.Bike, u.City,
		u.Privacy, u.Stats, following, u.CreatedAt, u.LastActive,
	)
	if err != nil {
		return fmt.Errorf("insert user %s: %w", u.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrExists
	}
	return nil
}

func (s *PostgresStore) TouchLastSeen(ctx context.Context, subjectID string, at time.Time) error {
	tag, err := s.db.Exec(ctx, "UPDATE users SET last_active = $2 WHERE id = $1", subjectID, at)
	if err != nil {
		return fmt.Errorf("update user %s: %w", subjectID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UsernameTaken(ctx context.Context, username string) (bool, error) {
	var taken bool
	err := s.db.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)", username).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("select username: %w", err)
	}
	return taken, nil
}

func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}
