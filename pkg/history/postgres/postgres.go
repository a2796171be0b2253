// Package postgres provides a PostgreSQL implementation of
// history.Store. It uses pgx/v5 for connection pooling and JSONB for
// item storage, so sessions survive process restarts and an agent can
// resume a conversation.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anfrage-dev/anfrage/pkg/api"
	"github.com/anfrage-dev/anfrage/pkg/history"
)

// Store is a PostgreSQL-backed history.Store.
type Store struct {
	pool *pgxpool.Pool
}

var _ history.Store = (*Store)(nil)

// New creates a PostgreSQL store with the given configuration. If
// MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// Append adds items to the end of the session's history inside one
// transaction, assigning consecutive positions after the current tail.
func (s *Store) Append(ctx context.Context, session string, items []api.Item) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var next int
	err = tx.QueryRow(ctx,
		"SELECT COALESCE(MAX(position), -1) + 1 FROM session_items WHERE session_id = $1",
		session,
	).Scan(&next)
	if err != nil {
		return fmt.Errorf("finding tail position: %w", err)
	}

	for i, item := range items {
		itemJSON, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("marshaling item %d: %w", i, err)
		}
		if _, err := tx.Exec(ctx,
			"INSERT INTO session_items (session_id, position, item) VALUES ($1, $2, $3)",
			session, next+i, itemJSON,
		); err != nil {
			return fmt.Errorf("inserting item %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing append: %w", err)
	}
	return nil
}

// Load returns the session's full history in position order.
func (s *Store) Load(ctx context.Context, session string) ([]api.Item, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT item FROM session_items WHERE session_id = $1 ORDER BY position",
		session,
	)
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}
	defer rows.Close()

	var items []api.Item
	for rows.Next() {
		var itemJSON []byte
		if err := rows.Scan(&itemJSON); err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		var item api.Item
		if err := json.Unmarshal(itemJSON, &item); err != nil {
			return nil, fmt.Errorf("unmarshaling item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading session rows: %w", err)
	}

	if len(items) == 0 {
		return nil, history.ErrSessionNotFound
	}
	return items, nil
}

// Reset discards the session's history.
func (s *Store) Reset(ctx context.Context, session string) error {
	_, err := s.pool.Exec(ctx,
		"DELETE FROM session_items WHERE session_id = $1", session)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// HealthCheck verifies database connectivity.
func (s *Store) HealthCheck(ctx context.Context) error {
	var one int
	if err := s.pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	return nil
}

// Close shuts down the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
