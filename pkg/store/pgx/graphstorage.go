// Package pgx implements store.Storage on PostgreSQL. Aggregates are kept
// as JSONB documents next to the summary columns the list operations read.
package pgx

import (
	"context"
	"time"

	"github.com/OFFIS-RIT/caseboard/backend/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// GraphDBStorage implements the Storage interface using PostgreSQL.
type GraphDBStorage struct {
	conn  pgxIConn
	close func()
	now   func() time.Time
}

type GraphDBStorageOption func(*GraphDBStorage)

// WithClock replaces the time source used to stamp saved records.
func WithClock(now func() time.Time) GraphDBStorageOption {
	return func(s *GraphDBStorage) {
		s.now = now
	}
}

// NewGraphDBStorageWithConnection creates a new GraphDBStorage using an
// existing database connection. The caller keeps ownership of conn.
func NewGraphDBStorageWithConnection(conn pgxIConn, opts ...GraphDBStorageOption) *GraphDBStorage {
	s := &GraphDBStorage{
		conn: conn,
		now:  time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	return s
}

// NewGraphDBStorage opens a pool for databaseURL. Close releases the pool.
func NewGraphDBStorage(ctx context.Context, databaseURL string, opts ...GraphDBStorageOption) (*GraphDBStorage, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	s := NewGraphDBStorageWithConnection(pool, opts...)
	s.close = pool.Close
	return s, pool, nil
}

func (s *GraphDBStorage) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}

var _ store.Storage = (*GraphDBStorage)(nil)
