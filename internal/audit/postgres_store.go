package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// PostgresStore implements EventStore using PostgreSQL
type PostgresStore struct {
	db *bun.DB
}

// NewPostgresStore creates a new PostgreSQL event store
func NewPostgresStore(db *bun.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenDatabase initializes a PostgreSQL connection pool
func OpenDatabase(dsn string, maxConnections int) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	sqldb.SetMaxOpenConns(maxConnections)
	sqldb.SetMaxIdleConns(maxConnections / 2)
	sqldb.SetConnMaxLifetime(time.Hour)

	return bun.NewDB(sqldb, pgdialect.New())
}

// CreateTables creates the session_events table and its indexes
func CreateTables(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().
		Model((*Event)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create table for model %T: %w", (*Event)(nil), err)
	}

	for _, indexSQL := range SessionEventIndexes {
		if _, err := db.ExecContext(ctx, indexSQL); err != nil {
			return fmt.Errorf("failed to create index with SQL %q: %w", indexSQL, err)
		}
	}

	return nil
}

// CreateEvent persists a new event
func (s *PostgresStore) CreateEvent(ctx context.Context, event *Event) error {
	_, err := s.db.NewInsert().Model(event).Exec(ctx)
	return err
}

// GetEventsBySession returns events for a session, newest first
func (s *PostgresStore) GetEventsBySession(ctx context.Context, code string, limit int) ([]*Event, error) {
	var events []*Event
	err := s.db.NewSelect().
		Model(&events).
		Where("session_code = ?", code).
		Order("timestamp DESC").
		Limit(limit).
		Scan(ctx)
	return events, err
}

// DeleteEventsBefore removes events older than cutoff
func (s *PostgresStore) DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := s.db.NewDelete().
		Model((*Event)(nil)).
		Where("timestamp < ?", cutoff).
		Exec(ctx)
	if err != nil {
		return 0, err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

var _ EventStore = (*PostgresStore)(nil)
