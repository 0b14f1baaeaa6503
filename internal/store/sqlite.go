package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and applies the schema.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps ":memory:" databases consistent across calls.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
    CREATE TABLE IF NOT EXISTS analysis_events (
        id TEXT PRIMARY KEY,
        created_at INTEGER NOT NULL,
        document_name TEXT NOT NULL,
        format TEXT NOT NULL,
        conditions TEXT NOT NULL,
        risk_label TEXT NOT NULL,
        risk_source TEXT NOT NULL,
        menu_group TEXT NOT NULL,
        dietary_preference TEXT NOT NULL,
        catalog_version TEXT NOT NULL,
        diagnostics INTEGER NOT NULL,
        duration_ms INTEGER NOT NULL
    );

    CREATE INDEX IF NOT EXISTS idx_analysis_events_created ON analysis_events(created_at DESC, id DESC);
    `
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

const eventColumns = `id, created_at, document_name, format, conditions, risk_label, risk_source,
        menu_group, dietary_preference, catalog_version, diagnostics, duration_ms`

// CreateAnalysisEvent inserts or replaces an event.
func (s *SQLiteStore) CreateAnalysisEvent(ctx context.Context, event *AnalysisEvent) error {
	prepare(event)
	conditions, err := json.Marshal(event.Conditions)
	if err != nil {
		return fmt.Errorf("encode conditions: %w", err)
	}

	query := `INSERT OR REPLACE INTO analysis_events (` + eventColumns + `)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		event.ID, event.CreatedAt.UnixNano(), event.DocumentName, event.Format, string(conditions),
		event.RiskLabel, event.RiskSource, event.MenuGroup, event.Preference,
		event.CatalogVersion, event.Diagnostics, event.DurationMillis)
	if err != nil {
		return fmt.Errorf("insert analysis event: %w", err)
	}
	return nil
}

// GetAnalysisEvent retrieves an event by id.
func (s *SQLiteStore) GetAnalysisEvent(ctx context.Context, id string) (*AnalysisEvent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM analysis_events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis event: %w", err)
	}
	return e, nil
}

// ListAnalysisEvents lists events since a given time, newest first.
func (s *SQLiteStore) ListAnalysisEvents(ctx context.Context, since time.Time, pageSize int32, pageToken string) ([]*AnalysisEvent, string, error) {
	after, err := DecodePageToken(pageToken)
	if err != nil {
		return nil, "", err
	}
	limit := clampPageSize(pageSize)

	query := `SELECT ` + eventColumns + ` FROM analysis_events WHERE 1 = 1`
	var args []any
	if !since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, since.UnixNano())
	}
	if !after.IsZero() {
		query += ` AND (created_at < ? OR (created_at = ? AND id < ?))`
		nanos := after.CreatedAt.UnixNano()
		args = append(args, nanos, nanos, after.ID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("query analysis events: %w", err)
	}
	defer rows.Close()

	var events []*AnalysisEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, "", fmt.Errorf("scan analysis event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("iterate analysis events: %w", err)
	}

	if len(events) <= limit {
		return events, "", nil
	}
	events = events[:limit]
	return events, EncodePageToken(events[limit-1]), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*AnalysisEvent, error) {
	var (
		e          AnalysisEvent
		createdAt  int64
		conditions string
	)
	err := row.Scan(&e.ID, &createdAt, &e.DocumentName, &e.Format, &conditions,
		&e.RiskLabel, &e.RiskSource, &e.MenuGroup, &e.Preference,
		&e.CatalogVersion, &e.Diagnostics, &e.DurationMillis)
	if err != nil {
		return nil, err
	}
	e.CreatedAt = time.Unix(0, createdAt).UTC()
	if err := json.Unmarshal([]byte(conditions), &e.Conditions); err != nil {
		return nil, fmt.Errorf("decode conditions: %w", err)
	}
	return &e, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
