// Package store records analysis events: metadata about each pipeline run,
// never the document text or the generated plan.
package store

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/castlemilk/dietplanner/internal/config"
)

//go:generate mockgen -source=store.go -destination=store_mock.go -package=store

// Page size limits for ListAnalysisEvents.
const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// ErrNotFound is returned when an event does not exist.
var ErrNotFound = errors.New("analysis event not found")

// ErrInvalidPageToken is returned for a page token this package did not issue.
var ErrInvalidPageToken = errors.New("invalid page token")

// AnalysisEvent describes one completed analysis.
type AnalysisEvent struct {
	ID             string    `json:"id" firestore:"id"`
	CreatedAt      time.Time `json:"created_at" firestore:"created_at"`
	DocumentName   string    `json:"document_name,omitempty" firestore:"document_name"`
	Format         string    `json:"format" firestore:"format"`
	Conditions     []string  `json:"conditions" firestore:"conditions"`
	RiskLabel      string    `json:"risk_label" firestore:"risk_label"`
	RiskSource     string    `json:"risk_source" firestore:"risk_source"`
	MenuGroup      string    `json:"menu_group" firestore:"menu_group"`
	Preference     string    `json:"dietary_preference" firestore:"dietary_preference"`
	CatalogVersion string    `json:"catalog_version" firestore:"catalog_version"`
	Diagnostics    int       `json:"diagnostics" firestore:"diagnostics"`
	DurationMillis int64     `json:"duration_ms" firestore:"duration_ms"`
}

// Store defines the persistence operations used by the pipeline and service.
type Store interface {
	CreateAnalysisEvent(ctx context.Context, event *AnalysisEvent) error
	GetAnalysisEvent(ctx context.Context, id string) (*AnalysisEvent, error)
	// ListAnalysisEvents returns events created at or after since, newest first.
	ListAnalysisEvents(ctx context.Context, since time.Time, pageSize int32, pageToken string) ([]*AnalysisEvent, string, error)
	Close() error
}

// Open creates the configured backend.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case "", config.StoreMemory:
		return NewMemoryStore(), nil
	case config.StoreSQLite:
		return NewSQLiteStore(ctx, cfg.SQLitePath)
	case config.StoreFirestore:
		client, err := firestore.NewClient(ctx, cfg.FirestoreProject)
		if err != nil {
			return nil, fmt.Errorf("create firestore client: %w", err)
		}
		return NewFirestoreStore(client), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func clampPageSize(pageSize int32) int {
	switch {
	case pageSize <= 0:
		return DefaultPageSize
	case pageSize > MaxPageSize:
		return MaxPageSize
	default:
		return int(pageSize)
	}
}

// Cursor is the position after which the next page starts.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// Precedes reports whether e comes after the cursor in newest-first order.
func (c Cursor) Precedes(e *AnalysisEvent) bool {
	if !e.CreatedAt.Equal(c.CreatedAt) {
		return e.CreatedAt.Before(c.CreatedAt)
	}
	return e.ID < c.ID
}

// EncodePageToken encodes the last event of a page into a page token.
func EncodePageToken(e *AnalysisEvent) string {
	if e == nil || e.ID == "" {
		return ""
	}
	raw := strconv.FormatInt(e.CreatedAt.UnixNano(), 10) + "/" + e.ID
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

// DecodePageToken decodes a page token. An empty token yields a zero cursor.
func DecodePageToken(token string) (Cursor, error) {
	if token == "" {
		return Cursor{}, nil
	}
	b, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	nanos, id, ok := strings.Cut(string(b), "/")
	if !ok || id == "" {
		return Cursor{}, ErrInvalidPageToken
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	return Cursor{CreatedAt: time.Unix(0, n).UTC(), ID: id}, nil
}

// IsZero reports whether the cursor points at the first page.
func (c Cursor) IsZero() bool {
	return c.ID == ""
}
