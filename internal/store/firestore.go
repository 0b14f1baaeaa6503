package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const analysisEventsCollection = "analysis_events"

// FirestoreStore implements the Store interface using Firestore.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore creates a new Firestore-backed store.
func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

// CreateAnalysisEvent stores an analysis event keyed by its id.
func (s *FirestoreStore) CreateAnalysisEvent(ctx context.Context, event *AnalysisEvent) error {
	prepare(event)
	if _, err := s.client.Collection(analysisEventsCollection).Doc(event.ID).Set(ctx, event); err != nil {
		return fmt.Errorf("create analysis event: %w", err)
	}
	return nil
}

// GetAnalysisEvent retrieves an event by id.
func (s *FirestoreStore) GetAnalysisEvent(ctx context.Context, id string) (*AnalysisEvent, error) {
	doc, err := s.client.Collection(analysisEventsCollection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get analysis event: %w", err)
	}
	var e AnalysisEvent
	if err := doc.DataTo(&e); err != nil {
		return nil, fmt.Errorf("decode analysis event: %w", err)
	}
	return &e, nil
}

// ListAnalysisEvents lists events since a given time, newest first.
// Firestore requires ordering on the range field first, so the cursor
// carries both the timestamp and the document id.
func (s *FirestoreStore) ListAnalysisEvents(ctx context.Context, since time.Time, pageSize int32, pageToken string) ([]*AnalysisEvent, string, error) {
	after, err := DecodePageToken(pageToken)
	if err != nil {
		return nil, "", err
	}
	limit := clampPageSize(pageSize)

	query := s.client.Collection(analysisEventsCollection).Query
	if !since.IsZero() {
		query = query.Where("created_at", ">=", since)
	}
	query = query.OrderBy("created_at", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Desc)
	if !after.IsZero() {
		query = query.StartAfter(after.CreatedAt, after.ID)
	}
	iter := query.Limit(limit + 1).Documents(ctx)
	defer iter.Stop()

	var events []*AnalysisEvent
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, "", fmt.Errorf("list analysis events: %w", err)
		}
		var e AnalysisEvent
		if err := doc.DataTo(&e); err != nil {
			continue
		}
		events = append(events, &e)
	}

	if len(events) <= limit {
		return events, "", nil
	}
	events = events[:limit]
	return events, EncodePageToken(events[limit-1]), nil
}

// Close releases the Firestore client.
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}
