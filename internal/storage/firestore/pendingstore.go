package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tinywideclouds/go-notification-relay/internal/pending"
	"github.com/tinywideclouds/go-notification-relay/pkg/relay"
)

// PendingStore implements relay.PendingStore using Google Cloud Firestore.
// Each buffered category is one document, so last write wins naturally.
type PendingStore struct {
	client    *firestore.Client
	namespace string
	ttl       time.Duration
	now       func() time.Time
}

// NewPendingStore creates a Firestore-backed pending store. A zero ttl keeps
// entries until they are taken.
func NewPendingStore(client *firestore.Client, namespace string, ttl time.Duration) *PendingStore {
	return &PendingStore{client: client, namespace: namespace, ttl: ttl, now: time.Now}
}

// pendingRecord is the internal DB representation.
type pendingRecord struct {
	Encoded   string    `firestore:"encoded"`
	UpdatedAt time.Time `firestore:"updated_at"`
	ExpiresAt time.Time `firestore:"expires_at,omitempty"`
}

func (s *PendingStore) Put(ctx context.Context, category relay.EventCategory, encoded string) error {
	if err := pending.CheckBuffered(category); err != nil {
		return err
	}
	now := s.now()
	record := pendingRecord{Encoded: encoded, UpdatedAt: now}
	if s.ttl > 0 {
		record.ExpiresAt = now.Add(s.ttl)
	}
	if _, err := s.pendingRef(category).Set(ctx, record); err != nil {
		return fmt.Errorf("failed to store pending %s: %w", category, err)
	}
	return nil
}

// Take reads and deletes the document in one transaction, so a payload is
// handed out at most once.
func (s *PendingStore) Take(ctx context.Context, category relay.EventCategory) (string, bool, error) {
	if err := pending.CheckBuffered(category); err != nil {
		return "", false, err
	}
	ref := s.pendingRef(category)

	var encoded string
	var found bool
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		encoded, found = "", false
		doc, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return nil
		}
		if err != nil {
			return err
		}
		var record pendingRecord
		if err := doc.DataTo(&record); err != nil {
			return err
		}
		if err := tx.Delete(ref); err != nil {
			return err
		}
		if s.expired(record) {
			return nil
		}
		encoded, found = record.Encoded, true
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to take pending %s: %w", category, err)
	}
	return encoded, found, nil
}

// PurgeExpired deletes every expired entry in the namespace and reports how
// many were removed.
func (s *PendingStore) PurgeExpired(ctx context.Context) (int, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	iter := s.pendingCollection().Where("expires_at", "<", s.now()).Documents(ctx)
	defer iter.Stop()

	purged := 0
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return purged, fmt.Errorf("firestore iteration failed: %w", err)
		}
		if _, err := doc.Ref.Delete(ctx); err != nil {
			return purged, fmt.Errorf("failed to purge %s: %w", doc.Ref.ID, err)
		}
		purged++
	}
	return purged, nil
}

func (s *PendingStore) expired(record pendingRecord) bool {
	return !record.ExpiresAt.IsZero() && s.now().After(record.ExpiresAt)
}

// --- Helpers ---

// pendingRef: relays/{namespace}/pending/{eventName}
func (s *PendingStore) pendingRef(category relay.EventCategory) *firestore.DocumentRef {
	return s.pendingCollection().Doc(category.String())
}

func (s *PendingStore) pendingCollection() *firestore.CollectionRef {
	return s.client.Collection("relays").Doc(s.namespace).Collection("pending")
}

var _ relay.PendingStore = (*PendingStore)(nil)
