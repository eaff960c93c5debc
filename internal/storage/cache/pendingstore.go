// --- File: internal/storage/cache/pendingstore.go ---
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tinywideclouds/go-notification-relay/internal/pending"
	"github.com/tinywideclouds/go-notification-relay/pkg/relay"
)

// CacheClient defines the subset of Redis commands we need.
type CacheClient interface {
	// Set stores the value with a TTL, replacing any previous value.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// GetDel returns and removes the value, or ErrCacheMiss.
	GetDel(ctx context.Context, key string) (string, error)
}

// PendingStore keeps the pending buffer in Redis so a buffered notification
// survives a restart of the relay process. Keys expire after ttl, so a
// notification nobody collects does not linger.
type PendingStore struct {
	cache     CacheClient
	namespace string
	ttl       time.Duration
}

// NewPendingStore creates a Redis-backed pending store. A zero ttl keeps
// entries until they are taken.
func NewPendingStore(cache CacheClient, namespace string, ttl time.Duration) *PendingStore {
	return &PendingStore{
		cache:     cache,
		namespace: namespace,
		ttl:       ttl,
	}
}

// Put overwrites the category's slot (last write wins).
func (s *PendingStore) Put(ctx context.Context, category relay.EventCategory, encoded string) error {
	if err := pending.CheckBuffered(category); err != nil {
		return err
	}
	if err := s.cache.Set(ctx, s.key(category), encoded, s.ttl); err != nil {
		return fmt.Errorf("failed to store pending %s: %w", category, err)
	}
	return nil
}

// Take uses GETDEL so two relays sharing a namespace never both deliver.
func (s *PendingStore) Take(ctx context.Context, category relay.EventCategory) (string, bool, error) {
	if err := pending.CheckBuffered(category); err != nil {
		return "", false, err
	}
	val, err := s.cache.GetDel(ctx, s.key(category))
	if errors.Is(err, ErrCacheMiss) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to take pending %s: %w", category, err)
	}
	return val, true, nil
}

func (s *PendingStore) key(category relay.EventCategory) string {
	return fmt.Sprintf("relay:pending:%s:%s", s.namespace, category.String())
}

var _ relay.PendingStore = (*PendingStore)(nil)
