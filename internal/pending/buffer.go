// Package pending holds events that arrived before any handler existed.
package pending

import (
	"context"
	"fmt"
	"sync"

	"github.com/tinywideclouds/go-notification-relay/pkg/relay"
)

// Buffer is the in-process PendingStore: one slot per buffered category,
// last write wins.
type Buffer struct {
	mu    sync.Mutex
	slots map[relay.EventCategory]string
}

func NewBuffer() *Buffer {
	return &Buffer{slots: make(map[relay.EventCategory]string)}
}

func (b *Buffer) Put(_ context.Context, category relay.EventCategory, encoded string) error {
	if err := CheckBuffered(category); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.slots[category] = encoded
	return nil
}

func (b *Buffer) Take(_ context.Context, category relay.EventCategory) (string, bool, error) {
	if err := CheckBuffered(category); err != nil {
		return "", false, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	encoded, ok := b.slots[category]
	if ok {
		delete(b.slots, category)
	}
	return encoded, ok, nil
}

// CheckBuffered rejects categories that are never buffered. Shared by every
// PendingStore backend.
func CheckBuffered(category relay.EventCategory) error {
	if !category.Buffered() {
		return fmt.Errorf("%w: %s is not buffered", relay.ErrInvalidCategory, category)
	}
	return nil
}
