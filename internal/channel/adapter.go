// Package channel multiplexes the delivery subsystem's named events to any
// number of independent listeners.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tinywideclouds/go-notification-relay/pkg/relay"
)

// ErrAdapterClosed is returned by Subscribe after Close.
var ErrAdapterClosed = errors.New("event channel is closed")

// Listener receives the raw body of one named event.
type Listener func(ctx context.Context, body json.RawMessage)

// Adapter is a pass-through fan-out of raw events per category.
// It never buffers.
type Adapter struct {
	mu     sync.Mutex
	subs   map[relay.EventCategory][]*Subscription
	nextID uint64
	closed bool
}

func NewAdapter() *Adapter {
	return &Adapter{subs: make(map[relay.EventCategory][]*Subscription)}
}

// Subscribe opens a new listener on category.
func (a *Adapter) Subscribe(category relay.EventCategory, listener Listener) (*Subscription, error) {
	if err := category.Validate(); err != nil {
		return nil, err
	}
	if listener == nil {
		return nil, fmt.Errorf("nil listener for %s", category)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, ErrAdapterClosed
	}

	a.nextID++
	sub := &Subscription{
		id:       a.nextID,
		category: category,
		listener: listener,
		adapter:  a,
	}
	sub.active.Store(true)
	a.subs[category] = append(a.subs[category], sub)
	return sub, nil
}

// Emit delivers body to every live listener of category, in subscription
// order, and returns how many were called.
func (a *Adapter) Emit(ctx context.Context, category relay.EventCategory, body json.RawMessage) int {
	a.mu.Lock()
	snapshot := make([]*Subscription, len(a.subs[category]))
	copy(snapshot, a.subs[category])
	a.mu.Unlock()

	delivered := 0
	for _, sub := range snapshot {
		// A listener earlier in the snapshot may have cancelled this one.
		if !sub.Active() {
			continue
		}
		sub.listener(ctx, body)
		delivered++
	}
	return delivered
}

// Count returns the number of live subscriptions on category.
func (a *Adapter) Count(category relay.EventCategory) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.subs[category])
}

// Close tears down every subscription. Later Cancel calls are no-ops.
func (a *Adapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.closed = true
	for _, subs := range a.subs {
		for _, sub := range subs {
			sub.active.Store(false)
		}
	}
	a.subs = make(map[relay.EventCategory][]*Subscription)
}

func (a *Adapter) remove(sub *Subscription) {
	a.mu.Lock()
	defer a.mu.Unlock()
	subs := a.subs[sub.category]
	for i, s := range subs {
		if s.id == sub.id {
			a.subs[sub.category] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	id       uint64
	category relay.EventCategory
	listener Listener
	adapter  *Adapter
	active   atomic.Bool
}

// Category returns the subscribed category.
func (s *Subscription) Category() relay.EventCategory {
	return s.category
}

// Active reports whether the subscription still receives events.
func (s *Subscription) Active() bool {
	return s.active.Load()
}

// Cancel stops delivery to this subscription only. It is safe to call more
// than once and after the adapter has been closed.
func (s *Subscription) Cancel() {
	if !s.active.CompareAndSwap(true, false) {
		return
	}
	s.adapter.remove(s)
}
