// Package registry binds application handler identities to the channel
// subscriptions created for them, so each can be removed precisely.
package registry

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/tinywideclouds/go-notification-relay/internal/channel"
	"github.com/tinywideclouds/go-notification-relay/pkg/relay"
)

// Subscriber is the part of the channel adapter the registry needs.
type Subscriber interface {
	Subscribe(category relay.EventCategory, listener channel.Listener) (*channel.Subscription, error)
}

type bindingKey struct {
	category relay.EventCategory
	handler  relay.Handler
}

// Registry owns every HandlerBinding.
type Registry struct {
	subscriber Subscriber
	logger     *slog.Logger

	mu       sync.Mutex
	bindings map[bindingKey]*channel.Subscription
}

func New(subscriber Subscriber, logger *slog.Logger) *Registry {
	return &Registry{
		subscriber: subscriber,
		logger:     logger.With("component", "HandlerRegistry"),
		bindings:   make(map[bindingKey]*channel.Subscription),
	}
}

// CheckHandler validates a handler identity without registering it.
func CheckHandler(handler relay.Handler) error {
	if handler == nil {
		return relay.ErrNilHandler
	}
	if !reflect.TypeOf(handler).Comparable() {
		return fmt.Errorf("%w: %T", relay.ErrHandlerNotComparable, handler)
	}
	return nil
}

// Register subscribes listener on behalf of handler. created is false when
// handler was already bound to category; the existing binding is kept.
func (r *Registry) Register(category relay.EventCategory, handler relay.Handler, listener channel.Listener) (created bool, err error) {
	if err := category.Validate(); err != nil {
		return false, err
	}
	if err := CheckHandler(handler); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := bindingKey{category: category, handler: handler}
	if _, exists := r.bindings[key]; exists {
		r.logger.Debug("Handler already registered", "category", category.String())
		return false, nil
	}

	sub, err := r.subscriber.Subscribe(category, listener)
	if err != nil {
		return false, fmt.Errorf("failed to subscribe handler to %s: %w", category, err)
	}
	r.bindings[key] = sub
	r.logger.Debug("Handler registered", "category", category.String())
	return true, nil
}

// Unregister cancels the subscription bound to handler. Unknown handlers are
// ignored so removal can be called speculatively.
func (r *Registry) Unregister(category relay.EventCategory, handler relay.Handler) error {
	if err := category.Validate(); err != nil {
		return err
	}
	if handler == nil || !reflect.TypeOf(handler).Comparable() {
		return nil
	}

	r.mu.Lock()
	key := bindingKey{category: category, handler: handler}
	sub, ok := r.bindings[key]
	delete(r.bindings, key)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	sub.Cancel()
	r.logger.Debug("Handler unregistered", "category", category.String())
	return nil
}

// Count returns the number of handlers bound to category.
func (r *Registry) Count(category relay.EventCategory) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for key := range r.bindings {
		if key.category == category {
			n++
		}
	}
	return n
}
