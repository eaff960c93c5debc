// --- File: notificationrelay/relay.go ---
// Package notificationrelay is the application-facing facade of the relay.
// It routes named events from the delivery subsystem to callbacks and
// registered handlers, buffers payload-bearing events until someone can
// consume them, and forwards outbound commands.
package notificationrelay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/tinywideclouds/go-notification-relay/internal/activation"
	"github.com/tinywideclouds/go-notification-relay/internal/channel"
	"github.com/tinywideclouds/go-notification-relay/internal/pending"
	"github.com/tinywideclouds/go-notification-relay/internal/registry"
	"github.com/tinywideclouds/go-notification-relay/pkg/relay"
)

// Callbacks are the single-callback slots set through Configure. A nil field
// leaves the slot as it was.
type Callbacks struct {
	OnNotificationReceived    func(relay.Notification)
	OnNotificationOpened      func(relay.OpenResult)
	OnNotificationsRegistered func(relay.Payload)
	OnIDsAvailable            func(relay.Payload)
	OnError                   func(error)
}

// Relay owns the activation state, the callback slots and the pending
// buffer. Build one per process with New and share the pointer.
type Relay struct {
	platform  relay.Platform
	commander relay.Commander
	pending   relay.PendingStore
	adapter   *channel.Adapter
	registry  *registry.Registry
	gate      *activation.Gate
	logger    *slog.Logger

	// queue serialises every event delivery, drain and registry change.
	queue  serialQueue
	closed atomic.Bool

	mu         sync.RWMutex
	callbacks  Callbacks
	configured bool
}

// New assembles a relay. A nil pendingStore selects the in-process buffer.
func New(
	platform relay.Platform,
	commander relay.Commander,
	observer relay.ConnectivityObserver,
	pendingStore relay.PendingStore,
	logger *slog.Logger,
) (*Relay, error) {
	if _, err := relay.ParsePlatform(string(platform)); err != nil {
		return nil, err
	}
	if commander == nil {
		return nil, errors.New("commander is required")
	}
	if observer == nil {
		return nil, errors.New("connectivity observer is required")
	}
	if pendingStore == nil {
		pendingStore = pending.NewBuffer()
	}

	r := &Relay{
		platform:  platform,
		commander: commander,
		pending:   pendingStore,
		adapter:   channel.NewAdapter(),
		logger:    logger.With("component", "NotificationRelay"),
	}
	r.registry = registry.New(r.adapter, logger)
	r.gate = activation.NewGate(observer, commander.Configure, r.queueError, logger)

	// The relay's own listeners are subscribed first, so slot callbacks see
	// each event before registry handlers do.
	for _, c := range relay.Categories() {
		var listener channel.Listener
		if c.Buffered() {
			listener = r.payloadListener(c)
		} else {
			listener = r.passThroughListener(c)
		}
		if _, err := r.adapter.Subscribe(c, listener); err != nil {
			return nil, fmt.Errorf("failed to subscribe relay to %s: %w", c, err)
		}
	}
	return r, nil
}

// Configure records the provided callback slots, delivers any payload that
// was buffered for a newly provided received/opened slot, and then runs the
// activation gate. It may be called again; later calls overwrite only the
// slots they provide.
//
// Configure, AddEventListener and RemoveEventListener wait for any callback
// running on another goroutine before doing their work. Called from inside
// a callback, they run after that callback returns.
func (r *Relay) Configure(ctx context.Context, cb Callbacks) {
	r.queue.run(func() {
		r.mu.Lock()
		if cb.OnError != nil {
			r.callbacks.OnError = cb.OnError
		}
		if cb.OnNotificationReceived != nil {
			r.callbacks.OnNotificationReceived = cb.OnNotificationReceived
		}
		if cb.OnNotificationOpened != nil {
			r.callbacks.OnNotificationOpened = cb.OnNotificationOpened
		}
		if cb.OnNotificationsRegistered != nil {
			r.callbacks.OnNotificationsRegistered = cb.OnNotificationsRegistered
		}
		if cb.OnIDsAvailable != nil {
			r.callbacks.OnIDsAvailable = cb.OnIDsAvailable
		}
		r.configured = true
		r.mu.Unlock()

		if cb.OnNotificationReceived != nil {
			r.drainToSlot(ctx, relay.NotificationReceived)
		}
		if cb.OnNotificationOpened != nil {
			r.drainToSlot(ctx, relay.NotificationOpened)
		}
		r.gate.ActivateWhenConnected(ctx)
	})
}

// Unregister clears the opened-notification callback. Opened events that
// arrive afterwards are buffered again.
func (r *Relay) Unregister() {
	r.queue.run(func() {
		r.mu.Lock()
		r.callbacks.OnNotificationOpened = nil
		r.mu.Unlock()
	})
}

// Dispatch is the inbound entry point for the transport carrying the
// delivery subsystem's named events.
func (r *Relay) Dispatch(ctx context.Context, eventName string, body json.RawMessage) error {
	category, err := relay.ParseCategory(eventName)
	if err != nil {
		return err
	}
	if r.closed.Load() {
		return relay.ErrRelayClosed
	}
	r.queue.run(func() {
		r.adapter.Emit(ctx, category, body)
	})
	return nil
}

// AddEventListener binds handler to category. For a buffered category the
// pending payload, if any, is delivered to handler before this returns.
func (r *Relay) AddEventListener(ctx context.Context, category relay.EventCategory, handler relay.Handler) error {
	if err := category.Validate(); err != nil {
		return err
	}
	if err := registry.CheckHandler(handler); err != nil {
		return err
	}
	if r.closed.Load() {
		return relay.ErrRelayClosed
	}

	r.queue.run(func() {
		created, err := r.registry.Register(category, handler, r.handlerListener(category, handler))
		if err != nil {
			r.reportError(err)
			return
		}
		if !created || !category.Buffered() {
			return
		}
		encoded, ok := r.takePending(ctx, category)
		if !ok {
			return
		}
		ev, err := relay.DecodeEncoded(category, encoded)
		if err != nil {
			r.reportError(err)
			return
		}
		r.safely(category, func() { handler.HandleEvent(ev) })
	})
	return nil
}

// RemoveEventListener unbinds handler. Removing an unknown handler is not an
// error.
func (r *Relay) RemoveEventListener(category relay.EventCategory, handler relay.Handler) error {
	if err := category.Validate(); err != nil {
		return err
	}
	r.queue.run(func() {
		_ = r.registry.Unregister(category, handler)
	})
	return nil
}

// ActivationState reports the activation gate's state.
func (r *Relay) ActivationState() relay.ActivationState {
	return r.gate.State()
}

// Configured reports whether Configure has run at least once.
func (r *Relay) Configured() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.configured
}

// Close stops the connectivity watch and tears down every subscription.
func (r *Relay) Close() {
	if !r.closed.CompareAndSwap(false, true) {
		return
	}
	r.gate.Close()
	r.adapter.Close()
	r.logger.Info("Relay closed")
}

// The relay's listeners run before any handler listener for the same event,
// so decode failures are reported here once per event.
func (r *Relay) payloadListener(c relay.EventCategory) channel.Listener {
	return func(ctx context.Context, body json.RawMessage) {
		encoded, err := relay.ExtractEncoded(c, body)
		if err != nil {
			r.reportError(err)
			return
		}
		ev, err := relay.DecodeEncoded(c, encoded)
		if err != nil {
			r.reportError(err)
			return
		}

		if !r.hasSlot(c) {
			if r.registry.Count(c) > 0 {
				// Registry handlers get the event on their own subscriptions.
				return
			}
			if err := r.pending.Put(ctx, c, encoded); err != nil {
				r.reportError(fmt.Errorf("failed to buffer %s: %w", c, err))
				return
			}
			r.logger.Debug("Buffered event with no handler", "category", c.String())
			return
		}
		r.deliverToSlot(ev)
	}
}

func (r *Relay) passThroughListener(c relay.EventCategory) channel.Listener {
	return func(_ context.Context, body json.RawMessage) {
		ev, err := relay.DecodeEvent(c, body)
		if err != nil {
			r.reportError(err)
			return
		}
		if !r.hasSlot(c) {
			r.logger.Debug("Dropping event with no callback", "category", c.String())
			return
		}
		r.deliverToSlot(ev)
	}
}

func (r *Relay) handlerListener(c relay.EventCategory, h relay.Handler) channel.Listener {
	return func(_ context.Context, body json.RawMessage) {
		ev, err := relay.DecodeEvent(c, body)
		if err != nil {
			// Already reported by the relay's own listener.
			r.logger.Debug("Skipping undecodable event for handler", "category", c.String())
			return
		}
		r.safely(c, func() { h.HandleEvent(ev) })
	}
}

func (r *Relay) drainToSlot(ctx context.Context, c relay.EventCategory) {
	encoded, ok := r.takePending(ctx, c)
	if !ok {
		return
	}
	r.logger.Debug("Delivering buffered event", "category", c.String())
	r.deliverEncoded(c, encoded)
}

func (r *Relay) takePending(ctx context.Context, c relay.EventCategory) (string, bool) {
	encoded, ok, err := r.pending.Take(ctx, c)
	if err != nil {
		r.reportError(fmt.Errorf("failed to drain pending %s: %w", c, err))
		return "", false
	}
	return encoded, ok
}

func (r *Relay) deliverEncoded(c relay.EventCategory, encoded string) {
	ev, err := relay.DecodeEncoded(c, encoded)
	if err != nil {
		r.reportError(err)
		return
	}
	r.deliverToSlot(ev)
}

func (r *Relay) deliverToSlot(ev relay.Event) {
	r.mu.RLock()
	cbs := r.callbacks
	r.mu.RUnlock()

	switch ev.Category {
	case relay.NotificationReceived:
		if cbs.OnNotificationReceived != nil {
			r.safely(ev.Category, func() { cbs.OnNotificationReceived(ev.Notification) })
		}
	case relay.NotificationOpened:
		if cbs.OnNotificationOpened != nil && ev.OpenResult != nil {
			r.safely(ev.Category, func() { cbs.OnNotificationOpened(*ev.OpenResult) })
		}
	case relay.RegistrationCompleted:
		if cbs.OnNotificationsRegistered != nil {
			r.safely(ev.Category, func() { cbs.OnNotificationsRegistered(ev.Payload) })
		}
	case relay.IdentifiersAvailable:
		if cbs.OnIDsAvailable != nil {
			r.safely(ev.Category, func() { cbs.OnIDsAvailable(ev.Payload) })
		}
	}
}

func (r *Relay) hasSlot(c relay.EventCategory) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch c {
	case relay.NotificationReceived:
		return r.callbacks.OnNotificationReceived != nil
	case relay.NotificationOpened:
		return r.callbacks.OnNotificationOpened != nil
	case relay.RegistrationCompleted:
		return r.callbacks.OnNotificationsRegistered != nil
	case relay.IdentifiersAvailable:
		return r.callbacks.OnIDsAvailable != nil
	default:
		return false
	}
}

// safely runs an application callback and turns a panic into a PanicError.
func (r *Relay) safely(c relay.EventCategory, fn func()) {
	defer func() {
		if v := recover(); v != nil {
			r.logger.Error("Handler panicked", "category", c.String(), "panic", v)
			r.reportError(&relay.PanicError{Category: c, Value: v, Stack: string(debug.Stack())})
		}
	}()
	fn()
}

// queueError reports err from outside the queue, such as the connectivity
// watch, without overlapping a running callback.
func (r *Relay) queueError(err error) {
	r.queue.run(func() { r.reportError(err) })
}

// reportError routes err to the OnError slot, or logs and drops it.
func (r *Relay) reportError(err error) {
	r.mu.RLock()
	onError := r.callbacks.OnError
	r.mu.RUnlock()

	if onError == nil {
		r.logger.Warn("Dropping error; no error callback configured", "err", err)
		return
	}
	defer func() {
		if v := recover(); v != nil {
			r.logger.Error("Error callback panicked", "panic", v, "err", err)
		}
	}()
	onError(err)
}
