// --- File: internal/activation/gate.go ---
// Package activation issues the one-time begin-relay command once the
// device is known to be online.
package activation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tinywideclouds/go-notification-relay/pkg/relay"
)

// Gate is a monotonic state machine:
// Uninitialized -> (AwaitingConnectivity ->) Activated.
type Gate struct {
	observer relay.ConnectivityObserver
	activate func(ctx context.Context) error
	onError  func(error)
	logger   *slog.Logger

	mu    sync.Mutex
	state relay.ActivationState
	stop  func()
}

// NewGate creates a gate. activate is the begin-relay command; onError
// receives connectivity and command failures.
func NewGate(
	observer relay.ConnectivityObserver,
	activate func(ctx context.Context) error,
	onError func(error),
	logger *slog.Logger,
) *Gate {
	return &Gate{
		observer: observer,
		activate: activate,
		onError:  onError,
		logger:   logger.With("component", "ActivationGate"),
	}
}

// State returns the current activation state.
func (g *Gate) State() relay.ActivationState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// ActivateWhenConnected checks connectivity once and either activates now or
// waits for the first connected signal. Calls after the first one that got
// past Uninitialized are no-ops.
func (g *Gate) ActivateWhenConnected(ctx context.Context) {
	if g.State() != relay.ActivationUninitialized {
		g.logger.Debug("Activation already in progress or done", "state", g.State().String())
		return
	}

	connected, err := g.observer.Connected(ctx)
	if err != nil {
		g.logger.Warn("Connectivity check failed; activation stays pending", "err", err)
		g.onError(fmt.Errorf("%w: %w", relay.ErrConnectivityCheckFailed, err))
		return
	}
	if connected {
		g.fire(ctx, relay.ActivationUninitialized)
		return
	}

	g.mu.Lock()
	if g.state != relay.ActivationUninitialized {
		g.mu.Unlock()
		return
	}
	g.state = relay.ActivationAwaitingConnectivity
	g.mu.Unlock()
	g.logger.Info("Offline; waiting for connectivity before activation")

	// The deferred command must outlive the caller's context.
	watchCtx := context.WithoutCancel(ctx)
	stop := g.observer.Watch(func(connected bool) {
		if connected {
			g.fire(watchCtx, relay.ActivationAwaitingConnectivity)
		}
	})

	g.mu.Lock()
	if g.state != relay.ActivationAwaitingConnectivity {
		// Fired while Watch was still registering.
		g.mu.Unlock()
		stop()
		return
	}
	g.stop = stop
	g.mu.Unlock()
}

// fire moves from the expected state to Activated and issues the command.
// Only the caller that wins the transition sends it.
func (g *Gate) fire(ctx context.Context, from relay.ActivationState) {
	g.mu.Lock()
	if g.state != from {
		g.mu.Unlock()
		return
	}
	g.state = relay.ActivationActivated
	stop := g.stop
	g.stop = nil
	g.mu.Unlock()

	if stop != nil {
		stop()
	}

	g.logger.Info("Issuing begin-relay command")
	if err := g.activate(ctx); err != nil {
		g.logger.Error("Begin-relay command failed", "err", err)
		g.onError(err)
	}
}

// Close stops any pending connectivity watch.
func (g *Gate) Close() {
	g.mu.Lock()
	stop := g.stop
	g.stop = nil
	g.mu.Unlock()
	if stop != nil {
		stop()
	}
}
