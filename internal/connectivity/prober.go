// Package connectivity implements a ConnectivityObserver by dialling a
// well-known TCP address.
package connectivity

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// Config controls the prober.
type Config struct {
	// Addr is a host:port that is reachable whenever the network is up.
	Addr     string
	Interval time.Duration
	Timeout  time.Duration
}

// Prober reports reachability of Addr. Watch polls every Interval and
// notifies listeners on each change, including the first observation.
type Prober struct {
	cfg    Config
	dialer net.Dialer
	logger *slog.Logger

	mu        sync.Mutex
	listeners map[uint64]func(bool)
	nextID    uint64
	cancel    context.CancelFunc
}

func NewProber(cfg Config, logger *slog.Logger) (*Prober, error) {
	if _, _, err := net.SplitHostPort(cfg.Addr); err != nil {
		return nil, fmt.Errorf("invalid probe address %q: %w", cfg.Addr, err)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	return &Prober{
		cfg:       cfg,
		dialer:    net.Dialer{Timeout: cfg.Timeout},
		logger:    logger.With("component", "ConnectivityProber"),
		listeners: make(map[uint64]func(bool)),
	}, nil
}

// Connected dials Addr once. A failed dial means offline, not an error;
// only a cancelled context is reported as one.
func (p *Prober) Connected(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	conn, err := p.dialer.DialContext(ctx, "tcp", p.cfg.Addr)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		p.logger.Debug("Probe failed", "addr", p.cfg.Addr, "err", err)
		return false, nil
	}
	_ = conn.Close()
	return true, nil
}

// Watch registers listener. The returned stop may be called from inside
// listener.
func (p *Prober) Watch(listener func(connected bool)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextID++
	id := p.nextID
	p.listeners[id] = listener
	if p.cancel == nil {
		ctx, cancel := context.WithCancel(context.Background())
		p.cancel = cancel
		go p.poll(ctx)
	}

	var once sync.Once
	return func() {
		once.Do(func() { p.remove(id) })
	}
}

func (p *Prober) remove(id uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.listeners, id)
	if len(p.listeners) == 0 && p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

func (p *Prober) poll(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	known := false
	last := false
	for {
		connected, err := p.Connected(ctx)
		if err != nil {
			return
		}
		if !known || connected != last {
			known, last = true, connected
			p.logger.Info("Connectivity changed", "connected", connected)
			p.notify(connected)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *Prober) notify(connected bool) {
	p.mu.Lock()
	snapshot := make([]func(bool), 0, len(p.listeners))
	for _, l := range p.listeners {
		snapshot = append(snapshot, l)
	}
	p.mu.Unlock()

	for _, l := range snapshot {
		l(connected)
	}
}
