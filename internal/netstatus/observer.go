// Package netstatus is the single source of truth for connectivity.
// It probes the backend on an interval and publishes edge-triggered
// online/offline events; it holds no message state of its own.
package netstatus

import (
	"context"
	"sync"
	"time"

	"github.com/fadeline/chat/internal/bus"
	"go.uber.org/zap"
)

// Prober answers whether the backend is reachable right now.
type Prober interface {
	Ping(ctx context.Context) error
}

// Observer polls a Prober and exposes an observable online/offline bool.
type Observer struct {
	prober   Prober
	bus      *bus.Bus
	logger   *zap.Logger
	interval time.Duration

	mu        sync.RWMutex
	online    bool
	listeners map[int]func(bool)
	nextID    int

	cancel context.CancelFunc
	done   chan struct{}
}

// NewObserver creates an observer polling prober every interval.
func NewObserver(prober Prober, interval time.Duration, b *bus.Bus, logger *zap.Logger) *Observer {
	return &Observer{
		prober:    prober,
		bus:       b,
		logger:    logger,
		interval:  interval,
		listeners: make(map[int]func(bool)),
	}
}

// Start probes once synchronously so the initial value reflects actual
// connectivity, then begins the polling loop.
func (o *Observer) Start(ctx context.Context) {
	ctx, o.cancel = context.WithCancel(ctx)
	o.done = make(chan struct{})

	o.set(o.probe(ctx))

	go func() {
		defer close(o.done)
		ticker := time.NewTicker(o.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				o.set(o.probe(ctx))
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the polling loop and waits for it to exit.
func (o *Observer) Stop() {
	if o.cancel != nil {
		o.cancel()
		<-o.done
	}
}

// Online returns the current connectivity snapshot.
func (o *Observer) Online() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.online
}

// Subscribe registers a listener invoked on every transition. Returns an
// unsubscribe function.
func (o *Observer) Subscribe(fn func(online bool)) func() {
	o.mu.Lock()
	id := o.nextID
	o.nextID++
	o.listeners[id] = fn
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.listeners, id)
		o.mu.Unlock()
	}
}

func (o *Observer) probe(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, o.interval)
	defer cancel()
	return o.prober.Ping(probeCtx) == nil
}

// set records a probe result, firing listeners and bus events at most
// once per actual transition.
func (o *Observer) set(online bool) {
	o.mu.Lock()
	if o.online == online {
		o.mu.Unlock()
		return
	}
	o.online = online
	listeners := make([]func(bool), 0, len(o.listeners))
	for _, fn := range o.listeners {
		listeners = append(listeners, fn)
	}
	o.mu.Unlock()

	if o.logger != nil {
		o.logger.Info("connectivity changed", zap.Bool("online", online))
	}

	kind := bus.KindNetworkOffline
	if online {
		kind = bus.KindNetworkOnline
	}
	if o.bus != nil {
		o.bus.Publish(bus.Now(kind, online))
	}
	for _, fn := range listeners {
		fn(online)
	}
}
