// Package connectivity observes network reachability and notifies
// subscribers on transitions. The monitor is purely observational: it
// knows nothing about the store or the sync engine.
package connectivity

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Prober answers the point-in-time question "is the remote reachable".
// The production prober is the remote client's Ping.
type Prober interface {
	Probe(ctx context.Context) bool
}

// ProbeFunc adapts a function to the Prober interface.
type ProbeFunc func(ctx context.Context) bool

func (f ProbeFunc) Probe(ctx context.Context) bool { return f(ctx) }

// Monitor polls a Prober and invokes subscriber callbacks on reachability
// transitions. Delivery is at-least-once: a callback may see duplicate
// notifications of the same state and must tolerate them.
type Monitor struct {
	prober       Prober
	interval     time.Duration
	probeTimeout time.Duration
	logger       *slog.Logger

	mu          sync.Mutex
	online      bool
	subscribers []func(online bool)

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewMonitor creates a Monitor polling prober every interval, with each
// probe bounded by probeTimeout so a hung probe cannot eat a poll cycle.
// A non-positive probeTimeout falls back to the interval. The monitor
// starts offline until the first probe says otherwise.
func NewMonitor(prober Prober, interval, probeTimeout time.Duration, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if probeTimeout <= 0 {
		probeTimeout = interval
	}
	return &Monitor{
		prober:       prober,
		interval:     interval,
		probeTimeout: probeTimeout,
		logger:       logger.With(slog.String("component", "connectivity")),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// IsOnline reports the last observed reachability state.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe registers a callback invoked with the new state on every
// transition. Callbacks run on the monitor goroutine and should return
// quickly; slow work belongs on the subscriber's side.
func (m *Monitor) Subscribe(fn func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// Start launches the polling loop. It probes once immediately, then every
// interval until Stop is called or ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	go func() {
		defer close(m.done)

		m.check(ctx)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			case <-ticker.C:
				m.check(ctx)
			}
		}
	}()
}

// Stop terminates the polling loop and waits for it to exit. Idempotent.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done
}

// SetOnline forces the reachability state, notifying subscribers on a
// transition. Used when the platform reports connectivity directly
// instead of the monitor polling for it.
func (m *Monitor) SetOnline(online bool) {
	m.transition(online)
}

func (m *Monitor) check(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()
	m.transition(m.prober.Probe(probeCtx))
}

func (m *Monitor) transition(online bool) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	subs := make([]func(bool), len(m.subscribers))
	copy(subs, m.subscribers)
	m.mu.Unlock()

	if !changed {
		return
	}
	m.logger.Info("connectivity changed", slog.Bool("online", online))
	for _, fn := range subs {
		fn(online)
	}
}
