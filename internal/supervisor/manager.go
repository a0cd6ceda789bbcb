// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package supervisor

import (
	"context"
	"sync"

	"grimm.is/flywall/internal/errors"
	"grimm.is/flywall/internal/eventbus"
	"grimm.is/flywall/internal/logging"
)

type entry[C any] struct {
	watch  *WatchService
	config C
}

// ServiceManager owns the lifecycle of per-interface worker tasks, keyed
// by interface name (spec §4.2). S is the concrete Starter implementation
// shared by every entry; C is its config type.
type ServiceManager[S Starter[C], C any] struct {
	mu      sync.Mutex
	starter S
	entries map[string]*entry[C]
	// lastConfig is kept for every interface ever configured, even after
	// stop_service removes the live entry, so Up(name) can restart with
	// the last-persisted config (restart-on-reappear).
	lastConfig map[string]C
	lastEnable map[string]bool

	bus    *eventbus.Bus
	log    *logging.SubLogger
	unsubscribe func()
}

// New constructs a ServiceManager and, if bus is non-nil, subscribes to
// IfaceEvent for restart-on-reappear.
func New[S Starter[C], C any](starter S, bus *eventbus.Bus, log *logging.Logger) *ServiceManager[S, C] {
	m := &ServiceManager[S, C]{
		starter:    starter,
		entries:    make(map[string]*entry[C]),
		lastConfig: make(map[string]C),
		lastEnable: make(map[string]bool),
		bus:        bus,
		log:        log.With("supervisor"),
	}
	if bus != nil {
		ch, unsub := bus.SubscribeIface()
		m.unsubscribe = unsub
		go m.watchIfaceEvents(ch)
	}
	return m
}

func (m *ServiceManager[S, C]) watchIfaceEvents(ch <-chan eventbus.IfaceEvent) {
	for ev := range ch {
		if !ev.Up {
			continue // Down(name): workers observe link loss independently.
		}
		m.mu.Lock()
		cfg, hasCfg := m.lastConfig[ev.Name]
		enable, hasEnable := m.lastEnable[ev.Name]
		m.mu.Unlock()
		if !hasCfg || !hasEnable || !enable {
			continue
		}
		if err := m.UpdateService(context.Background(), ev.Name, cfg, true); err != nil {
			m.log.Warn("restart-on-reappear failed for %s: %v", ev.Name, err)
		}
	}
}

// UpdateService implements spec §4.2's update_service(config): idempotent.
// If a live entry exists it is stopped gracefully first; if enable is
// true a new worker is started via Starter.Start.
func (m *ServiceManager[S, C]) UpdateService(ctx context.Context, iface string, cfg C, enable bool) error {
	m.mu.Lock()
	existing := m.entries[iface]
	m.mu.Unlock()

	if existing != nil {
		status := existing.watch.Status()
		if status == StatusRunning || status == StatusStaring {
			existing.watch.JustChangeStatus(StatusStopping)
			existing.watch.WaitToStop()
		}
		m.mu.Lock()
		delete(m.entries, iface)
		m.mu.Unlock()
	}

	m.mu.Lock()
	m.lastConfig[iface] = cfg
	m.lastEnable[iface] = enable
	m.mu.Unlock()

	if !enable {
		return nil
	}

	watch, err := m.starter.Start(ctx, iface, cfg)
	if err != nil {
		return errors.Wrapf(err, errors.KindInternal, "start service on %s", iface)
	}

	m.mu.Lock()
	m.entries[iface] = &entry[C]{watch: watch, config: cfg}
	m.mu.Unlock()
	return nil
}

// StopService implements stop_service(iface): requests a stop and removes
// the entry, returning the WatchService the caller can wait on (nil if no
// entry existed).
func (m *ServiceManager[S, C]) StopService(iface string) *WatchService {
	m.mu.Lock()
	existing := m.entries[iface]
	delete(m.entries, iface)
	m.lastEnable[iface] = false
	m.mu.Unlock()

	if existing == nil {
		return nil
	}
	existing.watch.JustChangeStatus(StatusStopping)
	return existing.watch
}

// GetAllStatus implements get_all_status(): a snapshot of iface -> status.
func (m *ServiceManager[S, C]) GetAllStatus() map[string]Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Status, len(m.entries))
	for iface, e := range m.entries {
		out[iface] = e.watch.Status()
	}
	return out
}

// Shutdown triggers best-effort Stopping on every live entry and
// unsubscribes from the interface event bus. It does not wait for
// workers to reach Stop.
func (m *ServiceManager[S, C]) Shutdown() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		e.watch.JustChangeStatus(StatusStopping)
	}
}
