// Package connectivity tracks whether the central commerce API is considered
// reachable. The state is edge-triggered by whoever observes the network: the
// commerce client reports each request outcome, and operators can force a
// transition through the API. Listeners fire only on transitions; there is no
// polling.
package connectivity

import (
	"sync"

	"pos-edge-agent/internal/util"

	"go.uber.org/zap"
)

// Listener receives connectivity transitions: true when connectivity is
// regained, false when lost.
type Listener func(online bool)

// Monitor is a goroutine-safe online/offline observer registry.
type Monitor struct {
	mu        sync.Mutex
	online    bool
	nextID    int
	listeners map[int]Listener
	logger    *zap.Logger
}

// NewMonitor creates a monitor. The agent starts optimistic: it assumes the
// API is reachable until a request proves otherwise.
func NewMonitor(logger *zap.Logger) *Monitor {
	return &Monitor{
		online:    true,
		listeners: make(map[int]Listener),
		logger:    logger,
	}
}

// IsOnline reports the last known connectivity state. This is a heuristic;
// each individual request outcome is the ground truth.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe registers a listener and returns an id for Unsubscribe.
func (m *Monitor) Subscribe(listener Listener) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = listener
	return id
}

// Unsubscribe removes a previously registered listener.
func (m *Monitor) Unsubscribe(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.listeners, id)
}

// SetOnline records a connectivity transition and notifies listeners.
// Redundant updates (same state) are ignored. Listeners run synchronously on
// the caller's goroutine, outside the monitor lock.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	listeners := make([]Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.mu.Unlock()

	if online {
		util.ConnectivityTransitionsTotal.WithLabelValues("online").Inc()
		m.logger.Info("Connectivity regained")
	} else {
		util.ConnectivityTransitionsTotal.WithLabelValues("offline").Inc()
		m.logger.Warn("Connectivity lost")
	}

	for _, l := range listeners {
		l(online)
	}
}
