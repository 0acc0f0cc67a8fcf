package database

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// Manager holds all configured connectors and drives their health
// checks. The first registered connector is the default for queries
// that don't name one.
type Manager struct {
	connectors map[string]Connector
	order      []string
	logger     zerolog.Logger
}

func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{
		connectors: make(map[string]Connector),
		logger:     logger,
	}
}

// Add registers a connector. Names are unique; config validation
// guarantees that before we get here.
func (m *Manager) Add(c Connector) {
	m.connectors[c.Name()] = c
	m.order = append(m.order, c.Name())
}

// Get returns the named connector, or the default connector when name
// is empty.
func (m *Manager) Get(name string) (Connector, bool) {
	if name == "" {
		if len(m.order) == 0 {
			return nil, false
		}
		name = m.order[0]
	}
	c, ok := m.connectors[name]
	return c, ok
}

// WaitReady pings every connector, retrying failed ones until all are
// healthy or the grace period expires. Connections still failing after
// the grace period stay registered with FAIL status; their queries are
// skipped until a retry succeeds.
func (m *Manager) WaitReady(ctx context.Context, grace, retryInterval time.Duration) {
	deadline := time.Now().Add(grace)
	for {
		failed := 0
		for _, name := range m.order {
			c := m.connectors[name]
			if c.Status() == StatusOK {
				continue
			}
			if err := c.Ping(ctx); err != nil {
				failed++
			}
		}
		if failed == 0 {
			m.logger.Info().Int("connections", len(m.order)).Msg("All connections are healthy")
			return
		}
		if time.Now().After(deadline) {
			m.logger.Warn().
				Int("failed", failed).
				Dur("grace_period", grace).
				Msg("Grace period expired with failed connections, continuing without them")
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(retryInterval):
		}
	}
}

// RetryFailed pings every failed connector once and returns how many
// recovered.
func (m *Manager) RetryFailed(ctx context.Context) int {
	recovered := 0
	for _, name := range m.order {
		c := m.connectors[name]
		if c.Status() != StatusFailed {
			continue
		}
		if err := c.Ping(ctx); err == nil {
			recovered++
		}
	}
	return recovered
}

// Statuses returns a snapshot of connection health, keyed by name.
func (m *Manager) Statuses() map[string]Status {
	out := make(map[string]Status, len(m.connectors))
	for name, c := range m.connectors {
		out[name] = c.Status()
	}
	return out
}

// Names returns the connector names in sorted order.
func (m *Manager) Names() []string {
	names := make([]string, len(m.order))
	copy(names, m.order)
	sort.Strings(names)
	return names
}

// CloseAll closes every connector, returning the first error after
// attempting all of them.
func (m *Manager) CloseAll() error {
	var firstErr error
	for _, name := range m.order {
		if err := m.connectors[name].Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close connection %q: %w", name, err)
		}
	}
	return firstErr
}
