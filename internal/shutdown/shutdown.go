// Package shutdown coordinates graceful teardown: the status server
// stops first, then the query workers, then data files and database
// connections are closed.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// Closer is a component that can be shut down.
type Closer interface {
	Close() error
}

// Hook is a cleanup function run before components are closed.
type Hook func(ctx context.Context) error

// Shutdown order. Lower runs first.
const (
	PriorityServer      = 10 // stop accepting requests
	PriorityWorkers     = 20 // stop query workers
	PriorityCharts      = 30 // final chart render
	PriorityDataFiles   = 40 // close data files
	PriorityConnections = 50 // database connections last
)

// Coordinator runs registered hooks and closers in priority order when
// a shutdown is requested.
type Coordinator struct {
	timeout time.Duration
	logger  zerolog.Logger

	mu      sync.Mutex
	closers []entry
	hooks   []hookEntry

	once      sync.Once
	triggered sync.Once
	done      chan struct{}
}

type entry struct {
	name     string
	closer   Closer
	priority int
}

type hookEntry struct {
	name     string
	hook     Hook
	priority int
}

func New(timeout time.Duration, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		timeout: timeout,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Register adds a component to close during shutdown.
func (c *Coordinator) Register(name string, closer Closer, priority int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closers = append(c.closers, entry{name: name, closer: closer, priority: priority})
}

// RegisterHook adds a cleanup function run before any component at a
// higher priority is closed.
func (c *Coordinator) RegisterHook(name string, hook Hook, priority int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, hookEntry{name: name, hook: hook, priority: priority})
}

// WaitForSignal blocks until SIGINT/SIGTERM or a programmatic trigger.
func (c *Coordinator) WaitForSignal() os.Signal {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		c.logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		return sig
	case <-c.done:
		return syscall.SIGTERM
	}
}

// Trigger requests a shutdown programmatically. Safe to call from any
// goroutine, any number of times.
func (c *Coordinator) Trigger() {
	c.triggered.Do(func() {
		c.logger.Info().Msg("Shutdown triggered")
		close(c.done)
	})
}

// Shutdown runs all hooks, then closes all components, in priority
// order. Errors are logged; the first one is returned. Work remaining
// when the timeout expires is skipped.
func (c *Coordinator) Shutdown() error {
	var firstErr error

	c.once.Do(func() {
		c.triggered.Do(func() { close(c.done) })

		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()

		c.mu.Lock()
		hooks := make([]hookEntry, len(c.hooks))
		copy(hooks, c.hooks)
		closers := make([]entry, len(c.closers))
		copy(closers, c.closers)
		c.mu.Unlock()

		sort.SliceStable(hooks, func(i, j int) bool { return hooks[i].priority < hooks[j].priority })
		sort.SliceStable(closers, func(i, j int) bool { return closers[i].priority < closers[j].priority })

		start := time.Now()
		c.logger.Info().
			Int("components", len(closers)).
			Int("hooks", len(hooks)).
			Msg("Starting graceful shutdown")

		for _, h := range hooks {
			if ctx.Err() != nil {
				c.logger.Warn().Str("hook", h.name).Msg("Shutdown timeout reached, skipping remaining hooks")
				firstErr = ctx.Err()
				return
			}
			if err := h.hook(ctx); err != nil {
				c.logger.Error().Err(err).Str("hook", h.name).Msg("Shutdown hook failed")
				if firstErr == nil {
					firstErr = err
				}
			}
		}

		for _, e := range closers {
			if ctx.Err() != nil {
				c.logger.Warn().Str("component", e.name).Msg("Shutdown timeout reached, skipping remaining components")
				firstErr = ctx.Err()
				return
			}
			if err := e.closer.Close(); err != nil {
				c.logger.Error().Err(err).Str("component", e.name).Msg("Component shutdown failed")
				if firstErr == nil {
					firstErr = err
				}
			}
		}

		c.logger.Info().Dur("duration", time.Since(start)).Msg("Graceful shutdown complete")
	})

	return firstErr
}
