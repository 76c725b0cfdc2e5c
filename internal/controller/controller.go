// Package controller implements the module lifecycle controller (C11): it
// owns the ordered list of every registered module and drives
// initialize/start/stop/cleanup across all of them (§4.11).
package controller

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cabinmind/copilot/internal/adapters"
	"github.com/cabinmind/copilot/internal/bus"
	"github.com/cabinmind/copilot/pkg/models"
)

// Controller owns the ordered list of registered modules (§4.11).
// Registration order is initialize/start order; stop runs in reverse.
type Controller struct {
	bus     *bus.Bus
	logger  *slog.Logger
	order   []string
	modules map[string]adapters.Module

	initialized []string // names successfully initialized, in order
	started     []string // names successfully started, in order
}

// New creates a controller bound to a bus. publish_event (§4.11) is simply
// the bus's own Publish, exposed here so callers that only hold a
// Controller reference do not need a separate bus dependency.
func New(b *bus.Bus, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		bus:     b,
		logger:  logger.With("component", "controller"),
		modules: make(map[string]adapters.Module),
	}
}

// Register adds a module. Registration order determines initialize/start
// order; re-registering a name is rejected, since the spec's ordered list
// has no notion of replacement.
func (c *Controller) Register(m adapters.Module) error {
	name := m.Name()
	if _, exists := c.modules[name]; exists {
		return fmt.Errorf("controller: module %q already registered", name)
	}
	c.modules[name] = m
	c.order = append(c.order, name)
	return nil
}

// GetModule returns a registered module by name (§4.11 get_module).
func (c *Controller) GetModule(name string) (adapters.Module, bool) {
	m, ok := c.modules[name]
	return m, ok
}

// PublishEvent publishes an event on the controller's bus (§4.11
// publish_event).
func (c *Controller) PublishEvent(ctx context.Context, ev models.Event) {
	c.bus.Publish(ctx, ev)
}

// Initialize calls each module's Initialize in registration order. Any
// failure aborts immediately and calls Cleanup on every module already
// initialized, in reverse order (§4.11).
func (c *Controller) Initialize(ctx context.Context) error {
	for _, name := range c.order {
		m := c.modules[name]
		if err := m.Initialize(ctx); err != nil {
			c.logger.Error("module initialize failed", "module", name, "error", err)
			c.cleanupInitialized(ctx)
			return fmt.Errorf("controller: initialize %q: %w", name, err)
		}
		c.initialized = append(c.initialized, name)
	}
	return nil
}

// Start starts every initialized module in registration order.
func (c *Controller) Start(ctx context.Context) error {
	for _, name := range c.initialized {
		m := c.modules[name]
		if err := m.Start(ctx); err != nil {
			c.logger.Error("module start failed", "module", name, "error", err)
			return fmt.Errorf("controller: start %q: %w", name, err)
		}
		c.started = append(c.started, name)
	}
	return nil
}

// Stop stops every started module in reverse order, collecting (but not
// aborting on) individual failures.
func (c *Controller) Stop(ctx context.Context) error {
	var lastErr error
	for i := len(c.started) - 1; i >= 0; i-- {
		name := c.started[i]
		m := c.modules[name]
		if err := m.Stop(ctx); err != nil {
			c.logger.Error("module stop failed", "module", name, "error", err)
			lastErr = fmt.Errorf("controller: stop %q: %w", name, err)
		}
	}
	c.started = nil
	return lastErr
}

// cleanupInitialized calls Cleanup on every module initialized so far, in
// reverse order, used when Initialize aborts partway through.
func (c *Controller) cleanupInitialized(ctx context.Context) {
	for i := len(c.initialized) - 1; i >= 0; i-- {
		name := c.initialized[i]
		if err := c.modules[name].Cleanup(ctx); err != nil {
			c.logger.Error("module cleanup failed", "module", name, "error", err)
		}
	}
	c.initialized = nil
}

// Cleanup calls Cleanup on every initialized module in reverse order.
func (c *Controller) Cleanup(ctx context.Context) error {
	var lastErr error
	for i := len(c.initialized) - 1; i >= 0; i-- {
		name := c.initialized[i]
		if err := c.modules[name].Cleanup(ctx); err != nil {
			c.logger.Error("module cleanup failed", "module", name, "error", err)
			lastErr = fmt.Errorf("controller: cleanup %q: %w", name, err)
		}
	}
	c.initialized = nil
	return lastErr
}
