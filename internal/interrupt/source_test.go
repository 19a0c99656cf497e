package interrupt_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"periph.io/x/conn/v3/gpio"

	"github.com/micro-nova/gpiointr/internal/hardware"
	"github.com/micro-nova/gpiointr/internal/interrupt"
)

const btnPin = 20

func newInputLine(t *testing.T) (*hardware.Line, *hardware.Mock) {
	t.Helper()
	m := hardware.NewMock(btnPin)
	chip := hardware.NewChip(m.Resolve, nil)
	l, err := chip.Acquire(btnPin, "btn")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := l.ConfigureDirection(hardware.Input); err != nil {
		t.Fatalf("ConfigureDirection: %v", err)
	}
	t.Cleanup(func() { _ = l.Release() })
	return l, m
}

func TestBindDeliversEdges(t *testing.T) {
	line, m := newInputLine(t)
	src := interrupt.NewSource(interrupt.WithPollInterval(10 * time.Millisecond))

	var calls atomic.Int64
	id, err := src.Bind(line, gpio.RisingEdge, func() { calls.Add(1) })
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if !src.Bound(id) {
		t.Error("Bound(id) = false after Bind")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for i := 0; i < 5; i++ {
		if err := m.Trigger(ctx, btnPin); err != nil {
			t.Fatalf("Trigger %d: %v", i, err)
		}
	}

	if err := src.Unbind(id); err != nil {
		t.Fatalf("Unbind: %v", err)
	}
	if got := calls.Load(); got != 5 {
		t.Errorf("handler calls = %d, want 5", got)
	}
}

func TestNoInvocationAfterUnbind(t *testing.T) {
	line, m := newInputLine(t)
	src := interrupt.NewSource(interrupt.WithPollInterval(10 * time.Millisecond))

	var calls atomic.Int64
	id, err := src.Bind(line, gpio.RisingEdge, func() { calls.Add(1) })
	if err != nil {
		t.Fatal(err)
	}
	if err := src.Unbind(id); err != nil {
		t.Fatal(err)
	}
	if src.Bound(id) {
		t.Error("Bound(id) = true after Unbind")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := m.Trigger(ctx, btnPin); err == nil {
		t.Error("edge was consumed after Unbind returned")
	}
	if got := calls.Load(); got != 0 {
		t.Errorf("handler calls after unbind = %d, want 0", got)
	}
}

func TestUnbindWaitsForRunningHandler(t *testing.T) {
	line, m := newInputLine(t)
	src := interrupt.NewSource(interrupt.WithPollInterval(10 * time.Millisecond))

	entered := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	id, err := src.Bind(line, gpio.RisingEdge, func() {
		close(entered)
		<-release
		finished.Store(true)
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := m.Trigger(context.Background(), btnPin); err != nil {
		t.Fatal(err)
	}
	<-entered

	unbound := make(chan struct{})
	go func() {
		_ = src.Unbind(id)
		close(unbound)
	}()

	select {
	case <-unbound:
		t.Fatal("Unbind returned while the handler was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-unbound:
	case <-time.After(2 * time.Second):
		t.Fatal("Unbind did not return after the handler finished")
	}
	if !finished.Load() {
		t.Error("handler did not complete before Unbind returned")
	}
}

func TestBindFailures(t *testing.T) {
	noop := func() {}

	t.Run("no edge", func(t *testing.T) {
		line, _ := newInputLine(t)
		_, err := interrupt.NewSource().Bind(line, gpio.NoEdge, noop)
		if !errors.Is(err, interrupt.ErrBindFailed) {
			t.Errorf("err = %v, want ErrBindFailed", err)
		}
	})

	t.Run("nil handler", func(t *testing.T) {
		line, _ := newInputLine(t)
		_, err := interrupt.NewSource().Bind(line, gpio.RisingEdge, nil)
		if !errors.Is(err, interrupt.ErrBindFailed) {
			t.Errorf("err = %v, want ErrBindFailed", err)
		}
	})

	t.Run("output line", func(t *testing.T) {
		line, _ := newInputLine(t)
		_ = line.ConfigureDirection(hardware.Output)
		_, err := interrupt.NewSource().Bind(line, gpio.RisingEdge, noop)
		if !errors.Is(err, interrupt.ErrBindFailed) || !errors.Is(err, hardware.ErrNotInput) {
			t.Errorf("err = %v, want ErrBindFailed wrapping ErrNotInput", err)
		}
	})

	t.Run("already bound", func(t *testing.T) {
		line, _ := newInputLine(t)
		src := interrupt.NewSource(interrupt.WithPollInterval(10 * time.Millisecond))
		defer src.Close()
		if _, err := src.Bind(line, gpio.RisingEdge, noop); err != nil {
			t.Fatal(err)
		}
		if _, err := src.Bind(line, gpio.RisingEdge, noop); !errors.Is(err, interrupt.ErrBindFailed) {
			t.Errorf("second Bind err = %v, want ErrBindFailed", err)
		}
	})

	t.Run("no edge support", func(t *testing.T) {
		m := hardware.NewMock()
		m.AddPin(7, false)
		chip := hardware.NewChip(m.Resolve, nil)
		line, _ := chip.Acquire(7, "plain")
		_ = line.ConfigureDirection(hardware.Input)
		if _, err := interrupt.NewSource().Bind(line, gpio.RisingEdge, noop); !errors.Is(err, interrupt.ErrBindFailed) {
			t.Errorf("err = %v, want ErrBindFailed", err)
		}
	})

	t.Run("released line", func(t *testing.T) {
		line, _ := newInputLine(t)
		_ = line.Release()
		if _, err := interrupt.NewSource().Bind(line, gpio.RisingEdge, noop); !errors.Is(err, interrupt.ErrBindFailed) {
			t.Errorf("err = %v, want ErrBindFailed", err)
		}
	})
}

func TestUnbindUnknown(t *testing.T) {
	if err := interrupt.NewSource().Unbind(42); !errors.Is(err, interrupt.ErrUnknownBinding) {
		t.Errorf("Unbind(42) = %v, want ErrUnknownBinding", err)
	}
}

func TestRebindAfterUnbind(t *testing.T) {
	line, _ := newInputLine(t)
	src := interrupt.NewSource(interrupt.WithPollInterval(10 * time.Millisecond))
	defer src.Close()

	id, err := src.Bind(line, gpio.RisingEdge, func() {})
	if err != nil {
		t.Fatal(err)
	}
	if err := src.Unbind(id); err != nil {
		t.Fatal(err)
	}
	id2, err := src.Bind(line, gpio.RisingEdge, func() {})
	if err != nil {
		t.Fatalf("Bind after Unbind: %v", err)
	}
	if id2 == id {
		t.Error("binding ids must not be reused")
	}
}

func TestUnbindDisarmsEdge(t *testing.T) {
	line, m := newInputLine(t)
	src := interrupt.NewSource(interrupt.WithPollInterval(10 * time.Millisecond))

	id, err := src.Bind(line, gpio.RisingEdge, func() {})
	if err != nil {
		t.Fatal(err)
	}
	if got := m.Edge(btnPin); got != gpio.RisingEdge {
		t.Fatalf("armed edge while bound = %v, want RisingEdge", got)
	}
	if err := src.Unbind(id); err != nil {
		t.Fatal(err)
	}
	if got := m.Edge(btnPin); got != gpio.NoEdge {
		t.Errorf("armed edge after Unbind = %v, want NoEdge", got)
	}
	if line.Released() {
		t.Error("Unbind released the line")
	}
}
