package hardware

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

// Mock is an in-memory pin set for tests and development. Every pin is a
// periph gpiotest pin; edges are injected with Trigger.
type Mock struct {
	mu   sync.Mutex
	pins map[int]*mockPin
}

type mockPin struct {
	*gpiotest.Pin
	failOut atomic.Bool
	edge    atomic.Int32 // gpio.Edge last requested through In
}

// In records the requested edge before delegating.
func (p *mockPin) In(pull gpio.Pull, edge gpio.Edge) error {
	if err := p.Pin.In(pull, edge); err != nil {
		return err
	}
	p.edge.Store(int32(edge))
	return nil
}

// Out fails when the pin has been told to.
func (p *mockPin) Out(l gpio.Level) error {
	if p.failOut.Load() {
		return ErrHardware("mock: write failure configured")
	}
	return p.Pin.Out(l)
}

// NewMock creates a mock with edge-capable pins for each id in pins.
func NewMock(pins ...int) *Mock {
	m := &Mock{pins: make(map[int]*mockPin)}
	for _, n := range pins {
		m.AddPin(n, true)
	}
	return m
}

// AddPin adds (or replaces) pin n. Pins without edge support refuse edge
// detection, like lines that have no interrupt.
func (m *Mock) AddPin(n int, edges bool) {
	p := &gpiotest.Pin{N: fmt.Sprintf("GPIO%d", n), Num: n}
	if edges {
		p.EdgesChan = make(chan gpio.Level)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pins[n] = &mockPin{Pin: p}
}

// Resolve implements Resolver.
func (m *Mock) Resolve(n int) gpio.PinIO {
	p := m.lookup(n)
	if p == nil {
		return nil
	}
	return p
}

// Trigger delivers a rising edge on pin n. It blocks until the edge is
// picked up by a waiter or ctx is done.
func (m *Mock) Trigger(ctx context.Context, n int) error {
	p := m.lookup(n)
	if p == nil {
		return fmt.Errorf("mock: unknown pin %d", n)
	}
	if p.EdgesChan == nil {
		return fmt.Errorf("mock: pin %d has no edge support", n)
	}
	select {
	case p.EdgesChan <- gpio.High:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetFailOut makes writes to pin n fail (or succeed again).
func (m *Mock) SetFailOut(n int, fail bool) {
	if p := m.lookup(n); p != nil {
		p.failOut.Store(fail)
	}
}

// Edge returns the edge detection currently armed on pin n.
func (m *Mock) Edge(n int) gpio.Edge {
	p := m.lookup(n)
	if p == nil {
		return gpio.NoEdge
	}
	return gpio.Edge(p.edge.Load())
}

// Level returns the last level seen on pin n.
func (m *Mock) Level(n int) bool {
	p := m.lookup(n)
	if p == nil {
		return false
	}
	return p.Read() == gpio.High
}

func (m *Mock) lookup(n int) *mockPin {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pins[n]
}

// HardwareError is returned when a hardware operation fails.
type HardwareError struct {
	msg string
}

func (e HardwareError) Error() string { return e.msg }

// ErrHardware creates a new hardware error.
func ErrHardware(msg string) error { return HardwareError{msg: msg} }
