// Package hardware provides the GPIO line abstraction for the interrupt
// bridge. Lines are claimed from a Chip, configured as input or output, and
// released exactly once. Pin I/O goes through periph.io; tests and --mock
// mode use the in-memory Mock.
package hardware

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"code.cloudfoundry.org/clock"
	"periph.io/x/conn/v3/gpio"
)

// Resolver maps a pin id to a periph pin. It returns nil for unknown pins.
type Resolver func(pin int) gpio.PinIO

// Chip hands out exclusive claims on GPIO lines.
type Chip struct {
	mu      sync.Mutex
	resolve Resolver
	clock   clock.Clock
	claimed map[int]*Line
}

// NewChip creates a Chip over resolve. A nil clk uses the wall clock.
func NewChip(resolve Resolver, clk clock.Clock) *Chip {
	if clk == nil {
		clk = clock.NewClock()
	}
	return &Chip{
		resolve: resolve,
		clock:   clk,
		claimed: make(map[int]*Line),
	}
}

// Acquire claims pin for the process. It fails with ErrPinUnavailable when the
// pin id is invalid, unknown to the resolver, or already claimed.
func (c *Chip) Acquire(pin int, label string) (*Line, error) {
	if pin < 0 {
		return nil, fmt.Errorf("%w: pin %d is invalid", ErrPinUnavailable, pin)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if owner, ok := c.claimed[pin]; ok {
		return nil, fmt.Errorf("%w: pin %d already claimed by %q", ErrPinUnavailable, pin, owner.label)
	}
	p := c.resolve(pin)
	if p == nil {
		return nil, fmt.Errorf("%w: pin %d not found", ErrPinUnavailable, pin)
	}

	l := &Line{
		chip:  c,
		num:   pin,
		label: label,
		pin:   p,
		clock: c.clock,
	}
	c.claimed[pin] = l
	slog.Debug("gpio: line acquired", "pin", pin, "name", p.Name(), "label", label)
	return l, nil
}

// Claimed returns the currently claimed pin ids in ascending order.
func (c *Chip) Claimed() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	pins := make([]int, 0, len(c.claimed))
	for pin := range c.claimed {
		pins = append(pins, pin)
	}
	sort.Ints(pins)
	return pins
}

func (c *Chip) release(l *Line) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.claimed[l.num] == l {
		delete(c.claimed, l.num)
	}
}
