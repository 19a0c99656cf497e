// Package controller owns the bridge lifecycle. Start acquires the status
// node, the LED line, the button line and the button interrupt in that
// order, undoing completed steps if a later one fails. Shutdown releases
// everything in reverse, pressing on past individual failures.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"periph.io/x/conn/v3/gpio"

	"github.com/micro-nova/gpiointr/internal/config"
	"github.com/micro-nova/gpiointr/internal/device"
	"github.com/micro-nova/gpiointr/internal/hardware"
	"github.com/micro-nova/gpiointr/internal/interrupt"
	"github.com/micro-nova/gpiointr/internal/models"
	"github.com/micro-nova/gpiointr/internal/statusdev"
)

// Startup step names reported in AcquisitionError.
const (
	StepRegisterNode    = "register status node"
	StepAcquireLED      = "acquire LED line"
	StepConfigureLED    = "configure LED line"
	StepAcquireButton   = "acquire button line"
	StepConfigureButton = "configure button line"
	StepBindInterrupt   = "bind button interrupt"
)

var (
	ErrAlreadyStarted = errors.New("controller: already started")
	ErrStopped        = errors.New("controller: stopped")
)

// AcquisitionError reports the startup step that failed. By the time it is
// returned every earlier step has been rolled back.
type AcquisitionError struct {
	Step string
	Err  error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("controller: %s: %v", e.Step, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// Controller wires the hardware, interrupt and status node together.
type Controller struct {
	cfg   config.Config
	chip  *hardware.Chip
	irq   *interrupt.Source
	nodes *statusdev.Registry

	// state outlives Shutdown so the final count stays readable.
	state atomic.Pointer[device.State]

	mu       sync.Mutex
	running  bool
	stopped  bool
	endpoint *statusdev.Endpoint
	led      *hardware.Line
	button   *hardware.Line
	irqID    interrupt.ID
	bound    bool
}

// New creates a Controller. Nothing is acquired until Start.
func New(cfg config.Config, chip *hardware.Chip, irq *interrupt.Source, nodes *statusdev.Registry) *Controller {
	return &Controller{
		cfg:   cfg,
		chip:  chip,
		irq:   irq,
		nodes: nodes,
	}
}

// Start runs the startup sequence. On failure all completed steps are undone
// in reverse order and an *AcquisitionError is returned.
func (c *Controller) Start(ctx context.Context) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return ErrAlreadyStarted
	}
	if c.stopped {
		return ErrStopped
	}

	var undo []func()
	defer func() {
		if err == nil {
			return
		}
		slog.Error("controller: startup failed, rolling back", "err", err, "steps", len(undo))
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
		c.endpoint, c.led, c.button, c.bound = nil, nil, nil, false
	}()

	step := func(name string, fn func() error) error {
		if err := ctx.Err(); err != nil {
			return &AcquisitionError{Step: name, Err: err}
		}
		if err := fn(); err != nil {
			return &AcquisitionError{Step: name, Err: err}
		}
		return nil
	}

	// 1. Status node.
	if err := step(StepRegisterNode, func() error {
		ep := statusdev.NewEndpoint(c.cfg.DeviceName, c.cfg.ClassName, c.cfg.BufferCapacity, c)
		if err := c.nodes.Register(ep); err != nil {
			return err
		}
		c.endpoint = ep
		undo = append(undo, func() { _ = c.nodes.Unregister(ep.Name()) })
		return nil
	}); err != nil {
		return err
	}

	// 2. LED: output, initially on.
	slog.Info("controller: initializing GPIOs", "led", c.cfg.LEDPin, "button", c.cfg.ButtonPin)
	if err := step(StepAcquireLED, func() error {
		led, err := c.chip.Acquire(c.cfg.LEDPin, "led")
		if err != nil {
			return err
		}
		c.led = led
		undo = append(undo, func() {
			_ = led.SetLevel(false)
			_ = led.Release()
		})
		return nil
	}); err != nil {
		return err
	}
	var state *device.State
	if err := step(StepConfigureLED, func() error {
		if err := c.led.ConfigureDirection(hardware.Output); err != nil {
			return err
		}
		if err := c.led.SetLevel(true); err != nil {
			return err
		}
		state = device.NewState(c.led, true)
		return c.led.Export()
	}); err != nil {
		return err
	}

	// 3. Button: input with debounce.
	if err := step(StepAcquireButton, func() error {
		btn, err := c.chip.Acquire(c.cfg.ButtonPin, "button")
		if err != nil {
			return err
		}
		c.button = btn
		undo = append(undo, func() { _ = btn.Release() })
		return nil
	}); err != nil {
		return err
	}
	if err := step(StepConfigureButton, func() error {
		if err := c.button.ConfigureDirection(hardware.Input); err != nil {
			return err
		}
		if err := c.button.SetDebounce(c.cfg.Debounce()); err != nil {
			return err
		}
		return c.button.Export()
	}); err != nil {
		return err
	}

	// 4. Interrupt.
	if err := step(StepBindInterrupt, func() error {
		id, err := c.irq.Bind(c.button, gpio.RisingEdge, state.HandleEdge)
		if err != nil {
			return err
		}
		c.irqID, c.bound = id, true
		undo = append(undo, func() { _ = c.irq.Unbind(id) })
		return nil
	}); err != nil {
		return err
	}

	c.state.Store(state)
	c.running = true
	slog.Info("controller: started",
		"node", c.endpoint.Path(),
		"button", c.button.Name(),
		"led", c.led.Name(),
		"irq", c.irqID,
		"debounce", c.cfg.Debounce())
	return nil
}

// Shutdown releases everything Start acquired. Every step runs even if an
// earlier one fails; the failures are returned together.
func (c *Controller) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return nil
	}
	c.running = false
	c.stopped = true

	var result *multierror.Error
	record := func(what string, err error) {
		if err != nil {
			slog.Warn("controller: shutdown step failed", "step", what, "err", err)
			result = multierror.Append(result, fmt.Errorf("%s: %w", what, err))
		}
	}

	// The button line must not be released while the handler can still run.
	if c.bound {
		record("unbind interrupt", c.irq.Unbind(c.irqID))
		c.bound = false
	}
	slog.Info("controller: the button was pressed", "count", c.PressCount())

	record("turn LED off", c.led.SetLevel(false))
	record("unexport LED", c.led.Unexport())
	record("unexport button", c.button.Unexport())
	record("release button", c.button.Release())
	record("release LED", c.led.Release())
	record("unregister status node", c.nodes.Unregister(c.endpoint.Name()))

	slog.Info("controller: exit")
	return result.ErrorOrNil()
}

// PressCount implements statusdev.Counter. It reads zero before Start.
func (c *Controller) PressCount() uint64 {
	if s := c.state.Load(); s != nil {
		return s.PressCount()
	}
	return 0
}

// State returns the device state, or nil before the first successful Start.
func (c *Controller) State() *device.State { return c.state.Load() }

// Endpoint returns the status node while running.
func (c *Controller) Endpoint() *statusdev.Endpoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endpoint
}

// Running reports whether Start has succeeded and Shutdown has not run.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Status returns a snapshot for API clients.
func (c *Controller) Status() models.Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := models.Status{
		Device:     "/dev/" + c.cfg.DeviceName,
		LEDPin:     c.cfg.LEDPin,
		ButtonPin:  c.cfg.ButtonPin,
		DebounceMs: c.cfg.DebounceMs,
		Running:    c.running,
	}
	if s := c.state.Load(); s != nil {
		snap := s.Snapshot()
		st.PressCount = snap.PressCount
		st.LEDOn = snap.LEDOn
		st.LEDFailures = snap.LEDFailures
	}
	if c.endpoint != nil {
		st.Opens = c.endpoint.OpenCount()
		st.Releases = c.endpoint.ReleaseCount()
	}
	return st
}
