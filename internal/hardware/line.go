package hardware

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"code.cloudfoundry.org/clock"
	"periph.io/x/conn/v3/gpio"
)

var (
	ErrPinUnavailable       = errors.New("gpio: pin unavailable")
	ErrUnsupportedDirection = errors.New("gpio: unsupported direction")
	ErrNotInput             = errors.New("gpio: line is not an input")
	ErrNotOutput            = errors.New("gpio: line is not an output")
	ErrReleased             = errors.New("gpio: line released")
)

// Direction is the configured direction of a line.
type Direction int32

const (
	Unconfigured Direction = iota
	Input
	Output
)

func (d Direction) String() string {
	switch d {
	case Unconfigured:
		return "unconfigured"
	case Input:
		return "input"
	case Output:
		return "output"
	}
	return fmt.Sprintf("Direction(%d)", int32(d))
}

// Line is a claimed GPIO line.
//
// Configuration calls come from the foreground and are serialized by mu.
// SetLevel, Level and WaitForEdge only touch atomics so the edge handler can
// call them without taking locks.
type Line struct {
	chip  *Chip
	num   int
	label string
	pin   gpio.PinIO
	clock clock.Clock

	mu sync.Mutex

	dir      atomic.Int32
	level    atomic.Bool
	debounce atomic.Int64 // nanoseconds
	exported atomic.Bool
	released atomic.Bool

	// owned by the single edge waiter
	lastEdge time.Time
	seenEdge bool
}

// Pin returns the line's pin id.
func (l *Line) Pin() int { return l.num }

// Label returns the consumer label given at acquisition.
func (l *Line) Label() string { return l.label }

// Name returns the underlying periph pin name.
func (l *Line) Name() string { return l.pin.Name() }

// Direction returns the configured direction.
func (l *Line) Direction() Direction { return Direction(l.dir.Load()) }

// ConfigureDirection switches the line to Input or Output. An output line is
// driven with its last written level (low for a fresh line).
func (l *Line) ConfigureDirection(d Direction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released.Load() {
		return ErrReleased
	}

	switch d {
	case Input:
		if err := l.pin.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
			return fmt.Errorf("gpio: pin %d as input: %w", l.num, err)
		}
	case Output:
		if err := l.pin.Out(levelOf(l.level.Load())); err != nil {
			return fmt.Errorf("gpio: pin %d as output: %w", l.num, err)
		}
	default:
		return fmt.Errorf("%w: %v", ErrUnsupportedDirection, d)
	}
	l.dir.Store(int32(d))
	return nil
}

// SetDebounce sets the window during which edges following an accepted edge
// are dropped. Only input lines accept a debounce window.
func (l *Line) SetDebounce(d time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released.Load() {
		return ErrReleased
	}
	if l.Direction() != Input {
		return ErrNotInput
	}
	if d < 0 {
		return fmt.Errorf("gpio: negative debounce %v", d)
	}
	l.debounce.Store(int64(d))
	return nil
}

// Debounce returns the configured debounce window.
func (l *Line) Debounce() time.Duration { return time.Duration(l.debounce.Load()) }

// SetLevel drives an output line high (true) or low (false).
func (l *Line) SetLevel(on bool) error {
	if l.released.Load() {
		return ErrReleased
	}
	if l.Direction() != Output {
		return ErrNotOutput
	}
	if err := l.pin.Out(levelOf(on)); err != nil {
		return fmt.Errorf("gpio: pin %d out: %w", l.num, err)
	}
	l.level.Store(on)
	return nil
}

// Level reads the line. A released line reads low.
func (l *Line) Level() bool {
	if l.released.Load() {
		return false
	}
	return l.pin.Read() == gpio.High
}

// EnableEdge arms edge detection on an input line.
func (l *Line) EnableEdge(edge gpio.Edge) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released.Load() {
		return ErrReleased
	}
	if l.Direction() != Input {
		return ErrNotInput
	}
	if err := l.pin.In(gpio.PullNoChange, edge); err != nil {
		return fmt.Errorf("gpio: pin %d edge %v: %w", l.num, edge, err)
	}
	l.seenEdge = false
	return nil
}

// DisableEdge disarms edge detection, leaving the line a plain input.
// It is a no-op on a released line.
func (l *Line) DisableEdge() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released.Load() || l.Direction() != Input {
		return nil
	}
	if err := l.pin.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
		return fmt.Errorf("gpio: pin %d disarm edge: %w", l.num, err)
	}
	return nil
}

// WaitForEdge blocks up to timeout for an edge and reports whether one was
// accepted. Edges inside the debounce window of the previous accepted edge
// are swallowed. Only one goroutine may wait on a line at a time.
func (l *Line) WaitForEdge(timeout time.Duration) bool {
	if l.released.Load() {
		return false
	}
	if !l.pin.WaitForEdge(timeout) {
		return false
	}

	now := l.clock.Now()
	if window := l.Debounce(); window > 0 && l.seenEdge && now.Sub(l.lastEdge) < window {
		return false
	}
	l.lastEdge = now
	l.seenEdge = true
	return true
}

// Halt interrupts a pending WaitForEdge on pins that support it.
func (l *Line) Halt() error {
	return l.pin.Halt()
}

// Export marks the line as visible to other tools on the host.
func (l *Line) Export() error {
	if l.released.Load() {
		return ErrReleased
	}
	l.exported.Store(true)
	slog.Debug("gpio: line exported", "pin", l.num, "label", l.label)
	return nil
}

// Unexport clears the exported flag.
func (l *Line) Unexport() error {
	if l.released.Load() {
		return ErrReleased
	}
	l.exported.Store(false)
	slog.Debug("gpio: line unexported", "pin", l.num, "label", l.label)
	return nil
}

// Exported reports whether the line is exported.
func (l *Line) Exported() bool { return l.exported.Load() }

// Released reports whether Release has run.
func (l *Line) Released() bool { return l.released.Load() }

// Release gives the pin back to the chip and halts it. Only the first call
// has any effect.
func (l *Line) Release() error {
	if !l.released.CompareAndSwap(false, true) {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.exported.Store(false)
	l.chip.release(l)
	slog.Debug("gpio: line released", "pin", l.num, "label", l.label)
	if err := l.pin.Halt(); err != nil {
		return fmt.Errorf("gpio: pin %d halt: %w", l.num, err)
	}
	return nil
}

func levelOf(on bool) gpio.Level {
	if on {
		return gpio.High
	}
	return gpio.Low
}
