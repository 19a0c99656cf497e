// Package interrupt binds edge-triggered handlers to GPIO input lines.
//
// Each binding owns one goroutine that waits for edges on its line and calls
// the handler synchronously. The handler plays the part of an interrupt
// service routine: it must not block, must run in bounded time, and may only
// mutate shared state with atomics.
package interrupt

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"

	"github.com/micro-nova/gpiointr/internal/hardware"
)

var (
	ErrBindFailed     = errors.New("interrupt: bind failed")
	ErrUnknownBinding = errors.New("interrupt: unknown binding")
)

const defaultPollInterval = 100 * time.Millisecond

// Handler is invoked once per accepted edge.
type Handler func()

// ID identifies an active binding.
type ID uint64

// Source manages edge bindings.
type Source struct {
	mu       sync.Mutex
	next     ID
	bindings map[ID]*binding
	byLine   map[*hardware.Line]ID
	poll     time.Duration
}

type binding struct {
	id      ID
	line    *hardware.Line
	edge    gpio.Edge
	handler Handler
	stop    chan struct{}
	done    chan struct{}
}

// Option configures a Source.
type Option func(*Source)

// WithPollInterval bounds how long a binding waits for an edge before it
// re-checks for cancellation. Pins that cannot be halted are unbound within
// this interval.
func WithPollInterval(d time.Duration) Option {
	return func(s *Source) {
		if d > 0 {
			s.poll = d
		}
	}
}

// NewSource creates an empty Source.
func NewSource(opts ...Option) *Source {
	s := &Source{
		bindings: make(map[ID]*binding),
		byLine:   make(map[*hardware.Line]ID),
		poll:     defaultPollInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bind arms edge detection on line and starts delivering edges to h.
// It fails with ErrBindFailed when the line is released, not an input,
// already bound, or cannot detect the requested edge.
func (s *Source) Bind(line *hardware.Line, edge gpio.Edge, h Handler) (ID, error) {
	if line == nil || h == nil {
		return 0, fmt.Errorf("%w: nil line or handler", ErrBindFailed)
	}
	if edge == gpio.NoEdge {
		return 0, fmt.Errorf("%w: no edge requested", ErrBindFailed)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byLine[line]; ok {
		return 0, fmt.Errorf("%w: pin %d already bound as %d", ErrBindFailed, line.Pin(), id)
	}
	if err := line.EnableEdge(edge); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrBindFailed, err)
	}

	s.next++
	b := &binding{
		id:      s.next,
		line:    line,
		edge:    edge,
		handler: h,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	s.bindings[b.id] = b
	s.byLine[line] = b.id
	go b.run(s.poll)

	slog.Info("interrupt: bound", "id", b.id, "pin", line.Pin(), "edge", edge)
	return b.id, nil
}

// Unbind stops delivery for id. When it returns, no handler call for id is
// running and none will start, so the line can be released safely.
func (s *Source) Unbind(id ID) error {
	s.mu.Lock()
	b, ok := s.bindings[id]
	if ok {
		delete(s.bindings, id)
		delete(s.byLine, b.line)
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownBinding, id)
	}

	close(b.stop)
	if err := b.line.Halt(); err != nil {
		slog.Debug("interrupt: halt failed, waiting for poll", "id", id, "err", err)
	}
	<-b.done

	// the line may stay claimed; stop it collecting edges nobody waits for
	if err := b.line.DisableEdge(); err != nil {
		slog.Warn("interrupt: disarm edge failed", "id", id, "pin", b.line.Pin(), "err", err)
	}

	slog.Info("interrupt: unbound", "id", id, "pin", b.line.Pin())
	return nil
}

// Bound reports whether id is active.
func (s *Source) Bound(id ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.bindings[id]
	return ok
}

// Close unbinds everything.
func (s *Source) Close() {
	s.mu.Lock()
	ids := make([]ID, 0, len(s.bindings))
	for id := range s.bindings {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	for _, id := range ids {
		_ = s.Unbind(id)
	}
}

func (b *binding) run(poll time.Duration) {
	defer close(b.done)
	for {
		select {
		case <-b.stop:
			return
		default:
		}
		if b.line.Released() {
			// Released under a live binding; idle until unbound.
			select {
			case <-b.stop:
				return
			case <-time.After(poll):
			}
			continue
		}
		if b.line.WaitForEdge(poll) {
			b.handler()
		}
	}
}
