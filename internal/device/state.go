// Package device holds the press counter and LED state driven by the button
// interrupt.
//
// The edge handler is the only writer. Every field it touches is an atomic,
// so foreground readers never block it and never see a torn value.
package device

import "sync/atomic"

// LevelSetter drives the LED line.
type LevelSetter interface {
	SetLevel(on bool) error
}

// State is the shared device state.
type State struct {
	led LevelSetter

	presses     atomic.Uint64
	ledOn       atomic.Bool
	ledFailures atomic.Uint64
}

// NewState creates a State whose LED starts at initial. The caller is
// expected to have driven the LED line to initial already.
func NewState(led LevelSetter, initial bool) *State {
	s := &State{led: led}
	s.ledOn.Store(initial)
	return s
}

// HandleEdge is the rising-edge handler: toggle the LED, write it, count the
// press. LED write failures are counted, never returned.
func (s *State) HandleEdge() {
	on := !s.ledOn.Load()
	s.ledOn.Store(on)
	if err := s.led.SetLevel(on); err != nil {
		s.ledFailures.Add(1)
	}
	s.presses.Add(1)
}

// PressCount returns the number of handled edges.
func (s *State) PressCount() uint64 { return s.presses.Load() }

// LEDOn returns the LED state last chosen by the handler.
func (s *State) LEDOn() bool { return s.ledOn.Load() }

// LEDFailures returns how many LED writes failed inside the handler.
func (s *State) LEDFailures() uint64 { return s.ledFailures.Load() }
