package device

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// Snapshot is a point-in-time copy of State.
type Snapshot struct {
	PressCount  uint64
	LEDOn       bool
	LEDFailures uint64
}

// Snapshot copies the current counters.
func (s *State) Snapshot() Snapshot {
	return Snapshot{
		PressCount:  s.PressCount(),
		LEDOn:       s.LEDOn(),
		LEDFailures: s.LEDFailures(),
	}
}

// RunMonitor polls s from the foreground every interval until ctx is done.
// since is the snapshot the caller last reported; anything counted after it,
// including edges that land before the first tick, is reported. onChange (may
// be nil) is called whenever the press count moves. Growth in LED write
// failures is logged at most once per failureLogInterval.
func RunMonitor(ctx context.Context, s *State, interval time.Duration, since Snapshot, onChange func(Snapshot)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	warn := rate.Sometimes{Interval: failureLogInterval}
	last := since
	check := func() {
		cur := s.Snapshot()
		if cur.LEDFailures > last.LEDFailures {
			warn.Do(func() {
				slog.Warn("device: LED writes failing in edge handler",
					"failures", cur.LEDFailures,
					"presses", cur.PressCount)
			})
		}
		if cur.PressCount != last.PressCount && onChange != nil {
			onChange(cur)
		}
		last = cur
	}

	check()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}

const failureLogInterval = 10 * time.Second
