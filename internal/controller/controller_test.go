package controller_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/micro-nova/gpiointr/internal/config"
	"github.com/micro-nova/gpiointr/internal/controller"
	"github.com/micro-nova/gpiointr/internal/hardware"
	"github.com/micro-nova/gpiointr/internal/interrupt"
	"github.com/micro-nova/gpiointr/internal/statusdev"
)

const (
	ledPin = 16
	btnPin = 20
)

type rig struct {
	cfg   config.Config
	mock  *hardware.Mock
	chip  *hardware.Chip
	irq   *interrupt.Source
	nodes *statusdev.Registry
	ctrl  *controller.Controller
}

func newRig(t *testing.T) *rig {
	t.Helper()
	cfg := config.Default()
	cfg.LEDPin = ledPin
	cfg.ButtonPin = btnPin
	cfg.DebounceMs = 0

	m := hardware.NewMock(ledPin, btnPin)
	r := &rig{
		cfg:   cfg,
		mock:  m,
		chip:  hardware.NewChip(m.Resolve, nil),
		irq:   interrupt.NewSource(interrupt.WithPollInterval(10 * time.Millisecond)),
		nodes: statusdev.NewRegistry(),
	}
	r.ctrl = controller.New(cfg, r.chip, r.irq, r.nodes)
	return r
}

func (r *rig) press(t *testing.T, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for i := 0; i < n; i++ {
		if err := r.mock.Trigger(ctx, btnPin); err != nil {
			t.Fatalf("Trigger: %v", err)
		}
	}
}

// waitForCount polls until the controller has counted want presses.
func (r *rig) waitForCount(t *testing.T, want uint64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r.ctrl.PressCount() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("PressCount = %d, want %d", r.ctrl.PressCount(), want)
}

func readAll(t *testing.T, h *statusdev.Handle) string {
	t.Helper()
	data, err := io.ReadAll(h)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	return string(bytes.TrimRight(data, "\x00"))
}

func TestStartAcquiresEverything(t *testing.T) {
	r := newRig(t)
	if err := r.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.ctrl.Shutdown()

	if got := r.chip.Claimed(); len(got) != 2 {
		t.Errorf("Claimed() = %v, want both lines", got)
	}
	if !r.mock.Level(ledPin) {
		t.Error("LED should be on after start")
	}
	ep, err := r.nodes.Lookup(config.DefaultDeviceName)
	if err != nil {
		t.Fatalf("status node not registered: %v", err)
	}
	if ep != r.ctrl.Endpoint() {
		t.Error("registered node is not the controller's endpoint")
	}
	st := r.ctrl.Status()
	if !st.Running || st.PressCount != 0 || !st.LEDOn {
		t.Errorf("Status() = %+v", st)
	}
	if st.Device != "/dev/GPIO_INTR_STATUS" {
		t.Errorf("Device = %q", st.Device)
	}
}

func TestPressesToggleLEDAndCount(t *testing.T) {
	r := newRig(t)
	if err := r.ctrl.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	r.press(t, 3)
	r.waitForCount(t, 3)
	if r.mock.Level(ledPin) {
		t.Error("LED should be off after 3 presses (started on)")
	}

	r.press(t, 1)
	r.waitForCount(t, 4)
	if !r.mock.Level(ledPin) {
		t.Error("LED should be on after 4 presses")
	}

	h := r.ctrl.Endpoint().Open()
	defer h.Release()
	if got := readAll(t, h); got != "The GPIO interrupt has been triggered 4 times\n" {
		t.Errorf("status = %q", got)
	}

	if err := r.ctrl.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestOpenHandleKeepsSnapshot(t *testing.T) {
	r := newRig(t)
	if err := r.ctrl.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer r.ctrl.Shutdown()

	r.press(t, 2)
	r.waitForCount(t, 2)
	h := r.ctrl.Endpoint().Open()
	defer h.Release()

	r.press(t, 5)
	r.waitForCount(t, 7)

	if got := readAll(t, h); got != "The GPIO interrupt has been triggered 2 times\n" {
		t.Errorf("open handle = %q, want snapshot of 2", got)
	}
}

func TestShutdownReleasesEverything(t *testing.T) {
	r := newRig(t)
	if err := r.ctrl.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	r.press(t, 1)
	r.waitForCount(t, 1)

	if err := r.ctrl.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if got := r.chip.Claimed(); len(got) != 0 {
		t.Errorf("Claimed() after shutdown = %v", got)
	}
	if names := r.nodes.Names(); len(names) != 0 {
		t.Errorf("nodes after shutdown = %v", names)
	}
	if r.mock.Level(ledPin) {
		t.Error("LED should be off after shutdown")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := r.mock.Trigger(ctx, btnPin); err == nil {
		t.Error("button edge consumed after shutdown")
	}

	st := r.ctrl.Status()
	if st.Running || st.PressCount != 1 {
		t.Errorf("Status() after shutdown = %+v", st)
	}
	if err := r.ctrl.Shutdown(); err != nil {
		t.Errorf("second Shutdown = %v, want nil", err)
	}
	if err := r.ctrl.Start(context.Background()); !errors.Is(err, controller.ErrStopped) {
		t.Errorf("Start after Shutdown = %v, want ErrStopped", err)
	}
}

func TestStartTwice(t *testing.T) {
	r := newRig(t)
	if err := r.ctrl.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer r.ctrl.Shutdown()
	if err := r.ctrl.Start(context.Background()); !errors.Is(err, controller.ErrAlreadyStarted) {
		t.Errorf("second Start = %v, want ErrAlreadyStarted", err)
	}
}

func TestStartRollback(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(t *testing.T, r *rig)
		wantStep string
		wantErr  error
	}{
		{
			name: "node already registered",
			setup: func(t *testing.T, r *rig) {
				_ = r.nodes.Register(statusdev.NewEndpoint(config.DefaultDeviceName, "", 64, nil))
			},
			wantStep: controller.StepRegisterNode,
			wantErr:  statusdev.ErrExists,
		},
		{
			name: "LED pin missing",
			setup: func(t *testing.T, r *rig) {
				r.cfg.LEDPin = 99
				r.ctrl = controller.New(r.cfg, r.chip, r.irq, r.nodes)
			},
			wantStep: controller.StepAcquireLED,
			wantErr:  hardware.ErrPinUnavailable,
		},
		{
			name: "button claimed elsewhere",
			setup: func(t *testing.T, r *rig) {
				if _, err := r.chip.Acquire(btnPin, "someone-else"); err != nil {
					t.Fatal(err)
				}
			},
			wantStep: controller.StepAcquireButton,
			wantErr:  hardware.ErrPinUnavailable,
		},
		{
			name: "button has no interrupt",
			setup: func(t *testing.T, r *rig) {
				r.mock.AddPin(btnPin, false)
			},
			wantStep: controller.StepBindInterrupt,
			wantErr:  interrupt.ErrBindFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t)
			tt.setup(t, r)
			nodesBefore := r.nodes.Names()
			claimedBefore := r.chip.Claimed()

			err := r.ctrl.Start(context.Background())
			var acqErr *controller.AcquisitionError
			if !errors.As(err, &acqErr) {
				t.Fatalf("Start error = %v, want *AcquisitionError", err)
			}
			if acqErr.Step != tt.wantStep {
				t.Errorf("Step = %q, want %q", acqErr.Step, tt.wantStep)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error %v does not wrap %v", err, tt.wantErr)
			}

			if got := r.chip.Claimed(); len(got) != len(claimedBefore) {
				t.Errorf("Claimed() after rollback = %v, want %v", got, claimedBefore)
			}
			if got := r.nodes.Names(); len(got) != len(nodesBefore) {
				t.Errorf("nodes after rollback = %v, want %v", got, nodesBefore)
			}
			if r.ctrl.Running() {
				t.Error("controller reports running after failed Start")
			}
			if r.mock.Level(ledPin) {
				t.Error("LED left on after rollback")
			}
		})
	}
}

func TestStartCancelledContext(t *testing.T) {
	r := newRig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.ctrl.Start(ctx)
	var acqErr *controller.AcquisitionError
	if !errors.As(err, &acqErr) || !errors.Is(err, context.Canceled) {
		t.Fatalf("Start = %v, want AcquisitionError wrapping context.Canceled", err)
	}
	if len(r.chip.Claimed()) != 0 || len(r.nodes.Names()) != 0 {
		t.Error("cancelled Start acquired resources")
	}
}

func TestLEDFailuresDoNotStopCounting(t *testing.T) {
	r := newRig(t)
	if err := r.ctrl.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	r.mock.SetFailOut(ledPin, true)

	r.press(t, 3)
	r.waitForCount(t, 3)
	if got := r.ctrl.Status().LEDFailures; got != 3 {
		t.Errorf("LEDFailures = %d, want 3", got)
	}

	// The LED-off step fails too, but shutdown still releases everything.
	err := r.ctrl.Shutdown()
	if err == nil {
		t.Error("Shutdown with failing LED = nil, want aggregated error")
	}
	if got := r.chip.Claimed(); len(got) != 0 {
		t.Errorf("Claimed() after shutdown = %v", got)
	}
	if names := r.nodes.Names(); len(names) != 0 {
		t.Errorf("nodes after shutdown = %v", names)
	}
}
