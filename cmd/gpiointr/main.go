// Command gpiointr is the GPIO interrupt bridge daemon: a rising edge on the
// button line toggles the LED line, and the press count is served through a
// read-only status node over HTTP.
// Run with --mock to use simulated pins (no GPIO controller required).
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/micro-nova/gpiointr/internal/api"
	"github.com/micro-nova/gpiointr/internal/config"
	"github.com/micro-nova/gpiointr/internal/controller"
	"github.com/micro-nova/gpiointr/internal/device"
	"github.com/micro-nova/gpiointr/internal/events"
	"github.com/micro-nova/gpiointr/internal/hardware"
	"github.com/micro-nova/gpiointr/internal/identity"
	"github.com/micro-nova/gpiointr/internal/interrupt"
	"github.com/micro-nova/gpiointr/internal/statusdev"
	"github.com/micro-nova/gpiointr/internal/zeroconf"
)

// version is overridden at link time.
var version = "dev"

const monitorInterval = 100 * time.Millisecond

// shutdownSignals end the daemon gracefully.
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

func main() {
	var (
		cfgPath    = flag.String("config", "", "JSON config file (defaults apply when empty or missing)")
		addr       = flag.String("addr", ":8080", "HTTP listen address")
		mock       = flag.Bool("mock", false, "use mock GPIO pins (no GPIO controller required)")
		debug      = flag.Bool("debug", false, "enable debug logging")
		mdns       = flag.Bool("mdns", false, "advertise the HTTP surface over mDNS")
		ledPin     = flag.Int("led", config.DefaultLEDPin, "LED output pin")
		buttonPin  = flag.Int("button", config.DefaultButtonPin, "button input pin")
		debounceMs = flag.Int("debounce", config.DefaultDebounceMs, "button debounce window in milliseconds")
		pressEvery = flag.Duration("mock-press-interval", 0, "with --mock, simulate a button press this often (0 disables)")
		saveCfg    = flag.Bool("save-config", false, "write the effective config to --config and exit")
	)
	flag.Parse()

	// Configure logging
	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		slog.Error("cannot load config", "path", *cfgPath, "err", err)
		os.Exit(1)
	}
	// explicit flags win over the file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "led":
			cfg.LEDPin = *ledPin
		case "button":
			cfg.ButtonPin = *buttonPin
		case "debounce":
			cfg.DebounceMs = *debounceMs
		}
	})
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "err", err)
		os.Exit(1)
	}
	if *saveCfg {
		if *cfgPath == "" {
			slog.Error("--save-config needs --config")
			os.Exit(1)
		}
		if err := config.Save(*cfgPath, cfg); err != nil {
			slog.Error("cannot save config", "path", *cfgPath, "err", err)
			os.Exit(1)
		}
		slog.Info("config written", "path", *cfgPath)
		return
	}

	id := identity.Get(version)
	slog.Info("gpiointr starting", "version", id.Version, "host", id.Hostname,
		"led", cfg.LEDPin, "button", cfg.ButtonPin, "debounce_ms", cfg.DebounceMs)

	// Graceful shutdown context
	ctx, cancel := signal.NotifyContext(context.Background(), shutdownSignals...)
	defer cancel()

	// GPIO backend
	var (
		resolve hardware.Resolver
		sim     *hardware.Mock
	)
	if *mock {
		slog.Info("using mock GPIO pins")
		sim = hardware.NewMock(cfg.LEDPin, cfg.ButtonPin)
		resolve = sim.Resolve
	} else {
		resolve, err = hardware.PeriphResolver()
		if err != nil {
			slog.Error("GPIO initialization failed", "err", err)
			os.Exit(1)
		}
	}

	irq := interrupt.NewSource()
	defer irq.Close()
	nodes := statusdev.NewRegistry()
	ctrl := controller.New(cfg, hardware.NewChip(resolve, nil), irq, nodes)

	if err := ctrl.Start(ctx); err != nil {
		var acq *controller.AcquisitionError
		if errors.As(err, &acq) {
			slog.Error("startup failed", "step", acq.Step, "err", acq.Err)
		} else {
			slog.Error("startup failed", "err", err)
		}
		os.Exit(1)
	}

	// Status fan-out for SSE
	bus := events.NewBus()
	// baseline before publishing so a press in between is still reported
	since := ctrl.State().Snapshot()
	bus.Publish(ctrl.Status())
	go device.RunMonitor(ctx, ctrl.State(), monitorInterval, since, func(device.Snapshot) {
		bus.Publish(ctrl.Status())
	})

	if sim != nil && *pressEvery > 0 {
		go simulatePresses(ctx, sim, cfg.ButtonPin, *pressEvery)
	}

	// Zeroconf mDNS registration
	if *mdns {
		port, err := zeroconf.PortFromAddr(*addr)
		if err != nil {
			slog.Warn("zeroconf disabled", "err", err)
		} else {
			zc := zeroconf.New(id.Hostname, port, zeroconf.Info{
				Version: id.Version,
				Device:  ctrl.Endpoint().Path(),
				Class:   cfg.ClassName,
				Extra: map[string]string{
					"led":    strconv.Itoa(cfg.LEDPin),
					"button": strconv.Itoa(cfg.ButtonPin),
				},
			})
			go func() {
				if err := zc.Start(ctx); err != nil {
					slog.Warn("zeroconf failed", "err", err)
				}
			}()
		}
	}

	// HTTP server
	srv := &http.Server{
		Addr:         *addr,
		Handler:      api.NewRouter(ctrl, nodes, bus),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // 0 = no timeout (needed for SSE)
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("gpiointr listening", "addr", *addr, "mock", *mock, "node", ctrl.Endpoint().Path())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			cancel()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutCancel()

	// Stop HTTP readers before the node goes away
	if err := srv.Shutdown(shutCtx); err != nil {
		slog.Warn("server shutdown error", "err", err)
	}
	if err := ctrl.Shutdown(); err != nil {
		slog.Warn("controller shutdown incomplete", "err", err)
	}

	slog.Info("shutdown complete")
}

// simulatePresses drives the mock button so the daemon can be demoed without
// hardware.
func simulatePresses(ctx context.Context, sim *hardware.Mock, pin int, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sim.Trigger(ctx, pin); err != nil && ctx.Err() == nil {
				slog.Warn("mock press failed", "pin", pin, "err", err)
			}
		}
	}
}
