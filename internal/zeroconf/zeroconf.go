// Package zeroconf advertises the bridge's HTTP surface over mDNS/DNS-SD so
// clients on the LAN can find the status node without knowing the host.
package zeroconf

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"

	"github.com/grandcat/zeroconf"
)

const (
	serviceType = "_http._tcp"
	domain      = "local."
)

// Info is what gets published in the TXT record.
type Info struct {
	Version string
	Device  string // logical node path, e.g. /dev/GPIO_INTR_STATUS
	Class   string
	Extra   map[string]string
}

// Records renders info as DNS-SD key=value strings. Empty values are left
// out and Extra keys are sorted so the record is stable.
func (i Info) Records() []string {
	var txt []string
	add := func(k, v string) {
		if v != "" {
			txt = append(txt, k+"="+v)
		}
	}
	add("version", i.Version)
	add("device", i.Device)
	add("class", i.Class)
	keys := make([]string, 0, len(i.Extra))
	for k := range i.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		add(k, i.Extra[k])
	}
	return txt
}

// Service manages mDNS service registration.
type Service struct {
	name string // instance name, usually the hostname
	port int
	info Info
}

// New creates a Service that will advertise name on port.
func New(name string, port int, info Info) *Service {
	return &Service{name: name, port: port, info: info}
}

// PortFromAddr extracts the numeric port of a listen address such as ":8080".
func PortFromAddr(addr string) (int, error) {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("zeroconf: listen address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(p)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("zeroconf: listen address %q has no usable port", addr)
	}
	return port, nil
}

// Start registers the mDNS service and blocks until ctx is cancelled, at which
// point it shuts down the server cleanly.
func (s *Service) Start(ctx context.Context) error {
	txt := s.info.Records()

	server, err := zeroconf.Register(s.name, serviceType, domain, s.port, txt, nil)
	if err != nil {
		return fmt.Errorf("zeroconf register: %w", err)
	}
	slog.Info("zeroconf: registered mDNS service",
		"name", s.name,
		"port", s.port,
		"txt", txt,
	)

	<-ctx.Done()

	server.Shutdown()
	slog.Info("zeroconf: mDNS service unregistered")
	return nil
}
