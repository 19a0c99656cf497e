// Package identity reports who this bridge is: the host it runs on and the
// build it runs.
package identity

import (
	"os"
	"runtime/debug"
	"strings"
)

// DefaultVersion is reported when neither the linker nor the build info
// carries a version.
const DefaultVersion = "0.0.0-dev"

// DefaultHostname is used when the system hostname cannot be read.
const DefaultHostname = "gpiointr"

// Info holds system identity information.
type Info struct {
	Hostname string
	Version  string
}

// Get collects identity information. linked is the version stamped in with
// -ldflags; "" or "dev" means none was stamped.
func Get(linked string) Info {
	return Info{
		Hostname: Hostname(),
		Version:  Version(linked, readBuildVersion()),
	}
}

// Hostname returns the short system hostname.
func Hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return DefaultHostname
	}
	// mDNS instance names should not carry the domain part
	if i := strings.IndexByte(h, '.'); i > 0 {
		h = h[:i]
	}
	return h
}

// Version picks the linker-stamped version, then the module build version,
// then DefaultVersion.
func Version(linked, build string) string {
	if linked != "" && linked != "dev" {
		return linked
	}
	if build != "" && build != "(devel)" {
		return strings.TrimPrefix(build, "v")
	}
	return DefaultVersion
}

func readBuildVersion() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	return bi.Main.Version
}
