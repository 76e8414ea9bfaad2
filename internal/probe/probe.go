// Package probe defines the radio and network backends a station is sampled
// through, plus the concrete backends used for emulated and real runs.
package probe

import (
	"context"
	"errors"
	"time"
)

// ErrUnknownStation is returned when a backend is asked about a station it
// does not manage.
var ErrUnknownStation = errors.New("unknown station")

// Probe reads raw link, scan and ping output for a station. The text formats
// are the ones produced by `iw dev <if> link`, `iw dev <if> scan` and `ping`.
type Probe interface {
	ReadLinkStatus(ctx context.Context, station string) (string, error)
	ScanVisibleNetworks(ctx context.Context, station string) (string, error)
	PingProbe(ctx context.Context, station, target string, timeout time.Duration) (string, error)
	SetPosition(ctx context.Context, station string, x, y float64) error
}

// Linker detaches a station from its access point and attaches it to another.
type Linker interface {
	Detach(ctx context.Context, station string) error
	Attach(ctx context.Context, station, ssid string) error
}

// Backend is a probe that can also switch access points.
type Backend interface {
	Probe
	Linker
}

// DiagnosticProbe is implemented by backends that expose the legacy
// `iwconfig` wireless diagnostics output.
type DiagnosticProbe interface {
	ReadWirelessConfig(ctx context.Context, station string) (string, error)
}

// ThroughputProbe is implemented by backends that can run an iperf3 client
// and return its JSON report.
type ThroughputProbe interface {
	MeasureThroughput(ctx context.Context, station, server string) (string, error)
}

// Mover physically relocates a station, e.g. a robot carrying the radio.
type Mover interface {
	Move(ctx context.Context, station string, x, y float64) error
}
