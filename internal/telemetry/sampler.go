package telemetry

import (
	"context"
	"time"

	"handover-sim/internal/logging"
	"handover-sim/internal/probe"
)

// Observation holds the raw readings gathered before signal strategies run.
type Observation struct {
	Link LinkStatus
	Scan []ScanEntry
}

// SignalStrategy is one way of obtaining the signal strength of a station.
type SignalStrategy struct {
	Name string
	Read func(ctx context.Context, p probe.Probe, station string, obs Observation) (int, bool)
}

// Signal source names.
const (
	SourceLink     = "link"
	SourceIwconfig = "iwconfig"
	SourceScan     = "scan"
	SourceNone     = "none"
)

// DefaultSignalStrategies returns link status, then wireless diagnostics,
// then the scan entry of the attached network.
func DefaultSignalStrategies() []SignalStrategy {
	return []SignalStrategy{
		{Name: SourceLink, Read: linkSignal},
		{Name: SourceIwconfig, Read: iwconfigSignal},
		{Name: SourceScan, Read: scanSignal},
	}
}

func linkSignal(_ context.Context, _ probe.Probe, _ string, obs Observation) (int, bool) {
	if !obs.Link.Connected || !obs.Link.HasSignal {
		return 0, false
	}
	return obs.Link.Signal, true
}

func iwconfigSignal(ctx context.Context, p probe.Probe, station string, _ Observation) (int, bool) {
	dp, ok := p.(probe.DiagnosticProbe)
	if !ok {
		return 0, false
	}
	out, err := dp.ReadWirelessConfig(ctx, station)
	if err != nil {
		return 0, false
	}
	sig, _, ok := ParseWirelessConfig(out)
	return sig, ok
}

func scanSignal(_ context.Context, _ probe.Probe, _ string, obs Observation) (int, bool) {
	if !obs.Link.Connected || obs.Link.SSID == "" {
		return 0, false
	}
	for _, e := range obs.Scan {
		if e.SSID == obs.Link.SSID {
			return e.Signal, true
		}
	}
	return 0, false
}

// SamplerConfig configures a Sampler.
type SamplerConfig struct {
	// Targets are pinged in order until one answers.
	Targets     []string
	PingTimeout time.Duration
	// Throughput enables iperf3 measurements when the probe supports them.
	Throughput       bool
	ThroughputServer string
	Strategies       []SignalStrategy
	Now              func() time.Time
}

// DefaultSamplerConfig pings the gateway, then a public resolver.
func DefaultSamplerConfig() SamplerConfig {
	return SamplerConfig{
		Targets:          []string{"10.0.0.1", "8.8.8.8"},
		PingTimeout:      2 * time.Second,
		ThroughputServer: "10.0.0.1",
	}
}

// Sampler reads one telemetry sample for a station from a probe.
type Sampler struct {
	probe probe.Probe
	cfg   SamplerConfig
}

// NewSampler creates a Sampler. Zero config fields take their defaults.
func NewSampler(p probe.Probe, cfg SamplerConfig) *Sampler {
	def := DefaultSamplerConfig()
	if len(cfg.Targets) == 0 {
		cfg.Targets = def.Targets
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = def.PingTimeout
	}
	if cfg.ThroughputServer == "" {
		cfg.ThroughputServer = def.ThroughputServer
	}
	if cfg.Strategies == nil {
		cfg.Strategies = DefaultSignalStrategies()
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Sampler{probe: p, cfg: cfg}
}

// Sample measures station at pos. It never fails: unreadable values are
// recorded as NoSignal, LatencyTimeout and Unattached.
func (s *Sampler) Sample(ctx context.Context, station string, pos Position) Sample {
	log := logging.FromContext(ctx).With("station", station)

	var obs Observation
	if out, err := s.probe.ReadLinkStatus(ctx, station); err != nil {
		log.Debug("link status unavailable", "err", err)
	} else {
		obs.Link = ParseLinkStatus(out)
	}
	if out, err := s.probe.ScanVisibleNetworks(ctx, station); err != nil {
		log.Debug("scan unavailable", "err", err)
	} else {
		obs.Scan = ParseScan(out)
	}

	sample := Sample{
		Timestamp:    s.cfg.Now(),
		Station:      station,
		Position:     pos,
		Signal:       NoSignal,
		SignalSource: SourceNone,
		AttachedAP:   Unattached,
		Scan:         obs.Scan,
	}
	if sample.Scan == nil {
		sample.Scan = []ScanEntry{}
	}
	if obs.Link.Connected && obs.Link.SSID != "" {
		sample.AttachedAP = obs.Link.SSID
	}

	for _, st := range s.cfg.Strategies {
		if v, ok := st.Read(ctx, s.probe, station, obs); ok {
			sample.Signal = v
			sample.SignalSource = st.Name
			break
		}
	}

	sample.LatencyMs, sample.PacketLoss = s.latency(ctx, station)

	if s.cfg.Throughput {
		if tp, ok := s.probe.(probe.ThroughputProbe); ok {
			out, err := tp.MeasureThroughput(ctx, station, s.cfg.ThroughputServer)
			if err == nil {
				if mbps, perr := ParseIperf(out); perr == nil {
					sample.Throughput = &mbps
				} else {
					log.Debug("iperf3 report unreadable", "err", perr)
				}
			} else {
				log.Debug("throughput probe failed", "err", err)
			}
		}
	}
	return sample
}

func (s *Sampler) latency(ctx context.Context, station string) (float64, bool) {
	for _, target := range s.cfg.Targets {
		out, err := s.probe.PingProbe(ctx, station, target, s.cfg.PingTimeout)
		if err != nil {
			continue
		}
		if ms, ok := ParsePing(out); ok {
			return ms, false
		}
	}
	return LatencyTimeout, true
}
