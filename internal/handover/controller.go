// Package handover decides when a station should switch access points and
// performs the switch.
package handover

import (
	"context"
	"fmt"
	"sync"
	"time"

	"handover-sim/internal/logging"
	"handover-sim/internal/probe"
	"handover-sim/internal/telemetry"
)

// Mode selects what a candidate's signal is compared against.
type Mode string

const (
	// ModeThreshold requires candidate > threshold + hysteresis.
	ModeThreshold Mode = "threshold"
	// ModeRelative requires candidate > current signal + hysteresis.
	ModeRelative Mode = "relative"
)

// Policy is the per-scenario handover configuration.
type Policy struct {
	Enabled    bool
	Threshold  int
	Hysteresis int
	Mode       Mode
	// SwitchPause is waited between detach and attach.
	SwitchPause time.Duration
	// SettlePause is waited after attach before the next sample.
	SettlePause time.Duration
}

// DefaultPolicy returns threshold -65 dBm, hysteresis 5 dB.
func DefaultPolicy() Policy {
	return Policy{
		Enabled:     true,
		Threshold:   -65,
		Hysteresis:  5,
		Mode:        ModeThreshold,
		SwitchPause: time.Second,
		SettlePause: 2 * time.Second,
	}
}

// Controller tracks each station's current access point and switches it when
// a sufficiently stronger one is visible.
type Controller struct {
	linker  probe.Linker
	mu      sync.Mutex
	current map[string]string
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewController creates a Controller switching stations through linker.
func NewController(linker probe.Linker) *Controller {
	return &Controller{
		linker:  linker,
		current: make(map[string]string),
		now:     func() time.Time { return time.Now().UTC() },
		sleep:   sleepContext,
	}
}

// SetSleep replaces the pause function, e.g. to skip waits in tests.
func (c *Controller) SetSleep(fn func(ctx context.Context, d time.Duration) error) {
	c.sleep = fn
}

// SetClock replaces the event timestamp source.
func (c *Controller) SetClock(fn func() time.Time) {
	c.now = fn
}

// Current returns the access point the controller believes station is on.
func (c *Controller) Current(station string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ap, ok := c.current[station]; ok {
		return ap
	}
	return telemetry.Unattached
}

// Candidate returns the strongest scan entry strictly above threshold.
func Candidate(scan []telemetry.ScanEntry, threshold int) (telemetry.ScanEntry, bool) {
	var (
		best  telemetry.ScanEntry
		found bool
	)
	for _, e := range scan {
		if e.Signal <= threshold {
			continue
		}
		if !found || e.Signal > best.Signal {
			best, found = e, true
		}
	}
	return best, found
}

// ShouldSwitch reports whether candidate passes the policy's trigger test
// against a station currently reading current dBm.
func ShouldSwitch(p Policy, candidate, current int) bool {
	if p.Mode == ModeRelative {
		return candidate > current+p.Hysteresis
	}
	return candidate > p.Threshold+p.Hysteresis
}

// Evaluate decides on and performs a handover for station given its latest
// sample. It returns the event when a switch completed. A failed switch
// leaves the current access point unchanged and returns the error; the
// decision is retried at the next sample.
func (c *Controller) Evaluate(ctx context.Context, station string, s telemetry.Sample, p Policy) (*telemetry.HandoverEvent, error) {
	if !p.Enabled {
		return nil, nil
	}
	log := logging.FromContext(ctx).With("station", station)

	c.mu.Lock()
	c.current[station] = s.AttachedAP
	c.mu.Unlock()
	previous := s.AttachedAP

	cand, ok := Candidate(s.Scan, p.Threshold)
	if !ok || cand.SSID == previous {
		return nil, nil
	}
	if !ShouldSwitch(p, cand.Signal, s.Signal) {
		log.Debug("candidate within hysteresis", "candidate", cand.SSID, "signal", cand.Signal)
		return nil, nil
	}

	log.Info("handover triggered", "from", previous, "to", cand.SSID, "old_signal", s.Signal, "new_signal", cand.Signal)
	if err := c.linker.Detach(ctx, station); err != nil {
		log.Warn("handover detach failed", "err", err)
		return nil, fmt.Errorf("detach %s: %w", station, err)
	}
	if err := c.sleep(ctx, p.SwitchPause); err != nil {
		return nil, fmt.Errorf("handover %s: %w", station, err)
	}
	if err := c.linker.Attach(ctx, station, cand.SSID); err != nil {
		log.Warn("handover attach failed", "ap", cand.SSID, "err", err)
		return nil, fmt.Errorf("attach %s to %s: %w", station, cand.SSID, err)
	}

	c.mu.Lock()
	c.current[station] = cand.SSID
	c.mu.Unlock()

	ev := &telemetry.HandoverEvent{
		Timestamp:  c.now(),
		RunID:      s.RunID,
		Station:    station,
		PreviousAP: previous,
		NewAP:      cand.SSID,
		Reason:     telemetry.ReasonBetterSignal,
		OldSignal:  s.Signal,
		NewSignal:  cand.Signal,
	}
	// Cancellation during the settle pause is observed by the caller.
	_ = c.sleep(ctx, p.SettlePause)
	return ev, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
