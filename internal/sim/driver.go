// Driver moving stations through their trajectories and sampling telemetry
package sim

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"handover-sim/internal/config"
	"handover-sim/internal/handover"
	"handover-sim/internal/logging"
	"handover-sim/internal/probe"
	"handover-sim/internal/telemetry"
)

// StationState is the lifecycle state of a station within a run.
type StationState string

// Station states.
const (
	StateIdle       StationState = "idle"
	StateAtWaypoint StationState = "at_waypoint"
	StateMoving     StationState = "moving"
	StateDone       StationState = "done"
	StateFailed     StationState = "failed"
)

// ErrEmptyTrajectory is reported for stations without waypoints.
var ErrEmptyTrajectory = errors.New("trajectory has no waypoints")

// StationError is a configuration problem that aborted one station.
type StationError struct {
	Station string
	Field   string
	Err     error
}

func (e *StationError) Error() string {
	return fmt.Sprintf("station %s: %s: %v", e.Station, e.Field, e.Err)
}

func (e *StationError) Unwrap() error { return e.Err }

// Recorder receives run measurements, e.g. for metrics export.
type Recorder interface {
	ObserveSample(telemetry.Sample)
	ObserveHandover(telemetry.HandoverEvent)
	ObserveHandoverFailure(station string)
	ObserveStationState(station, state string)
}

// StationStatus is a snapshot of one station's progress.
type StationStatus struct {
	Name       string       `json:"name"`
	State      StationState `json:"state"`
	Waypoint   int          `json:"waypoint"`
	Waypoints  int          `json:"waypoints"`
	Samples    int          `json:"samples"`
	Handovers  int          `json:"handovers"`
	AttachedAP string       `json:"attached_ap"`
	Signal     int          `json:"signal"`
	Error      string       `json:"error,omitempty"`
}

// RunStatus is a snapshot of the whole run.
type RunStatus struct {
	RunID    string          `json:"run_id"`
	Scenario string          `json:"scenario"`
	Started  time.Time       `json:"started"`
	Running  bool            `json:"running"`
	Stations []StationStatus `json:"stations"`
}

// Result is what a run produced.
type Result struct {
	RunID    string
	Logs     []*telemetry.ExperimentLog
	Failures []*StationError
}

// Driver orchestrates station movement, sampling and handover for one run.
type Driver struct {
	runID      string
	sc         *config.Scenario
	backend    probe.Backend
	sampler    *telemetry.Sampler
	controller *handover.Controller
	policy     handover.Policy
	writer     TelemetryWriter
	hwriter    HandoverWriter
	recorder   Recorder
	sleep      func(ctx context.Context, d time.Duration) error
	rng        *rand.Rand
	now        func() time.Time

	mu       sync.Mutex
	started  time.Time
	running  bool
	order    []string
	status   map[string]*StationStatus
	cancelFn context.CancelFunc

	jmu     sync.Mutex
	journal []RunEvent
}

// NewDriver creates a driver for sc. writer and hwriter may be nil.
func NewDriver(sc *config.Scenario, backend probe.Backend, writer TelemetryWriter, hwriter HandoverWriter) *Driver {
	seed := sc.Mobility.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	d := &Driver{
		runID:      uuid.New().String(),
		sc:         sc,
		backend:    backend,
		controller: handover.NewController(backend),
		policy:     PolicyFromConfig(sc.Handover),
		writer:     writer,
		hwriter:    hwriter,
		sleep:      sleepContext,
		rng:        rand.New(rand.NewSource(seed)),
		now:        func() time.Time { return time.Now().UTC() },
		status:     make(map[string]*StationStatus),
	}
	d.sampler = telemetry.NewSampler(backend, SamplerConfigFromScenario(sc))
	for _, st := range sc.Stations {
		d.order = append(d.order, st.Name)
		d.status[st.Name] = &StationStatus{Name: st.Name, State: StateIdle, Waypoints: len(st.Trajectory), AttachedAP: telemetry.Unattached, Signal: telemetry.NoSignal}
	}
	return d
}

// PolicyFromConfig converts the scenario handover block to a policy.
func PolicyFromConfig(h config.HandoverConfig) handover.Policy {
	mode := handover.ModeThreshold
	if h.Mode == string(handover.ModeRelative) {
		mode = handover.ModeRelative
	}
	return handover.Policy{
		Enabled:     h.IsEnabled(),
		Threshold:   h.ThresholdDBm(),
		Hysteresis:  h.HysteresisDB(),
		Mode:        mode,
		SwitchPause: seconds(h.SwitchWaitSeconds()),
		SettlePause: seconds(h.SettleWaitSeconds()),
	}
}

// SamplerConfigFromScenario converts the probe block to a sampler config.
func SamplerConfigFromScenario(sc *config.Scenario) telemetry.SamplerConfig {
	return telemetry.SamplerConfig{
		Targets:          sc.Probe.Targets,
		PingTimeout:      seconds(sc.Probe.PingTimeout),
		Throughput:       sc.Probe.Throughput,
		ThroughputServer: sc.Probe.ThroughputServer,
	}
}

// RunID returns the identifier stamped on every record of this run.
func (d *Driver) RunID() string { return d.runID }

// SetRunID overrides the generated run identifier.
func (d *Driver) SetRunID(id string) { d.runID = id }

// SetSleep replaces the pause function for the driver and its controller.
func (d *Driver) SetSleep(fn func(ctx context.Context, dur time.Duration) error) {
	d.sleep = fn
	d.controller.SetSleep(fn)
}

// SetRecorder attaches a measurement recorder.
func (d *Driver) SetRecorder(r Recorder) { d.recorder = r }

// Controller returns the handover controller used by the run.
func (d *Driver) Controller() *handover.Controller { return d.controller }

// Cancel stops a running Run after the current sample.
func (d *Driver) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancelFn == nil {
		return false
	}
	d.cancelFn()
	d.logEvent("cancel", "", "run cancelled by operator")
	return true
}

// Status returns a snapshot of the run.
func (d *Driver) Status() RunStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	rs := RunStatus{RunID: d.runID, Scenario: d.sc.Name, Started: d.started, Running: d.running}
	for _, name := range d.order {
		rs.Stations = append(rs.Stations, *d.status[name])
	}
	return rs
}

// Run moves every station through its trajectory, one station after another.
// Configuration errors abort only the affected station and are reported in
// Result.Failures. The returned error is non-nil only when ctx is cancelled.
func (d *Driver) Run(ctx context.Context) (Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	log := logging.FromContext(ctx).With("run_id", d.runID)
	ctx = logging.NewContext(ctx, log)

	d.mu.Lock()
	d.started = d.now()
	d.running = true
	d.cancelFn = cancel
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.running = false
		d.cancelFn = nil
		d.mu.Unlock()
	}()

	log.Info("starting run", "scenario", d.sc.Name, "stations", len(d.sc.Stations), "mobility", d.sc.Mobility.Kind)
	res := Result{RunID: d.runID}
	for _, st := range d.sc.Stations {
		elog := telemetry.NewExperimentLog(d.runID, st.Name)
		res.Logs = append(res.Logs, elog)
		err := d.runStation(ctx, st, elog)
		var se *StationError
		switch {
		case errors.As(err, &se):
			log.Error("station aborted", "station", st.Name, "field", se.Field, "err", se.Err)
			elog.Error = se.Error()
			res.Failures = append(res.Failures, se)
			d.setState(st.Name, StateFailed, se.Error())
		case err != nil:
			log.Info("run cancelled", "station", st.Name)
			return res, err
		}
	}
	log.Info("run finished", "failures", len(res.Failures))
	return res, nil
}

// waypoints validates a station and returns its waypoint positions.
func (d *Driver) waypoints(st config.Station) ([]telemetry.Position, error) {
	if len(st.Trajectory) == 0 {
		return nil, &StationError{Station: st.Name, Field: "trajectory", Err: ErrEmptyTrajectory}
	}
	kind := d.sc.Mobility.Kind
	if kind == config.MobilityContinuous || kind == config.MobilityRandomWalk {
		if d.sc.Mobility.Speed <= 0 {
			return nil, &StationError{Station: st.Name, Field: "speed", Err: fmt.Errorf("must be positive, got %v", d.sc.Mobility.Speed)}
		}
		if d.sc.Mobility.SamplingInterval <= 0 {
			return nil, &StationError{Station: st.Name, Field: "sampling_interval", Err: fmt.Errorf("must be positive, got %v", d.sc.Mobility.SamplingInterval)}
		}
	}
	pts := make([]telemetry.Position, 0, len(st.Trajectory))
	for i, p := range st.Trajectory {
		if len(p) != 2 {
			return nil, &StationError{Station: st.Name, Field: fmt.Sprintf("trajectory[%d]", i), Err: fmt.Errorf("want [x, y], got %d values", len(p))}
		}
		pts = append(pts, telemetry.Position{X: p[0], Y: p[1]})
	}
	return pts, nil
}

func (d *Driver) segmentSteps(from, to telemetry.Position) []step {
	m := d.sc.Mobility
	switch m.Kind {
	case config.MobilityContinuous:
		return continuousSteps(from, to, m.Speed, m.SamplingInterval)
	case config.MobilityRandomWalk:
		return randomWalkSteps(from, to, m.Jitter, m.SamplingInterval, d.rng)
	default:
		return discreteSteps(to, d.sc.WaitSeconds())
	}
}

func (d *Driver) runStation(ctx context.Context, st config.Station, elog *telemetry.ExperimentLog) error {
	log := logging.FromContext(ctx).With("station", st.Name)
	ctx = logging.NewContext(ctx, log)

	wps, err := d.waypoints(st)
	if err != nil {
		return err
	}
	start := telemetry.Position{X: st.StartX, Y: st.StartY}
	if err := d.backend.SetPosition(ctx, st.Name, start.X, start.Y); err != nil {
		if errors.Is(err, probe.ErrUnknownStation) {
			return &StationError{Station: st.Name, Field: "name", Err: err}
		}
		log.Warn("initial position not applied", "err", err)
	}
	d.setState(st.Name, StateAtWaypoint, "")
	d.logEvent("start", st.Name, fmt.Sprintf("(%.1f, %.1f)", start.X, start.Y))
	d.sampleAt(ctx, st.Name, start, elog)
	if err := ctx.Err(); err != nil {
		return err
	}

	cur := start
	for i, wp := range wps {
		d.setState(st.Name, StateMoving, "")
		for _, s := range d.segmentSteps(cur, wp) {
			if err := d.backend.SetPosition(ctx, st.Name, s.Pos.X, s.Pos.Y); err != nil {
				log.Warn("position not applied", "x", s.Pos.X, "y", s.Pos.Y, "err", err)
			}
			if err := d.sleep(ctx, s.Pause); err != nil {
				return err
			}
			d.sampleAt(ctx, st.Name, s.Pos, elog)
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		cur = wp
		d.mu.Lock()
		d.status[st.Name].Waypoint = i + 1
		d.mu.Unlock()
		d.setState(st.Name, StateAtWaypoint, "")
	}
	d.setState(st.Name, StateDone, "")
	d.logEvent("done", st.Name, fmt.Sprintf("%d samples, %d handovers", len(elog.Samples), len(elog.Events)))
	return nil
}

// sampleAt takes one sample, records it and lets the controller act on it.
func (d *Driver) sampleAt(ctx context.Context, station string, pos telemetry.Position, elog *telemetry.ExperimentLog) {
	log := logging.FromContext(ctx)
	s := d.sampler.Sample(ctx, station, pos)
	s.RunID = d.runID
	elog.AppendSample(s)
	if d.writer != nil {
		if err := d.writer.Write(s); err != nil {
			log.Error("write failed", "err", err)
		}
	}
	if d.recorder != nil {
		d.recorder.ObserveSample(s)
	}
	d.mu.Lock()
	stt := d.status[station]
	stt.Samples++
	stt.AttachedAP = s.AttachedAP
	stt.Signal = s.Signal
	d.mu.Unlock()

	if !d.policy.Enabled {
		return
	}
	ev, err := d.controller.Evaluate(ctx, station, s, d.policy)
	if err != nil {
		log.Warn("handover failed", "err", err)
		if d.recorder != nil {
			d.recorder.ObserveHandoverFailure(station)
		}
		d.logEvent("handover_failed", station, err.Error())
		return
	}
	if ev == nil {
		return
	}
	ev.AfterSample = len(elog.Samples) - 1
	elog.AppendEvent(*ev)
	if d.hwriter != nil {
		if err := d.hwriter.WriteHandover(*ev); err != nil {
			log.Error("handover write failed", "err", err)
		}
	}
	if d.recorder != nil {
		d.recorder.ObserveHandover(*ev)
	}
	d.mu.Lock()
	d.status[station].Handovers++
	d.mu.Unlock()
	d.logEvent("handover", station, fmt.Sprintf("%s -> %s", ev.PreviousAP, ev.NewAP))
}

func (d *Driver) setState(station string, state StationState, errMsg string) {
	d.mu.Lock()
	if st, ok := d.status[station]; ok {
		st.State = state
		if errMsg != "" {
			st.Error = errMsg
		}
	}
	d.mu.Unlock()
	if d.recorder != nil {
		d.recorder.ObserveStationState(station, string(state))
	}
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
