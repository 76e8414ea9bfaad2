package sim

import (
	"context"
	"errors"
	"testing"
	"time"

	"handover-sim/internal/config"
	"handover-sim/internal/probe"
	"handover-sim/internal/telemetry"
)

// MockWriter collects samples and handover events for validation
type MockWriter struct {
	Samples []telemetry.Sample
	Events  []telemetry.HandoverEvent
	// Order holds the attached AP of each sample and "->new" for each event.
	Order []string
}

func (w *MockWriter) Write(s telemetry.Sample) error {
	w.Samples = append(w.Samples, s)
	w.Order = append(w.Order, s.AttachedAP)
	return nil
}

func (w *MockWriter) WriteHandover(ev telemetry.HandoverEvent) error {
	w.Events = append(w.Events, ev)
	w.Order = append(w.Order, "->"+ev.NewAP)
	return nil
}

func noSleep(context.Context, time.Duration) error { return nil }

func testScenario(kind string, stations ...config.Station) *config.Scenario {
	sc := &config.Scenario{
		Name: "test",
		APs: []config.AP{
			{Name: "ap1", X: 0, Y: 0, Range: 100},
			{Name: "ap2", X: 50, Y: 0, Range: 100},
		},
		Stations: stations,
		Mobility: config.MobilityConfig{Kind: kind, Speed: 2, SamplingInterval: 1, Seed: 7},
	}
	sc.ApplyDefaults()
	return sc
}

func newTestDriver(t *testing.T, sc *config.Scenario, w *MockWriter, register ...string) (*Driver, *probe.Emulated) {
	t.Helper()
	aps := make([]probe.AccessPoint, len(sc.APs))
	for i, ap := range sc.APs {
		aps[i] = probe.AccessPoint{Name: ap.Name, SSID: ap.SSID, X: ap.X, Y: ap.Y, Range: ap.Range, Channel: ap.Channel}
	}
	emu := probe.NewEmulated(aps, probe.EmulatedOptions{AutoAssociate: true, Seed: 1})
	for _, name := range register {
		emu.AddStation(name, 0, 0)
	}
	d := NewDriver(sc, emu, w, w)
	d.SetSleep(noSleep)
	return d, emu
}

func TestDriverDiscreteSamplesEveryWaypoint(t *testing.T) {
	sc := testScenario(config.MobilityDiscrete, config.Station{
		Name: "sta1", Trajectory: [][]float64{{10, 0}, {20, 0}, {30, 0}},
	})
	w := &MockWriter{}
	d, _ := newTestDriver(t, sc, w, "sta1")
	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Logs) != 1 || len(res.Logs[0].Samples) != 4 {
		t.Fatalf("expected 4 samples, got %d", len(res.Logs[0].Samples))
	}
	if len(w.Samples) != 4 {
		t.Fatalf("writer received %d samples", len(w.Samples))
	}
	last := res.Logs[0].Samples[3]
	if last.Position != (telemetry.Position{X: 30, Y: 0}) || last.RunID != d.RunID() {
		t.Fatalf("unexpected final sample %+v", last)
	}
	if st := d.Status().Stations[0]; st.State != StateDone || st.Waypoint != 3 || st.Samples != 4 {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestDriverContinuousSubdivision(t *testing.T) {
	sc := testScenario(config.MobilityContinuous, config.Station{
		Name: "sta1", Trajectory: [][]float64{{10, 0}, {10, 3}, {10, 3}},
	})
	d, _ := newTestDriver(t, sc, &MockWriter{}, "sta1")
	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// 1 initial + ceil(10/2/1)=5 + ceil(3/2/1)=2 + 1 for the zero-length segment.
	samples := res.Logs[0].Samples
	if len(samples) != 9 {
		t.Fatalf("expected 9 samples, got %d", len(samples))
	}
	if samples[1].Position != (telemetry.Position{X: 2, Y: 0}) {
		t.Fatalf("expected first step at (2,0), got %+v", samples[1].Position)
	}
	if samples[5].Position != (telemetry.Position{X: 10, Y: 0}) {
		t.Fatalf("expected segment end at (10,0), got %+v", samples[5].Position)
	}
}

func TestDriverRandomWalkReachesWaypoints(t *testing.T) {
	sc := testScenario(config.MobilityRandomWalk, config.Station{
		Name: "sta1", Trajectory: [][]float64{{30, 0}, {30, 4}},
	})
	d, _ := newTestDriver(t, sc, &MockWriter{}, "sta1")
	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// 1 initial + (6 + 1) + (3 + 1)
	samples := res.Logs[0].Samples
	if len(samples) != 12 {
		t.Fatalf("expected 12 samples, got %d", len(samples))
	}
	if samples[7].Position != (telemetry.Position{X: 30, Y: 0}) || samples[11].Position != (telemetry.Position{X: 30, Y: 4}) {
		t.Fatalf("waypoints not reached exactly: %+v %+v", samples[7].Position, samples[11].Position)
	}
	for i := 1; i < 7; i++ {
		want := float64(i) * 30 / 7
		if diff := samples[i].Position.X - want; diff > 2 || diff < -2 {
			t.Fatalf("jitter out of bounds at %d: %+v", i, samples[i].Position)
		}
	}
}

func TestDriverConfigErrorsDoNotAbortSiblings(t *testing.T) {
	sc := testScenario(config.MobilityDiscrete,
		config.Station{Name: "empty"},
		config.Station{Name: "ghost", Trajectory: [][]float64{{1, 1}}},
		config.Station{Name: "bad", Trajectory: [][]float64{{1}}},
		config.Station{Name: "sta1", Trajectory: [][]float64{{5, 0}}},
	)
	d, _ := newTestDriver(t, sc, &MockWriter{}, "empty", "bad", "sta1")
	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Failures) != 3 {
		t.Fatalf("expected 3 failures, got %v", res.Failures)
	}
	if !errors.Is(res.Failures[0], ErrEmptyTrajectory) || res.Failures[0].Field != "trajectory" {
		t.Fatalf("unexpected first failure %v", res.Failures[0])
	}
	if !errors.Is(res.Failures[1], probe.ErrUnknownStation) || res.Failures[1].Field != "name" {
		t.Fatalf("unexpected second failure %v", res.Failures[1])
	}
	if res.Failures[2].Field != "trajectory[0]" {
		t.Fatalf("unexpected third failure %v", res.Failures[2])
	}
	if len(res.Logs) != 4 || res.Logs[0].Error == "" || len(res.Logs[3].Samples) != 2 {
		t.Fatalf("unexpected logs %+v", res.Logs)
	}
	if st := d.Status().Stations[0]; st.State != StateFailed {
		t.Fatalf("expected failed state, got %s", st.State)
	}
}

func TestDriverRejectsNonPositiveSpeed(t *testing.T) {
	sc := testScenario(config.MobilityContinuous, config.Station{Name: "sta1", Trajectory: [][]float64{{5, 0}}})
	sc.Mobility.Speed = 0
	d, _ := newTestDriver(t, sc, &MockWriter{}, "sta1")
	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Failures) != 1 || res.Failures[0].Field != "speed" {
		t.Fatalf("expected speed failure, got %v", res.Failures)
	}
}

func TestDriverHandoverEventsMatchSamples(t *testing.T) {
	sc := testScenario(config.MobilityContinuous, config.Station{
		Name: "sta1", Trajectory: [][]float64{{50, 0}, {0, 0}},
	})
	threshold, hyst := -80, 5
	sc.Handover.Threshold = &threshold
	sc.Handover.Hysteresis = &hyst
	w := &MockWriter{}
	d, emu := newTestDriver(t, sc, w, "sta1")
	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	elog := res.Logs[0]
	if len(elog.Events) < 2 {
		t.Fatalf("expected handovers in both directions, got %d", len(elog.Events))
	}
	if len(w.Events) != len(elog.Events) {
		t.Fatalf("writer saw %d events, log has %d", len(w.Events), len(elog.Events))
	}
	evIdx := 0
	for i, entry := range w.Order {
		if len(entry) < 2 || entry[:2] != "->" {
			continue
		}
		ev := w.Events[evIdx]
		evIdx++
		if i == 0 || w.Order[i-1] != ev.PreviousAP {
			t.Fatalf("event %+v does not follow a sample on %q", ev, ev.PreviousAP)
		}
		if i+1 < len(w.Order) && w.Order[i+1] != ev.NewAP {
			t.Fatalf("sample after event %+v is on %q", ev, w.Order[i+1])
		}
		if ev.NewSignal <= threshold+hyst {
			t.Fatalf("event violates hysteresis: %+v", ev)
		}
	}
	if got := emu.Attached("sta1"); got != "ap1" {
		t.Fatalf("expected to end on ap1, got %q", got)
	}
	var handovers int
	for _, e := range d.Journal() {
		if e.Type == "handover" {
			handovers++
		}
	}
	if handovers != len(elog.Events) {
		t.Fatalf("journal has %d handovers, log %d", handovers, len(elog.Events))
	}
}

func TestDriverHandoverFailureKeepsAP(t *testing.T) {
	sc := testScenario(config.MobilityDiscrete, config.Station{
		Name: "sta1", Trajectory: [][]float64{{48, 0}},
	})
	w := &MockWriter{}
	d, emu := newTestDriver(t, sc, w, "sta1")
	emu.FailDetach = true
	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Logs[0].Events) != 0 {
		t.Fatalf("expected no events after failed detach, got %+v", res.Logs[0].Events)
	}
	if got := d.Controller().Current("sta1"); got != "ap1" {
		t.Fatalf("controller moved to %q after failure", got)
	}
	if emu.Attached("sta1") != "ap1" {
		t.Fatalf("station should still be on ap1")
	}
}

func TestDriverCancellation(t *testing.T) {
	sc := testScenario(config.MobilityContinuous, config.Station{
		Name: "sta1", Trajectory: [][]float64{{40, 0}},
	})
	d, _ := newTestDriver(t, sc, &MockWriter{}, "sta1")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	calls := 0
	d.SetSleep(func(ctx context.Context, _ time.Duration) error {
		calls++
		if calls == 3 {
			cancel()
		}
		return ctx.Err()
	})
	res, err := d.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if n := len(res.Logs[0].Samples); n != 3 {
		t.Fatalf("expected 3 samples before cancel, got %d", n)
	}
	if d.Status().Running {
		t.Fatalf("run should not be marked running")
	}
}

func TestContinuousStepCount(t *testing.T) {
	cases := []struct {
		dist, speed, interval float64
		want                  int
	}{
		{10, 2, 1, 5},
		{10, 3, 1, 4},
		{10, 2, 0.1, 50},
		{0, 2, 1, 1},
		{0.5, 2, 1, 1},
	}
	for _, tc := range cases {
		if got := ContinuousStepCount(tc.dist, tc.speed, tc.interval); got != tc.want {
			t.Fatalf("ContinuousStepCount(%v,%v,%v)=%d want %d", tc.dist, tc.speed, tc.interval, got, tc.want)
		}
	}
}
