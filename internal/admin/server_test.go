package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"handover-sim/internal/config"
	"handover-sim/internal/metrics"
	"handover-sim/internal/probe"
	"handover-sim/internal/remote"
	"handover-sim/internal/sim"
)

func newTestDriver(t *testing.T) *sim.Driver {
	t.Helper()
	sc := &config.Scenario{
		Name:     "admin",
		APs:      []config.AP{{Name: "ap1", X: 0, Y: 0, Range: 100}},
		Stations: []config.Station{{Name: "sta1", Trajectory: [][]float64{{5, 0}}}},
	}
	sc.ApplyDefaults()
	emu := probe.NewEmulated([]probe.AccessPoint{{Name: "ap1", SSID: "ap1", Range: 100}}, probe.EmulatedOptions{AutoAssociate: true})
	emu.AddStation("sta1", 0, 0)
	d := sim.NewDriver(sc, emu, nil, nil)
	d.SetSleep(func(context.Context, time.Duration) error { return nil })
	return d
}

func TestHandleStatusAndJournal(t *testing.T) {
	d := newTestDriver(t)
	reg := prometheus.NewRegistry()
	rec, err := metrics.NewRecorder(reg)
	if err != nil {
		t.Fatal(err)
	}
	d.SetRecorder(rec)
	if _, err := d.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	h := NewServer(d, reg).Handler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status code %d", w.Code)
	}
	var st sim.RunStatus
	if err := json.NewDecoder(w.Body).Decode(&st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.RunID != d.RunID() || len(st.Stations) != 1 || st.Stations[0].State != sim.StateDone {
		t.Fatalf("unexpected status %+v", st)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/journal?since=1000", nil))
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Fatalf("expected empty journal page, got %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(w.Body.String(), `handover_samples_total{station="sta1"} 2`) {
		t.Fatalf("metrics missing samples counter:\n%s", w.Body.String())
	}
}

func TestHandleCancel(t *testing.T) {
	h := NewServer(newTestDriver(t), nil).Handler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/cancel", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/cancel", nil))
	var resp map[string]bool
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["cancelled"] {
		t.Fatalf("nothing is running, cancel should report false")
	}
}

type fixedRemote struct{ st remote.Status }

func (f fixedRemote) Status() remote.Status { return f.st }

func TestHandleRemote(t *testing.T) {
	s := NewServer(newTestDriver(t), nil)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/remote", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without remote, got %d", w.Code)
	}

	s.Remote = fixedRemote{remote.Status{Host: "robot.local", Connected: true}}
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/remote", nil))
	var st remote.Status
	if err := json.NewDecoder(w.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Host != "robot.local" || !st.Connected {
		t.Fatalf("unexpected remote status %+v", st)
	}
}

func TestShutdownStopsStart(t *testing.T) {
	srv := NewServer(newTestDriver(t), nil)
	done := make(chan error, 1)
	go func() { done <- srv.Start("127.0.0.1:0") }()

	// Give Start a moment to listen; Shutdown also covers the case where it
	// has not yet started.
	time.Sleep(20 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	select {
	case err := <-done:
		if !errors.Is(err, http.ErrServerClosed) {
			t.Fatalf("Start returned %v, want ErrServerClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Start did not return after Shutdown")
	}
}
