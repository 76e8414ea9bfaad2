package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"handover-sim/internal/config"
	"handover-sim/internal/export"
	"handover-sim/internal/probe"
	"handover-sim/internal/remote"
	"handover-sim/internal/telemetry"
)

func TestNewWritersConsole(t *testing.T) {
	for _, output := range []string{"text", "color", "json", "none"} {
		mw, cleanup, err := newWriters(nil, output, "", nil)
		if err != nil {
			t.Fatalf("newWriters(%s) returned error: %v", output, err)
		}
		cleanup()
		if mw == nil {
			t.Fatalf("expected a writer for %s", output)
		}
	}
	if _, _, err := newWriters(nil, "xml", "", nil); err == nil {
		t.Fatalf("expected error for unknown output")
	}
}

func TestNewWritersLogFileAndExporter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "samples.jsonl")
	exp := export.NewExporter("run-1", 0)
	mw, cleanup, err := newWriters(nil, "none", path, exp)
	if err != nil {
		t.Fatalf("newWriters returned error: %v", err)
	}
	s := telemetry.Sample{Station: "sta1", Timestamp: time.Now(), Signal: -50, AttachedAP: "ap1", Scan: []telemetry.ScanEntry{}}
	if err := mw.Write(s); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := mw.WriteHandover(telemetry.HandoverEvent{Station: "sta1", NewAP: "ap2"}); err != nil {
		t.Fatalf("write handover failed: %v", err)
	}
	cleanup()

	for _, p := range []string{path, path + ".handovers"} {
		info, err := os.Stat(p)
		if err != nil {
			t.Fatalf("stat %s: %v", p, err)
		}
		if info.Size() == 0 {
			t.Fatalf("expected %s to be non-empty", p)
		}
	}
	stats := exp.Stats()
	if len(stats) != 1 || stats[0].Samples != 1 || stats[0].Handovers != 1 {
		t.Fatalf("exporter did not receive the stream: %+v", stats)
	}
}

func TestNewBackendEmulated(t *testing.T) {
	sc := &config.Scenario{
		APs:      []config.AP{{Name: "ap1", X: 0, Y: 0, Range: 50}},
		Stations: []config.Station{{Name: "sta1", StartX: 3, StartY: 4}},
	}
	sc.ApplyDefaults()
	b, cleanup, err := newBackend(sc, nil)
	if err != nil {
		t.Fatalf("newBackend: %v", err)
	}
	defer cleanup()
	emu, ok := b.(*probe.Emulated)
	if !ok {
		t.Fatalf("expected *probe.Emulated, got %T", b)
	}
	if got := emu.Attached("sta1"); got != "ap1" {
		t.Fatalf("station should start attached to ap1, got %q", got)
	}
}

func TestNewBackendShellInterfaces(t *testing.T) {
	sc := &config.Scenario{
		APs:      []config.AP{{Name: "ap1"}},
		Stations: []config.Station{{Name: "sta1"}, {Name: "sta2"}},
		Probe:    config.ProbeConfig{Backend: config.BackendShell, Interfaces: map[string]string{"sta2": "wlan1"}},
	}
	sc.ApplyDefaults()
	b, cleanup, err := newBackend(sc, nil)
	if err != nil {
		t.Fatalf("newBackend: %v", err)
	}
	defer cleanup()
	sh := b.(*probe.Shell)
	if sh.Interfaces["sta1"] != "sta1-wlan0" || sh.Interfaces["sta2"] != "wlan1" {
		t.Fatalf("unexpected interfaces %v", sh.Interfaces)
	}
	if _, ok := sh.Runner.(probe.ExecRunner); !ok {
		t.Fatalf("shell backend should run locally, got %T", sh.Runner)
	}
}

func TestNewBackendRemoteNeedsChannel(t *testing.T) {
	sc := &config.Scenario{
		APs:      []config.AP{{Name: "ap1"}},
		Stations: []config.Station{{Name: "sta1"}},
		Probe:    config.ProbeConfig{Backend: config.BackendRemote},
	}
	sc.ApplyDefaults()
	if _, _, err := newBackend(sc, nil); err == nil {
		t.Fatalf("expected error without a remote channel")
	}
	ch := remote.New(remote.DefaultOptions(), nil)
	b, _, err := newBackend(sc, ch)
	if err != nil {
		t.Fatalf("newBackend: %v", err)
	}
	if b.(*probe.Shell).Runner != probe.Runner(ch) {
		t.Fatalf("remote backend should run commands through the channel")
	}
}
