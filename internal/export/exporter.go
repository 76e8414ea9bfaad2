package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"handover-sim/internal/telemetry"
)

var stationHeader = []string{
	"timestamp", "station", "x", "y", "signal", "signal_quality", "signal_source",
	"latency_ms", "latency_quality", "packet_loss", "throughput_mbps", "attached_ap",
	"scan", "signal_anomaly", "handover_anomaly",
}

var handoverHeader = []string{
	"timestamp", "station", "previous_ap", "new_ap", "reason", "old_signal", "new_signal",
}

var summaryHeader = []string{
	"station", "samples", "mean_signal", "mean_latency_ms", "handovers",
	"packet_loss_ratio", "signal_anomalies", "handover_anomalies", "error",
}

// Report lists what an export produced.
type Report struct {
	RunID string         `json:"run_id"`
	Files []string       `json:"files"`
	Stats []StationStats `json:"stations"`
}

// Exporter accumulates experiment logs per station and writes them out at
// the end of a run. It also implements the sample and handover writer
// interfaces so it can be fed from a live stream or a replay.
type Exporter struct {
	mu    sync.Mutex
	runID string
	k     float64
	logs  map[string]*telemetry.ExperimentLog
	order []string
}

// NewExporter creates an exporter flagging signal anomalies at k standard
// deviations.
func NewExporter(runID string, k float64) *Exporter {
	if k <= 0 {
		k = DefaultAnomalyK
	}
	return &Exporter{runID: runID, k: k, logs: make(map[string]*telemetry.ExperimentLog)}
}

func (e *Exporter) log(station string) *telemetry.ExperimentLog {
	l, ok := e.logs[station]
	if !ok {
		l = telemetry.NewExperimentLog(e.runID, station)
		e.logs[station] = l
		e.order = append(e.order, station)
	}
	return l
}

// Add registers a complete station log, replacing any earlier one.
func (e *Exporter) Add(l *telemetry.ExperimentLog) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.logs[l.Station]; !ok {
		e.order = append(e.order, l.Station)
	}
	e.logs[l.Station] = l
}

// Write appends a streamed sample to its station log.
func (e *Exporter) Write(s telemetry.Sample) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log(s.Station).AppendSample(s)
	return nil
}

// WriteBatch appends several streamed samples under one lock.
func (e *Exporter) WriteBatch(rows []telemetry.Sample) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range rows {
		e.log(s.Station).AppendSample(s)
	}
	return nil
}

// WriteHandover appends a streamed handover event to its station log.
func (e *Exporter) WriteHandover(ev telemetry.HandoverEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log(ev.Station).AppendEvent(ev)
	return nil
}

// Stats returns the statistics of every station in registration order.
func (e *Exporter) Stats() []StationStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]StationStats, 0, len(e.order))
	for _, name := range e.order {
		st, _ := Analyze(e.logs[name], e.k)
		out = append(out, st)
	}
	return out
}

// Export writes station_<name>.csv per station, handovers.csv, summary.csv and
// summary.json into dir. Each file is written atomically; a failure on one
// file does not prevent the others and all failures are returned joined.
func (e *Exporter) Export(dir string) (Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rep := Report{RunID: e.runID}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return rep, fmt.Errorf("create export dir: %w", err)
	}

	var errs []error
	var events []telemetry.HandoverEvent
	names := stationFileNames(e.order)
	for i, name := range e.order {
		l := e.logs[name]
		st, flags := Analyze(l, e.k)
		rep.Stats = append(rep.Stats, st)
		events = append(events, l.Events...)

		path := filepath.Join(dir, names[i])
		if err := writeAtomic(path, func(w io.Writer) error { return writeStationCSV(w, l, flags) }); err != nil {
			errs = append(errs, fmt.Errorf("station %s: %w", name, err))
			continue
		}
		rep.Files = append(rep.Files, path)
	}

	path := filepath.Join(dir, "handovers.csv")
	if err := writeAtomic(path, func(w io.Writer) error { return writeHandoverCSV(w, events) }); err != nil {
		errs = append(errs, fmt.Errorf("handovers: %w", err))
	} else {
		rep.Files = append(rep.Files, path)
	}

	path = filepath.Join(dir, "summary.csv")
	if err := writeAtomic(path, func(w io.Writer) error { return writeSummaryCSV(w, rep.Stats) }); err != nil {
		errs = append(errs, fmt.Errorf("summary csv: %w", err))
	} else {
		rep.Files = append(rep.Files, path)
	}

	path = filepath.Join(dir, "summary.json")
	if err := writeAtomic(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}); err != nil {
		errs = append(errs, fmt.Errorf("summary json: %w", err))
	} else {
		rep.Files = append(rep.Files, path)
	}
	return rep, errors.Join(errs...)
}

// stationFileNames maps stations to distinct file names of the form
// station_<name>.csv. Names that sanitize to the same file get a numeric
// suffix in registration order.
func stationFileNames(stations []string) []string {
	r := strings.NewReplacer("/", "_", "\\", "_", "..", "_", " ", "_")
	used := make(map[string]bool, len(stations))
	out := make([]string, len(stations))
	for i, st := range stations {
		base := "station_" + r.Replace(st)
		name := base + ".csv"
		for n := 2; used[name]; n++ {
			name = fmt.Sprintf("%s_%d.csv", base, n)
		}
		used[name] = true
		out[i] = name
	}
	return out
}

// writeAtomic writes through a temp file in the same directory and renames
// it into place only when fn and the close succeed.
func writeAtomic(path string, fn func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if err := fn(tmp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}

func writeStationCSV(w io.Writer, l *telemetry.ExperimentLog, flags []Flags) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(stationHeader); err != nil {
		return err
	}
	for i, s := range l.Samples {
		tp := ""
		if s.Throughput != nil {
			tp = ftoa(*s.Throughput)
		}
		rec := []string{
			s.Timestamp.Format(time.RFC3339Nano),
			s.Station,
			ftoa(s.Position.X),
			ftoa(s.Position.Y),
			strconv.Itoa(s.Signal),
			telemetry.SignalQuality(s.Signal),
			s.SignalSource,
			ftoa(s.LatencyMs),
			telemetry.LatencyQuality(s.LatencyMs),
			strconv.FormatBool(s.PacketLoss),
			tp,
			s.AttachedAP,
			telemetry.ScanSummary(s.Scan),
			strconv.FormatBool(flags[i].Signal),
			strconv.FormatBool(flags[i].Handover),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeHandoverCSV(w io.Writer, events []telemetry.HandoverEvent) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(handoverHeader); err != nil {
		return err
	}
	for _, ev := range events {
		rec := []string{
			ev.Timestamp.Format(time.RFC3339Nano),
			ev.Station,
			ev.PreviousAP,
			ev.NewAP,
			ev.Reason,
			strconv.Itoa(ev.OldSignal),
			strconv.Itoa(ev.NewSignal),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeSummaryCSV(w io.Writer, stats []StationStats) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(summaryHeader); err != nil {
		return err
	}
	for _, st := range stats {
		rec := []string{
			st.Station,
			strconv.Itoa(st.Samples),
			ftoa(st.Signal.Mean),
			ftoa(st.Latency.Mean),
			strconv.Itoa(st.Handovers),
			strconv.FormatFloat(st.PacketLossRatio, 'f', 3, 64),
			strconv.Itoa(st.SignalAnomalies),
			strconv.Itoa(st.HandoverAnomalies),
			st.Error,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
