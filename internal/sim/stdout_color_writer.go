// ColorStdoutWriter prints human-friendly, colorized samples to STDOUT.
package sim

import (
	"fmt"
	"io"
	"os"
	"sync"
	"text/tabwriter"

	"handover-sim/internal/config"
	"handover-sim/internal/telemetry"
)

const (
	colorReset   = "\x1b[0m"
	colorRed     = "\x1b[31m"
	colorGreen   = "\x1b[32m"
	colorYellow  = "\x1b[33m"
	colorBlue    = "\x1b[34m"
	colorMagenta = "\x1b[35m"
	colorCyan    = "\x1b[36m"
	colorGray    = "\x1b[90m"
)

// ColorStdoutWriter prints samples and handovers using ANSI colors.
type ColorStdoutWriter struct {
	sc            *config.Scenario
	out           io.Writer
	once          sync.Once
	mu            sync.Mutex
	stationColors map[string]string
	colorIdx      int
}

var stationPalette = []string{colorCyan, colorBlue, colorMagenta, colorYellow, colorGreen}

// NewColorStdoutWriter creates a ColorStdoutWriter writing to os.Stdout.
// The scenario overview is printed before the first line; sc may be nil.
func NewColorStdoutWriter(sc *config.Scenario) *ColorStdoutWriter {
	return &ColorStdoutWriter{
		sc:            sc,
		out:           os.Stdout,
		stationColors: make(map[string]string),
	}
}

func (w *ColorStdoutWriter) stationColor(name string) string {
	if c, ok := w.stationColors[name]; ok {
		return c
	}
	c := stationPalette[w.colorIdx%len(stationPalette)]
	w.stationColors[name] = c
	w.colorIdx++
	return c
}

func signalColor(dbm int) string {
	switch {
	case dbm == telemetry.NoSignal:
		return colorGray
	case dbm >= -60:
		return colorGreen
	case dbm >= -70:
		return colorYellow
	default:
		return colorRed
	}
}

func (w *ColorStdoutWriter) printOverview() {
	if w.sc == nil {
		return
	}

	fmt.Fprintf(w.out, "Scenario %s:\n", w.sc.Name)
	tw := tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Handover:\t%t\n", w.sc.Handover.IsEnabled())
	fmt.Fprintf(tw, "Threshold (dBm):\t%d\n", w.sc.Handover.ThresholdDBm())
	fmt.Fprintf(tw, "Hysteresis (dB):\t%d\n", w.sc.Handover.HysteresisDB())
	fmt.Fprintf(tw, "Mobility:\t%s\n", w.sc.Mobility.Kind)
	fmt.Fprintf(tw, "Backend:\t%s\n", w.sc.Probe.Backend)
	tw.Flush()

	fmt.Fprintln(w.out, "\nAccess points:")
	tw = tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Name\tPosition\tRange\n")
	for _, ap := range w.sc.APs {
		fmt.Fprintf(tw, "%s\t(%.1f,%.1f)\t%.0f\n", ap.Name, ap.X, ap.Y, ap.Range)
	}
	tw.Flush()

	fmt.Fprintln(w.out, "\nStations:")
	tw = tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Name\tStart\tWaypoints\n")
	for _, st := range w.sc.Stations {
		col := w.stationColor(st.Name)
		fmt.Fprintf(tw, "%s%s%s\t(%.1f,%.1f)\t%d\n", col, st.Name, colorReset, st.StartX, st.StartY, len(st.Trajectory))
	}
	tw.Flush()
	fmt.Fprintln(w.out)
}

// Write outputs a single sample in colorized format.
func (w *ColorStdoutWriter) Write(s telemetry.Sample) error {
	w.once.Do(w.printOverview)
	w.mu.Lock()
	defer w.mu.Unlock()

	latency := fmt.Sprintf("%.1fms", s.LatencyMs)
	latColor := colorGreen
	if s.TimedOut() {
		latency, latColor = "timeout", colorRed
	} else if s.LatencyMs >= 100 {
		latColor = colorYellow
	}

	fmt.Fprintf(w.out, "%s[%s]%s ", colorGray, s.Timestamp.Format("15:04:05.000"), colorReset)
	fmt.Fprintf(w.out, "%s%-6s%s ", w.stationColor(s.Station), s.Station, colorReset)
	fmt.Fprintf(w.out, "pos=(%.1f,%.1f) ", s.Position.X, s.Position.Y)
	fmt.Fprintf(w.out, "%sap=%s%s ", colorBlue, s.AttachedAP, colorReset)
	fmt.Fprintf(w.out, "%ssignal=%d dBm [%s]%s ", signalColor(s.Signal), s.Signal, telemetry.SignalQuality(s.Signal), colorReset)
	fmt.Fprintf(w.out, "%slatency=%s%s ", latColor, latency, colorReset)
	fmt.Fprintf(w.out, "%sscan=%s%s\n", colorGray, telemetry.ScanSummary(s.Scan), colorReset)
	return nil
}

// WriteBatch outputs multiple samples.
func (w *ColorStdoutWriter) WriteBatch(rows []telemetry.Sample) error {
	for _, r := range rows {
		_ = w.Write(r)
	}
	return nil
}

// WriteHandover prints a handover event.
func (w *ColorStdoutWriter) WriteHandover(ev telemetry.HandoverEvent) error {
	w.once.Do(w.printOverview)
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintf(w.out, "%s[%s]%s %sHANDOVER%s %s%s%s %s -> %s (%d -> %d dBm, %s)\n",
		colorGray, ev.Timestamp.Format("15:04:05.000"), colorReset,
		colorMagenta, colorReset, w.stationColor(ev.Station), ev.Station, colorReset,
		ev.PreviousAP, ev.NewAP, ev.OldSignal, ev.NewSignal, ev.Reason)
	return nil
}
