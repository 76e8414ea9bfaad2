// Writer implementation printing a human readable line per sample
package sim

import (
	"fmt"
	"io"
	"os"

	"handover-sim/internal/telemetry"
)

// StdoutWriter prints one line per sample and per handover.
type StdoutWriter struct {
	out io.Writer
}

// NewStdoutWriter creates a StdoutWriter writing to os.Stdout.
func NewStdoutWriter() *StdoutWriter {
	return &StdoutWriter{out: os.Stdout}
}

// Write outputs a single sample.
func (w *StdoutWriter) Write(s telemetry.Sample) error {
	latency := fmt.Sprintf("%.1fms", s.LatencyMs)
	if s.TimedOut() {
		latency = "timeout"
	}
	_, err := fmt.Fprintf(w.out, "%s %-6s (%6.1f,%6.1f) ap=%-10s signal=%4d dBm [%s] latency=%s scan=%s\n",
		s.Timestamp.Format("15:04:05.000"), s.Station, s.Position.X, s.Position.Y,
		s.AttachedAP, s.Signal, telemetry.SignalQuality(s.Signal), latency, telemetry.ScanSummary(s.Scan))
	return err
}

// WriteHandover outputs a handover event.
func (w *StdoutWriter) WriteHandover(ev telemetry.HandoverEvent) error {
	_, err := fmt.Fprintf(w.out, "%s %-6s HANDOVER %s -> %s (%d -> %d dBm, %s)\n",
		ev.Timestamp.Format("15:04:05.000"), ev.Station, ev.PreviousAP, ev.NewAP, ev.OldSignal, ev.NewSignal, ev.Reason)
	return err
}
