package sim

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"handover-sim/internal/telemetry"
)

// JSONStdoutWriter prints samples and handover events as JSON lines.
type JSONStdoutWriter struct {
	out io.Writer
}

// NewJSONStdoutWriter creates a JSONStdoutWriter writing to os.Stdout.
func NewJSONStdoutWriter() *JSONStdoutWriter {
	return &JSONStdoutWriter{out: os.Stdout}
}

// Write outputs a sample in JSON format.
func (w *JSONStdoutWriter) Write(s telemetry.Sample) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w.out, string(data))
	return err
}

// WriteHandover outputs a handover event in JSON format.
func (w *JSONStdoutWriter) WriteHandover(ev telemetry.HandoverEvent) error {
	data, err := json.Marshal(struct {
		Type string `json:"type"`
		telemetry.HandoverEvent
	}{Type: "handover", HandoverEvent: ev})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w.out, string(data))
	return err
}
