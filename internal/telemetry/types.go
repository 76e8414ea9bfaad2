// Telemetry records produced while a station moves through a scenario
package telemetry

import "time"

// Sentinel values recorded when a measurement cannot be obtained.
const (
	// NoSignal is recorded when no signal strategy yields a reading.
	NoSignal = -100
	// LatencyTimeout is recorded when every ping target fails.
	LatencyTimeout = 9999.0
	// Unattached is recorded when a station has no access point.
	Unattached = "unattached"
)

// Position is a planar position in metres.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ScanEntry is one access point seen in a scan.
type ScanEntry struct {
	SSID   string `json:"ssid"`
	BSSID  string `json:"bssid,omitempty"`
	Signal int    `json:"signal"`
}

// Sample is one telemetry record for a station at a sampling instant.
type Sample struct {
	Timestamp    time.Time   `json:"ts"`
	RunID        string      `json:"run_id,omitempty"`
	Station      string      `json:"station"`
	Position     Position    `json:"position"`
	Signal       int         `json:"signal"`
	SignalSource string      `json:"signal_source"`
	LatencyMs    float64     `json:"latency_ms"`
	PacketLoss   bool        `json:"packet_loss"`
	Throughput   *float64    `json:"throughput_mbps,omitempty"`
	AttachedAP   string      `json:"attached_ap"`
	Scan         []ScanEntry `json:"scan"`
}

// TimedOut reports whether the latency measurement hit the timeout sentinel.
func (s Sample) TimedOut() bool {
	return s.LatencyMs >= LatencyTimeout
}

// HandoverEvent records a completed access point switch.
type HandoverEvent struct {
	Timestamp  time.Time `json:"ts"`
	RunID      string    `json:"run_id,omitempty"`
	Station    string    `json:"station"`
	PreviousAP string    `json:"previous_ap"`
	NewAP      string    `json:"new_ap"`
	Reason     string    `json:"reason"`
	OldSignal  int       `json:"old_signal"`
	NewSignal  int       `json:"new_signal"`

	// AfterSample is the index of the station sample that triggered the switch.
	AfterSample int `json:"after_sample"`
}

// ReasonBetterSignal is the reason recorded for signal-driven handovers.
const ReasonBetterSignal = "better-signal"

// ExperimentLog collects a station's samples and handover events for one run.
type ExperimentLog struct {
	RunID   string          `json:"run_id"`
	Station string          `json:"station"`
	Samples []Sample        `json:"samples"`
	Events  []HandoverEvent `json:"events"`
	// Error is set when the station aborted on a configuration error.
	Error string `json:"error,omitempty"`
}

// NewExperimentLog creates an empty log for a station.
func NewExperimentLog(runID, station string) *ExperimentLog {
	return &ExperimentLog{RunID: runID, Station: station}
}

// AppendSample appends s; samples are never modified afterwards.
func (l *ExperimentLog) AppendSample(s Sample) {
	l.Samples = append(l.Samples, s)
}

// AppendEvent appends a handover event.
func (l *ExperimentLog) AppendEvent(e HandoverEvent) {
	l.Events = append(l.Events, e)
}

// LastSample returns the most recent sample, if any.
func (l *ExperimentLog) LastSample() (Sample, bool) {
	if len(l.Samples) == 0 {
		return Sample{}, false
	}
	return l.Samples[len(l.Samples)-1], true
}
