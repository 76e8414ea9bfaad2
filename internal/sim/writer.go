package sim

import "handover-sim/internal/telemetry"

// TelemetryWriter is an interface to support different output writers.
type TelemetryWriter interface {
	Write(telemetry.Sample) error
}

// Optional: Writers can also support batch mode
type batchWriter interface {
	WriteBatch([]telemetry.Sample) error
}

// HandoverWriter handles completed handover events.
type HandoverWriter interface {
	WriteHandover(telemetry.HandoverEvent) error
}
