package sim

import (
	"errors"

	"handover-sim/internal/telemetry"
)

// MultiWriter fans samples and handover events out to multiple writers.
type MultiWriter struct {
	telewriters []TelemetryWriter
	hwriters    []HandoverWriter
}

// NewMultiWriter creates a new MultiWriter. Nil writers are skipped.
func NewMultiWriter(tws []TelemetryWriter, hws []HandoverWriter) *MultiWriter {
	mw := &MultiWriter{}
	for _, w := range tws {
		if w != nil {
			mw.telewriters = append(mw.telewriters, w)
		}
	}
	for _, w := range hws {
		if w != nil {
			mw.hwriters = append(mw.hwriters, w)
		}
	}
	return mw
}

// Write sends a sample to all writers. Every writer is tried; errors are joined.
func (mw *MultiWriter) Write(s telemetry.Sample) error {
	var errs []error
	for _, w := range mw.telewriters {
		if err := w.Write(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WriteBatch sends multiple samples to all writers, using batch if supported.
func (mw *MultiWriter) WriteBatch(rows []telemetry.Sample) error {
	var errs []error
	for _, w := range mw.telewriters {
		if bw, ok := w.(batchWriter); ok {
			if err := bw.WriteBatch(rows); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		for _, r := range rows {
			if err := w.Write(r); err != nil {
				errs = append(errs, err)
				break
			}
		}
	}
	return errors.Join(errs...)
}

// WriteHandover sends a handover event to all handover writers.
func (mw *MultiWriter) WriteHandover(ev telemetry.HandoverEvent) error {
	var errs []error
	for _, w := range mw.hwriters {
		if err := w.WriteHandover(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
