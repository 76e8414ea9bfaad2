package sim

import (
	"encoding/json"
	"os"

	"handover-sim/internal/telemetry"
)

// FileWriter writes samples and handover events to JSONL files.
type FileWriter struct {
	sampleFile *os.File
	eventFile  *os.File
	sampleEnc  *json.Encoder
	eventEnc   *json.Encoder
}

// NewFileWriter creates a FileWriter. eventPath may be empty to skip the
// handover log.
func NewFileWriter(samplePath, eventPath string) (*FileWriter, error) {
	sf, err := os.Create(samplePath)
	if err != nil {
		return nil, err
	}
	fw := &FileWriter{sampleFile: sf, sampleEnc: json.NewEncoder(sf)}
	if eventPath != "" {
		ef, err := os.Create(eventPath)
		if err != nil {
			sf.Close()
			return nil, err
		}
		fw.eventFile = ef
		fw.eventEnc = json.NewEncoder(ef)
	}
	return fw, nil
}

// Write logs a single sample.
func (f *FileWriter) Write(s telemetry.Sample) error {
	return f.sampleEnc.Encode(s)
}

// WriteHandover logs a handover event, if enabled.
func (f *FileWriter) WriteHandover(ev telemetry.HandoverEvent) error {
	if f.eventEnc == nil {
		return nil
	}
	return f.eventEnc.Encode(ev)
}

// Close closes any underlying files.
func (f *FileWriter) Close() error {
	var err error
	if f.sampleFile != nil {
		if e := f.sampleFile.Close(); e != nil && err == nil {
			err = e
		}
	}
	if f.eventFile != nil {
		if e := f.eventFile.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}
