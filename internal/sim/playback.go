package sim

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"time"

	"handover-sim/internal/telemetry"
)

// replayBatchSize is the number of samples handed to a batch writer at once
// when replaying without delay.
const replayBatchSize = 256

// ReplayLog replays samples from a JSONL log r to writer. A speed >0
// accelerates playback. If speed <= 0, no artificial delay is inserted and
// samples are handed over in batches when writer supports it.
func ReplayLog(ctx context.Context, r io.Reader, writer TelemetryWriter, speed float64) error {
	dec := json.NewDecoder(r)
	if bw, ok := writer.(batchWriter); ok && speed <= 0 {
		return replayBatches(ctx, dec, bw)
	}
	var prev time.Time
	for {
		var s telemetry.Sample
		if err := dec.Decode(&s); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if !prev.IsZero() && speed > 0 {
			diff := s.Timestamp.Sub(prev)
			if speed != 1 {
				diff = time.Duration(float64(diff) / speed)
			}
			if diff > 0 {
				if err := sleepContext(ctx, diff); err != nil {
					return err
				}
			}
		}
		if err := writer.Write(s); err != nil {
			return err
		}
		prev = s.Timestamp
	}
}

func replayBatches(ctx context.Context, dec *json.Decoder, bw batchWriter) error {
	batch := make([]telemetry.Sample, 0, replayBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := bw.WriteBatch(batch)
		batch = batch[:0]
		return err
	}
	for {
		var s telemetry.Sample
		if err := dec.Decode(&s); err != nil {
			if err == io.EOF {
				return flush()
			}
			return err
		}
		batch = append(batch, s)
		if len(batch) == replayBatchSize {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := flush(); err != nil {
				return err
			}
		}
	}
}

// ReplayLogFile opens a file and replays its samples.
func ReplayLogFile(ctx context.Context, path string, writer TelemetryWriter, speed float64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return ReplayLog(ctx, f, writer, speed)
}

// ReplayHandoverFile feeds every handover event of a JSONL log to writer
// without pacing.
func ReplayHandoverFile(ctx context.Context, path string, writer HandoverWriter) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec := json.NewDecoder(f)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var ev telemetry.HandoverEvent
		if err := dec.Decode(&ev); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if err := writer.WriteHandover(ev); err != nil {
			return err
		}
	}
}
