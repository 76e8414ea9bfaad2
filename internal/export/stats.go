// Package export computes per-station statistics and anomaly flags for a run
// and writes them as flat files.
package export

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"handover-sim/internal/telemetry"
)

// DefaultAnomalyK is the number of standard deviations a signal reading may
// deviate from the station mean before it is flagged.
const DefaultAnomalyK = 2.0

// Summary holds mean, spread and range of a series.
type Summary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

func summarize(xs []float64) Summary {
	if len(xs) == 0 {
		return Summary{}
	}
	mean, std := stat.PopMeanStdDev(xs, nil)
	return Summary{Count: len(xs), Mean: mean, StdDev: std, Min: floats.Min(xs), Max: floats.Max(xs)}
}

// StationStats are the end-of-run figures for one station.
type StationStats struct {
	Station           string  `json:"station"`
	Samples           int     `json:"samples"`
	Handovers         int     `json:"handovers"`
	Signal            Summary `json:"signal"`
	Latency           Summary `json:"latency"`
	SignalLost        int     `json:"signal_lost"`
	PacketLossRatio   float64 `json:"packet_loss_ratio"`
	SignalAnomalies   int     `json:"signal_anomalies"`
	HandoverAnomalies int     `json:"handover_anomalies"`
	Error             string  `json:"error,omitempty"`
}

// Flags marks the anomalies of one sample.
type Flags struct {
	Signal   bool
	Handover bool
}

// Analyze computes statistics and per-sample anomaly flags for a log.
// Sentinel readings (NoSignal, LatencyTimeout) are excluded from the
// corresponding series and counted separately.
func Analyze(l *telemetry.ExperimentLog, k float64) (StationStats, []Flags) {
	if k <= 0 {
		k = DefaultAnomalyK
	}
	st := StationStats{Station: l.Station, Samples: len(l.Samples), Handovers: len(l.Events), Error: l.Error}

	var signals, latencies []float64
	var losses int
	for _, s := range l.Samples {
		if s.Signal == telemetry.NoSignal {
			st.SignalLost++
		} else {
			signals = append(signals, float64(s.Signal))
		}
		if s.TimedOut() || s.PacketLoss {
			losses++
		}
		if !s.TimedOut() {
			latencies = append(latencies, s.LatencyMs)
		}
	}
	st.Signal = summarize(signals)
	st.Latency = summarize(latencies)
	if len(l.Samples) > 0 {
		st.PacketLossRatio = float64(losses) / float64(len(l.Samples))
	}

	flags := make([]Flags, len(l.Samples))
	if st.Signal.Count > 1 {
		for i, s := range l.Samples {
			if s.Signal == telemetry.NoSignal {
				continue
			}
			if math.Abs(float64(s.Signal)-st.Signal.Mean) > k*st.Signal.StdDev {
				flags[i].Signal = true
				st.SignalAnomalies++
			}
		}
	}

	explained := make(map[int]string, len(l.Events))
	for _, ev := range l.Events {
		explained[ev.AfterSample] = ev.NewAP
	}
	for i := 1; i < len(l.Samples); i++ {
		prev, cur := l.Samples[i-1].AttachedAP, l.Samples[i].AttachedAP
		if prev == cur {
			continue
		}
		if ap, ok := explained[i-1]; ok && ap == cur {
			continue
		}
		flags[i].Handover = true
		st.HandoverAnomalies++
	}
	return st, flags
}
