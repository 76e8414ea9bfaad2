// Package metrics exposes run progress as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"handover-sim/internal/telemetry"
)

// Recorder updates Prometheus collectors from driver callbacks.
type Recorder struct {
	samples          *prometheus.CounterVec
	handovers        *prometheus.CounterVec
	handoverFailures *prometheus.CounterVec
	signal           *prometheus.GaugeVec
	latency          *prometheus.HistogramVec
	lost             *prometheus.CounterVec
	state            *prometheus.GaugeVec
}

var stationStates = []string{"idle", "at_waypoint", "moving", "done", "failed"}

// NewRecorder creates the collectors and registers them with reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "handover_samples_total",
			Help: "Telemetry samples taken per station.",
		}, []string{"station"}),
		handovers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "handover_events_total",
			Help: "Completed handovers per station and target access point.",
		}, []string{"station", "ap"}),
		handoverFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "handover_failures_total",
			Help: "Handover attempts that failed to detach or attach.",
		}, []string{"station"}),
		signal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "handover_signal_dbm",
			Help: "Last signal reading per station.",
		}, []string{"station"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "handover_latency_ms",
			Help:    "Round-trip latency of successful pings.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 200, 500, 1000},
		}, []string{"station"}),
		lost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "handover_ping_timeouts_total",
			Help: "Samples where every ping target timed out.",
		}, []string{"station"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "handover_station_state",
			Help: "1 for the current state of each station.",
		}, []string{"station", "state"}),
	}
	for _, c := range []prometheus.Collector{r.samples, r.handovers, r.handoverFailures, r.signal, r.latency, r.lost, r.state} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Recorder) ObserveSample(s telemetry.Sample) {
	r.samples.WithLabelValues(s.Station).Inc()
	if s.Signal != telemetry.NoSignal {
		r.signal.WithLabelValues(s.Station).Set(float64(s.Signal))
	}
	if s.TimedOut() {
		r.lost.WithLabelValues(s.Station).Inc()
	} else {
		r.latency.WithLabelValues(s.Station).Observe(s.LatencyMs)
	}
}

func (r *Recorder) ObserveHandover(ev telemetry.HandoverEvent) {
	r.handovers.WithLabelValues(ev.Station, ev.NewAP).Inc()
}

func (r *Recorder) ObserveHandoverFailure(station string) {
	r.handoverFailures.WithLabelValues(station).Inc()
}

// ObserveStationState sets the gauge of state to 1 and the others to 0.
func (r *Recorder) ObserveStationState(station, state string) {
	for _, s := range stationStates {
		v := 0.0
		if s == state {
			v = 1
		}
		r.state.WithLabelValues(station, s).Set(v)
	}
}
