package main

import (
	"fmt"

	"handover-sim/internal/config"
	"handover-sim/internal/export"
	"handover-sim/internal/sim"
)

// newWriters sets up the sample and handover writers for a run: console
// output, an optional JSONL log, MQTT when the scenario configures a broker,
// and the exporter. It returns the fan-out writer and a cleanup function.
func newWriters(sc *config.Scenario, output, logFile string, exp *export.Exporter) (*sim.MultiWriter, func(), error) {
	var tws []sim.TelemetryWriter
	var hws []sim.HandoverWriter
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch output {
	case "text":
		w := sim.NewStdoutWriter()
		tws, hws = append(tws, w), append(hws, w)
	case "color":
		w := sim.NewColorStdoutWriter(sc)
		tws, hws = append(tws, w), append(hws, w)
	case "json":
		w := sim.NewJSONStdoutWriter()
		tws, hws = append(tws, w), append(hws, w)
	case "none":
	default:
		return nil, nil, fmt.Errorf("unknown output %q (want text, color, json or none)", output)
	}

	if logFile != "" {
		fw, err := sim.NewFileWriter(logFile, logFile+".handovers")
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() { fw.Close() })
		tws, hws = append(tws, fw), append(hws, fw)
	}

	if sc != nil && sc.MQTT != nil && sc.MQTT.Broker != "" {
		client, err := sim.DialMQTT(sc.MQTT)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		closers = append(closers, func() { client.Disconnect(250) })
		mw := sim.NewMQTTWriter(client, sc.MQTT.Topic, byte(sc.MQTT.QoS))
		tws, hws = append(tws, mw), append(hws, mw)
	}

	if exp != nil {
		tws, hws = append(tws, exp), append(hws, exp)
	}
	return sim.NewMultiWriter(tws, hws), cleanup, nil
}
