package sim

import (
	"encoding/json"
	"fmt"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"

	"handover-sim/internal/config"
	"handover-sim/internal/telemetry"
)

// Publisher is the subset of an MQTT client the writer needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) MQTT.Token
}

// MQTTWriter publishes samples to <topic>/<station>/sample and handover
// events to <topic>/<station>/handover.
type MQTTWriter struct {
	client  Publisher
	topic   string
	qos     byte
	timeout time.Duration
}

// NewMQTTWriter wraps an already connected publisher.
func NewMQTTWriter(client Publisher, topic string, qos byte) *MQTTWriter {
	return &MQTTWriter{client: client, topic: topic, qos: qos, timeout: 5 * time.Second}
}

// DialMQTT connects to the broker described by cfg.
func DialMQTT(cfg *config.MQTTConfig) (MQTT.Client, error) {
	opts := MQTT.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port))
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(time.Minute)

	client := MQTT.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10*time.Second) {
		return nil, fmt.Errorf("mqtt connect to %s: timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", cfg.Broker, err)
	}
	return client, nil
}

func (w *MQTTWriter) publish(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	token := w.client.Publish(topic, w.qos, false, payload)
	if !token.WaitTimeout(w.timeout) {
		return fmt.Errorf("mqtt publish %s: timed out", topic)
	}
	return token.Error()
}

// Write publishes a sample.
func (w *MQTTWriter) Write(s telemetry.Sample) error {
	return w.publish(w.topic+"/"+s.Station+"/sample", s)
}

// WriteHandover publishes a handover event.
func (w *MQTTWriter) WriteHandover(ev telemetry.HandoverEvent) error {
	return w.publish(w.topic+"/"+ev.Station+"/handover", ev)
}
