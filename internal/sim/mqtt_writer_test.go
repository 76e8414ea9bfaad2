package sim

import (
	"encoding/json"
	"testing"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"

	"handover-sim/internal/telemetry"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakePublisher struct{ msgs []published }

func (f *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) MQTT.Token {
	f.msgs = append(f.msgs, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return doneToken{}
}

func TestMQTTWriterTopics(t *testing.T) {
	pub := &fakePublisher{}
	w := NewMQTTWriter(pub, "lab", 1)
	if err := w.Write(telemetry.Sample{Station: "sta1", Signal: -60}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.WriteHandover(telemetry.HandoverEvent{Station: "sta1", NewAP: "ap2"}); err != nil {
		t.Fatalf("handover: %v", err)
	}
	if len(pub.msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(pub.msgs))
	}
	if pub.msgs[0].topic != "lab/sta1/sample" || pub.msgs[1].topic != "lab/sta1/handover" || pub.msgs[0].qos != 1 {
		t.Fatalf("unexpected topics %+v", pub.msgs)
	}
	var s telemetry.Sample
	if err := json.Unmarshal(pub.msgs[0].payload, &s); err != nil || s.Signal != -60 {
		t.Fatalf("unexpected payload %s: %v", pub.msgs[0].payload, err)
	}
}
