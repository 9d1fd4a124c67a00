package forward

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/knx-monitor/internal/infrastructure/mqtt"
	"github.com/nerrad567/knx-monitor/internal/kdrive"
)

// Publisher is the MQTT client surface the sink needs.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

var _ Publisher = (*mqtt.Client)(nil)

// MQTTSink publishes each record as JSON on {prefix}/telegram/{group address}.
// Frames without a group destination go to {prefix}/telegram/raw.
type MQTTSink struct {
	pub    Publisher
	topics mqtt.Topics
	qos    byte
}

// NewMQTTSink creates a sink publishing with the given QoS, not retained.
func NewMQTTSink(pub Publisher, topics mqtt.Topics, qos byte) *MQTTSink {
	return &MQTTSink{pub: pub, topics: topics, qos: qos}
}

func (s *MQTTSink) Name() string { return "mqtt" }

func (s *MQTTSink) Write(_ context.Context, r Record) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}

	topic := s.topics.Raw()
	if r.Group {
		topic = s.topics.Telegram(r.Address)
	}
	return s.pub.Publish(topic, payload, s.qos, false)
}

type eventJSON struct {
	Event     string `json:"event"`
	Code      uint32 `json:"code"`
	Timestamp string `json:"timestamp"`
}

// WriteEvent publishes access-port events on {prefix}/event.
func (s *MQTTSink) WriteEvent(_ context.Context, event kdrive.EventCode) error {
	payload, err := json.Marshal(eventJSON{
		Event:     event.String(),
		Code:      uint32(event),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	return s.pub.Publish(s.topics.Event(), payload, s.qos, false)
}
