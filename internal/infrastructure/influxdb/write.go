package influxdb

import (
	"encoding/hex"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// TelegramMeasurement is the measurement every telegram point is written to.
const TelegramMeasurement = "knx_telegrams"

// Telegram is one observed group telegram.
type Telegram struct {
	GroupAddress string
	Source       string
	Service      string
	Payload      []byte
	Length       int
	Time         time.Time
}

// TelegramPoint builds the point for t.
//
// Tags: group_address, source, service (all low cardinality on a real bus).
// Fields: payload (hex), length, and value when the payload fits in 8 bytes.
func TelegramPoint(t Telegram) *write.Point {
	fields := map[string]interface{}{
		"payload": hex.EncodeToString(t.Payload),
		"length":  int64(t.Length),
	}
	if len(t.Payload) > 0 && len(t.Payload) <= 8 {
		var v uint64
		for _, b := range t.Payload {
			v = v<<8 | uint64(b)
		}
		fields["value"] = v
	}

	at := t.Time
	if at.IsZero() {
		at = time.Now()
	}

	return write.NewPoint(
		TelegramMeasurement,
		map[string]string{
			"group_address": t.GroupAddress,
			"source":        t.Source,
			"service":       t.Service,
		},
		fields,
		at,
	)
}

// WriteTelegram queues a telegram point. Dropped silently when disconnected.
func (c *Client) WriteTelegram(t Telegram) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(TelegramPoint(t))
}
