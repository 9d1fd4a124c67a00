package forward

import (
	"context"

	"github.com/nerrad567/knx-monitor/internal/infrastructure/influxdb"
)

// TelegramWriter is the InfluxDB client surface the sink needs.
type TelegramWriter interface {
	WriteTelegram(t influxdb.Telegram)
}

var _ TelegramWriter = (*influxdb.Client)(nil)

// MetricsSink writes group telegrams as knx_telegrams points. Frames
// without a group destination are skipped.
type MetricsSink struct {
	w TelegramWriter
}

// NewMetricsSink creates a sink backed by w.
func NewMetricsSink(w TelegramWriter) *MetricsSink {
	return &MetricsSink{w: w}
}

func (s *MetricsSink) Name() string { return "influxdb" }

func (s *MetricsSink) Write(_ context.Context, r Record) error {
	if !r.Group {
		return nil
	}
	s.w.WriteTelegram(influxdb.Telegram{
		GroupAddress: r.Address.String(),
		Source:       r.Source.String(),
		Service:      r.Service,
		Payload:      r.Payload,
		Length:       len(r.Payload),
		Time:         r.Time,
	})
	return nil
}
