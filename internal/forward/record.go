package forward

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/knx-monitor/internal/telegram"
)

// Record is a parsed telegram ready for the sinks.
type Record struct {
	Time    time.Time
	Code    telegram.MessageCode
	Source  telegram.IndividualAddress
	Group   bool
	Address telegram.GroupAddress
	Service string
	Payload []byte

	// DPT and Value are set when a datapoint type is configured for Address
	// and the payload decodes.
	DPT   telegram.DPT
	Value any

	Raw telegram.Telegram
}

// NewRecord parses t. Individually addressed frames keep Group false and
// Address holds the raw destination.
func NewRecord(t telegram.Telegram, at time.Time, datapoints map[telegram.GroupAddress]telegram.DPT) (Record, error) {
	f, err := telegram.ParseFrame(t)
	if err != nil {
		return Record{}, fmt.Errorf("parsing telegram: %w", err)
	}

	ga, group := f.GroupAddress()
	r := Record{
		Time:    at,
		Code:    f.Code,
		Source:  f.Source,
		Group:   group,
		Address: ga,
		Service: f.Service(),
		Payload: f.Data,
		Raw:     t,
	}

	if dpt, ok := datapoints[ga]; ok && group && len(f.Data) > 0 {
		if v, err := telegram.DecodeValue(dpt, f.Data); err == nil {
			r.DPT = dpt
			r.Value = v
		}
	}
	return r, nil
}

// IsResponse reports whether the record is a GroupValue_Response.
func (r Record) IsResponse() bool {
	return r.Service == "response"
}

type recordJSON struct {
	Timestamp    string `json:"timestamp"`
	Source       string `json:"source"`
	GroupAddress string `json:"group_address,omitempty"`
	Destination  string `json:"destination,omitempty"`
	Service      string `json:"service"`
	Payload      string `json:"payload"`
	DPT          string `json:"dpt,omitempty"`
	Value        any    `json:"value,omitempty"`
	Raw          string `json:"raw"`
}

// MarshalJSON renders the record as published on MQTT.
func (r Record) MarshalJSON() ([]byte, error) {
	out := recordJSON{
		Timestamp: r.Time.UTC().Format(time.RFC3339Nano),
		Source:    r.Source.String(),
		Service:   r.Service,
		Payload:   hex.EncodeToString(r.Payload),
		DPT:       string(r.DPT),
		Value:     r.Value,
		Raw:       r.Raw.String(),
	}
	if r.Group {
		out.GroupAddress = r.Address.String()
	} else {
		out.Destination = telegram.IndividualAddress(r.Address).String()
	}
	return json.Marshal(out)
}
