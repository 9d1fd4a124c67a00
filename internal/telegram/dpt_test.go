package telegram

import (
	"errors"
	"reflect"
	"testing"
)

func TestDecodeValue(t *testing.T) {
	tests := []struct {
		name    string
		dpt     DPT
		data    []byte
		want    any
		wantErr error
	}{
		{"switch on", DPTSwitch, []byte{0x01}, true, nil},
		{"switch off", DPTSwitch, []byte{0x00}, false, nil},
		{"switch sub type", "1.008", []byte{0x01}, true, nil},
		{"dimming up 3", DPTDimming, []byte{0x0B}, Dimming{Increase: true, Steps: 3}, nil},
		{"percentage full", DPTPercentage, []byte{0xFF}, 100.0, nil},
		{"percentage half", DPTPercentage, []byte{0x80}, 50.2, nil},
		{"angle", DPTAngle, []byte{0xFF}, 360.0, nil},
		{"counter", DPTCounter, []byte{0x2A}, uint8(42), nil},
		{"temperature 21.5", DPTTemperature, []byte{0x0C, 0x33}, 21.5, nil},
		{"temperature negative", DPTTemperature, []byte{0x87, 0x9C}, -1.0, nil},
		{"temperature zero", DPTTemperature, []byte{0x00, 0x00}, 0.0, nil},
		{"temperature invalid", DPTTemperature, []byte{0x7F, 0xFF}, nil, ErrDecodingFailed},
		{"temperature short", DPTTemperature, []byte{0x0C}, nil, ErrDecodingFailed},
		{"scene number", DPTSceneNumber, []byte{0x45}, uint8(5), nil},
		{"scene learn", DPTSceneControl, []byte{0x85}, Scene{Number: 5, Learn: true}, nil},
		{"rgb", DPTColourRGB, []byte{1, 2, 3}, RGB{R: 1, G: 2, B: 3}, nil},
		{"rgb short", DPTColourRGB, []byte{1, 2}, nil, ErrDecodingFailed},
		{"empty", DPTSwitch, nil, nil, ErrDecodingFailed},
		{"unknown", "14.056", []byte{0, 0, 0, 0}, nil, ErrUnknownDPT},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeValue(tt.dpt, tt.data)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("DecodeValue() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeValue() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DecodeValue() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestDPTValid(t *testing.T) {
	for _, d := range []DPT{"1.001", "5.001", "9.004", "232.600"} {
		if !d.Valid() {
			t.Errorf("%s.Valid() = false", d)
		}
	}
	for _, d := range []DPT{"", "14.056", "abc"} {
		if d.Valid() {
			t.Errorf("%q.Valid() = true", d)
		}
	}
}
