package telegram

import (
	"fmt"
	"math"
	"strings"
)

const (
	dpt5MaxValue     = 255
	dpt5AngleMax     = 360
	dpt9MantissaMask = 0x07FF
	dpt9Invalid      = 0x7FFF
	dpt17SceneMask   = 0x3F
	dptRGBBytes      = 3
)

// DPT is a KNX datapoint type identifier in "main.sub" form, e.g. "9.001".
type DPT string

// Datapoint types the decoder understands. Any sub type of a supported
// main number decodes with the main number's rules, except 5.001 and 5.003
// which are scaled.
const (
	DPTSwitch       DPT = "1.001"
	DPTDimming      DPT = "3.007"
	DPTPercentage   DPT = "5.001"
	DPTAngle        DPT = "5.003"
	DPTCounter      DPT = "5.010"
	DPTTemperature  DPT = "9.001"
	DPTSceneNumber  DPT = "17.001"
	DPTSceneControl DPT = "18.001"
	DPTColourRGB    DPT = "232.600"
)

// Main returns the main number part, "9" for "9.001".
func (d DPT) Main() string {
	main, _, _ := strings.Cut(string(d), ".")
	return main
}

// Valid reports whether DecodeValue can handle d.
func (d DPT) Valid() bool {
	switch d.Main() {
	case "1", "3", "5", "9", "17", "18", "232":
		return true
	default:
		return false
	}
}

// Dimming is a decoded DPT 3 control value.
type Dimming struct {
	Increase bool  `json:"increase"`
	Steps    uint8 `json:"steps"`
}

// Scene is a decoded DPT 18 scene control value.
type Scene struct {
	Number uint8 `json:"number"`
	Learn  bool  `json:"learn"`
}

// RGB is a decoded DPT 232.600 colour.
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// DecodeValue decodes a group payload according to its datapoint type.
//
// The payload is Frame.Data: a 6-bit value for the short types, otherwise
// the bytes following the APCI. Results are bool, uint8, float64, Dimming,
// Scene or RGB.
//
//	DecodeValue(DPTTemperature, []byte{0x0C, 0x33}) → 21.5
func DecodeValue(d DPT, data []byte) (any, error) {
	switch d.Main() {
	case "1":
		if err := need(d, data, 1); err != nil {
			return nil, err
		}
		return data[0]&0x01 != 0, nil

	case "3":
		if err := need(d, data, 1); err != nil {
			return nil, err
		}
		return Dimming{Increase: data[0]&0x08 != 0, Steps: data[0] & 0x07}, nil

	case "5":
		if err := need(d, data, 1); err != nil {
			return nil, err
		}
		switch d {
		case DPTPercentage:
			return math.Round(float64(data[0])*100/dpt5MaxValue*10) / 10, nil
		case DPTAngle:
			return math.Round(float64(data[0])*dpt5AngleMax/dpt5MaxValue*10) / 10, nil
		default:
			return data[0], nil
		}

	case "9":
		return decodeFloat16(d, data)

	case "17":
		if err := need(d, data, 1); err != nil {
			return nil, err
		}
		return data[0] & dpt17SceneMask, nil

	case "18":
		if err := need(d, data, 1); err != nil {
			return nil, err
		}
		return Scene{Number: data[0] & dpt17SceneMask, Learn: data[0]&0x80 != 0}, nil

	case "232":
		if err := need(d, data, dptRGBBytes); err != nil {
			return nil, err
		}
		return RGB{R: data[0], G: data[1], B: data[2]}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDPT, string(d))
	}
}

func need(d DPT, data []byte, n int) error {
	if len(data) < n {
		return fmt.Errorf("%w: DPT %s requires %d byte(s), got %d", ErrDecodingFailed, d, n, len(data))
	}
	return nil
}

// decodeFloat16 decodes the KNX 2-byte float: SEEE EMMM MMMM MMMM,
// value = 0.01 × M × 2^E with M in two's complement.
func decodeFloat16(d DPT, data []byte) (float64, error) {
	if err := need(d, data, 2); err != nil {
		return 0, err
	}

	raw := uint16(data[0])<<8 | uint16(data[1])
	if raw == dpt9Invalid {
		return 0, fmt.Errorf("%w: DPT %s invalid value 0x7FFF", ErrDecodingFailed, d)
	}

	exp := (raw >> 11) & 0x0F
	mantissa := int16(raw & dpt9MantissaMask) //nolint:gosec // 11-bit value fits in int16
	if raw&0x8000 != 0 {
		mantissa |= -0x800
	}

	v := float64(mantissa) * 0.01 * math.Pow(2, float64(exp))
	return math.Round(v*100) / 100, nil
}
