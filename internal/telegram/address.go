package telegram

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// GroupAddress is a 16-bit KNX group address.
//
// Layout: MMMM MSSS SSSS SSSS
//   - Main:   0-31 (5 bits)
//   - Middle: 0-7  (3 bits)
//   - Sub:    0-255 (8 bits)
type GroupAddress uint16

// IndividualAddress is a 16-bit KNX device address (area.line.device).
type IndividualAddress uint16

// Group address limits per KNX specification.
const (
	maxMain   = 31
	maxMiddle = 7
	maxSub    = 255

	// gaLevelCount is the number of levels in a 3-level group address.
	gaLevelCount = 3
)

// NewGroupAddress builds a group address from its three levels.
// Values outside the level ranges are masked.
func NewGroupAddress(main, middle, sub uint8) GroupAddress {
	return GroupAddress(uint16(main&maxMain)<<11 | uint16(middle&maxMiddle)<<8 | uint16(sub))
}

// ParseGroupAddress parses a group address.
//
// Accepts formats:
//   - "1/2/3"  3-level format
//   - "0x0901" hexadecimal 16-bit value
//   - "2305"   decimal 16-bit value
//
// Example:
//
//	ga, err := telegram.ParseGroupAddress("1/1/1")
func ParseGroupAddress(s string) (GroupAddress, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidGroupAddress)
	}

	if !strings.Contains(s, "/") {
		v, err := strconv.ParseUint(s, 0, 16)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a 16-bit value", ErrInvalidGroupAddress, s)
		}
		return GroupAddress(v), nil
	}

	parts := strings.Split(s, "/")
	if len(parts) != gaLevelCount {
		return 0, fmt.Errorf("%w: expected 3-level format (main/middle/sub), got %q", ErrInvalidGroupAddress, s)
	}

	main, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil || main > maxMain {
		return 0, fmt.Errorf("%w: main group must be 0-%d, got %q", ErrInvalidGroupAddress, maxMain, parts[0])
	}

	middle, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil || middle > maxMiddle {
		return 0, fmt.Errorf("%w: middle group must be 0-%d, got %q", ErrInvalidGroupAddress, maxMiddle, parts[1])
	}

	sub, err := strconv.ParseUint(parts[2], 10, 8)
	if err != nil || sub > maxSub {
		return 0, fmt.Errorf("%w: sub group must be 0-%d, got %q", ErrInvalidGroupAddress, maxSub, parts[2])
	}

	return NewGroupAddress(uint8(main), uint8(middle), uint8(sub)), nil
}

// Main returns the main group (5 bits).
func (ga GroupAddress) Main() uint8 { return uint8(ga>>11) & maxMain }

// Middle returns the middle group (3 bits).
func (ga GroupAddress) Middle() uint8 { return uint8(ga>>8) & maxMiddle }

// Sub returns the sub group (8 bits).
func (ga GroupAddress) Sub() uint8 { return uint8(ga) }

// String returns the group address in 3-level format, e.g. "1/1/1".
func (ga GroupAddress) String() string {
	return fmt.Sprintf("%d/%d/%d", ga.Main(), ga.Middle(), ga.Sub())
}

// URLEncode returns the group address with "/" escaped.
//
// MQTT uses "/" as a level separator: "1/2/3" → "1%2F2%2F3".
func (ga GroupAddress) URLEncode() string {
	return url.PathEscape(ga.String())
}

// String returns the individual address in "area.line.device" format.
func (ia IndividualAddress) String() string {
	return fmt.Sprintf("%d.%d.%d", (ia>>12)&0x0F, (ia>>8)&0x0F, ia&0xFF)
}
