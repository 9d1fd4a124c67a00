package telegram

import (
	"encoding/binary"
	"fmt"
)

// MessageCode identifies the cEMI service of a frame.
type MessageCode byte

// cEMI message codes handled by the monitor.
const (
	LDataReq MessageCode = 0x11
	LDataCon MessageCode = 0x2E
	LDataInd MessageCode = 0x29
)

// APCI (Application Protocol Control Information) codes for group services.
// They occupy the upper 2 bits of the second APDU byte.
const (
	// APCIRead is a group read request.
	APCIRead byte = 0x00

	// APCIResponse is a group read response.
	APCIResponse byte = 0x40

	// APCIWrite is a group write.
	APCIWrite byte = 0x80
)

// Frame layout constants.
const (
	// frameHeaderSize is code(1) + info length(1).
	frameHeaderSize = 2

	// ldataFixedSize is ctrl1(1) + ctrl2(1) + src(2) + dst(2) + length(1).
	ldataFixedSize = 7

	// defaultControl1 is a standard frame, no repeat, broadcast, low priority.
	defaultControl1 = 0xBC

	// defaultControl2 is a group destination with hop count 6.
	defaultControl2 = 0xE0

	// shortDataMax is the largest value that fits in the APCI byte.
	shortDataMax = 0x3F
)

// Frame is the parsed structure of a cEMI L_Data frame.
type Frame struct {
	Code        MessageCode
	Source      IndividualAddress
	Destination uint16

	// Group is true when Destination is a group address.
	Group    bool
	HopCount uint8

	// APCI holds the group service bits (APCIRead, APCIResponse, APCIWrite).
	// HasAPCI is false for transport-only frames such as T_CONNECT.
	APCI    byte
	HasAPCI bool

	// Data is the payload, copied out of the source buffer. Short values
	// carried in the APCI byte are returned as a single byte.
	Data []byte
}

// ParseFrame parses a cEMI L_Data frame.
//
// Parameters:
//   - b: Raw frame bytes (not retained)
//
// Returns:
//   - Frame: Parsed frame with an owned Data slice
//   - error: ErrInvalidFrame if the message code is unsupported or the buffer is truncated
func ParseFrame(b []byte) (Frame, error) {
	if len(b) < frameHeaderSize {
		return Frame{}, fmt.Errorf("%w: too short (%d bytes)", ErrInvalidFrame, len(b))
	}

	code := MessageCode(b[0])
	switch code {
	case LDataReq, LDataCon, LDataInd:
	default:
		return Frame{}, fmt.Errorf("%w: unsupported message code 0x%02x", ErrInvalidFrame, b[0])
	}

	off := frameHeaderSize + int(b[1])
	if len(b) < off+ldataFixedSize {
		return Frame{}, fmt.Errorf("%w: truncated L_Data header (%d bytes)", ErrInvalidFrame, len(b))
	}

	ctrl2 := b[off+1]
	f := Frame{
		Code:        code,
		Source:      IndividualAddress(binary.BigEndian.Uint16(b[off+2 : off+4])),
		Destination: binary.BigEndian.Uint16(b[off+4 : off+6]),
		Group:       ctrl2&0x80 != 0,
		HopCount:    (ctrl2 >> 4) & 0x07,
	}

	npduLen := int(b[off+6])
	apdu := b[off+ldataFixedSize:]
	if len(apdu) < npduLen+1 {
		return Frame{}, fmt.Errorf("%w: NPDU length %d exceeds %d available bytes", ErrInvalidFrame, npduLen, len(apdu)-1)
	}

	// TPCI-only frame: nothing more to decode
	if npduLen == 0 {
		return f, nil
	}

	f.APCI = apdu[1] & 0xC0
	f.HasAPCI = apdu[0]&0x03 == 0

	if npduLen > 1 {
		f.Data = make([]byte, npduLen-1)
		copy(f.Data, apdu[2:npduLen+1])
	} else if f.APCI == APCIWrite || f.APCI == APCIResponse {
		f.Data = []byte{apdu[1] & shortDataMax}
	}

	return f, nil
}

// GroupAddress returns the destination as a group address.
// The second result is false for individually addressed frames.
func (f Frame) GroupAddress() (GroupAddress, bool) {
	return GroupAddress(f.Destination), f.Group
}

// Service returns a lower-case name for the group service.
func (f Frame) Service() string {
	if !f.HasAPCI {
		return "other"
	}
	switch f.APCI {
	case APCIRead:
		return "read"
	case APCIResponse:
		return "response"
	case APCIWrite:
		return "write"
	default:
		return "other"
	}
}

// EncodeAPDU builds the TPCI/APCI bytes for a group service.
//
// A single value ≤ 0x3F is packed into the APCI byte; anything longer
// follows the APCI byte unchanged.
//
//	EncodeAPDU(APCIWrite, []byte{0x01})       → [0x00, 0x81]
//	EncodeAPDU(APCIWrite, []byte{0x0C, 0x66}) → [0x00, 0x80, 0x0C, 0x66]
func EncodeAPDU(apci byte, data []byte) []byte {
	if len(data) == 0 {
		return []byte{0x00, apci}
	}
	if len(data) == 1 && data[0] <= shortDataMax {
		return []byte{0x00, apci | data[0]}
	}

	apdu := make([]byte, 2+len(data))
	apdu[1] = apci
	copy(apdu[2:], data)
	return apdu
}

// NewGroupFrame builds a cEMI L_Data frame addressed to a group.
//
// Parameters:
//   - code: Message code (usually LDataInd)
//   - src: Sender individual address
//   - dst: Destination group address
//   - apdu: TPCI/APCI bytes plus data, as produced by EncodeAPDU
func NewGroupFrame(code MessageCode, src IndividualAddress, dst GroupAddress, apdu []byte) Telegram {
	if len(apdu) == 0 {
		apdu = []byte{0x00, APCIRead}
	}

	buf := make(Telegram, frameHeaderSize+ldataFixedSize+len(apdu))
	buf[0] = byte(code)
	buf[1] = 0 // no additional info
	buf[2] = defaultControl1
	buf[3] = defaultControl2
	binary.BigEndian.PutUint16(buf[4:6], uint16(src))
	binary.BigEndian.PutUint16(buf[6:8], uint16(dst))
	buf[8] = byte(len(apdu) - 1) //nolint:gosec // APDU length bounded by frame size
	copy(buf[9:], apdu)
	return buf
}
