package kdrive

import "errors"

// Transport errors returned by Dialer and Link implementations.
var (
	// ErrDialFailed is returned when a transport connection cannot be established.
	ErrDialFailed = errors.New("kdrive: dial failed")

	// ErrNotConnected is returned when sending on a link whose connection is down.
	ErrNotConnected = errors.New("kdrive: link not connected")

	// ErrSendFailed is returned when a frame cannot be written to the transport.
	ErrSendFailed = errors.New("kdrive: send failed")

	// ErrProtocolDesync is returned when the knxd stream framing is corrupted.
	ErrProtocolDesync = errors.New("kdrive: protocol desync")

	// ErrInvalidAPDU is returned when an APDU lacks the TPCI and APCI bytes.
	ErrInvalidAPDU = errors.New("kdrive: invalid APDU")

	// ErrInvalidMessage is returned when a knxd message is malformed.
	ErrInvalidMessage = errors.New("kdrive: invalid knxd message")
)
