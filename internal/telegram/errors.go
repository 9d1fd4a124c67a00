package telegram

import "errors"

// Domain errors for telegram decoding.
var (
	// ErrShortBuffer is returned when the declared length exceeds the buffer.
	ErrShortBuffer = errors.New("telegram: length exceeds buffer")

	// ErrInvalidFrame is returned when a buffer is not a parsable cEMI L_Data frame.
	ErrInvalidFrame = errors.New("telegram: invalid frame")

	// ErrInvalidGroupAddress is returned when a group address string cannot be parsed.
	ErrInvalidGroupAddress = errors.New("telegram: invalid group address")
)

// ErrDecodingFailed is returned when a payload does not fit its datapoint type.
var ErrDecodingFailed = errors.New("telegram: datapoint decoding failed")

// ErrUnknownDPT is returned for datapoint types the decoder does not know.
var ErrUnknownDPT = errors.New("telegram: unknown datapoint type")
