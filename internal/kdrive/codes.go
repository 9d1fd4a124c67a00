package kdrive

import "fmt"

// Descriptor identifies one access port.
type Descriptor int

// InvalidDescriptor is returned by Create when no descriptor could be allocated.
const InvalidDescriptor Descriptor = -1

// Key identifies a telegram callback registration on a port.
type Key int

// ErrorCode is a layer status code. ErrorNone signals success.
type ErrorCode uint32

// Layer status codes.
const (
	ErrorNone              ErrorCode = 0x0000
	ErrorInvalidDescriptor ErrorCode = 0x0101
	ErrorInvalidArgument   ErrorCode = 0x0102
	ErrorInvalidState      ErrorCode = 0x0103
	ErrorOpenFailed        ErrorCode = 0x0201
	ErrorTimeout           ErrorCode = 0x0202
	ErrorNotOpen           ErrorCode = 0x0203
	ErrorLinkLost          ErrorCode = 0x0204
	ErrorSendFailed        ErrorCode = 0x0301
	ErrorTelegramTooLong   ErrorCode = 0x0302
	ErrorCallbackPanic     ErrorCode = 0x0401
)

var errorMessages = map[ErrorCode]string{
	ErrorNone:              "no error",
	ErrorInvalidDescriptor: "invalid access port descriptor",
	ErrorInvalidArgument:   "invalid argument",
	ErrorInvalidState:      "operation not valid in the current access port state",
	ErrorOpenFailed:        "unable to open access port connection",
	ErrorTimeout:           "timeout",
	ErrorNotOpen:           "access port is not open",
	ErrorLinkLost:          "connection to the KNX interface was lost",
	ErrorSendFailed:        "unable to send telegram",
	ErrorTelegramTooLong:   "telegram exceeds maximum length",
	ErrorCallbackPanic:     "callback raised a panic",
}

// Message returns the description of the code.
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return fmt.Sprintf("unknown error 0x%x", uint32(c))
}

// EventCode is an access-port notification.
type EventCode uint32

// Access port events.
const (
	EventOpening         EventCode = 0x01
	EventOpened          EventCode = 0x02
	EventClosing         EventCode = 0x03
	EventClosed          EventCode = 0x04
	EventTerminated      EventCode = 0x05
	EventBusConnected    EventCode = 0x06
	EventBusDisconnected EventCode = 0x07
)

// String returns the event name.
func (e EventCode) String() string {
	switch e {
	case EventOpening:
		return "opening"
	case EventOpened:
		return "opened"
	case EventClosing:
		return "closing"
	case EventClosed:
		return "closed"
	case EventTerminated:
		return "terminated"
	case EventBusConnected:
		return "bus_connected"
	case EventBusDisconnected:
		return "bus_disconnected"
	default:
		return fmt.Sprintf("event_0x%x", uint32(e))
	}
}

// LogLevel is a layer logger verbosity. Higher values are more verbose.
type LogLevel int

// Logger levels.
const (
	LogNone        LogLevel = 0
	LogFatal       LogLevel = 1
	LogCritical    LogLevel = 2
	LogError       LogLevel = 3
	LogWarning     LogLevel = 4
	LogNotice      LogLevel = 5
	LogInformation LogLevel = 6
	LogDebug       LogLevel = 7
	LogTrace       LogLevel = 8
)

// ErrorCallback receives layer errors.
type ErrorCallback func(code ErrorCode)

// EventCallback receives events for one port.
type EventCallback func(ap Descriptor, event EventCode)

// TelegramCallback receives one frame. The slice is only valid during the call.
type TelegramCallback func(frame []byte)
