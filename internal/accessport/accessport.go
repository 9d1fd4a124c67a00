package accessport

import (
	"net"
	"strconv"

	"github.com/nerrad567/knx-monitor/internal/kdrive"
	"github.com/nerrad567/knx-monitor/internal/telegram"
)

// AccessPort is the access-port layer API used by the session.
type AccessPort interface {
	Create() kdrive.Descriptor
	Release(ap kdrive.Descriptor) kdrive.ErrorCode
	RegisterErrorCallback(cb kdrive.ErrorCallback)
	SetEventCallback(ap kdrive.Descriptor, cb kdrive.EventCallback) kdrive.ErrorCode
	OpenIPNat(ap kdrive.Descriptor, address string) kdrive.ErrorCode
	Close(ap kdrive.Descriptor) kdrive.ErrorCode
	RegisterTelegramCallback(ap kdrive.Descriptor, cb kdrive.TelegramCallback) (kdrive.Key, kdrive.ErrorCode)
	UnregisterTelegramCallback(ap kdrive.Descriptor, key kdrive.Key) kdrive.ErrorCode
	GroupWrite(ap kdrive.Descriptor, ga telegram.GroupAddress, data []byte) kdrive.ErrorCode
	PacketTraceConnect(ap kdrive.Descriptor, enabled bool) kdrive.ErrorCode
	ErrorMessage(code kdrive.ErrorCode) string
	Log(level kdrive.LogLevel, msg string)
	SetLogLevel(level kdrive.LogLevel)
}

var _ AccessPort = (*kdrive.Layer)(nil)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Target is the KNXnet/IP gateway endpoint.
type Target struct {
	Address string
	Port    int
}

// String returns "host:port".
func (t Target) String() string {
	return net.JoinHostPort(t.Address, strconv.Itoa(t.Port))
}
