package accessport

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/nerrad567/knx-monitor/internal/kdrive"
	"github.com/nerrad567/knx-monitor/internal/telegram"
)

// errorMessageBufferSize is the message buffer size, terminator included.
const errorMessageBufferSize = 1024

// RegistryStats holds callback counters.
type RegistryStats struct {
	Errors          uint64
	Events          uint64
	Telegrams       uint64
	HandlerFailures uint64
}

// Registry adapts the layer's callbacks to a Handler.
//
// Telegram frames are copied before the handler sees them, error messages
// are bounded, and handler panics are recovered, logged and counted.
type Registry struct {
	port    AccessPort
	handler Handler
	logger  Logger

	errors    atomic.Uint64
	events    atomic.Uint64
	telegrams atomic.Uint64
	failures  atomic.Uint64
}

// NewRegistry creates a registry dispatching to h.
func NewRegistry(port AccessPort, h Handler, logger Logger) *Registry {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Registry{port: port, handler: h, logger: logger}
}

// OnError is registered as the layer error callback.
func (r *Registry) OnError(code kdrive.ErrorCode) {
	defer r.contain("error")
	r.errors.Add(1)
	r.handler.OnError(code, boundMessage(r.port.ErrorMessage(code)))
}

// OnEvent is registered as the port event callback.
func (r *Registry) OnEvent(ap kdrive.Descriptor, event kdrive.EventCode) {
	defer r.contain("event")
	r.events.Add(1)
	r.handler.OnEvent(ap, event)
}

// OnTelegram is registered as the port telegram callback. frame is only
// valid during the call.
func (r *Registry) OnTelegram(frame []byte) {
	defer r.contain("telegram")
	t, err := telegram.Decode(frame, len(frame))
	if err != nil {
		r.logger.Warn("telegram decode failed", "error", err)
		return
	}
	r.telegrams.Add(1)
	r.handler.OnTelegram(t)
}

// Stats returns the callback counters.
func (r *Registry) Stats() RegistryStats {
	return RegistryStats{
		Errors:          r.errors.Load(),
		Events:          r.events.Load(),
		Telegrams:       r.telegrams.Load(),
		HandlerFailures: r.failures.Load(),
	}
}

func (r *Registry) contain(kind string) {
	if rec := recover(); rec != nil {
		r.failures.Add(1)
		r.logger.Error("handler failure", "callback", kind, "panic", fmt.Sprint(rec))
	}
}

// boundMessage truncates msg as a NUL-terminated string in a
// errorMessageBufferSize buffer would be.
func boundMessage(msg string) string {
	if i := strings.IndexByte(msg, 0); i >= 0 {
		msg = msg[:i]
	}
	if len(msg) > errorMessageBufferSize-1 {
		msg = msg[:errorMessageBufferSize-1]
	}
	return msg
}
