package accessport

import (
	"fmt"
	"io"
	"sync"

	"github.com/nerrad567/knx-monitor/internal/kdrive"
	"github.com/nerrad567/knx-monitor/internal/telegram"
)

// Handler receives access-port notifications.
//
// Methods are called from layer goroutines. Calls of the same kind are
// serialized; calls of different kinds may run concurrently. Handlers must
// not call Session methods.
type Handler interface {
	OnError(code kdrive.ErrorCode, message string)
	OnEvent(ap kdrive.Descriptor, event kdrive.EventCode)
	// OnTelegram receives an owned copy of the frame.
	OnTelegram(t telegram.Telegram)
}

// HandlerFuncs adapts functions to a Handler. Nil fields are ignored.
type HandlerFuncs struct {
	Error    func(code kdrive.ErrorCode, message string)
	Event    func(ap kdrive.Descriptor, event kdrive.EventCode)
	Telegram func(t telegram.Telegram)
}

func (h HandlerFuncs) OnError(code kdrive.ErrorCode, message string) {
	if h.Error != nil {
		h.Error(code, message)
	}
}

func (h HandlerFuncs) OnEvent(ap kdrive.Descriptor, event kdrive.EventCode) {
	if h.Event != nil {
		h.Event(ap, event)
	}
}

func (h HandlerFuncs) OnTelegram(t telegram.Telegram) {
	if h.Telegram != nil {
		h.Telegram(t)
	}
}

// Multi fans out every notification to each handler in order.
type Multi []Handler

func (m Multi) OnError(code kdrive.ErrorCode, message string) {
	for _, h := range m {
		h.OnError(code, message)
	}
}

func (m Multi) OnEvent(ap kdrive.Descriptor, event kdrive.EventCode) {
	for _, h := range m {
		h.OnEvent(ap, event)
	}
}

func (m Multi) OnTelegram(t telegram.Telegram) {
	for _, h := range m {
		h.OnTelegram(t)
	}
}

// FormatError renders an error line: "kdrive error 0x12345678 timeout".
func FormatError(code kdrive.ErrorCode, message string) string {
	return fmt.Sprintf("kdrive error 0x%x %s", uint32(code), message)
}

// FormatEvent renders an event line: "kdrive event 0x2".
func FormatEvent(event kdrive.EventCode) string {
	return fmt.Sprintf("kdrive event 0x%x", uint32(event))
}

// ConsoleHandler writes one line per notification. Lines from concurrent
// callbacks never interleave.
type ConsoleHandler struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsoleHandler creates a handler writing to w.
func NewConsoleHandler(w io.Writer) *ConsoleHandler {
	return &ConsoleHandler{w: w}
}

func (h *ConsoleHandler) OnError(code kdrive.ErrorCode, message string) {
	h.writeLine(FormatError(code, message))
}

func (h *ConsoleHandler) OnEvent(_ kdrive.Descriptor, event kdrive.EventCode) {
	h.writeLine(FormatEvent(event))
}

func (h *ConsoleHandler) OnTelegram(t telegram.Telegram) {
	h.writeLine(t.String())
}

func (h *ConsoleHandler) writeLine(line string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	io.WriteString(h.w, line+"\n") //nolint:errcheck // console output is best-effort
}
