package accessport

import (
	"fmt"
	"sync"

	"github.com/nerrad567/knx-monitor/internal/kdrive"
	"github.com/nerrad567/knx-monitor/internal/telegram"
)

// fakePort records every call made by the session and keeps the
// registered callbacks so tests can simulate layer deliveries.
type fakePort struct {
	mu sync.Mutex

	createResult kdrive.Descriptor
	openCode     kdrive.ErrorCode
	writeCode    kdrive.ErrorCode
	messages     map[kdrive.ErrorCode]string

	calls     []string
	logs      []string
	level     kdrive.LogLevel
	writes    [][]byte
	errorCb   kdrive.ErrorCallback
	eventCb   kdrive.EventCallback
	telegramC kdrive.TelegramCallback
}

func newFakePort() *fakePort {
	return &fakePort{createResult: 3, messages: map[kdrive.ErrorCode]string{}}
}

func (f *fakePort) record(format string, args ...any) {
	f.mu.Lock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
	f.mu.Unlock()
}

func (f *fakePort) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakePort) count(name string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == name {
			n++
		}
	}
	return n
}

func (f *fakePort) Create() kdrive.Descriptor {
	f.record("Create")
	return f.createResult
}

func (f *fakePort) Release(kdrive.Descriptor) kdrive.ErrorCode {
	f.record("Release")
	return kdrive.ErrorNone
}

func (f *fakePort) RegisterErrorCallback(cb kdrive.ErrorCallback) {
	f.record("RegisterErrorCallback")
	f.mu.Lock()
	f.errorCb = cb
	f.mu.Unlock()
}

func (f *fakePort) SetEventCallback(_ kdrive.Descriptor, cb kdrive.EventCallback) kdrive.ErrorCode {
	f.record("SetEventCallback")
	f.mu.Lock()
	f.eventCb = cb
	f.mu.Unlock()
	return kdrive.ErrorNone
}

func (f *fakePort) OpenIPNat(_ kdrive.Descriptor, address string) kdrive.ErrorCode {
	f.record("OpenIPNat")
	if f.openCode != kdrive.ErrorNone {
		f.mu.Lock()
		cb := f.errorCb
		f.mu.Unlock()
		if cb != nil {
			cb(f.openCode)
		}
	}
	return f.openCode
}

func (f *fakePort) Close(kdrive.Descriptor) kdrive.ErrorCode {
	f.record("Close")
	return kdrive.ErrorNone
}

func (f *fakePort) RegisterTelegramCallback(_ kdrive.Descriptor, cb kdrive.TelegramCallback) (kdrive.Key, kdrive.ErrorCode) {
	f.record("RegisterTelegramCallback")
	f.mu.Lock()
	f.telegramC = cb
	f.mu.Unlock()
	return 1, kdrive.ErrorNone
}

func (f *fakePort) UnregisterTelegramCallback(kdrive.Descriptor, kdrive.Key) kdrive.ErrorCode {
	f.record("UnregisterTelegramCallback")
	return kdrive.ErrorNone
}

func (f *fakePort) GroupWrite(_ kdrive.Descriptor, ga telegram.GroupAddress, data []byte) kdrive.ErrorCode {
	f.record("GroupWrite")
	f.mu.Lock()
	f.writes = append(f.writes, append([]byte{byte(ga >> 8), byte(ga)}, data...))
	f.mu.Unlock()
	return f.writeCode
}

func (f *fakePort) PacketTraceConnect(kdrive.Descriptor, bool) kdrive.ErrorCode {
	f.record("PacketTraceConnect")
	return kdrive.ErrorNone
}

func (f *fakePort) ErrorMessage(code kdrive.ErrorCode) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := f.messages[code]; ok {
		return msg
	}
	return code.Message()
}

func (f *fakePort) Log(level kdrive.LogLevel, msg string) {
	f.mu.Lock()
	f.logs = append(f.logs, fmt.Sprintf("%s: %s", level, msg))
	f.mu.Unlock()
}

func (f *fakePort) SetLogLevel(level kdrive.LogLevel) {
	f.mu.Lock()
	f.level = level
	f.mu.Unlock()
}

func (f *fakePort) Logs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.logs...)
}

// deliverTelegram simulates the layer telegram dispatcher with a reused buffer.
func (f *fakePort) deliverTelegram(buf []byte) {
	f.mu.Lock()
	cb := f.telegramC
	f.mu.Unlock()
	cb(buf)
	clear(buf)
}

func (f *fakePort) deliverEvent(ev kdrive.EventCode) {
	f.mu.Lock()
	cb := f.eventCb
	f.mu.Unlock()
	cb(f.createResult, ev)
}

func (f *fakePort) deliverError(code kdrive.ErrorCode) {
	f.mu.Lock()
	cb := f.errorCb
	f.mu.Unlock()
	cb(code)
}
