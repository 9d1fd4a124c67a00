package accessport

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/knx-monitor/internal/kdrive"
	"github.com/nerrad567/knx-monitor/internal/telegram"
)

func TestBoundMessage(t *testing.T) {
	long := strings.Repeat("x", 2000)
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"short", "timeout", "timeout"},
		{"nul terminated", "timeout\x00garbage", "timeout"},
		{"exactly bounded", long[:1023], long[:1023]},
		{"truncated", long, long[:1023]},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := boundMessage(tt.in); got != tt.want {
				t.Errorf("boundMessage() len = %d, want %d", len(got), len(tt.want))
			}
		})
	}
}

func TestRegistryCopiesTelegram(t *testing.T) {
	var got telegram.Telegram
	r := NewRegistry(newFakePort(), HandlerFuncs{
		Telegram: func(tg telegram.Telegram) { got = tg },
	}, nil)

	buf := []byte{0x01, 0x02, 0xff}
	r.OnTelegram(buf)
	clear(buf)

	if got.String() != "0x01 0x02 0xff" {
		t.Errorf("telegram after buffer reuse = %q, want %q", got, "0x01 0x02 0xff")
	}
	if r.Stats().Telegrams != 1 {
		t.Errorf("Stats().Telegrams = %d, want 1", r.Stats().Telegrams)
	}
}

func TestRegistryContainsHandlerFailure(t *testing.T) {
	r := NewRegistry(newFakePort(), HandlerFuncs{
		Error:    func(kdrive.ErrorCode, string) { panic("error handler") },
		Event:    func(kdrive.Descriptor, kdrive.EventCode) { panic("event handler") },
		Telegram: func(telegram.Telegram) { panic("telegram handler") },
	}, nil)

	r.OnError(kdrive.ErrorTimeout)
	r.OnEvent(0, kdrive.EventTerminated)
	r.OnTelegram([]byte{0x01})

	stats := r.Stats()
	if stats.HandlerFailures != 3 {
		t.Errorf("HandlerFailures = %d, want 3", stats.HandlerFailures)
	}
	if stats.Errors != 1 || stats.Events != 1 || stats.Telegrams != 1 {
		t.Errorf("Stats() = %+v, want one of each kind", stats)
	}
}

func TestConsoleHandlerLines(t *testing.T) {
	port := newFakePort()
	port.messages[0x12345678] = "timeout"

	var out bytes.Buffer
	r := NewRegistry(port, NewConsoleHandler(&out), nil)

	r.OnTelegram([]byte{0x01, 0x02, 0xFF})
	r.OnError(0x12345678)
	r.OnEvent(0, kdrive.EventOpened)
	r.OnTelegram([]byte{})

	want := "0x01 0x02 0xff\n" +
		"kdrive error 0x12345678 timeout\n" +
		"kdrive event 0x2\n" +
		"\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestMultiHandler(t *testing.T) {
	var mu sync.Mutex
	var order []string
	h := func(name string) Handler {
		return HandlerFuncs{Telegram: func(telegram.Telegram) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}}
	}

	Multi{h("a"), h("b"), HandlerFuncs{}}.OnTelegram(telegram.Telegram{0x01})
	if strings.Join(order, ",") != "a,b" {
		t.Errorf("order = %v, want [a b]", order)
	}
}
