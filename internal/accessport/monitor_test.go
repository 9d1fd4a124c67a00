package accessport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/knx-monitor/internal/kdrive"
	"github.com/nerrad567/knx-monitor/internal/telegram"
)

func immediateWaiter() Waiter {
	return WaiterFunc(func(context.Context) error { return nil })
}

func TestMonitorAllocationFailure(t *testing.T) {
	port := newFakePort()
	port.createResult = kdrive.InvalidDescriptor

	m := NewMonitor(port, HandlerFuncs{}, immediateWaiter(), MonitorConfig{Target: testTarget}, nil)
	err := m.Run(context.Background())

	var allocErr *AllocationError
	if !errors.As(err, &allocErr) {
		t.Fatalf("Run() = %v, want *AllocationError", err)
	}
	if got := port.Calls(); !reflect.DeepEqual(got, []string{"Create"}) {
		t.Errorf("calls = %v, want [Create]", got)
	}

	var fatal int
	for _, line := range port.Logs() {
		if line == "fatal: "+msgAllocationFailure {
			fatal++
		}
	}
	if fatal != 1 {
		t.Errorf("fatal reports = %d, want 1 (logs %v)", fatal, port.Logs())
	}
}

func TestMonitorOpenFailure(t *testing.T) {
	port := newFakePort()
	port.openCode = kdrive.ErrorOpenFailed
	waited := false

	m := NewMonitor(port, HandlerFuncs{}, WaiterFunc(func(context.Context) error {
		waited = true
		return nil
	}), MonitorConfig{Target: testTarget}, nil)

	err := m.Run(context.Background())
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("Run() = %v, want ErrConnection", err)
	}
	if waited {
		t.Error("monitor waited after failed open")
	}
	if n := port.count("Release"); n != 1 {
		t.Errorf("Release calls = %d, want 1", n)
	}
	for _, name := range []string{"RegisterTelegramCallback", "Close", "GroupWrite"} {
		if n := port.count(name); n != 0 {
			t.Errorf("%s calls = %d, want 0", name, n)
		}
	}
}

func TestMonitorShutdownOrder(t *testing.T) {
	port := newFakePort()
	cfg := MonitorConfig{
		Target:       testTarget,
		PacketTrace:  true,
		LogLevel:     kdrive.LogInformation,
		StartupWrite: &GroupWrite{Address: telegram.NewGroupAddress(1, 2, 3), Payload: []byte{0x01}},
	}

	m := NewMonitor(port, HandlerFuncs{}, immediateWaiter(), cfg, nil)
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	want := []string{
		"Create", "RegisterErrorCallback", "SetEventCallback", "OpenIPNat",
		"PacketTraceConnect", "GroupWrite", "RegisterTelegramCallback",
		"UnregisterTelegramCallback", "Close", "Release",
	}
	if got := port.Calls(); !reflect.DeepEqual(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
	if !bytes.Equal(port.writes[0], []byte{0x0A, 0x03, 0x01}) {
		t.Errorf("startup write = %x, want 0a0301", port.writes[0])
	}
	if port.level != kdrive.LogInformation {
		t.Errorf("log level = %v, want information", port.level)
	}

	logs := port.Logs()
	wantLogs := []string{"information: " + msgEnterBusMonitor, "information: " + msgPressEnter}
	if !reflect.DeepEqual(logs, wantLogs) {
		t.Errorf("logs = %v, want %v", logs, wantLogs)
	}
}

func TestMonitorContextCancelled(t *testing.T) {
	port := newFakePort()
	ctx, cancel := context.WithCancel(context.Background())

	m := NewMonitor(port, HandlerFuncs{}, WaiterFunc(func(ctx context.Context) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	}), MonitorConfig{Target: testTarget}, nil)

	if err := m.Run(ctx); err != nil {
		t.Fatalf("Run() = %v, want nil on cancellation", err)
	}
	if port.count("Close") != 1 || port.count("Release") != 1 {
		t.Errorf("calls = %v, want one Close and one Release", port.Calls())
	}
}

func TestMonitorWaiterError(t *testing.T) {
	port := newFakePort()
	waitErr := errors.New("stdin broken")

	m := NewMonitor(port, HandlerFuncs{}, WaiterFunc(func(context.Context) error {
		return waitErr
	}), MonitorConfig{Target: testTarget}, nil)

	if err := m.Run(context.Background()); !errors.Is(err, waitErr) {
		t.Fatalf("Run() = %v, want %v", err, waitErr)
	}
	if port.count("Close") != 1 || port.count("Release") != 1 {
		t.Errorf("calls = %v, want one Close and one Release", port.Calls())
	}
}

// TestMonitorConcurrentDeliveries interleaves 1000 telegram and 1000 event
// deliveries from two goroutines while the main flow is blocked.
func TestMonitorConcurrentDeliveries(t *testing.T) {
	const n = 1000
	port := newFakePort()
	var out bytes.Buffer
	console := NewConsoleHandler(&out)

	waiter := WaiterFunc(func(context.Context) error {
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			buf := make([]byte, 2)
			for i := 0; i < n; i++ {
				buf[0], buf[1] = byte(i>>8), byte(i)
				port.deliverTelegram(buf)
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < n; i++ {
				port.deliverEvent(kdrive.EventCode(i%7 + 1))
			}
		}()
		wg.Wait()
		return nil
	})

	m := NewMonitor(port, console, waiter, MonitorConfig{Target: testTarget}, nil)
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	var telegrams, events []string
	sc := bufio.NewScanner(&out)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "kdrive event") {
			events = append(events, line)
			continue
		}
		telegrams = append(telegrams, line)
	}

	if len(events) != n {
		t.Errorf("event lines = %d, want %d", len(events), n)
	}
	if len(telegrams) != n {
		t.Fatalf("telegram lines = %d, want %d", len(telegrams), n)
	}
	for i, line := range telegrams {
		want := fmt.Sprintf("0x%02x 0x%02x", byte(i>>8), byte(i))
		if line != want {
			t.Fatalf("telegram line %d = %q, want %q", i, line, want)
		}
	}

	stats := m.Stats()
	if stats.Telegrams != n || stats.Events != n {
		t.Errorf("Stats() = %+v, want %d telegrams and events", stats, n)
	}
}

func TestMonitorEndToEndLines(t *testing.T) {
	port := newFakePort()
	port.messages[0x12345678] = "timeout"
	var out bytes.Buffer

	waiter := WaiterFunc(func(context.Context) error {
		port.deliverTelegram([]byte{0x01, 0x02, 0xFF})
		port.deliverError(0x12345678)
		return nil
	})

	m := NewMonitor(port, NewConsoleHandler(&out), waiter, MonitorConfig{Target: testTarget}, nil)
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	want := "0x01 0x02 0xff\nkdrive error 0x12345678 timeout\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}
