package kdrive

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/knx-monitor/internal/telegram"
)

func TestParseConnectionURL(t *testing.T) {
	tests := []struct {
		name        string
		url         string
		wantNetwork string
		wantAddress string
		wantErr     bool
	}{
		{
			name:        "unix socket",
			url:         "unix:///run/knxd",
			wantNetwork: "unix",
			wantAddress: "/run/knxd",
		},
		{
			name:        "tcp with host and port",
			url:         "tcp://localhost:6720",
			wantNetwork: "tcp",
			wantAddress: "localhost:6720",
		},
		{
			name:        "tcp without host defaults",
			url:         "tcp://",
			wantNetwork: "tcp",
			wantAddress: "localhost:6720",
		},
		{
			name:    "unsupported scheme",
			url:     "http://localhost:6720",
			wantErr: true,
		},
		{
			name:    "invalid URL",
			url:     "://invalid",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			network, address, err := parseConnectionURL(tt.url)
			if tt.wantErr {
				if err == nil {
					t.Error("parseConnectionURL() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseConnectionURL() unexpected error: %v", err)
			}
			if network != tt.wantNetwork {
				t.Errorf("network = %q, want %q", network, tt.wantNetwork)
			}
			if address != tt.wantAddress {
				t.Errorf("address = %q, want %q", address, tt.wantAddress)
			}
		})
	}
}

func TestKNXDMessage(t *testing.T) {
	msg := EncodeKNXDMessage(EIBGroupPacket, []byte{0x09, 0x01, 0x00, 0x81})
	want := []byte{0x00, 0x06, 0x00, 0x27, 0x09, 0x01, 0x00, 0x81}
	if !bytes.Equal(msg, want) {
		t.Fatalf("EncodeKNXDMessage() = %x, want %x", msg, want)
	}

	msgType, payload, err := ParseKNXDMessage(msg)
	if err != nil {
		t.Fatalf("ParseKNXDMessage() error: %v", err)
	}
	if msgType != EIBGroupPacket {
		t.Errorf("type = 0x%04X, want 0x%04X", msgType, EIBGroupPacket)
	}
	if !bytes.Equal(payload, want[4:]) {
		t.Errorf("payload = %x, want %x", payload, want[4:])
	}

	if _, _, err := ParseKNXDMessage([]byte{0x00, 0x09, 0x00, 0x27}); !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("size mismatch error = %v, want ErrInvalidMessage", err)
	}
	if _, _, err := ParseKNXDMessage([]byte{0x00}); !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("short message error = %v, want ErrInvalidMessage", err)
	}
}

func TestReadKNXDMessageOversized(t *testing.T) {
	data := []byte{0x01, 0x00, 0x00, 0x27}
	_, _, err := readKNXDMessage(bytes.NewReader(data), make([]byte, 16))
	if !errors.Is(err, ErrProtocolDesync) {
		t.Errorf("readKNXDMessage() error = %v, want ErrProtocolDesync", err)
	}
}

func TestGroupPacketFrame(t *testing.T) {
	payload := []byte{0x11, 0x05, 0x28, 0x01, 0x00, 0x80, 0x0C, 0x66}
	frame, ok := groupPacketFrame(payload)
	if !ok {
		t.Fatal("groupPacketFrame() ok = false")
	}

	f, err := telegram.ParseFrame(frame)
	if err != nil {
		t.Fatalf("ParseFrame() error: %v", err)
	}
	if f.Code != telegram.LDataInd {
		t.Errorf("Code = 0x%02x, want L_Data.ind", byte(f.Code))
	}
	if f.Source.String() != "1.1.5" {
		t.Errorf("Source = %s, want 1.1.5", f.Source)
	}
	ga, _ := f.GroupAddress()
	if ga.String() != "5/0/1" {
		t.Errorf("Destination = %s, want 5/0/1", ga)
	}
	if !bytes.Equal(f.Data, []byte{0x0C, 0x66}) {
		t.Errorf("Data = %x, want 0c66", f.Data)
	}

	if _, ok := groupPacketFrame(payload[:5]); ok {
		t.Error("groupPacketFrame() accepted truncated payload")
	}
}

// MockKNXDServer simulates a knxd server for testing.
type MockKNXDServer struct {
	listener net.Listener
	mu       sync.Mutex
	conn     net.Conn
	received [][]byte
	accepted chan struct{}
	done     chan struct{}
}

// NewMockKNXDServer creates a mock knxd server accepting any number of connections.
func NewMockKNXDServer(t *testing.T) *MockKNXDServer {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to create listener: %v", err)
	}

	server := &MockKNXDServer{
		listener: listener,
		accepted: make(chan struct{}, 8),
		done:     make(chan struct{}),
	}
	go server.acceptLoop()
	t.Cleanup(server.Close)
	return server
}

func (s *MockKNXDServer) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()
		go s.serve(conn)
	}
}

func (s *MockKNXDServer) serve(conn net.Conn) {
	buf := make([]byte, readBufferSize)
	for {
		msgType, payload, err := readKNXDMessage(conn, buf)
		if err != nil {
			return
		}

		s.mu.Lock()
		s.received = append(s.received, append([]byte{}, payload...))
		s.mu.Unlock()

		if msgType == EIBOpenGroupCon {
			conn.Write(EncodeKNXDMessage(EIBOpenGroupCon, nil))
			s.accepted <- struct{}{}
		}
	}
}

func (s *MockKNXDServer) Address() string {
	return s.listener.Addr().String()
}

func (s *MockKNXDServer) Close() {
	select {
	case <-s.done:
		return
	default:
	}
	close(s.done)
	s.listener.Close()
	s.DropConnection()
}

// DropConnection closes the current client connection.
func (s *MockKNXDServer) DropConnection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

func (s *MockKNXDServer) Received() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.received...)
}

// SendGroupPacket sends a GROUPCON receive packet: src(2) + GA(2) + APDU.
func (s *MockKNXDServer) SendGroupPacket(t *testing.T, src telegram.IndividualAddress, ga telegram.GroupAddress, apdu []byte) {
	t.Helper()
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		t.Fatal("No connection to send telegram")
	}

	payload := make([]byte, 4+len(apdu))
	binary.BigEndian.PutUint16(payload[0:2], uint16(src))
	binary.BigEndian.PutUint16(payload[2:4], uint16(ga))
	copy(payload[4:], apdu)
	if _, err := conn.Write(EncodeKNXDMessage(EIBGroupPacket, payload)); err != nil {
		t.Fatalf("write group packet: %v", err)
	}
}

func (s *MockKNXDServer) waitAccepted(t *testing.T) {
	t.Helper()
	select {
	case <-s.accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for GROUPCON handshake")
	}
}

func TestKNXDDialerSend(t *testing.T) {
	server := NewMockKNXDServer(t)

	link, err := KNXDDialer{ReadTimeout: time.Second}.Dial(context.Background(), server.Address(), nil)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer link.Close()
	server.waitAccepted(t)

	ga := telegram.NewGroupAddress(1, 2, 3)
	if err := link.Send(context.Background(), ga, []byte{0x00, 0x81}); err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	want := []byte{0x0A, 0x03, 0x00, 0x81}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		received := server.Received()
		if len(received) == 2 {
			if !bytes.Equal(received[1], want) {
				t.Errorf("group packet payload = %x, want %x", received[1], want)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server received %d messages, want 2", len(server.Received()))
}

func TestKNXDDialerReceive(t *testing.T) {
	server := NewMockKNXDServer(t)

	link, err := KNXDDialer{ReadTimeout: time.Second}.Dial(context.Background(), server.Address(), nil)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer link.Close()
	server.waitAccepted(t)

	src := telegram.IndividualAddress(0x1105)
	ga := telegram.NewGroupAddress(5, 0, 1)
	apdu := []byte{0x00, 0x80, 0x0C, 0x66}
	server.SendGroupPacket(t, src, ga, apdu)

	select {
	case frame := <-link.Frames():
		want := telegram.NewGroupFrame(telegram.LDataInd, src, ga, apdu)
		if !bytes.Equal(frame, want) {
			t.Errorf("frame = %s, want %s", telegram.Format(frame), want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for frame")
	}
}

func TestKNXDDialerFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, err := KNXDDialer{}.Dial(ctx, "127.0.0.1:19999", nil)
	if !errors.Is(err, ErrDialFailed) {
		t.Errorf("Dial() error = %v, want ErrDialFailed", err)
	}

	_, err = KNXDDialer{URL: "http://localhost"}.Dial(ctx, "", nil)
	if !errors.Is(err, ErrDialFailed) {
		t.Errorf("Dial() with bad URL error = %v, want ErrDialFailed", err)
	}
}

func TestKNXDReconnect(t *testing.T) {
	server := NewMockKNXDServer(t)

	events := make(chan EventCode, 4)
	link, err := KNXDDialer{
		ReadTimeout:       time.Second,
		ReconnectInterval: 20 * time.Millisecond,
	}.Dial(context.Background(), server.Address(), func(ev EventCode) { events <- ev })
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer link.Close()
	server.waitAccepted(t)

	server.DropConnection()

	for _, want := range []EventCode{EventBusDisconnected, EventBusConnected} {
		select {
		case got := <-events:
			if got != want {
				t.Errorf("event = %v, want %v", got, want)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("timeout waiting for %v", want)
		}
	}
	server.waitAccepted(t)
}

func TestLayerOverKNXD(t *testing.T) {
	server := NewMockKNXDServer(t)

	l := NewLayer(Config{
		Dialer: KNXDDialer{ReadTimeout: time.Second},
		Logger: quietLogger(),
	})
	ap := l.Create()
	defer l.Release(ap)

	if code := l.OpenIPNat(ap, server.Address()); code != ErrorNone {
		t.Fatalf("OpenIPNat() = 0x%x (%s)", code, code.Message())
	}
	server.waitAccepted(t)

	got := make(chan telegram.Telegram, 1)
	l.RegisterTelegramCallback(ap, func(frame []byte) {
		tg, _ := telegram.Decode(frame, len(frame))
		got <- tg
	})

	server.SendGroupPacket(t, 0x1105, telegram.NewGroupAddress(1, 2, 3), []byte{0x00, 0x81})

	select {
	case tg := <-got:
		want := "0x29 0x00 0xbc 0xe0 0x11 0x05 0x0a 0x03 0x01 0x00 0x81"
		if tg.String() != want {
			t.Errorf("telegram = %s, want %s", tg, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for telegram")
	}

	if code := l.Close(ap); code != ErrorNone {
		t.Errorf("Close() = 0x%x", code)
	}
}
