package kdrive

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/knx-monitor/internal/telegram"
)

// knxd protocol message types.
const (
	// EIBOpenGroupCon opens a group socket for sending/receiving group telegrams.
	// Format: type(2) + reserved(1) + write_only(1) + reserved(1)
	EIBOpenGroupCon uint16 = 0x0026

	// EIBGroupPacket carries group telegrams.
	// Send payload: GA(2) + APDU. Receive payload: src(2) + GA(2) + APDU.
	EIBGroupPacket uint16 = 0x0027

	// EIBClose closes the knxd connection gracefully.
	EIBClose uint16 = 0x0006
)

// Default timeouts and intervals for knxd communication.
const (
	// defaultConnectTimeout is the maximum time to wait for a (re)connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultReadTimeout is the timeout for individual read operations.
	defaultReadTimeout = 30 * time.Second

	// defaultWriteTimeout is the timeout for write operations.
	defaultWriteTimeout = 5 * time.Second

	// defaultReconnectInterval is the initial delay between reconnection attempts.
	defaultReconnectInterval = 5 * time.Second

	// maxReconnectInterval is the maximum delay between reconnection attempts.
	maxReconnectInterval = 2 * time.Minute

	// knxdHeaderSize is size(2) + type(2).
	knxdHeaderSize = 4

	// readBufferSize is the size of the read buffer for incoming messages.
	readBufferSize = 256

	// frameQueueSize is the buffer of received frames awaiting the dispatcher.
	frameQueueSize = 64
)

// KNXDDialer opens links through a knxd daemon group socket.
type KNXDDialer struct {
	// URL is the knxd connection URL ("unix:///run/knxd", "tcp://host:6720").
	// When empty, the address passed to Dial is used as a TCP endpoint.
	URL string

	// ReadTimeout is the timeout for read operations. Default: 30 seconds.
	ReadTimeout time.Duration

	// ReconnectInterval is the initial delay between reconnection attempts.
	// Default: 5 seconds.
	ReconnectInterval time.Duration

	// Logger is optional.
	Logger Logger
}

// Dial connects to knxd and opens group communication mode.
func (d KNXDDialer) Dial(ctx context.Context, address string, notify func(EventCode)) (Link, error) {
	connURL := d.URL
	if connURL == "" {
		connURL = "tcp://" + address
	}
	network, addr, err := parseConnectionURL(connURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDialFailed, err)
	}

	l := &knxdLink{
		network:           network,
		address:           addr,
		readTimeout:       d.ReadTimeout,
		reconnectInterval: d.ReconnectInterval,
		logger:            d.Logger,
		notify:            notify,
		frames:            make(chan []byte, frameQueueSize),
		done:              newCloseOnce(),
	}
	if l.readTimeout == 0 {
		l.readTimeout = defaultReadTimeout
	}
	if l.reconnectInterval == 0 {
		l.reconnectInterval = defaultReconnectInterval
	}
	if l.notify == nil {
		l.notify = func(EventCode) {}
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s://%s: %w", ErrDialFailed, network, addr, err)
	}
	if err := openGroupCon(ctx, conn, l.readTimeout); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: handshake failed: %w", ErrDialFailed, err)
	}

	l.conn = conn
	l.connected.Store(true)

	l.wg.Add(1)
	go l.receiveLoop()

	return l, nil
}

// parseConnectionURL parses a knxd connection URL into network and address.
func parseConnectionURL(connURL string) (network, address string, err error) {
	u, err := url.Parse(connURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "unix":
		return "unix", u.Path, nil
	case "tcp":
		host := u.Host
		if host == "" {
			host = "localhost:6720"
		}
		return "tcp", host, nil
	default:
		return "", "", fmt.Errorf("unsupported scheme %q (use unix or tcp)", u.Scheme)
	}
}

// openGroupCon sends EIB_OPEN_GROUPCON and waits for the acknowledgement.
// write_only=0x00 enables bidirectional communication.
func openGroupCon(ctx context.Context, conn net.Conn, readTimeout time.Duration) error {
	msg := EncodeKNXDMessage(EIBOpenGroupCon, []byte{0x00, 0x00, 0x00})

	if err := conn.SetWriteDeadline(deadlineFor(ctx, defaultWriteTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	if _, err := conn.Write(msg); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	if err := conn.SetReadDeadline(deadlineFor(ctx, readTimeout)); err != nil {
		return fmt.Errorf("set read deadline: %w", err)
	}
	buf := make([]byte, readBufferSize)
	msgType, _, err := readKNXDMessage(conn, buf)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if msgType != EIBOpenGroupCon {
		return fmt.Errorf("unexpected response type: 0x%04X", msgType)
	}
	return nil
}

// deadlineFor returns now+d, or the context deadline when it is sooner.
func deadlineFor(ctx context.Context, d time.Duration) time.Time {
	deadline := time.Now().Add(d)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	return deadline
}

// readKNXDMessage reads one framed message into buf.
// Oversized messages return ErrProtocolDesync: skipping them safely is not possible.
func readKNXDMessage(r io.Reader, buf []byte) (uint16, []byte, error) {
	if _, err := io.ReadFull(r, buf[:2]); err != nil {
		return 0, nil, fmt.Errorf("read size: %w", err)
	}

	// Size field = type(2) + payload, NOT including the size field itself.
	msgSize := binary.BigEndian.Uint16(buf[:2])
	if msgSize < 2 {
		return 0, nil, fmt.Errorf("%w: size %d", ErrInvalidMessage, msgSize)
	}

	totalLen := 2 + int(msgSize)
	if totalLen > len(buf) {
		return 0, nil, fmt.Errorf("%w: size %d exceeds buffer %d", ErrProtocolDesync, totalLen, len(buf))
	}
	if _, err := io.ReadFull(r, buf[2:totalLen]); err != nil {
		return 0, nil, fmt.Errorf("read message: %w", err)
	}

	return ParseKNXDMessage(buf[:totalLen])
}

// EncodeKNXDMessage wraps a payload in the knxd message format.
//
//	Byte 0-1: Size of type + payload (big-endian)
//	Byte 2-3: Message type (big-endian)
//	Byte 4+:  Payload
func EncodeKNXDMessage(msgType uint16, payload []byte) []byte {
	buf := make([]byte, knxdHeaderSize+len(payload))
	binary.BigEndian.PutUint16(buf[0:2], uint16(2+len(payload))) //nolint:gosec // bounded by small message sizes
	binary.BigEndian.PutUint16(buf[2:4], msgType)
	copy(buf[4:], payload)
	return buf
}

// ParseKNXDMessage parses a raw knxd message. The payload aliases data.
func ParseKNXDMessage(data []byte) (msgType uint16, payload []byte, err error) {
	if len(data) < knxdHeaderSize {
		return 0, nil, fmt.Errorf("%w: message too short (%d bytes)", ErrInvalidMessage, len(data))
	}

	declaredSize := binary.BigEndian.Uint16(data[0:2])
	expectedSize := len(data) - 2
	if int(declaredSize) != expectedSize {
		return 0, nil, fmt.Errorf("%w: size mismatch (declared %d, expected %d)",
			ErrInvalidMessage, declaredSize, expectedSize)
	}

	msgType = binary.BigEndian.Uint16(data[2:4])
	if len(data) > knxdHeaderSize {
		payload = data[knxdHeaderSize:]
	}
	return msgType, payload, nil
}

// groupPacketFrame converts a GROUPCON receive payload, src(2) + GA(2) + APDU,
// into a cEMI L_Data.ind frame.
func groupPacketFrame(payload []byte) ([]byte, bool) {
	if len(payload) < 6 { //nolint:mnd // src + GA + minimum APDU
		return nil, false
	}
	src := telegram.IndividualAddress(binary.BigEndian.Uint16(payload[0:2]))
	dst := telegram.GroupAddress(binary.BigEndian.Uint16(payload[2:4]))
	return telegram.NewGroupFrame(telegram.LDataInd, src, dst, payload[4:]), true
}

// knxdLink is a GROUPCON socket to knxd.
//
// When the connection is lost the link reconnects with exponential backoff
// (ReconnectInterval, x1.5, capped at 2 minutes) and raises
// EventBusDisconnected / EventBusConnected. Reconnection stops only on Close.
type knxdLink struct {
	network           string
	address           string
	readTimeout       time.Duration
	reconnectInterval time.Duration
	logger            Logger
	notify            func(EventCode)

	connMu    sync.RWMutex
	conn      net.Conn
	connected atomic.Bool

	frames chan []byte
	done   *closeOnce
	wg     sync.WaitGroup
}

func (l *knxdLink) Frames() <-chan []byte { return l.frames }

// receiveLoop reads group packets until Close.
func (l *knxdLink) receiveLoop() {
	defer l.wg.Done()
	defer close(l.frames)

	buf := make([]byte, readBufferSize)
	for {
		if l.done.IsClosed() {
			return
		}

		l.connMu.RLock()
		conn := l.conn
		l.connMu.RUnlock()

		if err := conn.SetReadDeadline(time.Now().Add(l.readTimeout)); err != nil {
			l.logError("set read deadline failed", err)
		}
		msgType, payload, err := readKNXDMessage(conn, buf)
		if err != nil {
			if !l.handleReadError(err) {
				continue
			}
			if !l.reconnect() {
				return
			}
			continue
		}

		if msgType != EIBGroupPacket {
			continue
		}
		frame, ok := groupPacketFrame(payload)
		if !ok {
			continue
		}
		select {
		case l.frames <- frame:
		case <-l.done.Done():
			return
		}
	}
}

// handleReadError returns true when the connection must be re-established.
func (l *knxdLink) handleReadError(err error) bool {
	if l.done.IsClosed() {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return false
	}
	if errors.Is(err, ErrInvalidMessage) {
		l.logError("invalid message", err)
		return false
	}

	l.logError("read failed", err)
	if l.connected.CompareAndSwap(true, false) {
		l.logInfo("connection lost, will attempt reconnection")
		l.notify(EventBusDisconnected)
	}
	return true
}

// reconnect re-establishes the connection with exponential backoff.
// Returns false if Close was called.
func (l *knxdLink) reconnect() bool {
	backoff := l.reconnectInterval
	for attempt := 1; ; attempt++ {
		if l.done.IsClosed() {
			return false
		}
		l.logInfo("attempting reconnection", "attempt", attempt, "backoff", backoff.String())

		l.connMu.Lock()
		if l.conn != nil {
			l.conn.Close()
		}
		l.connMu.Unlock()

		conn, err := l.redial()
		if err == nil {
			l.connMu.Lock()
			l.conn = conn
			l.connMu.Unlock()
			if l.done.IsClosed() {
				conn.Close()
				return false
			}
			l.connected.Store(true)
			l.logInfo("reconnection successful", "attempts", attempt)
			l.notify(EventBusConnected)
			return true
		}

		l.logError("reconnect failed", err)
		select {
		case <-l.done.Done():
			return false
		case <-time.After(backoff):
		}
		backoff = min(time.Duration(float64(backoff)*1.5), maxReconnectInterval)
	}
}

func (l *knxdLink) redial() (net.Conn, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, l.network, l.address)
	if err != nil {
		return nil, fmt.Errorf("dial %s://%s: %w", l.network, l.address, err)
	}
	if err := openGroupCon(ctx, conn, l.readTimeout); err != nil {
		conn.Close()
		return nil, fmt.Errorf("handshake: %w", err)
	}
	return conn, nil
}

// Send writes an EIB_GROUP_PACKET: GA(2) + APDU.
func (l *knxdLink) Send(ctx context.Context, dst telegram.GroupAddress, apdu []byte) error {
	if !l.connected.Load() {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	payload := make([]byte, 2+len(apdu))
	binary.BigEndian.PutUint16(payload[0:2], uint16(dst))
	copy(payload[2:], apdu)
	msg := EncodeKNXDMessage(EIBGroupPacket, payload)

	l.connMu.RLock()
	defer l.connMu.RUnlock()
	if l.conn == nil {
		return ErrNotConnected
	}
	if err := l.conn.SetWriteDeadline(deadlineFor(ctx, defaultWriteTimeout)); err != nil {
		return fmt.Errorf("%w: set deadline: %w", ErrSendFailed, err)
	}
	if _, err := l.conn.Write(msg); err != nil {
		return fmt.Errorf("%w: write: %w", ErrSendFailed, err)
	}
	return nil
}

// Close stops the receive loop and closes the socket. Safe to call multiple times.
func (l *knxdLink) Close() error {
	l.done.Close()
	l.connected.Store(false)

	l.connMu.Lock()
	if l.conn != nil {
		l.conn.Close()
	}
	l.connMu.Unlock()

	l.wg.Wait()
	l.logInfo("knxd connection closed")
	return nil
}

func (l *knxdLink) logInfo(msg string, keysAndValues ...any) {
	if l.logger != nil {
		l.logger.Info(msg, keysAndValues...)
	}
}

func (l *knxdLink) logError(msg string, err error) {
	if l.logger != nil {
		l.logger.Error(msg, "error", err)
	}
}
