package kdrive

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"sync"
	"time"

	"github.com/vapourismo/knx-go/knx"
	"github.com/vapourismo/knx-go/knx/cemi"
	"github.com/vapourismo/knx-go/knx/knxnet"
	"github.com/vapourismo/knx-go/knx/util"

	"github.com/nerrad567/knx-monitor/internal/telegram"
)

// tunnelConn is the part of *knx.Tunnel used by the link.
type tunnelConn interface {
	Inbound() <-chan cemi.Message
	Send(msg cemi.Message) error
	Close()
}

var _ tunnelConn = (*knx.Tunnel)(nil)

// connectTunnel opens a data link layer tunnel, so every L_Data frame on
// the line is received, whatever its destination.
func connectTunnel(address string, cfg knx.TunnelConfig) (tunnelConn, error) {
	tunnel, err := knx.NewTunnel(address, knxnet.TunnelLayerData, cfg)
	if err != nil {
		return nil, err
	}
	return tunnel, nil
}

// TunnelDialer opens KNXnet/IP tunneling connections using knx-go.
// The gateway address is "host:port", typically port 3671.
type TunnelDialer struct {
	// ResponseTimeout bounds each gateway request. Default: knx-go default.
	ResponseTimeout time.Duration

	// connect replaces connectTunnel in tests.
	connect func(address string, cfg knx.TunnelConfig) (tunnelConn, error)
}

// Dial establishes the tunnel. knx-go has no context-aware constructor, so a
// cancelled ctx abandons the attempt and closes the tunnel if it completes later.
func (d TunnelDialer) Dial(ctx context.Context, address string, _ func(EventCode)) (Link, error) {
	cfg := knx.DefaultTunnelConfig
	if d.ResponseTimeout > 0 {
		cfg.ResponseTimeout = d.ResponseTimeout
	}

	connect := d.connect
	if connect == nil {
		connect = connectTunnel
	}

	type result struct {
		conn tunnelConn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := connect(address, cfg)
		ch <- result{conn: conn, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("%w: tunnel %s: %w", ErrDialFailed, address, r.err)
		}
		return newTunnelLink(r.conn), nil
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.err == nil {
				r.conn.Close()
			}
		}()
		return nil, fmt.Errorf("%w: tunnel %s: %w", ErrDialFailed, address, ctx.Err())
	}
}

type tunnelLink struct {
	conn   tunnelConn
	frames chan []byte
	done   *closeOnce
	wg     sync.WaitGroup
}

func newTunnelLink(conn tunnelConn) *tunnelLink {
	l := &tunnelLink{
		conn:   conn,
		frames: make(chan []byte, frameQueueSize),
		done:   newCloseOnce(),
	}
	l.wg.Add(1)
	go l.pump()
	return l
}

func (l *tunnelLink) Frames() <-chan []byte { return l.frames }

// pump forwards every inbound cEMI message as the bytes the gateway sent
// until the tunnel stops.
func (l *tunnelLink) pump() {
	defer l.wg.Done()
	defer close(l.frames)

	inbound := l.conn.Inbound()
	for {
		select {
		case <-l.done.Done():
			return
		case msg, ok := <-inbound:
			if !ok {
				return
			}
			select {
			case l.frames <- packMessage(msg):
			case <-l.done.Done():
				return
			}
		}
	}
}

func (l *tunnelLink) Send(ctx context.Context, dst telegram.GroupAddress, apdu []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	if l.done.IsClosed() {
		return ErrNotConnected
	}
	req, err := groupRequest(dst, apdu)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	if err := l.conn.Send(req); err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	return nil
}

func (l *tunnelLink) Close() error {
	l.done.Close()
	l.conn.Close()
	l.wg.Wait()
	return nil
}

// SetTrace routes knx-go's packet log through logger. A nil logger disables it.
// knx-go keeps a single package-level logger, so the setting is process-wide.
func (l *tunnelLink) SetTrace(logger *slog.Logger) {
	if logger == nil {
		util.Logger = log.New(io.Discard, "", 0)
		return
	}
	util.Logger = slog.NewLogLogger(logger.Handler(), slog.LevelInfo)
}

// packMessage serializes a cEMI message with its message code.
func packMessage(msg cemi.Message) []byte {
	buf := make([]byte, cemi.Size(msg))
	cemi.Pack(buf, msg)
	return buf
}

// groupRequest builds the L_Data.req carrying apdu to a group address.
func groupRequest(dst telegram.GroupAddress, apdu []byte) (*cemi.LDataReq, error) {
	if len(apdu) < 2 { //nolint:mnd // TPCI + APCI
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidAPDU, len(apdu))
	}

	data := append([]byte(nil), apdu[1:]...)
	data[0] &= 0x3F

	ctrl1 := cemi.Control1NoRepeat | cemi.Control1NoSysBroadcast | cemi.Control1WantAck | cemi.Control1Prio(cemi.PrioLow)
	if len(data) <= 15 { //nolint:mnd // standard frame limit
		ctrl1 |= cemi.Control1StdFrame
	}

	return &cemi.LDataReq{LData: cemi.LData{
		Control1:    ctrl1,
		Control2:    cemi.Control2GroupAddr | cemi.Control2Hops(6), //nolint:mnd // default hop count
		Destination: uint16(dst),
		Data: &cemi.AppData{
			Command: cemi.APCI((apdu[0]&0x03)<<2 | apdu[1]>>6),
			Data:    data,
		},
	}}, nil
}
