package kdrive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/knx-monitor/internal/telegram"
)

// Layer defaults.
const (
	// defaultMaxPorts is the descriptor table capacity.
	defaultMaxPorts = 8

	// defaultOpenTimeout bounds OpenIPNat.
	defaultOpenTimeout = 10 * time.Second

	// defaultSendTimeout bounds GroupWrite.
	defaultSendTimeout = 5 * time.Second

	// maxAPDULength is the largest APDU of an extended L_Data frame.
	maxAPDULength = 255
)

// Config holds layer configuration.
type Config struct {
	// Dialer opens transport links. Required.
	Dialer Dialer

	// MaxPorts is the descriptor table capacity. Default: 8.
	MaxPorts int

	// OpenTimeout bounds connection establishment. Default: 10 seconds.
	OpenTimeout time.Duration

	// SendTimeout bounds a group write. Default: 5 seconds.
	SendTimeout time.Duration

	// Logger receives layer log output. Default: slog.Default().
	Logger *slog.Logger
}

// Layer is the access-port layer. All methods are safe for concurrent use.
type Layer struct {
	cfg    Config
	logger *slog.Logger
	level  atomic.Int32

	mu    sync.Mutex
	ports []*port

	// errMu serializes error callback invocations.
	errMu sync.Mutex
	errCb ErrorCallback
}

// NewLayer creates a layer with an empty descriptor table.
func NewLayer(cfg Config) *Layer {
	if cfg.MaxPorts <= 0 {
		cfg.MaxPorts = defaultMaxPorts
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = defaultOpenTimeout
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	l := &Layer{
		cfg:    cfg,
		logger: cfg.Logger,
		ports:  make([]*port, cfg.MaxPorts),
	}
	l.level.Store(int32(LogInformation))
	return l
}

// Create allocates an access port. It returns InvalidDescriptor when the
// descriptor table is full.
func (l *Layer) Create() Descriptor {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, p := range l.ports {
		if p != nil {
			continue
		}
		p = newPort(l, Descriptor(i))
		l.ports[i] = p
		l.logAt(LogDebug, "access port created", "ap", i)
		return p.id
	}

	l.logAt(LogError, "descriptor table full", "capacity", len(l.ports))
	return InvalidDescriptor
}

// Release closes the port if it is open, waits for its dispatchers and
// frees the descriptor. It must not be called from a layer callback.
func (l *Layer) Release(ap Descriptor) ErrorCode {
	l.mu.Lock()
	p := l.portLocked(ap)
	if p != nil {
		l.ports[ap] = nil
	}
	l.mu.Unlock()

	if p == nil {
		return l.fail(ErrorInvalidDescriptor)
	}

	p.closeLink()
	p.stop()
	l.logAt(LogDebug, "access port released", "ap", int(ap))
	return ErrorNone
}

// RegisterErrorCallback sets the layer-wide error callback. nil removes it.
// Invocations are serialized; the callback may call ErrorMessage and Log but
// no other layer method.
func (l *Layer) RegisterErrorCallback(cb ErrorCallback) {
	l.errMu.Lock()
	l.errCb = cb
	l.errMu.Unlock()
}

// SetEventCallback sets the event callback of a port. nil removes it.
func (l *Layer) SetEventCallback(ap Descriptor, cb EventCallback) ErrorCode {
	p := l.port(ap)
	if p == nil {
		return l.fail(ErrorInvalidDescriptor)
	}
	p.mu.Lock()
	p.eventCb = cb
	p.mu.Unlock()
	return ErrorNone
}

// OpenIPNat opens a tunneling connection to address ("host:port").
// On failure the code is also reported through the error callback.
func (l *Layer) OpenIPNat(ap Descriptor, address string) ErrorCode {
	p := l.port(ap)
	if p == nil {
		return l.fail(ErrorInvalidDescriptor)
	}
	if _, _, err := net.SplitHostPort(address); err != nil {
		l.logAt(LogError, "invalid address", "ap", int(ap), "address", address, "error", err)
		return l.fail(ErrorInvalidArgument)
	}
	if !p.beginOpen() {
		return l.fail(ErrorInvalidState)
	}

	p.emit(EventOpening)
	l.logAt(LogInformation, "opening access port", "ap", int(ap), "address", address)

	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.OpenTimeout)
	defer cancel()

	link, err := l.cfg.Dialer.Dial(ctx, address, p.emit)
	if err != nil {
		p.abortOpen()
		l.logAt(LogError, "open failed", "ap", int(ap), "address", address, "error", err)
		if errors.Is(err, context.DeadlineExceeded) {
			return l.fail(ErrorTimeout)
		}
		return l.fail(ErrorOpenFailed)
	}

	p.attach(link)
	p.emit(EventOpened)
	l.logAt(LogInformation, "access port opened", "ap", int(ap), "address", address)
	return ErrorNone
}

// Close closes the connection of an open (or terminated) port. Deliveries
// stop; callbacks already running are not waited for.
func (l *Layer) Close(ap Descriptor) ErrorCode {
	p := l.port(ap)
	if p == nil {
		return l.fail(ErrorInvalidDescriptor)
	}
	if !p.closeLink() {
		return l.fail(ErrorNotOpen)
	}
	l.logAt(LogInformation, "access port closed", "ap", int(ap))
	return ErrorNone
}

// RegisterTelegramCallback adds a telegram callback. Callbacks run in
// registration order on the port's telegram dispatcher.
func (l *Layer) RegisterTelegramCallback(ap Descriptor, cb TelegramCallback) (Key, ErrorCode) {
	p := l.port(ap)
	if p == nil {
		return 0, l.fail(ErrorInvalidDescriptor)
	}
	if cb == nil {
		return 0, l.fail(ErrorInvalidArgument)
	}
	return p.addTelegramCallback(cb), ErrorNone
}

// UnregisterTelegramCallback removes a telegram callback.
func (l *Layer) UnregisterTelegramCallback(ap Descriptor, key Key) ErrorCode {
	p := l.port(ap)
	if p == nil {
		return l.fail(ErrorInvalidDescriptor)
	}
	if !p.removeTelegramCallback(key) {
		return l.fail(ErrorInvalidArgument)
	}
	return ErrorNone
}

// GroupWrite sends a GroupValueWrite to ga. A single value ≤ 0x3F is sent
// as short data.
func (l *Layer) GroupWrite(ap Descriptor, ga telegram.GroupAddress, data []byte) ErrorCode {
	p := l.port(ap)
	if p == nil {
		return l.fail(ErrorInvalidDescriptor)
	}
	link := p.openLink()
	if link == nil {
		return l.fail(ErrorNotOpen)
	}

	apdu := telegram.EncodeAPDU(telegram.APCIWrite, data)
	if len(apdu) > maxAPDULength {
		return l.fail(ErrorTelegramTooLong)
	}

	if p.traced() {
		l.logAt(LogInformation, "packet trace", "ap", int(ap), "dir", "tx",
			"frame", telegram.Format(telegram.NewGroupFrame(telegram.LDataReq, 0, ga, apdu)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.SendTimeout)
	defer cancel()

	if err := link.Send(ctx, ga, apdu); err != nil {
		l.logAt(LogError, "group write failed", "ap", int(ap), "ga", ga.String(), "error", err)
		return l.fail(ErrorSendFailed)
	}
	return ErrorNone
}

// PacketTraceConnect enables or disables rx/tx packet tracing on a port.
func (l *Layer) PacketTraceConnect(ap Descriptor, enabled bool) ErrorCode {
	p := l.port(ap)
	if p == nil {
		return l.fail(ErrorInvalidDescriptor)
	}
	p.setTrace(enabled)
	return ErrorNone
}

// ErrorMessage returns the description of code.
func (l *Layer) ErrorMessage(code ErrorCode) string {
	return code.Message()
}

func (l *Layer) port(ap Descriptor) *port {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.portLocked(ap)
}

func (l *Layer) portLocked(ap Descriptor) *port {
	if ap < 0 || int(ap) >= len(l.ports) {
		return nil
	}
	return l.ports[ap]
}

// fail reports code through the error callback and returns it.
func (l *Layer) fail(code ErrorCode) ErrorCode {
	l.reportError(code)
	return code
}

func (l *Layer) reportError(code ErrorCode) {
	l.errMu.Lock()
	defer l.errMu.Unlock()

	if l.errCb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			l.logAt(LogError, "error callback panic", "code", fmt.Sprintf("0x%x", uint32(code)), "panic", r)
		}
	}()
	l.errCb(code)
}
