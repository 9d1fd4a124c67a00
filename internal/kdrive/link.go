package kdrive

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nerrad567/knx-monitor/internal/telegram"
)

// Link is an open transport to a KNX interface.
type Link interface {
	// Frames delivers received cEMI L_Data frames. Each slice is owned by
	// the receiver. The channel is closed when the link stops.
	Frames() <-chan []byte

	// Send transmits an APDU (as built by telegram.EncodeAPDU) to a group address.
	Send(ctx context.Context, dst telegram.GroupAddress, apdu []byte) error

	// Close stops the link and waits for its goroutines.
	Close() error
}

// Dialer opens links. notify receives bus state events raised by the
// transport for the lifetime of the link.
type Dialer interface {
	Dial(ctx context.Context, address string, notify func(EventCode)) (Link, error)
}

// tracer is implemented by links with transport-level packet tracing.
type tracer interface {
	SetTrace(logger *slog.Logger)
}

// Logger interface for optional transport logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

func (c *closeOnce) IsClosed() bool {
	select {
	case <-c.ch:
		return true
	default:
		return false
	}
}
