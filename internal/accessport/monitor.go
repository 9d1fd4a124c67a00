package accessport

import (
	"context"
	"errors"
	"io"

	"github.com/nerrad567/knx-monitor/internal/kdrive"
	"github.com/nerrad567/knx-monitor/internal/telegram"
)

// Log lines written through the layer logger.
const (
	msgAllocationFailure = "Unable to create access port. This is a terminal failure"
	msgEnterBusMonitor   = "Entering BusMonitor Mode"
	msgPressEnter        = "Press [Enter] to exit the application ..."
)

// Waiter blocks until the user asks to terminate.
type Waiter interface {
	Wait(ctx context.Context) error
}

// WaiterFunc adapts a function to a Waiter.
type WaiterFunc func(ctx context.Context) error

func (f WaiterFunc) Wait(ctx context.Context) error { return f(ctx) }

// GroupWrite is a telegram sent once after the port is opened.
type GroupWrite struct {
	Address telegram.GroupAddress
	Payload []byte
}

// MonitorConfig configures a bus monitor run.
type MonitorConfig struct {
	Target      Target
	PacketTrace bool

	// LogLevel is applied to the layer logger when non-zero.
	LogLevel kdrive.LogLevel

	// StartupWrite is sent after open when non-nil.
	StartupWrite *GroupWrite
}

// Monitor runs one access-port session in bus monitor mode.
type Monitor struct {
	port    AccessPort
	handler Handler
	waiter  Waiter
	cfg     MonitorConfig
	logger  Logger

	session *Session
}

// NewMonitor creates a monitor. cfg is copied.
func NewMonitor(port AccessPort, h Handler, waiter Waiter, cfg MonitorConfig, logger Logger) *Monitor {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Monitor{
		port:    port,
		handler: h,
		waiter:  waiter,
		cfg:     cfg,
		logger:  logger,
	}
}

// Run creates and opens the session, monitors the bus until the waiter
// returns or ctx is cancelled, then closes and releases the port.
//
// Returns:
//   - *AllocationError if no descriptor could be created (nothing else is attempted)
//   - *ConnectionError if the port could not be opened (the descriptor is released)
//   - nil on a clean shutdown
func (m *Monitor) Run(ctx context.Context) (err error) {
	if m.cfg.LogLevel != kdrive.LogNone {
		m.port.SetLogLevel(m.cfg.LogLevel)
	}

	s := NewSession(m.port, m.handler, m.logger)
	m.session = s

	if err := s.Create(); err != nil {
		m.port.Log(kdrive.LogFatal, msgAllocationFailure)
		return err
	}
	defer func() {
		if relErr := s.Release(); relErr != nil {
			m.logger.Error("release failed", "error", relErr)
			if err == nil {
				err = relErr
			}
		}
	}()

	if err := s.RegisterCallbacks(); err != nil {
		return err
	}
	if err := s.Open(m.cfg.Target); err != nil {
		return err
	}
	defer func() {
		if closeErr := s.Close(); closeErr != nil {
			m.logger.Error("close failed", "error", closeErr)
			if err == nil {
				err = closeErr
			}
		}
	}()

	if m.cfg.PacketTrace {
		if err := s.EnablePacketTrace(); err != nil {
			m.logger.Warn("packet trace unavailable", "error", err)
		}
	}

	if w := m.cfg.StartupWrite; w != nil {
		if err := s.SendGroupWrite(w.Address, w.Payload); err != nil {
			m.logger.Warn("startup group write failed", "ga", w.Address.String(), "error", err)
		}
	}

	if err := s.RegisterTelegramCallback(); err != nil {
		return err
	}

	m.port.Log(kdrive.LogInformation, msgEnterBusMonitor)
	m.port.Log(kdrive.LogInformation, msgPressEnter)

	if err := m.waiter.Wait(ctx); err != nil &&
		!errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Stats returns the callback counters of the last run.
func (m *Monitor) Stats() RegistryStats {
	if m.session == nil {
		return RegistryStats{}
	}
	return m.session.Stats()
}
