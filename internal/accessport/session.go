package accessport

import (
	"fmt"
	"sync"

	"github.com/nerrad567/knx-monitor/internal/kdrive"
	"github.com/nerrad567/knx-monitor/internal/telegram"
)

// State is the session lifecycle state.
type State int

// Session states.
const (
	StateUninitialized State = iota
	StateCreated
	StateCallbacksRegistered
	StateConnected
	StateClosed
	StateReleased
	StateFatalFailure
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateCreated:
		return "created"
	case StateCallbacksRegistered:
		return "callbacks_registered"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	case StateReleased:
		return "released"
	case StateFatalFailure:
		return "fatal_failure"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session owns one access port descriptor.
//
// Thread Safety:
//   - All methods are safe for concurrent use, but the lifecycle is meant to
//     be driven from a single goroutine.
//   - Handler callbacks run on layer goroutines.
type Session struct {
	port     AccessPort
	registry *Registry
	logger   Logger

	mu          sync.Mutex
	state       State
	ap          kdrive.Descriptor
	telegramKey kdrive.Key
	hasKey      bool
}

// NewSession creates an uninitialized session dispatching notifications to h.
func NewSession(port AccessPort, h Handler, logger Logger) *Session {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Session{
		port:     port,
		registry: NewRegistry(port, h, logger),
		logger:   logger,
		ap:       kdrive.InvalidDescriptor,
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Descriptor returns the access port descriptor, or kdrive.InvalidDescriptor.
func (s *Session) Descriptor() kdrive.Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ap
}

// Stats returns the callback counters.
func (s *Session) Stats() RegistryStats {
	return s.registry.Stats()
}

// Create allocates the descriptor. An invalid descriptor moves the session
// to StateFatalFailure and returns *AllocationError.
func (s *Session) Create() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateUninitialized {
		return stateError("create", s.state)
	}

	ap := s.port.Create()
	if ap == kdrive.InvalidDescriptor {
		s.state = StateFatalFailure
		return &AllocationError{}
	}

	s.ap = ap
	s.state = StateCreated
	s.logger.Debug("access port created", "ap", int(ap))
	return nil
}

// RegisterCallbacks registers the error and event callbacks.
func (s *Session) RegisterCallbacks() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateCreated {
		return stateError("register callbacks", s.state)
	}

	s.port.RegisterErrorCallback(s.registry.OnError)
	if code := s.port.SetEventCallback(s.ap, s.registry.OnEvent); code != kdrive.ErrorNone {
		return fmt.Errorf("%w: event callback: 0x%x", ErrRegistration, uint32(code))
	}

	s.state = StateCallbacksRegistered
	return nil
}

// Open connects to target. A non-zero status returns *ConnectionError and
// leaves the session unopened; Release is still required.
func (s *Session) Open(target Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateCallbacksRegistered {
		return stateError("open", s.state)
	}

	if code := s.port.OpenIPNat(s.ap, target.String()); code != kdrive.ErrorNone {
		return &ConnectionError{
			Target:  target,
			Code:    code,
			Message: boundMessage(s.port.ErrorMessage(code)),
		}
	}

	s.state = StateConnected
	s.logger.Info("access port opened", "ap", int(s.ap), "target", target.String())
	return nil
}

// RegisterTelegramCallback starts telegram delivery to the handler.
func (s *Session) RegisterTelegramCallback() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConnected {
		return fmt.Errorf("%w: %w", ErrNotConnected, stateError("register telegram callback", s.state))
	}
	if s.hasKey {
		return stateError("register telegram callback twice", s.state)
	}

	key, code := s.port.RegisterTelegramCallback(s.ap, s.registry.OnTelegram)
	if code != kdrive.ErrorNone {
		return fmt.Errorf("%w: telegram callback: 0x%x", ErrRegistration, uint32(code))
	}
	s.telegramKey = key
	s.hasKey = true
	return nil
}

// EnablePacketTrace turns on layer packet tracing.
func (s *Session) EnablePacketTrace() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConnected {
		return fmt.Errorf("%w: %w", ErrNotConnected, stateError("packet trace", s.state))
	}
	if code := s.port.PacketTraceConnect(s.ap, true); code != kdrive.ErrorNone {
		return fmt.Errorf("%w: packet trace: 0x%x", ErrRegistration, uint32(code))
	}
	return nil
}

// SendGroupWrite sends a GroupValueWrite. Delivery is not confirmed.
func (s *Session) SendGroupWrite(ga telegram.GroupAddress, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConnected {
		return fmt.Errorf("%w: %w", ErrNotConnected, stateError("group write", s.state))
	}
	if code := s.port.GroupWrite(s.ap, ga, payload); code != kdrive.ErrorNone {
		return fmt.Errorf("%w: %s: 0x%x %s", ErrSendFailed, ga, uint32(code),
			boundMessage(s.port.ErrorMessage(code)))
	}
	return nil
}

// Close closes the connection. It is valid once, while connected.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConnected {
		return stateError("close", s.state)
	}

	if s.hasKey {
		if code := s.port.UnregisterTelegramCallback(s.ap, s.telegramKey); code != kdrive.ErrorNone {
			s.logger.Warn("unregister telegram callback failed", "code", fmt.Sprintf("0x%x", uint32(code)))
		}
		s.hasKey = false
	}

	s.state = StateClosed
	if code := s.port.Close(s.ap); code != kdrive.ErrorNone {
		return fmt.Errorf("%w: 0x%x", ErrCloseFailed, uint32(code))
	}
	s.logger.Info("access port closed", "ap", int(s.ap))
	return nil
}

// Release frees the descriptor. It is valid once from any state after
// Created and never touches the invalid descriptor.
func (s *Session) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateCreated, StateCallbacksRegistered, StateConnected, StateClosed:
	default:
		return stateError("release", s.state)
	}

	s.state = StateReleased
	if code := s.port.Release(s.ap); code != kdrive.ErrorNone {
		return fmt.Errorf("%w: release: 0x%x", ErrCloseFailed, uint32(code))
	}
	s.logger.Debug("access port released", "ap", int(s.ap))
	return nil
}
