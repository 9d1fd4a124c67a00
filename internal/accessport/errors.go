package accessport

import (
	"errors"
	"fmt"

	"github.com/nerrad567/knx-monitor/internal/kdrive"
)

// Domain errors for the accessport package.
var (
	// ErrAllocation is returned when no access port descriptor could be created.
	ErrAllocation = errors.New("accessport: unable to create access port")

	// ErrConnection is returned when the access port could not be opened.
	ErrConnection = errors.New("accessport: connection failed")

	// ErrInvalidState is returned when an operation is not valid in the
	// session's current state.
	ErrInvalidState = errors.New("accessport: invalid session state")

	// ErrNotConnected is returned when an operation requires an open session.
	ErrNotConnected = errors.New("accessport: session not connected")

	// ErrRegistration is returned when the layer rejects a callback registration.
	ErrRegistration = errors.New("accessport: callback registration failed")

	// ErrSendFailed is returned when a group write is rejected by the layer.
	ErrSendFailed = errors.New("accessport: group write failed")

	// ErrCloseFailed is returned when the layer rejects close or release.
	ErrCloseFailed = errors.New("accessport: close failed")
)

// AllocationError reports that Create returned the invalid descriptor.
// It is terminal: no operation may follow on the session.
type AllocationError struct{}

func (e *AllocationError) Error() string {
	return ErrAllocation.Error()
}

func (e *AllocationError) Unwrap() error {
	return ErrAllocation
}

// ConnectionError reports a non-zero status from OpenIPNat.
type ConnectionError struct {
	Target  Target
	Code    kdrive.ErrorCode
	Message string
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("accessport: connection to %s failed: 0x%x %s", e.Target, uint32(e.Code), e.Message)
}

func (e *ConnectionError) Unwrap() error {
	return ErrConnection
}

// stateError wraps ErrInvalidState with the operation and state.
func stateError(op string, s State) error {
	return fmt.Errorf("%w: %s in state %s", ErrInvalidState, op, s)
}
