// Package accessport drives one KNX access-port session in bus monitor mode.
//
// The package sits on top of an AccessPort (implemented by *kdrive.Layer)
// and owns:
//
//   - Session: the descriptor lifecycle, a state machine
//     Uninitialized → Created → CallbacksRegistered → Connected → Closed → Released,
//     with FatalFailure as the terminal state of a failed allocation.
//   - Registry: adapts the layer's asynchronous callbacks to a typed Handler,
//     copying telegram buffers and containing handler panics.
//   - Monitor: the bus monitor loop. It opens the session, blocks on a
//     termination signal, then closes and releases in that order.
//
// Terminated events are reported like any other event. Shutdown is driven only
// by the termination signal or context cancellation.
package accessport
