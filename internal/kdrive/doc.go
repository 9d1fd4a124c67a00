// Package kdrive implements the KNX access-port layer.
//
// An access port is addressed by an integer Descriptor. The layer owns the
// descriptor table, the transport links and the goroutines that deliver
// notifications, and exposes a callback-based API:
//
//	layer := kdrive.NewLayer(kdrive.Config{Dialer: kdrive.TunnelDialer{}})
//	layer.RegisterErrorCallback(onError)
//	ap := layer.Create()
//	if ap == kdrive.InvalidDescriptor {
//	    // allocation failed
//	}
//	layer.SetEventCallback(ap, onEvent)
//	if layer.OpenIPNat(ap, "192.168.1.47:3671") == kdrive.ErrorNone {
//	    key, _ := layer.RegisterTelegramCallback(ap, onTelegram)
//	    ...
//	    layer.Close(ap)
//	}
//	layer.Release(ap)
//
// # Callbacks
//
// Callbacks run on layer goroutines, never on the caller's goroutine except
// for errors raised synchronously by an API call. Invocations of the same
// kind are serialized; different kinds may run concurrently.
//
// The frame passed to a TelegramCallback is borrowed: the layer reuses the
// buffer for the next frame as soon as the callback returns. Callers must
// copy anything they keep.
//
// # Transports
//
//   - TunnelDialer: KNXnet/IP data link layer tunneling via github.com/vapourismo/knx-go;
//     frames are delivered exactly as received
//   - KNXDDialer: knxd daemon group socket (EIB_OPEN_GROUPCON) over TCP or Unix socket
package kdrive
