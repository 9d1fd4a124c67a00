// Package telegram decodes raw KNX telegram buffers.
//
// The access-port layer hands out frames as borrowed byte buffers that are
// only valid for the duration of a callback. This package turns such a
// buffer into an owned Telegram, formats it for the console, and parses the
// cEMI L_Data structure (source, destination, APCI, payload) used by the
// forwarding sinks.
//
// # Formatting
//
//	t, _ := telegram.Decode([]byte{0x01, 0x02, 0xff}, 3)
//	fmt.Println(telegram.Format(t)) // "0x01 0x02 0xff"
//
// # Frame layout
//
// Frames are cEMI messages as delivered by KNXnet/IP tunnels:
//
//	Byte 0:   message code (0x29 L_Data.ind, 0x2E L_Data.con, 0x11 L_Data.req)
//	Byte 1:   additional info length (n)
//	Byte 2+n: control field 1
//	Byte 3+n: control field 2 (bit 7: group destination, bits 4-6: hop count)
//	Byte 4+n: source individual address (big-endian)
//	Byte 6+n: destination address (big-endian)
//	Byte 8+n: NPDU length
//	Byte 9+n: TPCI / APCI (upper 2 bits)
//	Byte 10+n: APCI (lower 2 bits) | 6-bit data, followed by long data
//
// # Thread Safety
//
// All functions are pure and safe for concurrent use.
package telegram
