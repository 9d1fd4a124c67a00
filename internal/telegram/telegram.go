package telegram

import (
	"fmt"
	"strings"
)

// Telegram is an owned copy of one bus frame.
//
// It never aliases the buffer it was decoded from, so it may be queued or
// retained after the delivering callback returns.
type Telegram []byte

// hexTokenWidth is the length of one formatted byte ("0x1f") plus separator.
const hexTokenWidth = 5

// Decode copies the first length bytes of buf into a new Telegram.
//
// A length of zero yields an empty, non-nil Telegram.
//
// Returns:
//   - Telegram: Owned byte sequence
//   - error: ErrShortBuffer if length is negative or exceeds len(buf)
func Decode(buf []byte, length int) (Telegram, error) {
	if length < 0 || length > len(buf) {
		return nil, fmt.Errorf("%w: length %d, buffer %d", ErrShortBuffer, length, len(buf))
	}

	t := make(Telegram, length)
	copy(t, buf[:length])
	return t, nil
}

// Format renders bytes as space-separated two-digit hex tokens.
//
// Example: []byte{0x01, 0x02, 0xff} → "0x01 0x02 0xff"
func Format(b []byte) string {
	if len(b) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.Grow(len(b) * hexTokenWidth)
	for i, v := range b {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "0x%02x", v)
	}
	return sb.String()
}

// String returns the hex-formatted telegram.
func (t Telegram) String() string { return Format(t) }
