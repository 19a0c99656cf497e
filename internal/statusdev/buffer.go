// Package statusdev implements the read-only status device node.
//
// Each Open renders the current press count into a fixed-capacity buffer.
// Reads on that handle serve byte ranges of the buffer, so every read
// against one open sees the same value even while presses keep coming.
package statusdev

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

var (
	// ErrReadOnly wraps EROFS so callers mapping to errno get the classic value.
	ErrReadOnly       = fmt.Errorf("statusdev: device is read only: %w", unix.EROFS)
	ErrNegativeLength = errors.New("statusdev: negative read length")
	ErrClosed         = errors.New("statusdev: handle closed")
	ErrInvalidSeek    = errors.New("statusdev: invalid seek")
	ErrExists         = errors.New("statusdev: node already registered")
	ErrNotFound       = errors.New("statusdev: no such node")
)

const statusFormat = "The GPIO interrupt has been triggered %d times\n"

// Render formats count into a buffer of exactly capacity bytes. The text is
// NUL padded, or cut at capacity when it does not fit.
func Render(count uint64, capacity int) []byte {
	if capacity <= 0 {
		return nil
	}
	buf := make([]byte, capacity)
	copy(buf, fmt.Appendf(nil, statusFormat, count))
	return buf
}

// Slice returns the bytes of buf a read of length at offset would produce:
// min(length, len(buf)-offset) bytes, and none at or past the end. The
// result aliases buf.
func Slice(buf []byte, length int, offset int64) ([]byte, error) {
	if length < 0 {
		return nil, ErrNegativeLength
	}
	if offset < 0 {
		return nil, ErrInvalidSeek
	}
	size := int64(len(buf))
	if offset >= size || length == 0 {
		return buf[:0:0], nil
	}
	end := offset + int64(length)
	if end > size {
		end = size
	}
	return buf[offset:end], nil
}
