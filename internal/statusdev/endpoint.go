package statusdev

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Counter is the live value the endpoint snapshots.
type Counter interface {
	PressCount() uint64
}

// Endpoint is a named read-only byte-stream node.
type Endpoint struct {
	name     string
	class    string
	capacity int
	src      Counter

	opens    atomic.Uint64
	releases atomic.Uint64
}

// NewEndpoint creates an endpoint serving snapshots of src.
func NewEndpoint(name, class string, capacity int, src Counter) *Endpoint {
	return &Endpoint{
		name:     name,
		class:    class,
		capacity: capacity,
		src:      src,
	}
}

// Name returns the node name.
func (e *Endpoint) Name() string { return e.name }

// Class returns the device class the node is grouped under.
func (e *Endpoint) Class() string { return e.class }

// Path returns the logical path of the node.
func (e *Endpoint) Path() string { return "/dev/" + e.name }

// Capacity returns the size of every rendered buffer.
func (e *Endpoint) Capacity() int { return e.capacity }

// OpenCount returns how many handles have been opened.
func (e *Endpoint) OpenCount() uint64 { return e.opens.Load() }

// ReleaseCount returns how many handles have been released.
func (e *Endpoint) ReleaseCount() uint64 { return e.releases.Load() }

// Open snapshots the counter (one atomic load) and returns a handle at
// offset zero.
func (e *Endpoint) Open() *Handle {
	e.opens.Add(1)
	count := e.src.PressCount()
	h := &Handle{
		id:       uuid.New(),
		endpoint: e,
		count:    count,
		buf:      Render(count, e.capacity),
	}
	slog.Debug("statusdev: opened", "node", e.name, "handle", h.id, "count", count)
	return h
}

// Handle is one open of an Endpoint. It is safe for concurrent use, but
// handles never share state with each other.
type Handle struct {
	id       uuid.UUID
	endpoint *Endpoint
	count    uint64

	mu     sync.Mutex
	buf    []byte
	offset int64
	closed bool
}

var (
	_ io.ReadWriteSeeker = (*Handle)(nil)
	_ io.Closer          = (*Handle)(nil)
)

// ID returns the handle's unique id.
func (h *Handle) ID() uuid.UUID { return h.id }

// Count returns the press count captured at open.
func (h *Handle) Count() uint64 { return h.count }

// Offset returns the current read offset.
func (h *Handle) Offset() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.offset
}

// ReadN reads up to length bytes at the current offset and advances it by
// the number of bytes returned. An empty result means end of stream.
func (h *Handle) ReadN(length int) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	chunk, err := Slice(h.buf, length, h.offset)
	if err != nil {
		return nil, err
	}
	h.offset += int64(len(chunk))
	out := make([]byte, len(chunk))
	copy(out, chunk)
	return out, nil
}

// Read implements io.Reader over ReadN, returning io.EOF at end of stream.
func (h *Handle) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, ErrClosed
	}
	chunk, err := Slice(h.buf, len(p), h.offset)
	if err != nil {
		return 0, err
	}
	if len(chunk) == 0 {
		return 0, io.EOF
	}
	n := copy(p, chunk)
	h.offset += int64(n)
	return n, nil
}

// Seek implements io.Seeker. Seeking past the end is allowed; reads there
// return nothing.
func (h *Handle) Seek(offset int64, whence int) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, ErrClosed
	}
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = h.offset + offset
	case io.SeekEnd:
		abs = int64(len(h.buf)) + offset
	default:
		return 0, ErrInvalidSeek
	}
	if abs < 0 {
		return 0, ErrInvalidSeek
	}
	h.offset = abs
	return abs, nil
}

// Write always fails: the node is read only.
func (h *Handle) Write(p []byte) (int, error) {
	slog.Debug("statusdev: write rejected", "node", h.endpoint.name, "handle", h.id, "bytes", len(p))
	return 0, ErrReadOnly
}

// Release discards the snapshot. Releasing twice is harmless.
func (h *Handle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	h.buf = nil
	h.endpoint.releases.Add(1)
	slog.Debug("statusdev: released", "node", h.endpoint.name, "handle", h.id)
	return nil
}

// Close implements io.Closer.
func (h *Handle) Close() error { return h.Release() }
