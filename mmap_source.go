package pagepool

import (
	"fmt"
	"log/slog"

	"golang.org/x/sys/unix"
)

// MappedChunk is an anonymous private memory mapping. It satisfies the Page,
// ZoneReservation, and LargeChunk contracts, making it the concrete resource
// type for pools backed by real virtual memory.
type MappedChunk struct {
	data    []byte
	cleared bool
}

// MappedSource allocates MappedChunks outside the Go heap, so pooled memory
// adds no GOGC scanning pressure.
type MappedSource struct {
	pageSize int
}

// NewMappedSource creates a source producing pages of pageSize bytes.
func NewMappedSource(pageSize int) *MappedSource {
	if pageSize <= 0 {
		panic(fmt.Sprintf("pagepool: invalid page size %d", pageSize))
	}
	return &MappedSource{pageSize: pageSize}
}

// PageSize returns the size of pages produced by NewPage.
func (s *MappedSource) PageSize() int {
	return s.pageSize
}

// NewPage maps a fresh zeroed page.
func (s *MappedSource) NewPage() (*MappedChunk, error) {
	return s.NewChunk(s.pageSize)
}

// NewChunk maps a fresh zeroed chunk of the given size. Used directly for
// zone reservations and large chunks, which are not bound to the page size.
func (s *MappedSource) NewChunk(size int) (*MappedChunk, error) {
	data, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_ANON|unix.MAP_PRIVATE,
	)
	if err != nil {
		return nil, fmt.Errorf("cannot allocate %d bytes via mmap: %w", size, err)
	}
	// Anonymous mappings start zero-filled.
	return &MappedChunk{data: data, cleared: true}, nil
}

func (m *MappedChunk) Size() int {
	return len(m.data)
}

func (m *MappedChunk) Executable() bool { return false }

func (m *MappedChunk) Trusted() bool { return false }

// Cleared reports whether the chunk's content is known to be zero.
func (m *MappedChunk) Cleared() bool {
	return m.cleared
}

// Bytes exposes the backing memory. Any access may dirty the content, so the
// chunk is treated as not cleared until Clear is called again.
func (m *MappedChunk) Bytes() []byte {
	m.cleared = false
	return m.data
}

// Clear zeroes the backing memory, making the chunk admissible to a pool.
func (m *MappedChunk) Clear() {
	clear(m.data)
	m.cleared = true
}

// Release unmaps the backing memory. Further calls are no-ops.
func (m *MappedChunk) Release() {
	if m.data == nil {
		return
	}
	if err := unix.Munmap(m.data); err != nil {
		slog.Error("failed to unmap chunk", "error", err)
	}
	m.data = nil
}
