package testutils

import "sync/atomic"

// FakeChunk is a pooled-resource stand-in that records release calls.
// It satisfies the page, zone-reservation, and large-chunk contracts.
type FakeChunk struct {
	ChunkSize int
	Exec      bool
	Trust     bool
	Dirty     bool

	releases atomic.Int64
}

func NewFakeChunk(size int) *FakeChunk {
	return &FakeChunk{ChunkSize: size}
}

func (c *FakeChunk) Size() int        { return c.ChunkSize }
func (c *FakeChunk) Executable() bool { return c.Exec }
func (c *FakeChunk) Trusted() bool    { return c.Trust }
func (c *FakeChunk) Cleared() bool    { return !c.Dirty }

func (c *FakeChunk) Release() {
	c.releases.Add(1)
}

// Released reports whether Release has been called at least once.
func (c *FakeChunk) Released() bool {
	return c.releases.Load() > 0
}

// ReleaseCalls returns how many times Release has been called. A well-behaved
// pool never releases the same chunk twice.
func (c *FakeChunk) ReleaseCalls() int64 {
	return c.releases.Load()
}

// NewFakeChunks creates n fake chunks of the given size.
func NewFakeChunks(n, size int) []*FakeChunk {
	chunks := make([]*FakeChunk, n)
	for i := range chunks {
		chunks[i] = NewFakeChunk(size)
	}
	return chunks
}

// ReleasedCount returns how many of chunks have been released.
func ReleasedCount(chunks []*FakeChunk) int {
	n := 0
	for _, c := range chunks {
		if c.Released() {
			n++
		}
	}
	return n
}
