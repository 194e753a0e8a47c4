package pagepool

import (
	"fmt"
	"slices"
	"sync"
)

type largeEntry struct {
	stamp uint64
	chunk LargeChunk
}

// largePool retains variable-sized chunks under an aggregate byte budget.
// Chunks are tagged with the logical time of their admission so a timed
// release pass can evict stale ones. Same locking discipline as tierPool:
// release callbacks run only after the mutex is dropped.
type largePool struct {
	mu        sync.Mutex
	maxTotal  int
	entries   []largeEntry
	totalSize int
}

// put admits candidates from chunks, filtering the caller's slice in place.
// A candidate is admitted only if it fits the remaining byte budget; refused
// chunks stay in the slice and remain owned by the caller. It reports
// whether at least one candidate was admitted.
func (p *largePool) put(chunks *[]LargeChunk, stamp uint64) bool {
	added := false
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkTotalSize()

	*chunks = slices.DeleteFunc(*chunks, func(chunk LargeChunk) bool {
		if p.totalSize+chunk.Size() > p.maxTotal {
			return false
		}
		p.totalSize += chunk.Size()
		p.entries = append(p.entries, largeEntry{stamp: stamp, chunk: chunk})
		added = true
		return true
	})

	p.checkTotalSize()
	return added
}

// get removes and returns the best-fit retained chunk: the smallest one with
// a size of at least minSize, preferring the earliest-admitted among equals.
// An oversized chunk is acceptable since the caller can trim it later; one
// too small never is. The ok result reports whether any chunk qualified.
func (p *largePool) get(minSize int) (chunk LargeChunk, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkTotalSize()

	selected := -1
	for i, entry := range p.entries {
		size := entry.chunk.Size()
		if size < minSize {
			continue
		}
		if selected < 0 || size < p.entries[selected].chunk.Size() {
			selected = i
		}
	}
	if selected < 0 {
		return nil, false
	}

	chunk = p.entries[selected].chunk
	p.totalSize -= chunk.Size()
	p.entries = slices.Delete(p.entries, selected, selected+1)
	p.checkTotalSize()
	return chunk, true
}

// releaseAll detaches and releases every retained chunk.
func (p *largePool) releaseAll() {
	p.mu.Lock()
	doomed := p.entries
	p.entries = nil
	p.totalSize = 0
	p.mu.Unlock()

	for _, entry := range doomed {
		entry.chunk.Release()
	}
}

// releaseUpTo detaches and releases every chunk tagged at or before stamp,
// returning the number of chunks released.
func (p *largePool) releaseUpTo(stamp uint64) int {
	var doomed []LargeChunk
	p.mu.Lock()
	p.entries = slices.DeleteFunc(p.entries, func(entry largeEntry) bool {
		if entry.stamp > stamp {
			return false
		}
		p.totalSize -= entry.chunk.Size()
		doomed = append(doomed, entry.chunk)
		return true
	})
	p.checkTotalSize()
	p.mu.Unlock()

	releaseEntries(doomed)
	return len(doomed)
}

// retainedBytes returns the aggregate size of all retained chunks.
func (p *largePool) retainedBytes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalSize
}

func (p *largePool) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// tearDown panics if any chunk is still retained; teardown of a populated
// large pool is a leak in the caller.
func (p *largePool) tearDown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.entries) != 0 {
		panic("pagepool: tear down with large chunks still pooled")
	}
}

// checkTotalSize recomputes the aggregate and compares it against the
// tracked counter. Compiled in only under the pooldebug build tag. The
// caller must hold the mutex.
func (p *largePool) checkTotalSize() {
	if !debugChecks {
		return
	}
	sum := 0
	for _, entry := range p.entries {
		sum += entry.chunk.Size()
	}
	if sum != p.totalSize {
		panic(fmt.Sprintf("pagepool: large pool byte counter drift: tracked %d, recomputed %d", p.totalSize, sum))
	}
}
