package pagepool

import (
	"slices"
	"sync"
)

// batch is a group of entries moved to the shared tier by one teardown,
// tagged with the logical time of that teardown.
type batch[E Releaser] struct {
	stamp   uint64
	entries []E
}

// tierPool holds entries in two tiers: per-owner local stacks for cheap
// same-owner reuse, and a list of time-tagged shared batches left behind by
// torn-down owners, available to everyone until a timed release evicts them.
//
// All mutation happens under one mutex. Entries are never released while the
// mutex is held: destructive operations detach the doomed containers first,
// unlock, and only then run the release callbacks, so a slow unmap never
// blocks concurrent pool traffic.
type tierPool[E Releaser] struct {
	mu     sync.Mutex
	local  map[OwnerID][]E
	shared []batch[E]
}

// putLocal appends entry to owner's local stack.
func (p *tierPool[E]) putLocal(owner OwnerID, entry E) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.local == nil {
		p.local = make(map[OwnerID][]E)
	}
	p.local[owner] = append(p.local[owner], entry)
}

// get pops the most recently added entry of owner's local stack. An owner
// with no local stack instead pops from the newest shared batch: those
// entries are slated for eventual release anyway, so reusing one avoids
// tearing it down and mapping fresh memory. The ok result reports whether an
// entry was found.
func (p *tierPool[E]) get(owner OwnerID) (entry E, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if entries, found := p.local[owner]; found {
		entry = entries[len(entries)-1]
		entries = entries[:len(entries)-1]
		if len(entries) == 0 {
			// Emptied stacks are removed right away; no owner ever maps to
			// an empty stack.
			delete(p.local, owner)
		} else {
			p.local[owner] = entries
		}
		return entry, true
	}

	if n := len(p.shared); n > 0 {
		b := &p.shared[n-1]
		entry = b.entries[len(b.entries)-1]
		b.entries = b.entries[:len(b.entries)-1]
		if len(b.entries) == 0 {
			p.shared = p.shared[:n-1]
		}
		return entry, true
	}

	var zero E
	return zero, false
}

// moveLocalToShared detaches owner's entire local stack and appends it to
// the shared tier as one batch tagged with stamp. It reports whether the
// shared tier is non-empty afterwards.
func (p *tierPool[E]) moveLocalToShared(owner OwnerID, stamp uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if entries, found := p.local[owner]; found {
		p.shared = append(p.shared, batch[E]{stamp: stamp, entries: entries})
		delete(p.local, owner)
	}
	return len(p.shared) > 0
}

// releaseShared detaches and releases every shared batch.
func (p *tierPool[E]) releaseShared() {
	p.mu.Lock()
	doomed := p.shared
	p.shared = nil
	p.mu.Unlock()

	for _, b := range doomed {
		releaseEntries(b.entries)
	}
}

// releaseAllLocal detaches and releases every owner's local stack.
func (p *tierPool[E]) releaseAllLocal() {
	var doomed [][]E
	p.mu.Lock()
	for _, entries := range p.local {
		doomed = append(doomed, entries)
	}
	clear(p.local)
	p.mu.Unlock()

	for _, entries := range doomed {
		releaseEntries(entries)
	}
}

// releaseLocal detaches and releases one owner's local stack.
func (p *tierPool[E]) releaseLocal(owner OwnerID) {
	var doomed []E
	p.mu.Lock()
	if entries, found := p.local[owner]; found {
		doomed = entries
		delete(p.local, owner)
	}
	p.mu.Unlock()

	releaseEntries(doomed)
}

// releaseUpTo detaches and releases every shared batch tagged at or before
// stamp, returning the number of entries released.
func (p *tierPool[E]) releaseUpTo(stamp uint64) int {
	var doomed [][]E
	freed := 0
	p.mu.Lock()
	p.shared = slices.DeleteFunc(p.shared, func(b batch[E]) bool {
		if b.stamp > stamp {
			return false
		}
		freed += len(b.entries)
		doomed = append(doomed, b.entries)
		return true
	})
	p.mu.Unlock()

	for _, entries := range doomed {
		releaseEntries(entries)
	}
	return freed
}

func (p *tierPool[E]) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	count := 0
	for _, entries := range p.local {
		count += len(entries)
	}
	for _, b := range p.shared {
		count += len(b.entries)
	}
	return count
}

func (p *tierPool[E]) localSize(owner OwnerID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.local[owner])
}

func (p *tierPool[E]) sharedSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	count := 0
	for _, b := range p.shared {
		count += len(b.entries)
	}
	return count
}

// tearDown releases any remaining shared batches. Local entries still pooled
// at teardown are a resource leak in the caller and panic.
func (p *tierPool[E]) tearDown() {
	p.mu.Lock()
	if len(p.local) != 0 {
		p.mu.Unlock()
		panic("pagepool: tear down with local entries still pooled")
	}
	doomed := p.shared
	p.shared = nil
	p.mu.Unlock()

	for _, b := range doomed {
		releaseEntries(b.entries)
	}
}

// releaseEntries runs the release callback of every entry. Callers must have
// already detached entries from the pool and dropped the pool mutex.
func releaseEntries[E Releaser](entries []E) {
	for _, entry := range entries {
		entry.Release()
	}
}
