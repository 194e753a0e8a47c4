// Package pagepool recycles freed heap pages, zone reservations, and large
// variable-sized chunks so the hot allocation path can reuse them instead of
// round-tripping through the operating system. Resources are cached per
// owner for locality, migrate to a shared tier when their owner tears down,
// and are released for good by a deferred sweep once a grace period passes.
package pagepool

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// releaseTaskDelay is how long shared-tier entries left behind by a teardown
// are retained before the peer-hosted release task evicts them.
const releaseTaskDelay = 8 * time.Second

// PagePool is the facade over three sub-pools: fixed-size pages, zone
// reservations, and budgeted large chunks. One atomic logical clock stamps
// every teardown migration and large-chunk admission, giving a single total
// order for eviction decisions.
//
// Each sub-pool has its own mutex and the facade never holds two at once, so
// operations on distinct sub-pools interleave freely. "Nothing available" is
// an ok=false result; contract violations panic.
type PagePool struct {
	config    Config
	logger    *slog.Logger
	scheduler Scheduler
	peers     PeerFinder

	clock atomic.Uint64
	pages tierPool[Page]
	zones tierPool[ZoneReservation]
	large largePool
}

// New creates a pool with the given collaborators. A nil logger defaults to
// slog.Default. ContextRegistry satisfies both collaborator contracts.
func New(config Config, scheduler Scheduler, peers PeerFinder, logger *slog.Logger) (*PagePool, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &PagePool{
		config:    config,
		logger:    logger,
		scheduler: scheduler,
		peers:     peers,
	}
	p.large.maxTotal = config.MaxLargePoolSize
	return p, nil
}

// Put caches page in owner's local pool. The page must match the configured
// page size, must not be executable or trusted, and must already be cleared;
// anything else is a caller bug and panics.
func (p *PagePool) Put(owner OwnerID, page Page) {
	if page == nil {
		panic("pagepool: nil page")
	}
	if page.Size() != p.config.PageSize {
		panic(fmt.Sprintf("pagepool: page size %d does not match pool page size %d", page.Size(), p.config.PageSize))
	}
	if page.Executable() {
		panic("pagepool: executable pages cannot be pooled")
	}
	if page.Trusted() {
		panic("pagepool: trusted pages cannot be pooled")
	}
	if !page.Cleared() {
		panic("pagepool: pages must be cleared before pooling")
	}
	p.pages.putLocal(owner, page)
}

// Get returns a pooled page for owner, preferring owner's own cache and
// falling back to the shared tier. The ok result reports whether a page was
// available.
func (p *PagePool) Get(owner OwnerID) (Page, bool) {
	return p.pages.get(owner)
}

// PutZoneReservation caches reservation in owner's local pool.
func (p *PagePool) PutZoneReservation(owner OwnerID, reservation ZoneReservation) {
	if reservation == nil {
		panic("pagepool: nil zone reservation")
	}
	p.zones.putLocal(owner, reservation)
}

// GetZoneReservation returns a pooled zone reservation for owner.
func (p *PagePool) GetZoneReservation(owner OwnerID) (ZoneReservation, bool) {
	return p.zones.get(owner)
}

// PutLarge offers chunks to the large pool, filtering the caller's slice in
// place: admitted chunks are removed from it, refused ones stay and remain
// the caller's to dispose of. If anything was admitted and a release delay
// is configured, a release task for this admission batch is scheduled on
// owner's queue (single-threaded mode) or the worker pool.
func (p *PagePool) PutLarge(owner OwnerID, chunks *[]LargeChunk) {
	stamp := p.clock.Add(1)
	if !p.large.put(chunks, stamp) {
		return
	}
	delay := p.config.LargeReleaseDelay
	if delay <= 0 {
		return
	}
	task := NewTask(func() {
		freed := p.large.releaseUpTo(stamp)
		if p.config.TraceTimedRelease {
			p.logger.Info("released pooled large chunks", "owner", owner, "chunks", freed)
		}
	})
	if p.config.SingleThreaded {
		p.scheduler.PostDelayedToOwner(owner, delay, task)
	} else {
		p.scheduler.PostDelayedToWorker(owner, delay, task)
	}
}

// GetLarge returns the best-fit retained large chunk of at least minSize
// bytes. The ok result reports whether any chunk qualified.
func (p *PagePool) GetLarge(owner OwnerID, minSize int) (LargeChunk, bool) {
	return p.large.get(minSize)
}

// ReleaseOnTeardown disposes of owner's pooled resources when owner tears
// down. With sharing enabled, pages and zone reservations move to the shared
// tier stamped with a fresh logical time and a peer context is asked to host
// the deferred release pass; with no live peer they are released right away,
// since nothing else would ever reclaim them. Large chunks are always
// released synchronously: they are rare and expensive to retain, and reuse
// across owners is already served by the admission-time budget check.
func (p *PagePool) ReleaseOnTeardown(owner OwnerID) {
	if !p.config.ShareOnTeardown {
		p.ReleaseImmediately(owner)
		return
	}

	stamp := p.clock.Add(1)
	sharedPages := p.pages.moveLocalToShared(owner, stamp)
	sharedZones := p.zones.moveLocalToShared(owner, stamp)

	if sharedPages || sharedZones {
		hosted := p.peers.VisitAnother(owner, func(peer OwnerContext) {
			task := NewTask(func() { p.ReleaseUpTo(peer.ID(), stamp) })
			peer.PostDelayed(releaseTaskDelay, task)
		})
		if !hosted {
			p.pages.releaseShared()
			p.zones.releaseShared()
		}
	}

	p.large.releaseAll()
}

// ReleaseImmediately releases owner's local pages, local zone reservations,
// and all large chunks. Used for abnormal or forced teardown.
func (p *PagePool) ReleaseImmediately(owner OwnerID) {
	p.pages.releaseLocal(owner)
	p.zones.releaseLocal(owner)
	p.large.releaseAll()
}

// ReleaseLargeImmediately releases all retained large chunks.
func (p *PagePool) ReleaseLargeImmediately() {
	p.large.releaseAll()
}

// ReleaseUpTo evicts shared-tier batches stamped at or before stamp from the
// page and zone pools. owner identifies the context running the pass, for
// diagnostics only.
func (p *PagePool) ReleaseUpTo(owner OwnerID, stamp uint64) {
	pagesRemoved := p.pages.releaseUpTo(stamp)
	zonesRemoved := p.zones.releaseUpTo(stamp)
	if p.config.TraceTimedRelease {
		p.logger.Info("released shared pool entries",
			"owner", owner,
			"pages", pagesRemoved,
			"zoneReservations", zonesRemoved,
		)
	}
}

// TearDown tears down all three sub-pools. Each panics if local state is
// still pooled.
func (p *PagePool) TearDown() {
	p.pages.tearDown()
	p.zones.tearDown()
	p.large.tearDown()
}

// Count returns the number of pages in owner's local pool.
func (p *PagePool) Count(owner OwnerID) int {
	return p.pages.localSize(owner)
}

// SharedCount returns the number of pages in the shared tier.
func (p *PagePool) SharedCount() int {
	return p.pages.sharedSize()
}

// TotalCount returns the number of pages pooled across all tiers.
func (p *PagePool) TotalCount() int {
	return p.pages.size()
}

// LargeRetainedBytes returns the aggregate size of retained large chunks.
func (p *PagePool) LargeRetainedBytes() int {
	return p.large.retainedBytes()
}
