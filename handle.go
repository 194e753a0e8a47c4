package pagepool

// OwnerID identifies an execution context holding a private cache of pooled
// resources. The pool uses it only as a lookup key.
type OwnerID uint64

// Releaser frees the backing memory of a pooled resource. The pool invokes
// it exactly once, when it drops an entry it owns.
type Releaser interface {
	Release()
}

// Page is a fixed-size heap page handed to the pool for reuse. Ownership
// transfers to the pool on Put and back to the caller on Get; the previous
// holder must not touch the page afterwards.
type Page interface {
	Size() int
	Executable() bool
	Trusted() bool
	Cleared() bool
	Release()
}

// ZoneReservation is a virtual-memory reservation recycled for zone backing.
// Same single-owner transfer contract as Page.
type ZoneReservation interface {
	Size() int
	Release()
}

// LargeChunk is a variable-sized chunk retained by the byte-budgeted large
// pool. Same single-owner transfer contract as Page.
type LargeChunk interface {
	Size() int
	Release()
}
