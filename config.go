package pagepool

import (
	"errors"
	"fmt"
	"time"
)

const (
	KiB = 1024
	MiB = KiB * KiB
)

// DefaultPageSize is the size of a regular heap page accepted by the pool.
const DefaultPageSize = 256 * KiB

type Config struct {
	// PageSize is the exact size of every regular page admitted to the pool.
	// Pages of any other size are rejected as a caller bug.
	PageSize int

	// MaxLargePoolSize caps the aggregate bytes retained by the large-chunk
	// pool. Candidates that would push the total past the cap are refused.
	MaxLargePoolSize int

	// LargeReleaseDelay is how long admitted large chunks are retained before
	// a scheduled release pass evicts them. A value <= 0 disables scheduling,
	// leaving eviction to explicit release calls.
	LargeReleaseDelay time.Duration

	// ShareOnTeardown moves an owner's pooled pages and zone reservations to
	// the shared tier on teardown so other owners can reuse them. When false,
	// teardown releases them immediately.
	ShareOnTeardown bool

	// SingleThreaded posts deferred large-chunk release tasks to the owner's
	// own task queue instead of the shared worker pool.
	SingleThreaded bool

	// TraceTimedRelease logs the removed-entry counts of every timed release
	// pass.
	TraceTimedRelease bool
}

func (c Config) Validate() error {
	var errs []error
	if c.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("invalid config: page size %d must be positive", c.PageSize))
	}
	if c.MaxLargePoolSize < 0 {
		errs = append(errs, fmt.Errorf("invalid config: max large pool size %d must not be negative", c.MaxLargePoolSize))
	}
	return errors.Join(errs...)
}

func DefaultConfig() Config {
	return Config{
		PageSize:          DefaultPageSize,
		MaxLargePoolSize:  64 * MiB,
		LargeReleaseDelay: 8 * time.Second,
		ShareOnTeardown:   true,
	}
}
