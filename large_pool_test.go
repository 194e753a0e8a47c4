package pagepool

import (
	"testing"

	"github.com/holmberd/go-pagepool/internal/testutils"
)

func largeChunks(sizes ...int) ([]LargeChunk, []*testutils.FakeChunk) {
	chunks := make([]LargeChunk, len(sizes))
	fakes := make([]*testutils.FakeChunk, len(sizes))
	for i, size := range sizes {
		fakes[i] = testutils.NewFakeChunk(size)
		chunks[i] = fakes[i]
	}
	return chunks, fakes
}

func TestLargePoolPut(t *testing.T) {
	t.Run("admits candidates within the byte budget", func(t *testing.T) {
		pool := largePool{maxTotal: 100}
		candidates, _ := largeChunks(40, 40)

		if !pool.put(&candidates, 1) {
			t.Fatal("expected candidates to be admitted")
		}
		if len(candidates) != 0 {
			t.Errorf("expected all candidates removed from caller slice, got %d left", len(candidates))
		}
		if got := pool.retainedBytes(); got != 80 {
			t.Errorf("expected 80 retained bytes, got %d", got)
		}
	})

	t.Run("leaves candidates exceeding the budget with the caller", func(t *testing.T) {
		pool := largePool{maxTotal: 100}
		candidates, fakes := largeChunks(60, 60, 30)

		if !pool.put(&candidates, 1) {
			t.Fatal("expected at least one candidate to be admitted")
		}
		// 60 fits, the second 60 would overflow, 30 still fits.
		if len(candidates) != 1 || candidates[0] != LargeChunk(fakes[1]) {
			t.Errorf("expected the second 60-byte chunk to remain with the caller, got %v", candidates)
		}
		if got := pool.retainedBytes(); got != 90 {
			t.Errorf("expected 90 retained bytes, got %d", got)
		}
		if pool.count() != 2 {
			t.Errorf("expected 2 retained chunks, got %d", pool.count())
		}
	})

	t.Run("reports false when nothing fits", func(t *testing.T) {
		pool := largePool{maxTotal: 10}
		candidates, _ := largeChunks(20, 30)

		if pool.put(&candidates, 1) {
			t.Error("expected no candidate to be admitted")
		}
		if len(candidates) != 2 {
			t.Errorf("expected caller to keep both candidates, got %d", len(candidates))
		}
		if got := pool.retainedBytes(); got != 0 {
			t.Errorf("expected 0 retained bytes, got %d", got)
		}
	})
}

func TestLargePoolGet(t *testing.T) {
	newPool := func(t *testing.T, sizes ...int) (*largePool, []*testutils.FakeChunk) {
		t.Helper()
		pool := &largePool{maxTotal: 1 << 20}
		candidates, fakes := largeChunks(sizes...)
		if !pool.put(&candidates, 1) {
			t.Fatal("expected candidates to be admitted")
		}
		return pool, fakes
	}

	t.Run("returns the smallest qualifying chunk", func(t *testing.T) {
		pool, fakes := newPool(t, 10, 20, 30)

		got, ok := pool.get(15)
		if !ok {
			t.Fatal("expected a qualifying chunk")
		}
		if got != LargeChunk(fakes[1]) {
			t.Errorf("expected the 20-byte chunk, got size %d", got.Size())
		}
		if pool.retainedBytes() != 40 {
			t.Errorf("expected 40 retained bytes after removal, got %d", pool.retainedBytes())
		}
	})

	t.Run("returns none when no chunk is large enough", func(t *testing.T) {
		pool, _ := newPool(t, 10, 20, 30)
		if _, ok := pool.get(35); ok {
			t.Error("expected no qualifying chunk")
		}
		if pool.retainedBytes() != 60 {
			t.Errorf("expected pool untouched with 60 bytes, got %d", pool.retainedBytes())
		}
	})

	t.Run("prefers the earliest-admitted chunk among equal sizes", func(t *testing.T) {
		pool, fakes := newPool(t, 20, 20)
		got, ok := pool.get(10)
		if !ok || got != LargeChunk(fakes[0]) {
			t.Errorf("expected the first 20-byte chunk, got %v (ok=%v)", got, ok)
		}
	})

	t.Run("exact fit qualifies", func(t *testing.T) {
		pool, fakes := newPool(t, 10, 20)
		got, ok := pool.get(20)
		if !ok || got != LargeChunk(fakes[1]) {
			t.Errorf("expected the 20-byte chunk for an exact fit, got %v (ok=%v)", got, ok)
		}
	})
}

func TestLargePoolRelease(t *testing.T) {
	t.Run("releaseUpTo removes only chunks at or before the stamp", func(t *testing.T) {
		pool := &largePool{maxTotal: 1 << 20}
		first, firstFakes := largeChunks(10, 20)
		second, secondFakes := largeChunks(30)
		pool.put(&first, 1)
		pool.put(&second, 2)

		if freed := pool.releaseUpTo(1); freed != 2 {
			t.Errorf("expected 2 freed chunks, got %d", freed)
		}
		if got := testutils.ReleasedCount(firstFakes); got != 2 {
			t.Errorf("expected both stamp-1 chunks released, got %d", got)
		}
		if secondFakes[0].Released() {
			t.Error("expected stamp-2 chunk to be retained")
		}
		if pool.retainedBytes() != 30 {
			t.Errorf("expected 30 retained bytes, got %d", pool.retainedBytes())
		}

		if freed := pool.releaseUpTo(2); freed != 1 {
			t.Errorf("expected 1 freed chunk, got %d", freed)
		}
		if pool.retainedBytes() != 0 {
			t.Errorf("expected 0 retained bytes, got %d", pool.retainedBytes())
		}
	})

	t.Run("releaseAll releases everything and resets the aggregate", func(t *testing.T) {
		pool := &largePool{maxTotal: 1 << 20}
		candidates, fakes := largeChunks(10, 20, 30)
		pool.put(&candidates, 1)

		pool.releaseAll()
		if got := testutils.ReleasedCount(fakes); got != 3 {
			t.Errorf("expected 3 released chunks, got %d", got)
		}
		if pool.retainedBytes() != 0 || pool.count() != 0 {
			t.Errorf("expected empty pool, got %d bytes in %d chunks", pool.retainedBytes(), pool.count())
		}
	})
}

func TestLargePoolTearDown(t *testing.T) {
	t.Run("succeeds on an empty pool", func(t *testing.T) {
		pool := &largePool{maxTotal: 100}
		pool.tearDown()
	})

	t.Run("panics when chunks remain", func(t *testing.T) {
		pool := &largePool{maxTotal: 100}
		candidates, _ := largeChunks(10)
		pool.put(&candidates, 1)
		mustPanic(t, func() { pool.tearDown() })
	})
}
