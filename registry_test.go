package pagepool

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/cespare/xxhash/v2"
)

func newTestRegistry(t *testing.T) *ContextRegistry {
	t.Helper()
	registry := NewContextRegistry(NewWorkerScheduler(1))
	t.Cleanup(registry.Close)
	return registry
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}

func TestContextRegistryRegister(t *testing.T) {
	t.Run("derives the owner id from the name", func(t *testing.T) {
		registry := newTestRegistry(t)
		c := registry.Register("worker-1")
		if got, want := c.ID(), OwnerID(xxhash.Sum64String("worker-1")); got != want {
			t.Errorf("expected id %d, got %d", want, got)
		}
		if c.Name() != "worker-1" {
			t.Errorf("expected name worker-1, got %q", c.Name())
		}
	})

	t.Run("panics on duplicate names", func(t *testing.T) {
		registry := newTestRegistry(t)
		registry.Register("worker-1")
		mustPanic(t, func() { registry.Register("worker-1") })
	})
}

func TestContextRegistryVisitAnother(t *testing.T) {
	t.Run("finds a peer excluding the caller", func(t *testing.T) {
		registry := newTestRegistry(t)
		a := registry.Register("a")
		b := registry.Register("b")

		var visited OwnerID
		found := registry.VisitAnother(a.ID(), func(peer OwnerContext) { visited = peer.ID() })
		if !found || visited != b.ID() {
			t.Errorf("expected to visit peer %d, got %d (found=%v)", b.ID(), visited, found)
		}
	})

	t.Run("reports false when the caller is the only context", func(t *testing.T) {
		registry := newTestRegistry(t)
		a := registry.Register("a")
		if registry.VisitAnother(a.ID(), func(OwnerContext) { t.Error("unexpected visit") }) {
			t.Error("expected no peer to be found")
		}
	})
}

func TestContextRegistryPostDelayed(t *testing.T) {
	t.Run("runs a task on the owner's queue", func(t *testing.T) {
		registry := newTestRegistry(t)
		c := registry.Register("a")

		var ran atomic.Bool
		task := NewTask(func() { ran.Store(true) })
		if !registry.PostDelayedToOwner(c.ID(), time.Millisecond, task) {
			t.Fatal("expected post to a live owner to succeed")
		}
		if !waitFor(t, time.Second, ran.Load) {
			t.Error("expected task to run on the owner's queue")
		}
	})

	t.Run("reports false for an unknown owner", func(t *testing.T) {
		registry := newTestRegistry(t)
		task := NewTask(func() { t.Error("unexpected run") })
		if registry.PostDelayedToOwner(OwnerID(42), time.Millisecond, task) {
			t.Error("expected post to an unknown owner to fail")
		}
	})

	t.Run("unregister cancels armed owner tasks", func(t *testing.T) {
		registry := newTestRegistry(t)
		c := registry.Register("a")

		var ran atomic.Bool
		task := NewTask(func() { ran.Store(true) })
		registry.PostDelayedToOwner(c.ID(), 50*time.Millisecond, task)
		registry.Unregister(c)

		if !waitFor(t, time.Second, task.settled) {
			t.Fatal("expected task to settle")
		}
		time.Sleep(60 * time.Millisecond)
		if ran.Load() {
			t.Error("expected canceled task not to run")
		}
	})

	t.Run("runs a task on the worker pool", func(t *testing.T) {
		registry := newTestRegistry(t)
		c := registry.Register("a")

		var ran atomic.Bool
		registry.PostDelayedToWorker(c.ID(), time.Millisecond, NewTask(func() { ran.Store(true) }))
		if !waitFor(t, time.Second, ran.Load) {
			t.Error("expected task to run on the worker pool")
		}
	})

	t.Run("unregister cancels worker tasks bound to the owner", func(t *testing.T) {
		registry := newTestRegistry(t)
		c := registry.Register("a")

		var ran atomic.Bool
		task := NewTask(func() { ran.Store(true) })
		registry.PostDelayedToWorker(c.ID(), 50*time.Millisecond, task)
		registry.Unregister(c)

		time.Sleep(100 * time.Millisecond)
		if ran.Load() {
			t.Error("expected canceled task not to run")
		}
		if !task.settled() {
			t.Error("expected task to be canceled")
		}
	})
}
