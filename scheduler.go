package pagepool

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Scheduler posts deferred release tasks. Delivery is best effort: a task
// that cannot be delivered is canceled, and a canceled task simply leaves
// eviction to a later sweep or an explicit release call.
type Scheduler interface {
	// PostDelayedToOwner schedules task on owner's task queue after delay.
	// It reports whether owner was live; cancellation of an accepted task is
	// tied to owner's lifetime.
	PostDelayedToOwner(owner OwnerID, delay time.Duration, task *Task) bool

	// PostDelayedToWorker schedules task on a background worker after delay.
	// owner identifies the context whose lifetime bounds the task.
	PostDelayedToWorker(owner OwnerID, delay time.Duration, task *Task)
}

// OwnerContext is a live execution context that can host deferred work on
// its own task queue.
type OwnerContext interface {
	ID() OwnerID
	PostDelayed(delay time.Duration, task *Task)
}

// PeerFinder locates live owners to host deferred release tasks.
type PeerFinder interface {
	// VisitAnother calls visit with some live owner other than owner, which
	// stays live for the duration of the call. It reports whether a peer was
	// found.
	VisitAnother(owner OwnerID, visit func(peer OwnerContext)) bool
}

// WorkerScheduler runs deferred tasks on a fixed set of worker goroutines
// fed by one buffered queue. Tasks that arrive after Close, or while the
// queue is full, are canceled rather than queued.
type WorkerScheduler struct {
	tasks  chan *Task
	done   chan struct{}
	closed atomic.Bool
	wg     sync.WaitGroup
}

// NewWorkerScheduler starts a scheduler with the given number of workers.
// If numWorkers <= 0, it defaults to runtime.NumCPU().
func NewWorkerScheduler(numWorkers int) *WorkerScheduler {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	s := &WorkerScheduler{
		tasks: make(chan *Task, numWorkers*4),
		done:  make(chan struct{}),
	}
	s.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go s.worker()
	}
	return s
}

func (s *WorkerScheduler) worker() {
	defer s.wg.Done()
	for {
		select {
		case task := <-s.tasks:
			task.Run()
		case <-s.done:
			return
		}
	}
}

// PostDelayed enqueues task for execution after delay.
func (s *WorkerScheduler) PostDelayed(delay time.Duration, task *Task) {
	if s.closed.Load() {
		task.Cancel()
		return
	}
	time.AfterFunc(delay, func() {
		if s.closed.Load() {
			task.Cancel()
			return
		}
		select {
		case s.tasks <- task:
		default:
			task.Cancel()
		}
	})
}

// Close stops the workers and waits for in-flight tasks to finish. Queued
// tasks that no worker picked up are canceled.
func (s *WorkerScheduler) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	close(s.done)
	s.wg.Wait()
	for {
		select {
		case task := <-s.tasks:
			task.Cancel()
		default:
			return
		}
	}
}
