package pagepool

import (
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/eapache/queue"
)

// Context is a registered execution context. It owns a task queue serviced
// by a dedicated goroutine; unregistering the context cancels everything
// still pending on it.
type Context struct {
	id   OwnerID
	name string

	mu      sync.Mutex
	pending *queue.Queue          // ready-to-run tasks, FIFO
	timers  map[*Task]*time.Timer // armed delayed tasks
	owned   map[*Task]struct{}    // tasks hosted elsewhere but bound to this context
	closed  bool

	wake chan struct{}
	done chan struct{}
}

func newContext(id OwnerID, name string) *Context {
	c := &Context{
		id:      id,
		name:    name,
		pending: queue.New(),
		timers:  make(map[*Task]*time.Timer),
		owned:   make(map[*Task]struct{}),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go c.run()
	return c
}

func (c *Context) ID() OwnerID { return c.id }

func (c *Context) Name() string { return c.name }

// PostDelayed schedules task on this context's queue after delay. The task
// is canceled if the context is unregistered before it runs.
func (c *Context) PostDelayed(delay time.Duration, task *Task) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		task.Cancel()
		return
	}
	c.timers[task] = time.AfterFunc(delay, func() { c.enqueue(task) })
	c.mu.Unlock()
}

func (c *Context) enqueue(task *Task) {
	c.mu.Lock()
	delete(c.timers, task)
	if c.closed {
		c.mu.Unlock()
		task.Cancel()
		return
	}
	c.pending.Add(task)
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// adopt binds a task running elsewhere to this context's lifetime.
func (c *Context) adopt(task *Task) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	for t := range c.owned {
		if t.settled() {
			delete(c.owned, t)
		}
	}
	c.owned[task] = struct{}{}
	c.mu.Unlock()
}

func (c *Context) run() {
	for {
		select {
		case <-c.wake:
			c.drain()
		case <-c.done:
			return
		}
	}
}

func (c *Context) drain() {
	for {
		c.mu.Lock()
		if c.pending.Length() == 0 {
			c.mu.Unlock()
			return
		}
		task := c.pending.Remove().(*Task)
		c.mu.Unlock()
		task.Run()
	}
}

func (c *Context) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for task, timer := range c.timers {
		timer.Stop()
		task.Cancel()
	}
	c.timers = nil
	for task := range c.owned {
		task.Cancel()
	}
	c.owned = nil
	for c.pending.Length() > 0 {
		c.pending.Remove().(*Task).Cancel()
	}
	c.mu.Unlock()
	close(c.done)
}

// ContextRegistry tracks live execution contexts. It implements both the
// Scheduler and PeerFinder collaborator contracts of PagePool.
type ContextRegistry struct {
	mu       sync.Mutex
	contexts map[OwnerID]*Context
	workers  *WorkerScheduler
}

// NewContextRegistry creates a registry posting worker tasks to workers.
// A nil workers starts a default WorkerScheduler.
func NewContextRegistry(workers *WorkerScheduler) *ContextRegistry {
	if workers == nil {
		workers = NewWorkerScheduler(0)
	}
	return &ContextRegistry{
		contexts: make(map[OwnerID]*Context),
		workers:  workers,
	}
}

// Register creates and tracks a context for name. The context's OwnerID is
// derived from the name, so names must be unique; registering a duplicate is
// a caller bug.
func (r *ContextRegistry) Register(name string) *Context {
	id := OwnerID(xxhash.Sum64String(name))
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.contexts[id]; taken {
		panic(fmt.Sprintf("pagepool: context %q already registered", name))
	}
	c := newContext(id, name)
	r.contexts[id] = c
	return c
}

// Unregister removes c from the registry and cancels its pending tasks.
// Pool state cached under c's ID is not touched; callers tear that down via
// PagePool.ReleaseOnTeardown before unregistering.
func (r *ContextRegistry) Unregister(c *Context) {
	r.mu.Lock()
	delete(r.contexts, c.id)
	r.mu.Unlock()
	c.close()
}

// VisitAnother calls visit with some registered context other than owner,
// holding the registry lock so the peer cannot be unregistered mid-call.
func (r *ContextRegistry) VisitAnother(owner OwnerID, visit func(peer OwnerContext)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.contexts {
		if id == owner {
			continue
		}
		visit(c)
		return true
	}
	return false
}

// PostDelayedToOwner schedules task on owner's queue after delay. It reports
// whether owner is registered.
func (r *ContextRegistry) PostDelayedToOwner(owner OwnerID, delay time.Duration, task *Task) bool {
	r.mu.Lock()
	c, live := r.contexts[owner]
	r.mu.Unlock()
	if !live {
		return false
	}
	c.PostDelayed(delay, task)
	return true
}

// PostDelayedToWorker schedules task on the shared worker pool after delay.
// While owner stays registered the task is bound to its lifetime and is
// canceled when the owner unregisters.
func (r *ContextRegistry) PostDelayedToWorker(owner OwnerID, delay time.Duration, task *Task) {
	r.mu.Lock()
	c, live := r.contexts[owner]
	r.mu.Unlock()
	if live {
		c.adopt(task)
	}
	r.workers.PostDelayed(delay, task)
}

// Close unregisters every context and stops the worker pool.
func (r *ContextRegistry) Close() {
	r.mu.Lock()
	contexts := make([]*Context, 0, len(r.contexts))
	for _, c := range r.contexts {
		contexts = append(contexts, c)
	}
	clear(r.contexts)
	r.mu.Unlock()

	for _, c := range contexts {
		c.close()
	}
	r.workers.Close()
}
