package pagepool

import "sync/atomic"

const (
	taskPending int32 = iota
	taskCanceled
	taskDone
)

// Task is a cancelable, fire-and-forget callback. It runs at most once:
// whichever of Run and Cancel transitions it out of the pending state first
// wins, and the loser becomes a no-op.
type Task struct {
	fn    func()
	state atomic.Int32
}

func NewTask(fn func()) *Task {
	return &Task{fn: fn}
}

// Run executes the callback unless the task was canceled or has already run.
func (t *Task) Run() {
	if t.state.CompareAndSwap(taskPending, taskDone) {
		t.fn()
	}
}

// Cancel prevents a pending task from running. It reports whether the task
// was still pending.
func (t *Task) Cancel() bool {
	return t.state.CompareAndSwap(taskPending, taskCanceled)
}

// settled reports whether the task can no longer run.
func (t *Task) settled() bool {
	return t.state.Load() != taskPending
}
