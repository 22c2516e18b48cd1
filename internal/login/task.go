package login

import (
	"sync"
	"time"
)

// task is a cancellable scheduled callback owned by the controller.
type task struct {
	stop chan struct{}
	once sync.Once
}

func newTask() *task {
	return &task{stop: make(chan struct{})}
}

// Cancel stops the task. Safe to call more than once and on a nil task.
func (t *task) Cancel() {
	if t == nil {
		return
	}
	t.once.Do(func() { close(t.stop) })
}

// Done is closed when the task is cancelled.
func (t *task) Done() <-chan struct{} {
	return t.stop
}

// after runs fn once after d unless cancelled first.
func after(d time.Duration, fn func()) *task {
	t := newTask()
	go func() {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
			fn()
		case <-t.stop:
		}
	}()
	return t
}

// every runs fn each interval until fn returns false or the task is cancelled.
func every(interval time.Duration, fn func() bool) *task {
	t := newTask()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if !fn() {
					return
				}
			case <-t.stop:
				return
			}
		}
	}()
	return t
}
