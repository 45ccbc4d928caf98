// Package eventloop runs posted tasks one at a time on a single goroutine. The
// socket transports use it so every server callback runs to completion before
// the next one starts.
package eventloop

import (
	"errors"
	"sync"
)

// ErrStopped is returned by Call once the loop no longer accepts tasks.
var ErrStopped = errors.New("eventloop: stopped")

// Loop is an unbounded mailbox drained by one goroutine. Post never blocks, so
// a task may post further tasks without deadlocking.
type Loop struct {
	mu      sync.Mutex
	tasks   []func()
	signal  chan struct{}
	done    chan struct{}
	stopped bool
	started bool
	onPanic func(any)
}

// New creates a loop. onPanic is called on the loop goroutine when a task
// panics; it may be nil.
func New(onPanic func(any)) *Loop {
	return &Loop{
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		onPanic: onPanic,
	}
}

// Start launches the loop goroutine. Calling it twice has no effect.
func (l *Loop) Start() {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return
	}
	l.started = true
	l.mu.Unlock()
	go l.run()
}

// Post queues fn. It reports false once Stop has been called.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()
	l.wake()
	return true
}

// Stop rejects new tasks. Tasks already queued still run, then Done is closed.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	started := l.started
	l.mu.Unlock()
	if !started {
		close(l.done)
		return
	}
	l.wake()
}

// Done is closed after the last task has run.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) wake() {
	select {
	case l.signal <- struct{}{}:
	default:
	}
}

func (l *Loop) run() {
	defer close(l.done)
	for range l.signal {
		for {
			l.mu.Lock()
			if len(l.tasks) == 0 {
				stopped := l.stopped
				l.mu.Unlock()
				if stopped {
					return
				}
				break
			}
			task := l.tasks[0]
			l.tasks[0] = nil
			l.tasks = l.tasks[1:]
			l.mu.Unlock()
			l.exec(task)
		}
	}
}

func (l *Loop) exec(task func()) {
	defer func() {
		if r := recover(); r != nil && l.onPanic != nil {
			l.onPanic(r)
		}
	}()
	task()
}

// Call posts fn and blocks until it has run. It must not be used from a task.
func (l *Loop) Call(fn func()) error {
	done := make(chan struct{})
	if !l.Post(func() {
		defer close(done)
		fn()
	}) {
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-l.done:
		select {
		case <-done:
			return nil
		default:
			return ErrStopped
		}
	}
}
