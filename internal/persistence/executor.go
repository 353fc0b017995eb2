package persistence

import (
	"context"
	"time"

	"github.com/ridelog-data/ridelog/internal/monitoring"
)

// executor runs all file-append and metadata-write tasks on a single
// background goroutine. Running tasks one at a time preserves
// submission order per point file, which the positionally-ordered file
// format depends on, and enforces the single-writer-per-file
// invariant without per-file locking.
type executor struct {
	tasks  chan task
	done   chan struct{}
	cancel chan struct{}
}

type task struct {
	run        func() error
	onComplete func(error)
}

func (t task) complete(err error) {
	if t.onComplete != nil {
		t.onComplete(err)
	}
}

func newExecutor(queueDepth int) *executor {
	if queueDepth <= 0 {
		queueDepth = 256
	}
	e := &executor{
		tasks:  make(chan task, queueDepth),
		done:   make(chan struct{}),
		cancel: make(chan struct{}),
	}
	go e.worker()
	return e
}

func (e *executor) worker() {
	defer close(e.done)
	for t := range e.tasks {
		select {
		case <-e.cancel:
			// Grace period expired: abandon queued work.
			t.complete(context.Canceled)
			continue
		default:
		}
		t.complete(t.run())
	}
}

// submit enqueues a task. The caller must guarantee submit is never
// invoked after shutdown; the Service gates submissions behind its
// lifecycle lock.
func (e *executor) submit(run func() error, onComplete func(error)) {
	e.tasks <- task{run: run, onComplete: onComplete}
}

// shutdown stops accepting work and waits up to grace for in-flight
// tasks to drain, then abandons the remainder.
func (e *executor) shutdown(grace time.Duration) {
	close(e.tasks)
	select {
	case <-e.done:
	case <-time.After(grace):
		monitoring.Logf("persistence: shutdown grace period expired, abandoning queued writes")
		close(e.cancel)
		<-e.done
	}
}
