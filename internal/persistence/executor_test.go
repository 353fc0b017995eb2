package persistence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestExecutorPreservesSubmissionOrder(t *testing.T) {
	e := newExecutor(64)

	var mu sync.Mutex
	var order []int
	for i := 0; i < 50; i++ {
		i := i
		e.submit(func() error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		}, nil)
	}
	e.shutdown(time.Second)

	if len(order) != 50 {
		t.Fatalf("ran %d tasks, want 50", len(order))
	}
	for i, got := range order {
		if got != i {
			t.Fatalf("task %d ran at position %d", got, i)
		}
	}
}

func TestExecutorReportsTaskError(t *testing.T) {
	e := newExecutor(1)

	wantErr := errors.New("disk full")
	got := make(chan error, 1)
	e.submit(func() error { return wantErr }, func(err error) { got <- err })
	e.shutdown(time.Second)

	if err := <-got; !errors.Is(err, wantErr) {
		t.Fatalf("onComplete error = %v, want %v", err, wantErr)
	}
}

func TestExecutorAbandonsQueuedTasksAfterGrace(t *testing.T) {
	e := newExecutor(8)

	release := make(chan struct{})
	started := make(chan struct{})
	e.submit(func() error {
		close(started)
		<-release
		return nil
	}, nil)

	queued := make(chan error, 1)
	e.submit(func() error { return nil }, func(err error) { queued <- err })

	<-started
	go func() {
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()
	e.shutdown(10 * time.Millisecond)

	if err := <-queued; !errors.Is(err, context.Canceled) {
		t.Fatalf("abandoned task error = %v, want context.Canceled", err)
	}
}
