package concurrency_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/momentics/hioload-httpd/internal/concurrency"
)

func TestExecutorRunsTasks(t *testing.T) {
	e := concurrency.NewExecutor(4, 0, nil)
	defer e.Close(time.Second)

	var wg sync.WaitGroup
	var n atomic.Int64
	for i := 0; i < 100; i++ {
		wg.Add(1)
		if err := e.Submit(func() { n.Add(1); wg.Done() }); err != nil {
			t.Fatal(err)
		}
	}
	wg.Wait()
	if n.Load() != 100 {
		t.Fatalf("ran %d tasks", n.Load())
	}
	if e.NumWorkers() != 4 {
		t.Fatalf("NumWorkers = %d", e.NumWorkers())
	}
}

func TestExecutorRecoversPanics(t *testing.T) {
	got := make(chan any, 1)
	e := concurrency.NewExecutor(1, 0, func(r any) { got <- r })
	defer e.Close(time.Second)

	if err := e.Submit(func() { panic("boom") }); err != nil {
		t.Fatal(err)
	}
	select {
	case r := <-got:
		if r != "boom" {
			t.Fatalf("recovered %v", r)
		}
	case <-time.After(time.Second):
		t.Fatal("panic handler not called")
	}

	// the worker survives the panic
	done := make(chan struct{})
	if err := e.Submit(func() { close(done) }); err != nil {
		t.Fatal(err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker died after panic")
	}
	if e.Stats()["panicked_tasks"] != 1 {
		t.Errorf("stats = %v", e.Stats())
	}
}

func TestExecutorQueueLimit(t *testing.T) {
	block := make(chan struct{})
	e := concurrency.NewExecutor(1, 1, nil)
	defer e.Close(time.Second)
	defer close(block)

	started := make(chan struct{})
	e.Submit(func() { close(started); <-block })
	<-started
	if err := e.Submit(func() {}); err != nil {
		t.Fatalf("first queued task: %v", err)
	}
	if err := e.Submit(func() {}); !errors.Is(err, concurrency.ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
}

func TestExecutorClose(t *testing.T) {
	e := concurrency.NewExecutor(2, 0, nil)
	if _, err := e.Close(time.Second); err != nil {
		t.Fatal(err)
	}
	if err := e.Submit(func() {}); !errors.Is(err, concurrency.ErrExecutorClosed) {
		t.Fatalf("err = %v", err)
	}
	if _, err := e.Close(time.Second); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestExecutorCloseTimeout(t *testing.T) {
	e := concurrency.NewExecutor(1, 0, nil)
	block := make(chan struct{})
	defer close(block)
	started := make(chan struct{})
	e.Submit(func() { close(started); <-block })
	<-started
	if _, err := e.Close(20 * time.Millisecond); !errors.Is(err, concurrency.ErrShutdownTimeout) {
		t.Fatalf("err = %v", err)
	}
}
