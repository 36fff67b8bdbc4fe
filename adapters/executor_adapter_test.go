package adapters

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/momentics/hioload-reactor/api"
)

func TestExecutorAdapter_StatsAndClose(t *testing.T) {
	ea := NewExecutorAdapter(2, 8, zerolog.Nop())
	if ea.NumWorkers() != 2 {
		t.Fatalf("NumWorkers = %d, want 2", ea.NumWorkers())
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		if err := ea.Submit(wg.Done); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	wg.Wait()
	ea.Close()

	st := ea.Stats()
	if st["total_tasks"] != 5 || st["completed_tasks"] != 5 || st["pending_tasks"] != 0 {
		t.Errorf("stats = %v", st)
	}
	if st["num_workers"] != 2 {
		t.Errorf("num_workers = %d", st["num_workers"])
	}
	if err := ea.Submit(func() {}); !errors.Is(err, api.ErrExecutorClosed) {
		t.Errorf("Submit after Close = %v, want ErrExecutorClosed", err)
	}
}

func TestSerialAdapter_PendingAndOrder(t *testing.T) {
	sa := NewSerialAdapter(zerolog.Nop())

	started := make(chan struct{})
	release := make(chan struct{})
	if err := sa.Submit(func() { close(started); <-release }); err != nil {
		t.Fatal(err)
	}
	<-started

	var mu sync.Mutex
	var order []int
	for i := 0; i < 3; i++ {
		if err := sa.Submit(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}); err != nil {
			t.Fatal(err)
		}
	}
	if n := sa.Pending(); n != 3 {
		t.Errorf("Pending = %d, want 3", n)
	}
	close(release)

	closed := make(chan struct{})
	go func() { sa.Close(); close(closed) }()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not drain the queue")
	}
	if sa.Pending() != 0 {
		t.Errorf("Pending after Close = %d", sa.Pending())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != 0 || order[1] != 1 || order[2] != 2 {
		t.Errorf("order = %v, want [0 1 2]", order)
	}
	if err := sa.Submit(func() {}); !errors.Is(err, api.ErrExecutorClosed) {
		t.Errorf("Submit after Close = %v, want ErrExecutorClosed", err)
	}
}
