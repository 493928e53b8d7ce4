package bridge

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestExecutor_Submit(t *testing.T) {
	exec := NewExecutor(2)
	exec.Start()
	defer exec.Close()

	var counter int
	var mu sync.Mutex

	for i := 0; i < 5; i++ {
		exec.Submit(func() {
			mu.Lock()
			counter++
			mu.Unlock()
		})
	}

	exec.Wait()

	if counter != 5 {
		t.Errorf("Expected counter to be 5, got %d", counter)
	}
}

func TestExecutor_PreservesSubmissionOrder(t *testing.T) {
	exec := NewExecutor(4)
	exec.Start()
	defer exec.Close()

	var order []int
	for i := 0; i < 50; i++ {
		value := i
		exec.Submit(func() {
			// the single worker is the only writer
			order = append(order, value)
		})
	}
	exec.Wait()

	if len(order) != 50 {
		t.Fatalf("Expected 50 jobs, got %d", len(order))
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("Expected job %d at position %d, got %d", i, i, v)
		}
	}
}

func TestExecutor_NeverOverlaps(t *testing.T) {
	exec := NewExecutor(0)
	exec.Start()
	defer exec.Close()

	var inFlight, maxInFlight atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			exec.Do(func() error {
				n := inFlight.Add(1)
				for {
					m := maxInFlight.Load()
					if n <= m || maxInFlight.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				inFlight.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	if maxInFlight.Load() != 1 {
		t.Errorf("Expected at most one job in flight, saw %d", maxInFlight.Load())
	}
}

func TestExecutor_StartOnce(t *testing.T) {
	exec := NewExecutor(1)

	exec.Start()
	exec.Start()
	defer exec.Close()

	var executed bool
	exec.Submit(func() {
		executed = true
	})
	exec.Wait()

	if !executed {
		t.Error("Expected job to be executed")
	}
}

func TestExecutor_CloseRejectsSubmissions(t *testing.T) {
	exec := NewExecutor(1)
	exec.Start()

	var executed bool
	exec.Submit(func() {
		executed = true
	})
	exec.Wait()
	exec.Close()
	exec.Close()

	if !executed {
		t.Error("Expected job to be executed before close")
	}
	if exec.Submit(func() {}) {
		t.Error("Expected submission after close to be rejected")
	}
	if err := exec.Do(func() error { return nil }); !errors.Is(err, ErrExecutorClosed) {
		t.Errorf("Expected ErrExecutorClosed, got %v", err)
	}
}

func TestExecutor_DoReturnsError(t *testing.T) {
	exec := NewExecutor(1)
	exec.Start()
	defer exec.Close()

	want := errors.New("boom")
	if err := exec.Do(func() error { return want }); !errors.Is(err, want) {
		t.Errorf("Expected %v, got %v", want, err)
	}
}

func TestExecutor_PanicIsRecovered(t *testing.T) {
	exec := NewExecutor(1)
	exec.Start()
	defer exec.Close()

	err := exec.Do(func() error { panic("native crash") })
	if !errors.Is(err, ErrPanic) {
		t.Fatalf("Expected ErrPanic, got %v", err)
	}

	// raw submissions that panic do not stop the worker either
	exec.Submit(func() { panic("again") })
	if err := exec.Do(func() error { return nil }); err != nil {
		t.Errorf("Expected worker to survive panics, got %v", err)
	}
}

func TestExecutor_SurvivesGoexit(t *testing.T) {
	exec := NewExecutor(1)
	exec.Start()
	defer exec.Close()

	exec.Submit(func() { runtime.Goexit() })

	done := make(chan error, 1)
	go func() { done <- exec.Do(func() error { return nil }) }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected nil, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Executor stopped after a job called runtime.Goexit")
	}

	err := exec.Do(func() error {
		runtime.Goexit()
		return nil
	})
	if !errors.Is(err, ErrJobExited) {
		t.Errorf("Expected ErrJobExited, got %v", err)
	}
	if err := exec.Do(func() error { return nil }); err != nil {
		t.Errorf("Expected worker to be replaced, got %v", err)
	}

	exec.Wait()
	stats := exec.Stats()
	if stats.CompletedJobs != stats.TotalJobs {
		t.Errorf("Expected %d completed jobs, got %d", stats.TotalJobs, stats.CompletedJobs)
	}
	if stats.ActiveWorkers != 0 {
		t.Errorf("Expected 0 active workers, got %d", stats.ActiveWorkers)
	}
}

func TestExecutor_Stats(t *testing.T) {
	exec := NewExecutor(1)
	exec.Start()
	defer exec.Close()

	const numJobs = 5
	for i := 0; i < numJobs; i++ {
		exec.Submit(func() {
			for j := 0; j < 1000; j++ {
				_ = j * j
			}
		})
	}
	exec.Wait()

	stats := exec.Stats()
	if stats.TotalJobs != numJobs {
		t.Errorf("Expected %d total jobs, got %d", numJobs, stats.TotalJobs)
	}
	if stats.CompletedJobs != numJobs {
		t.Errorf("Expected %d completed jobs, got %d", numJobs, stats.CompletedJobs)
	}
	if stats.ActiveWorkers != 0 {
		t.Errorf("Expected 0 active workers after completion, got %d", stats.ActiveWorkers)
	}
}

func TestSharedExecutor_IsSingleton(t *testing.T) {
	if SharedExecutor() != SharedExecutor() {
		t.Error("Expected one process-wide executor")
	}
}
