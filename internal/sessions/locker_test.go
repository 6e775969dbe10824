package sessions

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestTurnLockerSerializes(t *testing.T) {
	locker := NewTurnLocker()
	ctx := context.Background()

	var mu sync.Mutex
	active, peak := 0, 0

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Acquire(ctx, "s1")
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			mu.Lock()
			active++
			if active > peak {
				peak = active
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	if peak != 1 {
		t.Errorf("peak concurrent holders = %d, want 1", peak)
	}
}

func TestTurnLockerIndependentSessions(t *testing.T) {
	locker := NewTurnLocker()
	ctx := context.Background()

	r1, err := locker.Acquire(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	defer r1()

	done := make(chan struct{})
	go func() {
		r2, err := locker.Acquire(ctx, "b")
		if err == nil {
			r2()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on one session must not block another")
	}
}

func TestTurnLockerTryAcquire(t *testing.T) {
	locker := NewTurnLocker()

	release, ok := locker.TryAcquire("s1")
	if !ok {
		t.Fatal("first TryAcquire should succeed")
	}
	if _, ok := locker.TryAcquire("s1"); ok {
		t.Fatal("second TryAcquire should fail while held")
	}
	if !locker.Locked("s1") {
		t.Error("Locked should report held session")
	}
	release()
	if locker.Locked("s1") {
		t.Error("Locked should clear after release")
	}
}

func TestTurnLockerAcquireHonorsContext(t *testing.T) {
	locker := NewTurnLocker()
	release, err := locker.Acquire(context.Background(), "s1")
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := locker.Acquire(ctx, "s1"); err == nil {
		t.Fatal("Acquire should fail when ctx expires while waiting")
	}
}
