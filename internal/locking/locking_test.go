package locking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestKeyedMutexExcludes(t *testing.T) {
	k := NewKeyedMutex()
	ctx := context.Background()

	var mu sync.Mutex
	inside, maxInside := 0, 0
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := k.Lock(ctx, "sched-1")
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Fatalf("expected one holder at a time, saw %d", maxInside)
	}
	if len(k.locks) != 0 {
		t.Fatalf("expected lock table to be empty, have %d", len(k.locks))
	}
}

func TestKeyedMutexTimeout(t *testing.T) {
	k := NewKeyedMutex()
	unlock, err := k.Lock(context.Background(), "sched-1")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := k.Lock(ctx, "sched-1"); !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}

	other, err := k.Lock(context.Background(), "sched-2")
	if err != nil {
		t.Fatalf("different key must not contend: %v", err)
	}
	other()
}

func TestUnlockIsIdempotent(t *testing.T) {
	k := NewKeyedMutex()
	unlock, _ := k.Lock(context.Background(), "a")
	unlock()
	unlock()

	again, err := k.Lock(context.Background(), "a")
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
	again()
}

func TestChainReleasesOnFailure(t *testing.T) {
	first := NewKeyedMutex()
	second := NewKeyedMutex()

	held, _ := second.Lock(context.Background(), "k")
	defer held()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := (Chain{first, second}).Lock(ctx, "k"); err == nil {
		t.Fatal("expected chain lock to fail")
	}

	unlock, err := first.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("first lock must have been released: %v", err)
	}
	unlock()
}
