package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMemorySerializesSameKey(t *testing.T) {
	m := NewMemory(time.Second)

	var inside int32
	var maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := m.Acquire(context.Background(), "attendance:E001:2026-03-02")
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			defer release()
			n := atomic.AddInt32(&inside, 1)
			for {
				cur := atomic.LoadInt32(&maxInside)
				if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Fatalf("expected at most one holder, saw %d", maxInside)
	}
	if len(m.slots) != 0 {
		t.Fatalf("expected slots to be reclaimed, got %d", len(m.slots))
	}
}

func TestMemoryDistinctKeysDoNotBlock(t *testing.T) {
	m := NewMemory(50 * time.Millisecond)

	releaseA, err := m.Acquire(context.Background(), "a")
	if err != nil {
		t.Fatalf("acquire a: %v", err)
	}
	defer releaseA()

	releaseB, err := m.Acquire(context.Background(), "b")
	if err != nil {
		t.Fatalf("acquire b while a held: %v", err)
	}
	releaseB()
}

func TestMemoryTimeout(t *testing.T) {
	m := NewMemory(20 * time.Millisecond)

	release, err := m.Acquire(context.Background(), "k")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	if _, err := m.Acquire(context.Background(), "k"); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}

	release()
	release()

	again, err := m.Acquire(context.Background(), "k")
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	again()
}

func TestMemoryContextCancel(t *testing.T) {
	m := NewMemory(time.Second)

	release, err := m.Acquire(context.Background(), "k")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Acquire(ctx, "k")
	if !errors.Is(err, ErrTimeout) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected timeout wrapping cancel, got %v", err)
	}
}

func TestScopeKeys(t *testing.T) {
	if got := ScopeKeyed.AttendanceKey("E001", "2026-03-02"); got != "attendance:E001:2026-03-02" {
		t.Fatalf("unexpected attendance key %q", got)
	}
	if got := ScopeKeyed.RevenueKey("E001", "2026-03-02", "Main"); got != "revenue:E001:2026-03-02:Main" {
		t.Fatalf("unexpected revenue key %q", got)
	}
	if ScopeGlobal.AttendanceKey("E001", "d") != ScopeGlobal.RevenueKey("E002", "d", "s") {
		t.Fatalf("global scope must collapse every key")
	}

	if s, err := ParseScope(""); err != nil || s != ScopeKeyed {
		t.Fatalf("expected keyed default, got %q %v", s, err)
	}
	if s, err := ParseScope("GLOBAL"); err != nil || s != ScopeGlobal {
		t.Fatalf("expected global, got %q %v", s, err)
	}
	if _, err := ParseScope("table"); err == nil {
		t.Fatalf("expected error for unknown scope")
	}
}

func TestRedisLeaseOutlivesAcquisitionTimeout(t *testing.T) {
	cases := []struct {
		timeout time.Duration
		want    time.Duration
	}{
		{5 * time.Second, 45 * time.Second},
		{30 * time.Second, 45 * time.Second},
		{2 * time.Minute, 3 * time.Minute},
	}
	for _, tc := range cases {
		client := NewRedisClient("127.0.0.1:0", "", 0)
		r := NewRedis(client, "", tc.timeout)
		if r.leaseTTL != tc.want {
			t.Fatalf("timeout %s: expected lease %s, got %s", tc.timeout, tc.want, r.leaseTTL)
		}
		if r.leaseTTL <= tc.timeout {
			t.Fatalf("timeout %s: lease %s must exceed it", tc.timeout, r.leaseTTL)
		}
		_ = client.Close()
	}
}
