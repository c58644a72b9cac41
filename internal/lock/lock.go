package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

var ErrTimeout = errors.New("timed out waiting for ledger lock")

const DefaultTimeout = 30 * time.Second

// Locker serializes ledger writes. The returned release func is safe to call more than once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

type Scope string

const (
	ScopeKeyed  Scope = "keyed"
	ScopeGlobal Scope = "global"
)

const globalKey = "ledger"

func ParseScope(raw string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ScopeKeyed:
		return ScopeKeyed, nil
	case ScopeGlobal:
		return ScopeGlobal, nil
	default:
		return "", fmt.Errorf("unknown lock scope %q", raw)
	}
}

func (s Scope) AttendanceKey(employeeID string, workDate string) string {
	if s == ScopeGlobal {
		return globalKey
	}
	return "attendance:" + employeeID + ":" + workDate
}

func (s Scope) RevenueKey(employeeID string, businessDate string, storeName string) string {
	if s == ScopeGlobal {
		return globalKey
	}
	return "revenue:" + employeeID + ":" + businessDate + ":" + storeName
}

type slot struct {
	ch   chan struct{}
	refs int
}

// Memory is an in-process Locker with one slot per key.
type Memory struct {
	mu      sync.Mutex
	slots   map[string]*slot
	timeout time.Duration
}

func NewMemory(timeout time.Duration) *Memory {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Memory{
		slots:   make(map[string]*slot),
		timeout: timeout,
	}
}

func (m *Memory) Acquire(ctx context.Context, key string) (func(), error) {
	s := m.ref(key)

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	select {
	case s.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-s.ch
				m.unref(key, s)
			})
		}, nil
	case <-timer.C:
		m.unref(key, s)
		return nil, ErrTimeout
	case <-ctx.Done():
		m.unref(key, s)
		return nil, fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
	}
}

func (m *Memory) ref(key string) *slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		m.slots[key] = s
	}
	s.refs++
	return s
}

func (m *Memory) unref(key string, s *slot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(m.slots, key)
	}
}
