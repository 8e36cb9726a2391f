package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupLockTest(t *testing.T) *Manager {
	t.Helper()
	dsn := fmt.Sprintf("file:lock_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	return NewManager(db)
}

func TestWithLockSerializesSameKey(t *testing.T) {
	m := setupLockTest(t)
	ctx := context.Background()

	var inside int
	var max int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.WithLock(ctx, "card:pi_1", func(ctx context.Context) error {
				mu.Lock()
				inside++
				if inside > max {
					max = inside
				}
				mu.Unlock()
				time.Sleep(5 * time.Millisecond)
				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Errorf("with lock failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if max != 1 {
		t.Fatalf("expected at most 1 holder for same key, observed %d", max)
	}
}

func TestWithLockEmptyKey(t *testing.T) {
	m := setupLockTest(t)
	err := m.WithLock(context.Background(), "  ", func(ctx context.Context) error { return nil })
	if !errors.Is(err, ErrLockKeyEmpty) {
		t.Fatalf("expected ErrLockKeyEmpty, got %v", err)
	}
}

func TestWithLockPropagatesError(t *testing.T) {
	m := setupLockTest(t)
	want := errors.New("boom")
	err := m.WithLock(context.Background(), "card:pi_2", func(ctx context.Context) error { return want })
	if !errors.Is(err, want) {
		t.Fatalf("expected fn error, got %v", err)
	}

	// 出错后锁必须已释放
	done := make(chan struct{})
	go func() {
		_ = m.WithLock(context.Background(), "card:pi_2", func(ctx context.Context) error { return nil })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("lock was not released after error")
	}
}

func TestWithLockCanceledContext(t *testing.T) {
	m := setupLockTest(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := m.WithLock(ctx, "card:pi_3", func(ctx context.Context) error {
		t.Fatalf("fn must not run with canceled context")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestHashKeyStable(t *testing.T) {
	a := HashKey("crypto:inv_42")
	b := HashKey("crypto:inv_42")
	if a != b {
		t.Fatalf("hash must be deterministic: %d != %d", a, b)
	}
	if a == HashKey("crypto:inv_43") {
		t.Fatalf("different keys should not trivially collide")
	}
}
