// Package lock 提供以资源键为粒度的互斥执行能力。
//
// 对账、额度入账等流程都以 (provider, providerPaymentId) 这类键串行化，
// PostgreSQL 下使用会话级 advisory lock 保证跨进程互斥，
// 其它方言（sqlite 测试环境）退化为进程内分段互斥锁。
package lock

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"
)

var (
	// ErrLockKeyEmpty 锁键为空
	ErrLockKeyEmpty = errors.New("lock: key is empty")
	// ErrLockTimeout 等待锁超时
	ErrLockTimeout = errors.New("lock: acquire timeout")
)

const localStripes = 64

// Manager 资源锁管理器
type Manager struct {
	db      *gorm.DB
	dialect string

	local [localStripes]sync.Mutex
}

// NewManager 创建锁管理器
func NewManager(db *gorm.DB) *Manager {
	m := &Manager{db: db}
	if db != nil {
		m.dialect = db.Dialector.Name()
	}
	return m
}

// HashKey 将资源键映射为 advisory lock 使用的 64 位有符号整数
func HashKey(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64())
}

// WithLock 持有 key 对应的锁执行 fn，退出时释放。
// 同一进程内可重复获取不同键的锁，但不可重入同一键。
func (m *Manager) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrLockKeyEmpty
	}
	if fn == nil {
		return nil
	}

	if m.dialect == "postgres" {
		return m.withAdvisoryLock(ctx, key, fn)
	}
	return m.withLocalLock(ctx, key, fn)
}

func (m *Manager) withLocalLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	mu := &m.local[uint64(HashKey(key))%localStripes]
	mu.Lock()
	defer mu.Unlock()
	return fn(ctx)
}

// withAdvisoryLock 在独占的连接上获取会话级 advisory lock。
// 必须在同一连接上加锁与释放，连接归还池前锁已释放。
func (m *Manager) withAdvisoryLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	lockID := HashKey(key)
	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", lockID); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrLockTimeout
		}
		return err
	}
	defer func() {
		// 释放不依赖调用方的 ctx：即使业务超时也要解锁
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = conn.ExecContext(releaseCtx, "SELECT pg_advisory_unlock($1)", lockID)
	}()

	return fn(ctx)
}

// TryLock 尝试获取锁，拿不到立即返回 false。仅 PostgreSQL 下可用于跨进程探测。
func (m *Manager) TryLock(ctx context.Context, key string) (bool, func(), error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return false, nil, ErrLockKeyEmpty
	}

	if m.dialect != "postgres" {
		mu := &m.local[uint64(HashKey(key))%localStripes]
		if !mu.TryLock() {
			return false, nil, nil
		}
		return true, mu.Unlock, nil
	}

	sqlDB, err := m.db.DB()
	if err != nil {
		return false, nil, err
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return false, nil, err
	}

	lockID := HashKey(key)
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, nil, err
	}
	if !acquired {
		conn.Close()
		return false, nil, nil
	}
	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = conn.ExecContext(releaseCtx, "SELECT pg_advisory_unlock($1)", lockID)
		conn.Close()
	}
	return true, release, nil
}
