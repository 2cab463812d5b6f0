// Package locker 提供按键（ISBN）串行化写操作的短时锁
package locker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockTimeout 在上下文结束前未能获得锁
var ErrLockTimeout = errors.New("lock wait timeout")

// Locker 按键加锁，返回的 unlock 必须调用且只调用一次
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// ==================== 进程内实现 ====================

// MemoryLocker 进程内按键互斥锁，键不再使用时自动回收
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// NewMemoryLocker 创建进程内锁
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*keyLock)}
}

// Lock 获取键对应的锁，等待期间可被 ctx 取消
func (m *MemoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	kl, ok := m.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		m.locks[key] = kl
	}
	kl.refs++
	m.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		m.release(key, kl)
		return nil, fmt.Errorf("%w: %s: %v", ErrLockTimeout, key, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-kl.ch
			m.release(key, kl)
		})
	}, nil
}

func (m *MemoryLocker) release(key string, kl *keyLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(m.locks, key)
	}
}

// ==================== Redis实现 ====================

// 仅当值仍为本次加锁的 token 时才删除，避免误删他人的锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker 基于 SET NX PX 的分布式锁，适用于多实例部署
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

// NewRedisLocker 创建Redis锁，ttl 为锁的最长持有时间
func NewRedisLocker(client *redis.Client, prefix string, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisLocker{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		retry:  25 * time.Millisecond,
	}
}

// Lock 轮询获取锁，直到成功或 ctx 结束
func (r *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := r.prefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(r.retry)
	defer ticker.Stop()

	for {
		ok, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrLockTimeout, key, ctx.Err())
			}
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrLockTimeout, key, ctx.Err())
		case <-ticker.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = releaseScript.Run(releaseCtx, r.client, []string{redisKey}, token).Err()
		})
	}, nil
}

// ==================== 等待上限 ====================

// Bounded 限制等待锁的时间
type Bounded struct {
	Locker Locker
	Wait   time.Duration
}

// Lock 在 Wait 内获取锁，Wait 不大于零时只受 ctx 约束
func (b Bounded) Lock(ctx context.Context, key string) (func(), error) {
	if b.Wait <= 0 {
		return b.Locker.Lock(ctx, key)
	}
	ctx, cancel := context.WithTimeout(ctx, b.Wait)
	defer cancel()
	return b.Locker.Lock(ctx, key)
}
