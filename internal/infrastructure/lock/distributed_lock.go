package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ============================================================================
// 分布式锁
// ============================================================================
//
// 账本的正确性由数据库行锁保证（学生行、商户行、结算单行 SELECT ... FOR UPDATE）。
// Redis 锁挡在事务之外，让同一学生 / 商户的并发请求在进入数据库之前就排队，
// 减少行锁等待和连接占用。没有配置 Redis 时只依赖行锁。
//
// 加锁：SET key value NX EX timeout
// 释放：Lua 脚本比较 value 后再 DEL，避免删掉别人的锁
//
// ============================================================================

var ErrLockFailed = errors.New("获取分布式锁失败")

const unlockScript = `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`

// DistributedLock 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string        // 锁的 key
	value      string        // 锁持有者标识
	expiration time.Duration // 锁的过期时间
}

// NewDistributedLock 创建分布式锁
func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 尝试获取锁（非阻塞）
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

// Lock 阻塞式获取锁（带重试）
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

// Unlock 释放锁，只删除自己持有的锁
func (l *DistributedLock) Unlock(ctx context.Context) error {
	return l.client.Eval(ctx, unlockScript, []string{l.key}, l.value).Err()
}

// ============================================================================
// Locker
// ============================================================================

// Locker 业务层使用的锁接口。release 必须调用且可重复调用。
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// RedisLocker 基于 DistributedLock 的 Locker 实现
type RedisLocker struct {
	client        *redis.Client
	ttl           time.Duration
	retryInterval time.Duration
	maxRetries    int
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{
		client:        client,
		ttl:           ttl,
		retryInterval: 50 * time.Millisecond,
		maxRetries:    100,
	}
}

func (r *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	l := NewDistributedLock(r.client, key, uuid.NewString(), r.ttl)
	if err := l.Lock(ctx, r.retryInterval, r.maxRetries); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrLockFailed, key)
	}
	released := false
	return func() {
		if released {
			return
		}
		released = true
		// 请求 ctx 可能已经取消，释放锁不能跟着失败
		unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = l.Unlock(unlockCtx)
	}, nil
}

// StudentChargeKey 按学生维度串行化消费
func StudentChargeKey(studentID int64) string {
	return fmt.Sprintf("charge:lock:student:%d", studentID)
}

// StoreSettlementKey 按商户维度串行化结算申请
func StoreSettlementKey(storeID int64) string {
	return fmt.Sprintf("settlement:lock:store:%d", storeID)
}

// SettlementPaymentKey 按结算单维度串行化付款
func SettlementPaymentKey(settlementID int64) string {
	return fmt.Sprintf("settlement:lock:settlement:%d", settlementID)
}
