package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ============================================================================
// 分布式锁
// ============================================================================
//
// 购买和退款都是"读余额 → 校验 → 条件写入"的组合，单实例内靠数据库事务
// 和乐观锁就能保证正确性，多实例部署时再用 Redis 锁把同一买家的并发请求
// 串行化，避免乐观锁冲突导致的大量重试。
//
// 加锁：SET key value NX EX timeout
//   - NX 保证互斥，EX 防止持有者崩溃后死锁
//   - value 记录持有者（释放时校验，防止误删他人的锁）
// 释放：Lua 脚本原子地"校验 value + 删除 key"
//
// ============================================================================

var ErrLockFailed = errors.New("获取分布式锁失败")

// DistributedLock 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string
	expiration time.Duration
}

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
	success, err := l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
	if err != nil {
		return false, err
	}
	return success, nil
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

// Unlock 释放锁
// Lua 脚本保证"校验持有者 + 删除"的原子性，锁过期后被他人持有时不误删
func (l *DistributedLock) Unlock(ctx context.Context) error {
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	_, err := l.client.Eval(ctx, script, []string{l.key}, l.value).Result()
	return err
}

// NewBuyLock 创建购买锁（按买家地址维度）
// 不同买家可以并发购买；同一买家的重复提交被串行化
func NewBuyLock(client *redis.Client, buyer string, requestID string) *DistributedLock {
	key := fmt.Sprintf("sale:lock:buy:%s", buyer)
	return NewDistributedLock(client, key, requestID, 30*time.Second)
}

// NewRefundLock 创建退款锁（按出资人地址维度）
func NewRefundLock(client *redis.Client, contributor string, refundNo string) *DistributedLock {
	key := fmt.Sprintf("sale:lock:refund:%s", contributor)
	return NewDistributedLock(client, key, refundNo, 30*time.Second)
}
