package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/yuqie6/ActivityRank/internal/schema"
)

// RedisOptions Redis 连接参数
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisPendingStore 基于 Redis 的待确认邀请表，过期由 Redis TTL 负责
type RedisPendingStore struct {
	rdb    *goredis.Client
	prefix string
}

// NewRedisPendingStore 连接 Redis 并校验可用
func NewRedisPendingStore(opts RedisOptions) (*RedisPendingStore, error) {
	addr := strings.TrimSpace(opts.Addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis addr")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return NewRedisPendingStoreWithClient(rdb, opts.KeyPrefix), nil
}

// NewRedisPendingStoreWithClient 复用已有客户端
func NewRedisPendingStoreWithClient(rdb *goredis.Client, prefix string) *RedisPendingStore {
	if prefix == "" {
		prefix = "activityrank"
	}
	return &RedisPendingStore{rdb: rdb, prefix: prefix}
}

func (s *RedisPendingStore) key(userID int64) string {
	return s.prefix + ":pending_referral:" + strconv.FormatInt(userID, 10)
}

// Put 写入待确认邀请，覆盖旧值
func (s *RedisPendingStore) Put(ctx context.Context, userID int64, p schema.PendingReferral, ttl time.Duration) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.key(userID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("写入待确认邀请失败: %w", err)
	}
	return nil
}

// Get 读取待确认邀请，不存在返回 nil
func (s *RedisPendingStore) Get(ctx context.Context, userID int64) (*schema.PendingReferral, error) {
	raw, err := s.rdb.Get(ctx, s.key(userID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取待确认邀请失败: %w", err)
	}
	var p schema.PendingReferral
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("解析待确认邀请失败: %w", err)
	}
	return &p, nil
}

// Delete 删除待确认邀请
func (s *RedisPendingStore) Delete(ctx context.Context, userID int64) error {
	if err := s.rdb.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("删除待确认邀请失败: %w", err)
	}
	return nil
}

// Close 关闭连接
func (s *RedisPendingStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}
