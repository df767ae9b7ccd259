package service

import (
	"context"
	"sync"
	"time"

	"github.com/yuqie6/ActivityRank/internal/schema"
)

// MemoryPendingStore 进程内待确认邀请表；重启丢失，未配置 Redis 时使用
type MemoryPendingStore struct {
	mu    sync.Mutex
	items map[int64]memoryPending
	now   func() time.Time
}

type memoryPending struct {
	p        schema.PendingReferral
	deadline time.Time
}

// NewMemoryPendingStore 创建内存版待确认表
func NewMemoryPendingStore() *MemoryPendingStore {
	return &MemoryPendingStore{items: make(map[int64]memoryPending), now: time.Now}
}

func (m *MemoryPendingStore) Put(_ context.Context, userID int64, p schema.PendingReferral, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[userID] = memoryPending{p: p, deadline: m.now().Add(ttl)}
	return nil
}

func (m *MemoryPendingStore) Get(_ context.Context, userID int64) (*schema.PendingReferral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[userID]
	if !ok {
		return nil, nil
	}
	if !m.now().Before(it.deadline) {
		delete(m.items, userID)
		return nil, nil
	}
	p := it.p
	return &p, nil
}

func (m *MemoryPendingStore) Delete(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, userID)
	return nil
}

// Len 当前条目数（含未清理的过期项）
func (m *MemoryPendingStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
