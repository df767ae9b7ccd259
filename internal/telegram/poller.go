package telegram

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// DefaultAllowedUpdates message_reaction 需要显式订阅
var DefaultAllowedUpdates = []string{"message", "message_reaction"}

// UpdateSink 接收更新；可以阻塞以形成背压
type UpdateSink interface {
	Dispatch(ctx context.Context, u Update)
}

// UpdateSource 长轮询数据源
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeoutSec int, allowed []string) ([]Update, error)
}

// Poller getUpdates 循环
type Poller struct {
	source     UpdateSource
	timeoutSec int
	allowed    []string
	offset     int64
	maxBackoff time.Duration
}

// NewPoller 创建轮询器
func NewPoller(source UpdateSource, timeoutSec int) *Poller {
	if timeoutSec <= 0 {
		timeoutSec = 30
	}
	return &Poller{
		source:     source,
		timeoutSec: timeoutSec,
		allowed:    DefaultAllowedUpdates,
		maxBackoff: 30 * time.Second,
	}
}

// Offset 下一次拉取的 offset
func (p *Poller) Offset() int64 {
	return p.offset
}

// Run 持续拉取直到 ctx 取消；拉取失败按指数退避重试
func (p *Poller) Run(ctx context.Context, sink UpdateSink) error {
	slog.Info("开始拉取 Telegram 更新", "timeout_sec", p.timeoutSec)
	backoff := min(time.Second, p.maxBackoff)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		updates, err := p.source.GetUpdates(ctx, p.offset, p.timeoutSec, p.allowed)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			slog.Warn("拉取更新失败", "error", err, "retry_in", backoff)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, p.maxBackoff)
			continue
		}
		backoff = min(time.Second, p.maxBackoff)

		for _, u := range updates {
			if u.UpdateID >= p.offset {
				p.offset = u.UpdateID + 1
			}
			sink.Dispatch(ctx, u)
		}
	}
}
