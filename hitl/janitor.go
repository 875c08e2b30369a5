package hitl

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultJanitorInterval 清理周期.
	DefaultJanitorInterval = 60 * time.Second
	// DefaultJanitorMaxAge 超过该时长的请求会被清理.
	DefaultJanitorMaxAge = time.Hour
)

// Janitor 按年龄清理被遗弃的请求，限制注册表的内存增长.
type Janitor struct {
	registry *RequestRegistry
	observer Observer
	now      func() time.Time
	logger   *zap.Logger
}

// NewJanitor 创建清理器.
func NewJanitor(registry *RequestRegistry, observer Observer, now func() time.Time, logger *zap.Logger) *Janitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if observer == nil {
		observer = nopObserver{}
	}
	if now == nil {
		now = time.Now
	}
	return &Janitor{
		registry: registry,
		observer: observer,
		now:      now,
		logger:   logger.With(zap.String("component", "janitor")),
	}
}

// CleanupExpired 删除创建时间早于 maxAge 的请求并返回删除数量。
// 已到达但尚未被读取的回复不会阻止删除，但这类请求不以 ExpiredBySweep 上报，
// 等待方读到回复后按 Responded 上报.
func (j *Janitor) CleanupExpired(maxAge time.Duration) int {
	expired, removed := j.registry.ExpireOlderThan(maxAge)
	now := j.now()
	for _, req := range expired {
		j.observer.OnResolved(req, OutcomeExpiredBySweep, now.Sub(req.CreatedAt))
		j.logger.Warn("expired human request removed",
			zap.String("request_id", req.ID),
			zap.String("execution_id", req.ExecutionID),
			zap.Time("created_at", req.CreatedAt),
		)
	}
	if removed > 0 {
		j.logger.Info("janitor sweep finished", zap.Int("removed", removed), zap.Int("expired", len(expired)))
	}
	return removed
}

// Run 每隔 interval 清理一次，直到 ctx 结束.
func (j *Janitor) Run(ctx context.Context, interval, maxAge time.Duration) {
	if interval <= 0 {
		interval = DefaultJanitorInterval
	}
	if maxAge <= 0 {
		maxAge = DefaultJanitorMaxAge
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("janitor started", zap.Duration("interval", interval), zap.Duration("max_age", maxAge))
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("janitor stopped")
			return
		case <-ticker.C:
			j.CleanupExpired(maxAge)
		}
	}
}
