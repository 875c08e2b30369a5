package hitl

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/hitlbridge/internal/pool"
)

// DefaultObserverQueue 异步观察者队列长度.
const DefaultObserverQueue = 1024

// Observer 接收请求生命周期通知（指标、审计等）。回调在注册表锁之外执行.
type Observer interface {
	OnCreated(req HumanRequest)
	OnResolved(req HumanRequest, outcome Outcome, waited time.Duration)
}

// MultiObserver 依次通知多个观察者.
type MultiObserver []Observer

func (m MultiObserver) OnCreated(req HumanRequest) {
	for _, o := range m {
		o.OnCreated(req)
	}
}

func (m MultiObserver) OnResolved(req HumanRequest, outcome Outcome, waited time.Duration) {
	for _, o := range m {
		o.OnResolved(req, outcome, waited)
	}
}

type nopObserver struct{}

func (nopObserver) OnCreated(HumanRequest)                          {}
func (nopObserver) OnResolved(HumanRequest, Outcome, time.Duration) {}

// AsyncObserver 把通知放进有界队列，由单个 worker 按顺序交给 next。
// 调用方从不等待观察者；队列满时丢弃事件并记录日志.
type AsyncObserver struct {
	next   Observer
	pool   *pool.WorkerPool
	logger *zap.Logger
}

// NewAsyncObserver 创建异步观察者。queue 非正时使用 DefaultObserverQueue.
func NewAsyncObserver(next Observer, queue int, logger *zap.Logger) *AsyncObserver {
	if queue <= 0 {
		queue = DefaultObserverQueue
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &AsyncObserver{
		next:   next,
		logger: logger.With(zap.String("component", "observer_queue")),
	}
	a.pool = pool.NewWorkerPool(pool.WorkerPoolConfig{
		Workers:   1,
		QueueSize: queue,
		PanicHandler: func(r any) {
			a.logger.Error("observer panicked", zap.Any("panic", r))
		},
	})
	return a
}

func (a *AsyncObserver) OnCreated(req HumanRequest) {
	a.enqueue("created", req.ID, func() { a.next.OnCreated(req) })
}

func (a *AsyncObserver) OnResolved(req HumanRequest, outcome Outcome, waited time.Duration) {
	a.enqueue(string(outcome), req.ID, func() { a.next.OnResolved(req, outcome, waited) })
}

func (a *AsyncObserver) enqueue(event, requestID string, fn func()) {
	err := a.pool.Submit(func(context.Context) error {
		fn()
		return nil
	})
	if err != nil {
		a.logger.Warn("lifecycle event dropped",
			zap.String("event", event),
			zap.String("request_id", requestID),
			zap.Error(err),
		)
	}
}

// Stats 返回队列统计.
func (a *AsyncObserver) Stats() pool.WorkerPoolStats {
	return a.pool.Stats()
}

// Close 停止接收事件并等待已排队的通知执行完.
func (a *AsyncObserver) Close() {
	a.pool.Close()
}
