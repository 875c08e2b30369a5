package hitl

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/hitlbridge/internal/pool"
)

// Option 配置 Bridge.
type Option func(*options)

type options struct {
	logger          *zap.Logger
	observers       []Observer
	observerQueue   int
	defaultTimeout  time.Duration
	waitBuffer      time.Duration
	dispatchWorkers int
	dispatchQueue   int
	sendTimeout     time.Duration
	now             func() time.Time
	classifier      ApprovalClassifier
	tracer          trace.Tracer
}

// WithLogger 设置日志.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithObserver 追加生命周期观察者（指标、审计）.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observers = append(o.observers, obs)
		}
	}
}

// WithDefaultTimeout 设置请求默认超时.
func WithDefaultTimeout(d time.Duration) Option {
	return func(o *options) { o.defaultTimeout = d }
}

// WithWaitBuffer 设置外层等待在 timeout 之外的余量.
func WithWaitBuffer(d time.Duration) Option {
	return func(o *options) { o.waitBuffer = d }
}

// WithDispatchWorkers 设置投递工作池大小.
func WithDispatchWorkers(n int) Option {
	return func(o *options) { o.dispatchWorkers = n }
}

// WithDispatchQueue 设置投递队列长度.
func WithDispatchQueue(n int) Option {
	return func(o *options) { o.dispatchQueue = n }
}

// WithObserverQueue 设置生命周期通知队列长度.
func WithObserverQueue(n int) Option {
	return func(o *options) { o.observerQueue = n }
}

// WithSendTimeout 设置单次发送的超时.
func WithSendTimeout(d time.Duration) Option {
	return func(o *options) { o.sendTimeout = d }
}

// WithClock 注入时钟，用于请求的 CreatedAt 与过期判断.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithApprovalClassifier 替换审批回复分类器.
func WithApprovalClassifier(c ApprovalClassifier) Option {
	return func(o *options) { o.classifier = c }
}

// WithTracer 设置 OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// Bridge 把注册表、投递器、等待协调器、工具工厂与清理器组装在一起.
type Bridge struct {
	registry    *RequestRegistry
	dispatcher  *DeliveryDispatcher
	coordinator *WaitCoordinator
	tools       *ToolFactory
	janitor     *Janitor
	events      *AsyncObserver
	logger      *zap.Logger
	closeOnce   sync.Once
}

// New 创建 Bridge。sender 为外部消息通道.
func New(sender Sender, opts ...Option) *Bridge {
	o := options{
		logger:          zap.NewNop(),
		defaultTimeout:  DefaultTimeout,
		waitBuffer:      DefaultWaitBuffer,
		dispatchWorkers: DefaultDispatcherConfig().Workers,
		dispatchQueue:   DefaultDispatcherConfig().QueueSize,
		sendTimeout:     DefaultDispatcherConfig().SendTimeout,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	// 观察者（审计写库等）可能很慢，统一经队列异步执行，不占用等待预算
	var observer Observer = nopObserver{}
	var events *AsyncObserver
	switch len(o.observers) {
	case 0:
	case 1:
		events = NewAsyncObserver(o.observers[0], o.observerQueue, o.logger)
	default:
		events = NewAsyncObserver(MultiObserver(o.observers), o.observerQueue, o.logger)
	}
	if events != nil {
		observer = events
	}

	registry := NewRequestRegistry(o.now)
	dispatcher := NewDeliveryDispatcher(sender, DispatcherConfig{
		Workers:     o.dispatchWorkers,
		QueueSize:   o.dispatchQueue,
		SendTimeout: o.sendTimeout,
	}, o.logger)
	coordinator := NewWaitCoordinator(registry, dispatcher, CoordinatorConfig{
		DefaultTimeout: o.defaultTimeout,
		WaitBuffer:     o.waitBuffer,
		Observer:       observer,
		Tracer:         o.tracer,
	}, o.logger)

	return &Bridge{
		registry:    registry,
		dispatcher:  dispatcher,
		coordinator: coordinator,
		tools:       NewToolFactory(coordinator, o.classifier, o.defaultTimeout, o.logger),
		janitor:     NewJanitor(registry, observer, o.now, o.logger),
		events:      events,
		logger:      o.logger.With(zap.String("component", "hitl_bridge")),
	}
}

// RequestAndWait 见 WaitCoordinator.RequestAndWait.
func (b *Bridge) RequestAndWait(ctx context.Context, spec RequestSpec) Result {
	return b.coordinator.RequestAndWait(ctx, spec)
}

// SubmitResponse 入站接口：把人工回复交给等待中的请求。
// id 未知（已结束或从未存在）时返回 false 并记录警告.
func (b *Bridge) SubmitResponse(requestID, text string) bool {
	if b.registry.Submit(requestID, text) {
		b.logger.Debug("human response accepted", zap.String("request_id", requestID))
		return true
	}
	b.logger.Warn("response for unknown or resolved request", zap.String("request_id", requestID))
	return false
}

// BuildTools 见 ToolFactory.BuildTools.
func (b *Bridge) BuildTools(tc ToolContext) map[string]Tool {
	return b.tools.BuildTools(tc)
}

// Get 按 id 查询待处理请求.
func (b *Bridge) Get(id string) (HumanRequest, bool) {
	return b.registry.Get(id)
}

// ListPending 列出待处理请求，executionID 为空时不过滤.
func (b *Bridge) ListPending(executionID string) map[string]HumanRequest {
	return b.registry.ListPending(executionID)
}

// CleanupExpired 见 Janitor.CleanupExpired.
func (b *Bridge) CleanupExpired(maxAge time.Duration) int {
	return b.janitor.CleanupExpired(maxAge)
}

// RunJanitor 周期清理，直到 ctx 结束.
func (b *Bridge) RunJanitor(ctx context.Context, interval, maxAge time.Duration) {
	b.janitor.Run(ctx, interval, maxAge)
}

// DispatchStats 返回投递工作池统计.
func (b *Bridge) DispatchStats() pool.WorkerPoolStats {
	return b.dispatcher.Stats()
}

// Close 停止投递，等待排队中的发送与生命周期通知完成.
func (b *Bridge) Close() {
	b.closeOnce.Do(func() {
		b.dispatcher.Close()
		if b.events != nil {
			b.events.Close()
		}
	})
}
