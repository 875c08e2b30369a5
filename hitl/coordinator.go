package hitl

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/BaSui01/hitlbridge/hitl"

const (
	// DefaultTimeout 单个请求默认的等待上限.
	DefaultTimeout = 300 * time.Second
	// DefaultWaitBuffer 外层 context 在 timeout 之外多留的时间.
	DefaultWaitBuffer = 5 * time.Second

	promptEchoLimit = 100
)

// 哨兵前缀，出现在返回给 Agent 的字符串开头.
const (
	TimeoutTag = "[TIMEOUT]"
	ErrorTag   = "[ERROR]"
)

// dispatcher 由 DeliveryDispatcher 实现，测试中可替换.
type dispatcher interface {
	DispatchAsync(req HumanRequest, ch *ResponseChannel) error
}

// Result 一次 RequestAndWait 的结果.
type Result struct {
	RequestID string
	Kind      RequestKind
	Outcome   Outcome
	// Value 人工回复原文，仅 Outcome 为 OutcomeResponded 时有值.
	Value string
	// Sentinel 非正常结束时返回给 Agent 的 [TIMEOUT]/[ERROR] 字符串.
	Sentinel string
	Waited   time.Duration
}

// Responded 是否拿到了人工回复.
func (r Result) Responded() bool {
	return r.Outcome == OutcomeResponded
}

// String 返回 Agent 可见的字符串：人工回复或哨兵.
func (r Result) String() string {
	if r.Responded() {
		return r.Value
	}
	return r.Sentinel
}

// WaitCoordinator 编排 创建 → 投递 → 有界等待 → 结束 → 清理.
type WaitCoordinator struct {
	registry       *RequestRegistry
	dispatcher     dispatcher
	observer       Observer
	tracer         trace.Tracer
	defaultTimeout time.Duration
	waitBuffer     time.Duration
	logger         *zap.Logger
}

// CoordinatorConfig 等待协调器配置.
type CoordinatorConfig struct {
	DefaultTimeout time.Duration
	WaitBuffer     time.Duration
	Observer       Observer
	Tracer         trace.Tracer
}

// NewWaitCoordinator 创建等待协调器.
func NewWaitCoordinator(registry *RequestRegistry, d dispatcher, cfg CoordinatorConfig, logger *zap.Logger) *WaitCoordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultTimeout
	}
	if cfg.WaitBuffer <= 0 {
		cfg.WaitBuffer = DefaultWaitBuffer
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer(instrumentationName)
	}
	return &WaitCoordinator{
		registry:       registry,
		dispatcher:     d,
		observer:       cfg.Observer,
		tracer:         cfg.Tracer,
		defaultTimeout: cfg.DefaultTimeout,
		waitBuffer:     cfg.WaitBuffer,
		logger:         logger.With(zap.String("component", "wait_coordinator")),
	}
}

// RequestAndWait 创建请求、异步投递并在调用方 goroutine 上有界等待。
// 从不返回错误：所有失败都落到 Result.Sentinel.
func (c *WaitCoordinator) RequestAndWait(ctx context.Context, spec RequestSpec) Result {
	if ctx == nil {
		ctx = context.Background()
	}
	if !spec.Kind.Valid() {
		c.logger.Error("unknown request kind", zap.String("kind", string(spec.Kind)))
		return Result{
			Kind:     spec.Kind,
			Outcome:  OutcomeErrorDelivering,
			Sentinel: fmt.Sprintf("%s Unknown request kind: %q", ErrorTag, spec.Kind),
		}
	}
	if spec.Timeout <= 0 {
		spec.Timeout = c.defaultTimeout
	}

	ctx, span := c.tracer.Start(ctx, "hitl.request_and_wait",
		trace.WithAttributes(
			attribute.String("hitl.kind", string(spec.Kind)),
			attribute.String("hitl.execution_id", spec.ExecutionID),
			attribute.String("hitl.task_id", spec.TaskID),
			attribute.String("hitl.agent_id", spec.AgentID),
			attribute.Float64("hitl.timeout_seconds", spec.Timeout.Seconds()),
		))
	defer span.End()

	req, ch := c.registry.Create(spec)
	span.SetAttributes(attribute.String("hitl.request_id", req.ID))
	c.observer.OnCreated(req)
	start := time.Now()

	c.logger.Info("human request created",
		zap.String("request_id", req.ID),
		zap.String("kind", string(req.Kind)),
		zap.String("execution_id", req.ExecutionID),
		zap.Duration("timeout", req.Timeout),
	)

	if err := c.dispatcher.DispatchAsync(req, ch); err != nil {
		c.logger.Error("dispatch rejected", zap.String("request_id", req.ID), zap.Error(err))
		if !ch.Settle() {
			// 清理任务已抢先结束该请求并上报
			return c.finish(span, req, start, OutcomeExpiredBySweep, "", expiredSentinel(req), false)
		}
		return c.finish(span, req, start, OutcomeErrorDelivering, "", deliveryFailure(err), true)
	}

	waitCtx, cancel := context.WithTimeout(ctx, req.Timeout+c.waitBuffer)
	defer cancel()

	resp, ok := ch.Wait(waitCtx, req.Timeout)
	switch {
	case ok && resp.Err == nil:
		return c.finish(span, req, start, OutcomeResponded, resp.Text, "", true)
	case ok && errors.Is(resp.Err, ErrRequestExpired):
		// 清理任务已上报 ExpiredBySweep
		return c.finish(span, req, start, OutcomeExpiredBySweep, "", expiredSentinel(req), false)
	case ok:
		return c.finish(span, req, start, OutcomeErrorDelivering, "", deliveryFailure(resp.Err), true)
	case ctx.Err() != nil:
		return c.finish(span, req, start, OutcomeCancelled, "",
			fmt.Sprintf("%s Request cancelled: %v", ErrorTag, ctx.Err()), true)
	default:
		return c.finish(span, req, start, OutcomeTimedOut, "", timeoutSentinel(req), true)
	}
}

// finish 删除注册表条目并在 report 为 true 时上报结果。
// 响应槽的终态保证每个请求只有一方上报.
func (c *WaitCoordinator) finish(span trace.Span, req HumanRequest, start time.Time, outcome Outcome, value, sentinel string, report bool) Result {
	waited := time.Since(start)
	c.registry.Remove(req.ID)
	if report {
		c.observer.OnResolved(req, outcome, waited)
	}

	span.SetAttributes(attribute.String("hitl.outcome", string(outcome)))
	if outcome == OutcomeResponded {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, sentinel)
	}

	c.logger.Info("human request resolved",
		zap.String("request_id", req.ID),
		zap.String("outcome", string(outcome)),
		zap.Duration("waited", waited),
	)

	return Result{
		RequestID: req.ID,
		Kind:      req.Kind,
		Outcome:   outcome,
		Value:     value,
		Sentinel:  sentinel,
		Waited:    waited,
	}
}

func deliveryFailure(err error) string {
	return fmt.Sprintf("%s Failed to deliver request: %v", ErrorTag, err)
}

func expiredSentinel(req HumanRequest) string {
	return fmt.Sprintf("%s Request %s expired before a response was received", ErrorTag, ShortID(req.ID))
}

func timeoutSentinel(req HumanRequest) string {
	secs := strconv.FormatFloat(req.Timeout.Seconds(), 'f', -1, 64)
	return fmt.Sprintf("%s No response received within %ss for: %s", TimeoutTag, secs, truncate(req.Prompt, promptEchoLimit))
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
