package hitl

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/hitlbridge/internal/pool"
)

// ErrNoSender 未配置出站 Sender.
var ErrNoSender = errors.New("no outbound sender configured")

// OutboundMessage 交给外部消息通道的出站消息.
type OutboundMessage struct {
	ExecutionID      string         `json:"execution_id"`
	Content          string         `json:"content"`
	AgentID          string         `json:"agent_id"`
	AgentName        string         `json:"agent_name,omitempty"`
	TaskID           string         `json:"task_id"`
	TaskName         string         `json:"task_name,omitempty"`
	MessageType      string         `json:"message_type"`
	RequiresResponse bool           `json:"requires_response"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// Sender 出站消息发送方（外部协作者）。
// 会在后台工作 goroutine 上被调用，实现需自行完成到异步上下文的交接。
type Sender interface {
	Send(ctx context.Context, msg OutboundMessage) error
}

// SenderFunc 函数适配器.
type SenderFunc func(ctx context.Context, msg OutboundMessage) error

func (f SenderFunc) Send(ctx context.Context, msg OutboundMessage) error {
	return f(ctx, msg)
}

// DispatcherConfig 投递配置.
type DispatcherConfig struct {
	Workers     int
	QueueSize   int
	SendTimeout time.Duration
}

// DefaultDispatcherConfig 返回默认投递配置.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Workers:     4,
		QueueSize:   256,
		SendTimeout: 10 * time.Second,
	}
}

// DeliveryDispatcher 在固定大小的后台工作池中把请求发送给 Sender.
// 该工作池与执行等待的调用方 goroutine 相互独立。
type DeliveryDispatcher struct {
	sender      Sender
	pool        *pool.WorkerPool
	sendTimeout time.Duration
	logger      *zap.Logger
}

// NewDeliveryDispatcher 创建投递器.
func NewDeliveryDispatcher(sender Sender, cfg DispatcherConfig, logger *zap.Logger) *DeliveryDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultDispatcherConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = def.SendTimeout
	}

	d := &DeliveryDispatcher{
		sender:      sender,
		sendTimeout: cfg.SendTimeout,
		logger:      logger.With(zap.String("component", "delivery_dispatcher")),
	}
	d.pool = pool.NewWorkerPool(pool.WorkerPoolConfig{
		Workers:   cfg.Workers,
		QueueSize: cfg.QueueSize,
		PanicHandler: func(r any) {
			d.logger.Error("dispatch task panicked", zap.Any("panic", r))
		},
	})
	return d
}

// DispatchAsync 把请求放入后台工作池后立即返回。
// 返回错误表示请求根本没有进入工作池（工作池已满/关闭或没有 Sender）；
// 发送阶段的失败会写入 ch，使等待方立即醒来。
func (d *DeliveryDispatcher) DispatchAsync(req HumanRequest, ch *ResponseChannel) error {
	if d.sender == nil {
		return ErrNoSender
	}

	msg := BuildOutboundMessage(req)
	err := d.pool.Submit(func(ctx context.Context) error {
		sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
		defer cancel()

		if err := d.send(sendCtx, msg); err != nil {
			d.logger.Error("failed to deliver human request",
				zap.String("request_id", req.ID),
				zap.String("execution_id", req.ExecutionID),
				zap.Error(err),
			)
			ch.Fail(err)
			return err
		}

		d.logger.Debug("human request delivered",
			zap.String("request_id", req.ID),
			zap.String("kind", string(req.Kind)),
		)
		return nil
	})
	if err != nil {
		return fmt.Errorf("dispatch request %s: %w", ShortID(req.ID), err)
	}
	return nil
}

func (d *DeliveryDispatcher) send(ctx context.Context, msg OutboundMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sender panicked: %v", r)
		}
	}()
	return d.sender.Send(ctx, msg)
}

// Stats 返回工作池统计.
func (d *DeliveryDispatcher) Stats() pool.WorkerPoolStats {
	return d.pool.Stats()
}

// Close 停止接收新任务并等待排队中的发送完成.
func (d *DeliveryDispatcher) Close() {
	d.pool.Close()
}

// BuildOutboundMessage 根据请求构造出站消息.
func BuildOutboundMessage(req HumanRequest) OutboundMessage {
	return OutboundMessage{
		ExecutionID:      req.ExecutionID,
		Content:          FormatMessage(req),
		AgentID:          req.AgentID,
		AgentName:        req.AgentName,
		TaskID:           req.TaskID,
		TaskName:         req.TaskName,
		MessageType:      "human_" + string(req.Kind),
		RequiresResponse: true,
		Metadata: map[string]any{
			"request_id":      req.ID,
			"request_kind":    string(req.Kind),
			"timeout_seconds": req.TimeoutSeconds(),
		},
	}
}

// FormatMessage 渲染给人看的消息：类型、提示、逐条列出的上下文以及截断的请求 id.
func FormatMessage(req HumanRequest) string {
	buf := pool.ByteBufferPool.Get()
	defer pool.ByteBufferPool.Put(buf)

	fmt.Fprintf(buf, "**%s**\n\n%s", strings.ToUpper(string(req.Kind)), req.Prompt)

	if len(req.Context) > 0 {
		keys := make([]string, 0, len(req.Context))
		for k := range req.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteString("\n\n**Context:**")
		for _, k := range keys {
			fmt.Fprintf(buf, "\n• %s: %v", k, req.Context[k])
		}
	}

	fmt.Fprintf(buf, "\n\n_Request ID: %s_", ShortID(req.ID))
	return buf.String()
}

// ShortID 返回用于展示与关联的 id 前 8 位.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
