// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/BaSui01/hitlbridge/hitl"
	"github.com/BaSui01/hitlbridge/internal/pool"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器，同时实现 hitl.Observer
type Collector struct {
	factory   promauto.Factory
	namespace string

	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 人工请求指标
	requestsCreated  *prometheus.CounterVec
	requestsResolved *prometheus.CounterVec
	requestWait      *prometheus.HistogramVec
	requestsPending  prometheus.Gauge

	// 入站回复指标
	responsesSubmitted *prometheus.CounterVec

	logger *zap.Logger
}

var _ hitl.Observer = (*Collector)(nil)

// NewCollector 创建指标收集器，指标注册到 reg（nil 时使用默认 Registerer）
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	c := &Collector{
		factory:   factory,
		namespace: namespace,
		logger:    logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// 人工请求指标
	c.requestsCreated = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "human_requests_created_total",
			Help:      "Total number of human requests created",
		},
		[]string{"kind"},
	)

	c.requestsResolved = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "human_requests_resolved_total",
			Help:      "Total number of human requests resolved, by outcome",
		},
		[]string{"kind", "outcome"},
	)

	c.requestWait = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "human_request_wait_seconds",
			Help:      "Time between request creation and resolution",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"kind", "outcome"},
	)

	c.requestsPending = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "human_requests_pending",
			Help:      "Number of human requests currently waiting",
		},
	)

	c.responsesSubmitted = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "human_responses_submitted_total",
			Help:      "Total number of inbound human responses, by source and acceptance",
		},
		[]string{"source", "accepted"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🙋 人工请求指标记录
// =============================================================================

// OnCreated 实现 hitl.Observer
func (c *Collector) OnCreated(req hitl.HumanRequest) {
	c.requestsCreated.WithLabelValues(string(req.Kind)).Inc()
	c.requestsPending.Inc()
}

// OnResolved 实现 hitl.Observer
func (c *Collector) OnResolved(req hitl.HumanRequest, outcome hitl.Outcome, waited time.Duration) {
	c.requestsResolved.WithLabelValues(string(req.Kind), string(outcome)).Inc()
	c.requestWait.WithLabelValues(string(req.Kind), string(outcome)).Observe(waited.Seconds())
	c.requestsPending.Dec()
}

// RecordResponseSubmitted 记录一次入站回复（source: http / websocket / redis）
func (c *Collector) RecordResponseSubmitted(source string, accepted bool) {
	label := "false"
	if accepted {
		label = "true"
	}
	c.responsesSubmitted.WithLabelValues(source, label).Inc()
}

// RegisterDispatchStats 把投递工作池统计暴露为采集时读取的 Gauge
func (c *Collector) RegisterDispatchStats(stats func() pool.WorkerPoolStats) {
	gauge := func(name, help string, read func(pool.WorkerPoolStats) float64) {
		c.factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: c.namespace,
			Name:      name,
			Help:      help,
		}, func() float64 { return read(stats()) })
	}

	gauge("dispatch_workers_active", "Dispatch workers currently sending",
		func(s pool.WorkerPoolStats) float64 { return float64(s.Active) })
	gauge("dispatch_queue_length", "Outbound messages waiting for a dispatch worker",
		func(s pool.WorkerPoolStats) float64 { return float64(s.Queued) })
	gauge("dispatch_rejected", "Dispatch submissions rejected because the queue was full",
		func(s pool.WorkerPoolStats) float64 { return float64(s.Rejected) })
	gauge("dispatch_failed", "Dispatch tasks that ended in a send error",
		func(s pool.WorkerPoolStats) float64 { return float64(s.Failed) })
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
