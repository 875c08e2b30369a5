package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/hitlbridge/hitl"
	"github.com/BaSui01/hitlbridge/internal/pool"
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewCollector("test", reg, zap.NewNop()), reg
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector, _ := newTestCollector(t)

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.requestsCreated)
	assert.NotNil(t, collector.requestsResolved)
	assert.NotNil(t, collector.requestWait)
	assert.NotNil(t, collector.requestsPending)
}

func TestNewCollector_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewCollector("same", prometheus.NewRegistry(), nil)
		NewCollector("same", prometheus.NewRegistry(), nil)
	})
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector, _ := newTestCollector(t)

	collector.RecordHTTPRequest("GET", "/api/v1/requests", 200, 100*time.Millisecond, 2048)
	collector.RecordHTTPRequest("GET", "/api/v1/requests", 204, 50*time.Millisecond, 0)
	collector.RecordHTTPRequest("POST", "/api/v1/requests/x/response", 404, time.Millisecond, 64)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/api/v1/requests", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("POST", "/api/v1/requests/x/response", "4xx")))
	assert.Equal(t, 2, testutil.CollectAndCount(collector.httpRequestDuration))
}

func TestCollector_Observer(t *testing.T) {
	collector, _ := newTestCollector(t)

	q := hitl.HumanRequest{ID: "1", Kind: hitl.KindQuestion}
	a := hitl.HumanRequest{ID: "2", Kind: hitl.KindApproval}

	collector.OnCreated(q)
	collector.OnCreated(a)
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.requestsPending))

	collector.OnResolved(q, hitl.OutcomeResponded, 3*time.Second)
	collector.OnResolved(a, hitl.OutcomeTimedOut, 300*time.Second)

	assert.Equal(t, 0.0, testutil.ToFloat64(collector.requestsPending))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.requestsCreated.WithLabelValues("question")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.requestsResolved.WithLabelValues("question", "responded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.requestsResolved.WithLabelValues("approval", "timed_out")))
	assert.Equal(t, 2, testutil.CollectAndCount(collector.requestWait))
}

func TestCollector_WithBridge(t *testing.T) {
	collector, _ := newTestCollector(t)

	b := hitl.New(nil, hitl.WithObserver(collector))
	defer b.Close()

	res := b.RequestAndWait(t.Context(), hitl.RequestSpec{Kind: hitl.KindDecision, Timeout: time.Minute})
	require.Equal(t, hitl.OutcomeErrorDelivering, res.Outcome)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.requestsResolved.WithLabelValues("decision", "error_delivering")))
	assert.Equal(t, 0.0, testutil.ToFloat64(collector.requestsPending))
}

func TestCollector_RecordResponseSubmitted(t *testing.T) {
	collector, _ := newTestCollector(t)

	collector.RecordResponseSubmitted("websocket", true)
	collector.RecordResponseSubmitted("websocket", false)
	collector.RecordResponseSubmitted("redis", true)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.responsesSubmitted.WithLabelValues("websocket", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.responsesSubmitted.WithLabelValues("websocket", "false")))
	assert.Equal(t, 3, testutil.CollectAndCount(collector.responsesSubmitted))
}

func TestCollector_RegisterDispatchStats(t *testing.T) {
	collector, reg := newTestCollector(t)

	collector.RegisterDispatchStats(func() pool.WorkerPoolStats {
		return pool.WorkerPoolStats{Active: 2, Queued: 7, Rejected: 3, Failed: 1}
	})

	expected := `
# HELP test_dispatch_queue_length Outbound messages waiting for a dispatch worker
# TYPE test_dispatch_queue_length gauge
test_dispatch_queue_length 7
# HELP test_dispatch_workers_active Dispatch workers currently sending
# TYPE test_dispatch_workers_active gauge
test_dispatch_workers_active 2
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"test_dispatch_queue_length", "test_dispatch_workers_active")
	assert.NoError(t, err)
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, "2xx", statusCode(201))
	assert.Equal(t, "3xx", statusCode(302))
	assert.Equal(t, "4xx", statusCode(429))
	assert.Equal(t, "5xx", statusCode(503))
	assert.Equal(t, "unknown", statusCode(100))
}
