package hitl

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type resolution struct {
	req     HumanRequest
	outcome Outcome
}

type recordingObserver struct {
	mu       sync.Mutex
	created  []HumanRequest
	resolved []resolution
}

func (o *recordingObserver) OnCreated(req HumanRequest) {
	o.mu.Lock()
	o.created = append(o.created, req)
	o.mu.Unlock()
}

func (o *recordingObserver) OnResolved(req HumanRequest, outcome Outcome, _ time.Duration) {
	o.mu.Lock()
	o.resolved = append(o.resolved, resolution{req: req, outcome: outcome})
	o.mu.Unlock()
}

func (o *recordingObserver) outcomes() []Outcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Outcome, 0, len(o.resolved))
	for _, r := range o.resolved {
		out = append(out, r.outcome)
	}
	return out
}

// awaitOutcomes 等待异步队列送达 want 中的全部结果.
func (o *recordingObserver) awaitOutcomes(t *testing.T, want ...Outcome) {
	t.Helper()
	require.Eventually(t, func() bool { return len(o.outcomes()) >= len(want) }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, want, o.outcomes())
}

// replySender 在投递时直接把 answer 的返回值回写到 Bridge.
type replySender struct {
	bridge *Bridge
	answer func(msg OutboundMessage) string

	mu   sync.Mutex
	sent []OutboundMessage
}

func (s *replySender) Send(_ context.Context, msg OutboundMessage) error {
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()

	id, _ := msg.Metadata["request_id"].(string)
	s.bridge.SubmitResponse(id, s.answer(msg))
	return nil
}

func (s *replySender) messages() []OutboundMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]OutboundMessage(nil), s.sent...)
}

func newReplyBridge(answer func(msg OutboundMessage) string, opts ...Option) (*Bridge, *replySender) {
	s := &replySender{answer: answer}
	b := New(s, opts...)
	s.bridge = b
	return b, s
}

func constAnswer(v string) func(OutboundMessage) string {
	return func(OutboundMessage) string { return v }
}

// silentSender 接受消息但从不回复.
var silentSender = SenderFunc(func(context.Context, OutboundMessage) error { return nil })
