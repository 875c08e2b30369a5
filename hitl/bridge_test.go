package hitl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBridge_RoundTrip(t *testing.T) {
	b, s := newReplyBridge(constAnswer("42"))
	defer b.Close()

	tools := b.BuildTools(ToolContext{ExecutionID: "exec-1", TaskID: "task-1", AgentID: "agent-1"})
	got := tools[ToolAskQuestion].Call("What is the answer?")
	assert.Equal(t, "Human answered: 42", got)

	msgs := s.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "exec-1", msgs[0].ExecutionID)
	assert.Contains(t, msgs[0].Content, "What is the answer?")
	assert.Empty(t, b.ListPending(""))
}

func TestBridge_SubmitResponseUnknownID(t *testing.T) {
	b := New(silentSender)
	defer b.Close()

	assert.NotPanics(t, func() {
		assert.False(t, b.SubmitResponse("does-not-exist", "hello"))
	})
}

func TestBridge_TimeoutBound(t *testing.T) {
	obs := &recordingObserver{}
	b := New(silentSender, WithObserver(obs))
	defer b.Close()

	prompt := strings.Repeat("p", 150)
	start := time.Now()
	res := b.RequestAndWait(context.Background(), RequestSpec{
		Kind:    KindQuestion,
		Prompt:  prompt,
		Timeout: time.Second,
	})
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, time.Second)
	assert.LessOrEqual(t, elapsed, time.Second+DefaultWaitBuffer)

	assert.Equal(t, OutcomeTimedOut, res.Outcome)
	assert.True(t, strings.HasPrefix(res.String(), "[TIMEOUT]"))
	assert.Equal(t, "[TIMEOUT] No response received within 1s for: "+strings.Repeat("p", 100)+"...", res.String())
	assert.Empty(t, b.ListPending(""))
	obs.awaitOutcomes(t, OutcomeTimedOut)
}

func TestBridge_DeliveryFailureResolvesImmediately(t *testing.T) {
	obs := &recordingObserver{}
	b := New(SenderFunc(func(context.Context, OutboundMessage) error {
		return errors.New("client disconnected")
	}), WithObserver(obs))
	defer b.Close()

	start := time.Now()
	res := b.RequestAndWait(context.Background(), RequestSpec{Kind: KindQuestion, Prompt: "hi", Timeout: time.Minute})

	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Equal(t, OutcomeErrorDelivering, res.Outcome)
	assert.Equal(t, "[ERROR] Failed to deliver request: client disconnected", res.String())
	assert.Empty(t, b.ListPending(""))
	obs.awaitOutcomes(t, OutcomeErrorDelivering)
}

func TestBridge_DispatchRejected(t *testing.T) {
	b := New(nil)
	defer b.Close()

	res := b.RequestAndWait(context.Background(), RequestSpec{Kind: KindQuestion, Timeout: time.Minute})
	assert.Equal(t, OutcomeErrorDelivering, res.Outcome)
	assert.True(t, strings.HasPrefix(res.String(), "[ERROR] Failed to deliver request:"))
	assert.Contains(t, res.String(), ErrNoSender.Error())
	assert.Empty(t, b.ListPending(""))
}

func TestBridge_ClosedBridge(t *testing.T) {
	b := New(silentSender)
	b.Close()
	b.Close()

	res := b.RequestAndWait(context.Background(), RequestSpec{Kind: KindQuestion, Timeout: time.Minute})
	assert.Equal(t, OutcomeErrorDelivering, res.Outcome)
	assert.Contains(t, res.String(), "pool is closed")
}

func TestBridge_ContextCancelled(t *testing.T) {
	obs := &recordingObserver{}
	b := New(silentSender, WithObserver(obs))
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res := b.RequestAndWait(ctx, RequestSpec{Kind: KindQuestion, Timeout: time.Minute})
	assert.Equal(t, OutcomeCancelled, res.Outcome)
	assert.True(t, strings.HasPrefix(res.String(), "[ERROR] Request cancelled:"))
	assert.Empty(t, b.ListPending(""))
	obs.awaitOutcomes(t, OutcomeCancelled)
}

func TestBridge_UnknownKind(t *testing.T) {
	b := New(silentSender)
	defer b.Close()

	res := b.RequestAndWait(context.Background(), RequestSpec{Kind: "poll"})
	assert.True(t, strings.HasPrefix(res.String(), "[ERROR]"))
	assert.Empty(t, b.ListPending(""))
}

func TestBridge_ConcurrentRequestsNoCrossTalk(t *testing.T) {
	// 回复内容由请求提示推导，任何串号都会导致不匹配
	b, _ := newReplyBridge(func(msg OutboundMessage) string {
		return "answer-for-" + msg.TaskID
	}, WithDispatchWorkers(4))
	defer b.Close()

	const n = 50
	results := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tools := b.BuildTools(ToolContext{
				ExecutionID: "exec",
				TaskID:      fmt.Sprintf("task-%d", i),
				Timeout:     10 * time.Second,
			})
			results[i] = tools[ToolAskQuestion].Call(fmt.Sprintf("question %d", i))
		}(i)
	}
	wg.Wait()

	for i, got := range results {
		assert.Equal(t, fmt.Sprintf("Human answered: answer-for-task-%d", i), got)
	}
	assert.Empty(t, b.ListPending(""))
}

func TestBridge_ConcurrentExternalSubmits(t *testing.T) {
	b := New(silentSender)
	defer b.Close()

	const n = 50
	results := make([]Result, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = b.RequestAndWait(context.Background(), RequestSpec{
				Kind:    KindQuestion,
				TaskID:  fmt.Sprintf("task-%d", i),
				Timeout: 10 * time.Second,
			})
		}(i)
	}

	require.Eventually(t, func() bool { return len(b.ListPending("")) == n }, 5*time.Second, 5*time.Millisecond)
	for id, req := range b.ListPending("") {
		require.True(t, b.SubmitResponse(id, "value-"+req.TaskID))
	}
	wg.Wait()

	for i, res := range results {
		require.True(t, res.Responded())
		assert.Equal(t, fmt.Sprintf("value-task-%d", i), res.Value)
	}
}

func TestBridge_SweepRemovesAgedRequest(t *testing.T) {
	clock := newFakeClock()
	obs := &recordingObserver{}
	b := New(silentSender, WithClock(clock.Now), WithObserver(obs))
	defer b.Close()

	done := make(chan Result, 1)
	go func() {
		done <- b.RequestAndWait(context.Background(), RequestSpec{
			Kind:        KindQuestion,
			ExecutionID: "exec-1",
			Timeout:     time.Minute,
		})
	}()
	require.Eventually(t, func() bool { return len(b.ListPending("exec-1")) == 1 }, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 0, b.CleanupExpired(time.Hour))

	clock.Advance(2 * time.Hour)
	assert.Equal(t, 1, b.CleanupExpired(time.Hour))
	assert.Empty(t, b.ListPending("exec-1"))

	select {
	case res := <-done:
		assert.Equal(t, OutcomeExpiredBySweep, res.Outcome)
		assert.True(t, strings.HasPrefix(res.String(), "[ERROR]"))
	case <-time.After(5 * time.Second):
		t.Fatal("waiter was not released by the sweep")
	}
	obs.awaitOutcomes(t, OutcomeExpiredBySweep)
}

func TestBridge_RunJanitor(t *testing.T) {
	clock := newFakeClock()
	b := New(silentSender, WithClock(clock.Now))
	defer b.Close()

	go b.RequestAndWait(context.Background(), RequestSpec{Kind: KindQuestion, Timeout: time.Minute})
	require.Eventually(t, func() bool { return len(b.ListPending("")) == 1 }, 2*time.Second, 5*time.Millisecond)
	clock.Advance(2 * time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		b.RunJanitor(ctx, 10*time.Millisecond, time.Hour)
		close(stopped)
	}()

	require.Eventually(t, func() bool { return len(b.ListPending("")) == 0 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-stopped
}

func TestBridge_ApprovalClassification(t *testing.T) {
	cases := []struct {
		answer string
		prefix string
	}{
		{"yes, go ahead", "APPROVED:"},
		{"no, not yet", "REJECTED:"},
		{"wait until Friday", "USER_INSTRUCTIONS:"},
	}
	for _, tc := range cases {
		t.Run(tc.answer, func(t *testing.T) {
			b, _ := newReplyBridge(constAnswer(tc.answer))
			defer b.Close()

			got := b.BuildTools(ToolContext{})[ToolRequestApproval].Call("deploy now")
			assert.True(t, strings.HasPrefix(got, tc.prefix), got)
			assert.Equal(t, tc.prefix+" "+tc.answer, got)
		})
	}
}

func TestBridge_CustomApprovalClassifier(t *testing.T) {
	b, _ := newReplyBridge(constAnswer("ship it"), WithApprovalClassifier(
		ApprovalClassifierFunc(func(string) ApprovalVerdict { return VerdictApproved }),
	))
	defer b.Close()

	got := b.BuildTools(ToolContext{})[ToolRequestApproval].Call("deploy now")
	assert.Equal(t, "APPROVED: ship it", got)
}

func TestBridge_DefaultTimeoutOption(t *testing.T) {
	b := New(silentSender, WithDefaultTimeout(20*time.Millisecond), WithWaitBuffer(time.Second))
	defer b.Close()

	res := b.RequestAndWait(context.Background(), RequestSpec{Kind: KindQuestion, Prompt: "x"})
	assert.Equal(t, OutcomeTimedOut, res.Outcome)
	assert.Equal(t, "[TIMEOUT] No response received within 0.02s for: x", res.String())
}

type slowObserver struct {
	delay time.Duration
}

func (s slowObserver) OnCreated(HumanRequest) { time.Sleep(s.delay) }

func (s slowObserver) OnResolved(HumanRequest, Outcome, time.Duration) { time.Sleep(s.delay) }

func TestBridge_SlowObserverKeepsTimeoutBound(t *testing.T) {
	b := New(silentSender, WithObserver(slowObserver{delay: 2 * time.Second}), WithWaitBuffer(500*time.Millisecond))
	defer b.Close()

	start := time.Now()
	res := b.RequestAndWait(context.Background(), RequestSpec{Kind: KindQuestion, Prompt: "x", Timeout: time.Second})
	elapsed := time.Since(start)

	assert.Equal(t, OutcomeTimedOut, res.Outcome)
	assert.GreaterOrEqual(t, elapsed, time.Second)
	assert.LessOrEqual(t, elapsed, 1500*time.Millisecond)
}

func TestBridge_SlowObserverDoesNotDelayDelivery(t *testing.T) {
	b, _ := newReplyBridge(constAnswer("ok"), WithObserver(slowObserver{delay: 2 * time.Second}))
	defer b.Close()

	start := time.Now()
	res := b.RequestAndWait(context.Background(), RequestSpec{Kind: KindQuestion, Timeout: 5 * time.Second})
	require.True(t, res.Responded())
	assert.Less(t, time.Since(start), time.Second)
}

func TestBridge_SweepAfterAnswerReportsResponded(t *testing.T) {
	clock := newFakeClock()
	obs := &recordingObserver{}

	var b *Bridge
	b = New(SenderFunc(func(_ context.Context, msg OutboundMessage) error {
		id, _ := msg.Metadata["request_id"].(string)
		b.SubmitResponse(id, "42")
		clock.Advance(2 * time.Hour)
		b.CleanupExpired(time.Hour)
		return nil
	}), WithClock(clock.Now), WithObserver(obs))
	defer b.Close()

	res := b.RequestAndWait(context.Background(), RequestSpec{Kind: KindQuestion, Timeout: time.Minute})
	require.True(t, res.Responded())
	assert.Equal(t, "42", res.Value)
	assert.Empty(t, b.ListPending(""))
	obs.awaitOutcomes(t, OutcomeResponded)
}
