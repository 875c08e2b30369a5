package hitl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/hitlbridge/internal/pool"
)

func TestFormatMessage(t *testing.T) {
	req := HumanRequest{
		ID:     "0123456789abcdef",
		Kind:   KindApproval,
		Prompt: "Deploy build 42 to production?",
		Context: map[string]any{
			"service": "billing",
			"env":     "prod",
		},
	}

	got := FormatMessage(req)
	want := "**APPROVAL**\n\nDeploy build 42 to production?" +
		"\n\n**Context:**\n• env: prod\n• service: billing" +
		"\n\n_Request ID: 01234567_"
	assert.Equal(t, want, got)
}

func TestFormatMessage_NoContext(t *testing.T) {
	got := FormatMessage(HumanRequest{ID: "abc", Kind: KindQuestion, Prompt: "why?"})
	assert.Equal(t, "**QUESTION**\n\nwhy?\n\n_Request ID: abc_", got)
}

func TestBuildOutboundMessage(t *testing.T) {
	req := HumanRequest{
		ID:          "0123456789abcdef",
		Kind:        KindDecision,
		ExecutionID: "exec-1",
		TaskID:      "task-1",
		AgentID:     "agent-1",
		AgentName:   "planner",
		TaskName:    "pick region",
		Prompt:      "eu or us?",
		Timeout:     90 * time.Second,
	}

	msg := BuildOutboundMessage(req)
	assert.Equal(t, "exec-1", msg.ExecutionID)
	assert.Equal(t, "agent-1", msg.AgentID)
	assert.Equal(t, "planner", msg.AgentName)
	assert.Equal(t, "task-1", msg.TaskID)
	assert.Equal(t, "pick region", msg.TaskName)
	assert.Equal(t, "human_decision", msg.MessageType)
	assert.True(t, msg.RequiresResponse)
	assert.Equal(t, req.ID, msg.Metadata["request_id"])
	assert.Equal(t, "decision", msg.Metadata["request_kind"])
	assert.Equal(t, 90, msg.Metadata["timeout_seconds"])
	assert.Equal(t, FormatMessage(req), msg.Content)
}

func TestDeliveryDispatcher_Delivers(t *testing.T) {
	got := make(chan OutboundMessage, 1)
	d := NewDeliveryDispatcher(SenderFunc(func(_ context.Context, msg OutboundMessage) error {
		got <- msg
		return nil
	}), DispatcherConfig{}, nil)
	defer d.Close()

	r := NewRequestRegistry(nil)
	req, ch := r.Create(RequestSpec{Kind: KindQuestion, ExecutionID: "exec-1", Prompt: "hi"})
	require.NoError(t, d.DispatchAsync(req, ch))

	select {
	case msg := <-got:
		assert.Equal(t, "exec-1", msg.ExecutionID)
		assert.Equal(t, req.ID, msg.Metadata["request_id"])
	case <-time.After(2 * time.Second):
		t.Fatal("message was not delivered")
	}

	select {
	case <-ch.Done():
		t.Fatal("successful delivery must not resolve the channel")
	default:
	}
}

func TestDeliveryDispatcher_SenderErrorFailsChannel(t *testing.T) {
	d := NewDeliveryDispatcher(SenderFunc(func(context.Context, OutboundMessage) error {
		return errors.New("client disconnected")
	}), DispatcherConfig{}, nil)
	defer d.Close()

	ch := NewResponseChannel()
	require.NoError(t, d.DispatchAsync(HumanRequest{ID: "r1", Kind: KindQuestion}, ch))

	resp, ok := ch.Wait(context.Background(), 2*time.Second)
	require.True(t, ok)
	require.Error(t, resp.Err)
	assert.Contains(t, resp.Err.Error(), "client disconnected")
}

func TestDeliveryDispatcher_SenderPanicFailsChannel(t *testing.T) {
	d := NewDeliveryDispatcher(SenderFunc(func(context.Context, OutboundMessage) error {
		panic("socket exploded")
	}), DispatcherConfig{}, nil)
	defer d.Close()

	ch := NewResponseChannel()
	require.NoError(t, d.DispatchAsync(HumanRequest{ID: "r1", Kind: KindQuestion}, ch))

	resp, ok := ch.Wait(context.Background(), 2*time.Second)
	require.True(t, ok)
	require.Error(t, resp.Err)
	assert.Contains(t, resp.Err.Error(), "sender panicked")
}

func TestDeliveryDispatcher_SendTimeout(t *testing.T) {
	d := NewDeliveryDispatcher(SenderFunc(func(ctx context.Context, _ OutboundMessage) error {
		<-ctx.Done()
		return ctx.Err()
	}), DispatcherConfig{SendTimeout: 20 * time.Millisecond}, nil)
	defer d.Close()

	ch := NewResponseChannel()
	require.NoError(t, d.DispatchAsync(HumanRequest{ID: "r1", Kind: KindQuestion}, ch))

	resp, ok := ch.Wait(context.Background(), 2*time.Second)
	require.True(t, ok)
	assert.ErrorIs(t, resp.Err, context.DeadlineExceeded)
}

func TestDeliveryDispatcher_NoSender(t *testing.T) {
	d := NewDeliveryDispatcher(nil, DispatcherConfig{}, nil)
	defer d.Close()

	err := d.DispatchAsync(HumanRequest{ID: "r1"}, NewResponseChannel())
	assert.ErrorIs(t, err, ErrNoSender)
}

func TestDeliveryDispatcher_PoolFull(t *testing.T) {
	release := make(chan struct{})
	d := NewDeliveryDispatcher(SenderFunc(func(context.Context, OutboundMessage) error {
		<-release
		return nil
	}), DispatcherConfig{Workers: 1, QueueSize: 1}, nil)

	var err error
	for i := 0; i < 3 && err == nil; i++ {
		err = d.DispatchAsync(HumanRequest{ID: fmt.Sprintf("r%d", i)}, NewResponseChannel())
	}
	assert.ErrorIs(t, err, pool.ErrPoolFull)

	close(release)
	d.Close()
	assert.GreaterOrEqual(t, d.Stats().Rejected, int64(1))
}

func TestDeliveryDispatcher_Closed(t *testing.T) {
	d := NewDeliveryDispatcher(silentSender, DispatcherConfig{}, nil)
	d.Close()

	err := d.DispatchAsync(HumanRequest{ID: "r1"}, NewResponseChannel())
	assert.ErrorIs(t, err, pool.ErrPoolClosed)
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "01234567", ShortID("0123456789"))
	assert.Equal(t, "abc", ShortID("abc"))
	assert.Equal(t, "", ShortID(""))
}

func TestProperty_FormatMessage_ListsEveryContextEntry(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("every context entry appears as a bullet and the id is truncated", prop.ForAll(
		func(prompt string, extra map[string]string) bool {
			ctx := make(map[string]any, len(extra))
			for k, v := range extra {
				ctx[k] = v
			}
			req := HumanRequest{
				ID:      "fedcba9876543210",
				Kind:    KindInformation,
				Prompt:  prompt,
				Context: ctx,
			}

			msg := FormatMessage(req)
			if !strings.HasPrefix(msg, "**INFORMATION**\n\n"+prompt) {
				return false
			}
			for k, v := range extra {
				if !strings.Contains(msg, "\n• "+k+": "+v) {
					return false
				}
			}
			return strings.HasSuffix(msg, "_Request ID: fedcba98_")
		},
		gen.AlphaString(),
		gen.MapOf(gen.Identifier(), gen.AlphaString()),
	))

	properties.TestingRun(t)
}
