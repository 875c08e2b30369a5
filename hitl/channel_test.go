package hitl

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseChannel_SubmitThenWait(t *testing.T) {
	ch := NewResponseChannel()
	require.True(t, ch.Submit("42"))

	resp, ok := ch.Wait(context.Background(), time.Second)
	require.True(t, ok)
	assert.Equal(t, "42", resp.Text)
	assert.NoError(t, resp.Err)
}

func TestResponseChannel_WaitWakesOnSubmit(t *testing.T) {
	ch := NewResponseChannel()
	go func() {
		time.Sleep(20 * time.Millisecond)
		ch.Submit("late but in time")
	}()

	start := time.Now()
	resp, ok := ch.Wait(context.Background(), 5*time.Second)
	require.True(t, ok)
	assert.Equal(t, "late but in time", resp.Text)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestResponseChannel_LastWriteWins(t *testing.T) {
	ch := NewResponseChannel()
	assert.True(t, ch.Submit("a"))
	assert.True(t, ch.Submit("b"))

	resp, ok := ch.Wait(context.Background(), time.Second)
	require.True(t, ok)
	assert.Equal(t, "b", resp.Text)
}

func TestResponseChannel_SubmitAfterConsume(t *testing.T) {
	ch := NewResponseChannel()
	ch.Submit("a")
	_, ok := ch.Wait(context.Background(), time.Second)
	require.True(t, ok)

	assert.False(t, ch.Submit("b"))
	assert.False(t, ch.Fail(errors.New("boom")))
}

func TestResponseChannel_FailKeepsHumanAnswer(t *testing.T) {
	ch := NewResponseChannel()
	ch.Submit("human")
	assert.False(t, ch.Fail(errors.New("send failed")))

	resp, ok := ch.Wait(context.Background(), time.Second)
	require.True(t, ok)
	assert.Equal(t, "human", resp.Text)
}

func TestResponseChannel_AnswerReplacesFailure(t *testing.T) {
	ch := NewResponseChannel()
	require.True(t, ch.Fail(errors.New("send failed")))
	require.True(t, ch.Submit("human"))

	resp, ok := ch.Wait(context.Background(), time.Second)
	require.True(t, ok)
	assert.NoError(t, resp.Err)
	assert.Equal(t, "human", resp.Text)
}

func TestResponseChannel_Timeout(t *testing.T) {
	ch := NewResponseChannel()
	start := time.Now()
	_, ok := ch.Wait(context.Background(), 30*time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestResponseChannel_ContextCancel(t *testing.T) {
	ch := NewResponseChannel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := ch.Wait(ctx, time.Minute)
	assert.False(t, ok)
}

func TestResponseChannel_ExpireOnlyWhilePending(t *testing.T) {
	t.Run("pending", func(t *testing.T) {
		ch := NewResponseChannel()
		require.True(t, ch.Expire(ErrRequestExpired))
		assert.False(t, ch.Submit("too late"))

		resp, ok := ch.Wait(context.Background(), time.Second)
		require.True(t, ok)
		assert.ErrorIs(t, resp.Err, ErrRequestExpired)
	})

	t.Run("answered", func(t *testing.T) {
		ch := NewResponseChannel()
		require.True(t, ch.Submit("42"))
		assert.False(t, ch.Expire(ErrRequestExpired))

		resp, ok := ch.Wait(context.Background(), time.Second)
		require.True(t, ok)
		assert.Equal(t, "42", resp.Text)
	})

	t.Run("delivery failed", func(t *testing.T) {
		ch := NewResponseChannel()
		require.True(t, ch.Fail(errors.New("send failed")))
		assert.False(t, ch.Expire(ErrRequestExpired))
	})

	t.Run("waiter gone", func(t *testing.T) {
		ch := NewResponseChannel()
		_, ok := ch.Wait(context.Background(), time.Millisecond)
		require.False(t, ok)
		assert.False(t, ch.Expire(ErrRequestExpired))
		assert.False(t, ch.Submit("after timeout"))
	})
}

func TestResponseChannel_Settle(t *testing.T) {
	ch := NewResponseChannel()
	assert.True(t, ch.Settle())
	assert.False(t, ch.Settle())
	assert.False(t, ch.Expire(ErrRequestExpired))
	assert.False(t, ch.Submit("late"))
}
