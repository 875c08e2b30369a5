package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPool_RunsTasks(t *testing.T) {
	p := NewWorkerPool(WorkerPoolConfig{Workers: 4, QueueSize: 16})
	defer p.Close()

	var wg sync.WaitGroup
	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(func(ctx context.Context) error {
			defer wg.Done()
			ran.Add(1)
			return nil
		}))
	}
	wg.Wait()
	assert.Equal(t, int32(10), ran.Load())
}

func TestWorkerPool_FullQueueRejects(t *testing.T) {
	p := NewWorkerPool(WorkerPoolConfig{Workers: 1, QueueSize: 1})
	block := make(chan struct{})
	started := make(chan struct{})

	require.NoError(t, p.Submit(func(ctx context.Context) error {
		close(started)
		<-block
		return nil
	}))
	<-started
	require.NoError(t, p.Submit(func(ctx context.Context) error { return nil }))

	err := p.Submit(func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrPoolFull)
	assert.Equal(t, int64(1), p.Stats().Rejected)

	close(block)
	p.Close()
}

func TestWorkerPool_SubmitAfterClose(t *testing.T) {
	p := NewWorkerPool(DefaultWorkerPoolConfig())
	p.Close()
	p.Close()

	err := p.Submit(func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestWorkerPool_PanicAndErrorHandlers(t *testing.T) {
	var panics, errs atomic.Int32
	p := NewWorkerPool(WorkerPoolConfig{
		Workers:      2,
		QueueSize:    4,
		PanicHandler: func(any) { panics.Add(1) },
		ErrorHandler: func(error) { errs.Add(1) },
	})

	require.NoError(t, p.Submit(func(ctx context.Context) error { panic("boom") }))
	require.NoError(t, p.Submit(func(ctx context.Context) error { return errors.New("failed") }))

	require.Eventually(t, func() bool {
		return p.Stats().Failed == 2
	}, time.Second, 5*time.Millisecond)
	p.Close()

	assert.Equal(t, int32(1), panics.Load())
	assert.Equal(t, int32(2), errs.Load())
	assert.Equal(t, int64(1), p.Stats().Panicked)
}

func TestWorkerPool_CloseDrainsQueue(t *testing.T) {
	p := NewWorkerPool(WorkerPoolConfig{Workers: 1, QueueSize: 8})
	var ran atomic.Int32
	for i := 0; i < 8; i++ {
		require.NoError(t, p.Submit(func(ctx context.Context) error {
			ran.Add(1)
			return nil
		}))
	}
	p.Close()
	assert.Equal(t, int32(8), ran.Load())
}

func TestByteBufferPool(t *testing.T) {
	buf := ByteBufferPool.Get()
	buf.WriteString("hello")
	ByteBufferPool.Put(buf)

	again := ByteBufferPool.Get()
	assert.Equal(t, 0, again.Len())
	ByteBufferPool.Put(again)
	assert.GreaterOrEqual(t, ByteBufferPool.Stats().Gets, int64(2))
}
