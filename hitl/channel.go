package hitl

import (
	"context"
	"sync"
	"time"
)

// Response 写入响应槽的内容：人工回复文本，或投递失败时的错误.
type Response struct {
	Text string
	Err  error
}

// ResponseChannel 单个请求的一次性同步原语（信号 + 载荷槽）.
//
// 写入方（入站处理、投递失败回调、清理任务）从不阻塞；等待方只有一个。
// Wait 返回或 Expire 成功后槽即进入终态，之后的写入都会被拒绝，
// 因此每个请求的终止结果只由一方决定。
type ResponseChannel struct {
	mu      sync.Mutex
	resp    Response
	has     bool
	settled bool
	done    chan struct{}
	once    sync.Once
}

// NewResponseChannel 创建空的响应槽.
func NewResponseChannel() *ResponseChannel {
	return &ResponseChannel{done: make(chan struct{})}
}

// Submit 写入人工回复。终态前重复写入以最后一次为准；进入终态后返回 false。
func (c *ResponseChannel) Submit(text string) bool {
	c.mu.Lock()
	if c.settled {
		c.mu.Unlock()
		return false
	}
	c.resp = Response{Text: text}
	c.has = true
	c.mu.Unlock()

	c.signal()
	return true
}

// Fail 写入投递失败。已有人工回复时保留回复，不覆盖。
func (c *ResponseChannel) Fail(err error) bool {
	c.mu.Lock()
	if c.settled || (c.has && c.resp.Err == nil) {
		c.mu.Unlock()
		return false
	}
	c.resp = Response{Err: err}
	c.has = true
	c.mu.Unlock()

	c.signal()
	return true
}

// Expire 由清理任务调用：仅当槽里还没有任何内容且等待方尚未结束时写入 err 并进入终态。
// 返回 true 表示终止结果归调用方所有.
func (c *ResponseChannel) Expire(err error) bool {
	c.mu.Lock()
	if c.settled || c.has {
		c.mu.Unlock()
		return false
	}
	c.resp = Response{Err: err}
	c.has = true
	c.settled = true
	c.mu.Unlock()

	c.signal()
	return true
}

// Settle 不等待直接进入终态。已处于终态时返回 false.
func (c *ResponseChannel) Settle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.settled {
		return false
	}
	c.settled = true
	return true
}

func (c *ResponseChannel) signal() {
	c.once.Do(func() { close(c.done) })
}

// Done 在第一次写入时关闭.
func (c *ResponseChannel) Done() <-chan struct{} {
	return c.done
}

// Wait 阻塞直到收到信号、timeout 到期或 ctx 结束，返回时槽进入终态。
// 第二个返回值为 false 表示没有拿到值（超时、取消或已被消费）。
func (c *ResponseChannel) Wait(ctx context.Context, timeout time.Duration) (Response, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-c.done:
	case <-timer.C:
	case <-ctx.Done():
	}
	// 超时与写入同时发生时以写入为准
	return c.consume()
}

func (c *ResponseChannel) consume() (Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settled = true
	if !c.has {
		return Response{}, false
	}
	resp := c.resp
	c.resp = Response{}
	c.has = false
	return resp, true
}
