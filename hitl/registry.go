package hitl

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type registryEntry struct {
	req HumanRequest
	ch  *ResponseChannel
}

// RequestRegistry 线程安全的待处理请求存储.
//
// id → (HumanRequest, ResponseChannel) 是整个桥接唯一的共享可变状态，
// 只在单把互斥锁内修改，锁内不做 I/O 也不阻塞。
type RequestRegistry struct {
	mu      sync.Mutex
	entries map[string]*registryEntry
	now     func() time.Time
}

// NewRequestRegistry 创建请求注册表。now 为 nil 时使用 time.Now.
func NewRequestRegistry(now func() time.Time) *RequestRegistry {
	if now == nil {
		now = time.Now
	}
	return &RequestRegistry{
		entries: make(map[string]*registryEntry),
		now:     now,
	}
}

// Create 生成新 id 并登记请求与新的响应槽.
func (r *RequestRegistry) Create(spec RequestSpec) (HumanRequest, *ResponseChannel) {
	req := HumanRequest{
		ID:          uuid.NewString(),
		Kind:        spec.Kind,
		ExecutionID: spec.ExecutionID,
		TaskID:      spec.TaskID,
		AgentID:     spec.AgentID,
		AgentName:   spec.AgentName,
		TaskName:    spec.TaskName,
		Prompt:      spec.Prompt,
		Context:     spec.Context,
		Timeout:     spec.Timeout,
	}.clone()
	ch := NewResponseChannel()

	r.mu.Lock()
	req.CreatedAt = r.now()
	r.entries[req.ID] = &registryEntry{req: req, ch: ch}
	r.mu.Unlock()

	return req.clone(), ch
}

// Get 按 id 查询请求.
func (r *RequestRegistry) Get(id string) (HumanRequest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return HumanRequest{}, false
	}
	return e.req.clone(), true
}

// Channel 返回请求的响应槽.
func (r *RequestRegistry) Channel(id string) (*ResponseChannel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return e.ch, true
}

// ListPending 返回待处理请求的快照，executionID 为空时不过滤.
func (r *RequestRegistry) ListPending(executionID string) map[string]HumanRequest {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]HumanRequest, len(r.entries))
	for id, e := range r.entries {
		if executionID != "" && e.req.ExecutionID != executionID {
			continue
		}
		out[id] = e.req.clone()
	}
	return out
}

// Submit 把回复写入对应的响应槽。id 未知时返回 false.
func (r *RequestRegistry) Submit(id, text string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return false
	}
	return e.ch.Submit(text)
}

// Remove 删除请求及其响应槽，幂等.
func (r *RequestRegistry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; !ok {
		return false
	}
	delete(r.entries, id)
	return true
}

// Len 当前待处理请求数.
func (r *RequestRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// ExpireOlderThan 删除创建时间早于 maxAge 的请求，不论其是否已收到未被读取的回复。
// 先在锁内取快照，再逐个加锁删除，扫描期间不长时间占用锁。
//
// expired 只包含仍处于待处理状态的请求：它们的响应槽写入 ErrRequestExpired，
// 仍在等待的调用方随即醒来。已有回复（或等待方已结束）的请求同样被删除并计入
// removed，但终止结果仍由等待方决定。
func (r *RequestRegistry) ExpireOlderThan(maxAge time.Duration) (expired []HumanRequest, removed int) {
	r.mu.Lock()
	cutoff := r.now().Add(-maxAge)
	candidates := make([]string, 0)
	for id, e := range r.entries {
		if e.req.CreatedAt.Before(cutoff) {
			candidates = append(candidates, id)
		}
	}
	r.mu.Unlock()

	expired = make([]HumanRequest, 0, len(candidates))
	for _, id := range candidates {
		r.mu.Lock()
		e, ok := r.entries[id]
		if ok && e.req.CreatedAt.Before(cutoff) {
			delete(r.entries, id)
			removed++
			if e.ch.Expire(ErrRequestExpired) {
				expired = append(expired, e.req.clone())
			}
		}
		r.mu.Unlock()
	}
	return expired, removed
}
