package hitl

import (
	"errors"
	"maps"
	"time"
)

// ErrRequestExpired 请求在等待期间被清理任务移除.
var ErrRequestExpired = errors.New("request expired before a response was received")

// RequestKind 人工交互请求的类型.
type RequestKind string

const (
	KindQuestion      RequestKind = "question"
	KindApproval      RequestKind = "approval"
	KindInformation   RequestKind = "information"
	KindClarification RequestKind = "clarification"
	KindDecision      RequestKind = "decision"
)

// Valid 检查类型是否为已知类型.
func (k RequestKind) Valid() bool {
	switch k {
	case KindQuestion, KindApproval, KindInformation, KindClarification, KindDecision:
		return true
	}
	return false
}

// Outcome 请求的终止状态.
type Outcome string

const (
	OutcomeResponded       Outcome = "responded"
	OutcomeTimedOut        Outcome = "timed_out"
	OutcomeErrorDelivering Outcome = "error_delivering"
	OutcomeExpiredBySweep  Outcome = "expired_by_sweep"
	OutcomeCancelled       Outcome = "cancelled"
)

// HumanRequest 一次待处理的人工请求.
type HumanRequest struct {
	ID          string         `json:"id"`
	Kind        RequestKind    `json:"kind"`
	ExecutionID string         `json:"execution_id"`
	TaskID      string         `json:"task_id"`
	AgentID     string         `json:"agent_id"`
	AgentName   string         `json:"agent_name,omitempty"`
	TaskName    string         `json:"task_name,omitempty"`
	Prompt      string         `json:"prompt"`
	Context     map[string]any `json:"context,omitempty"`
	Timeout     time.Duration  `json:"timeout"`
	CreatedAt   time.Time      `json:"created_at"`
}

// TimeoutSeconds 以秒表示的等待上限.
func (r HumanRequest) TimeoutSeconds() int {
	return int(r.Timeout / time.Second)
}

// clone 返回不共享 Context map 的副本。
func (r HumanRequest) clone() HumanRequest {
	if r.Context != nil {
		r.Context = maps.Clone(r.Context)
	}
	return r
}

// RequestSpec 创建请求所需的参数.
type RequestSpec struct {
	Kind        RequestKind
	ExecutionID string
	TaskID      string
	AgentID     string
	AgentName   string
	TaskName    string
	Prompt      string
	Context     map[string]any
	// Timeout 为 0 时使用 Bridge 的默认超时.
	Timeout time.Duration
}
