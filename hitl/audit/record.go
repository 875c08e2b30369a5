package audit

import (
	"context"
	"errors"
	"time"

	"github.com/BaSui01/hitlbridge/hitl"
)

// ErrNotFound is returned by Get for an unknown request id.
var ErrNotFound = errors.New("audit record not found")

// TableName is the relational table and the default Mongo collection.
const TableName = "human_request_audit"

// Record is the audit trail of one human request. The human's answer is not
// stored; only the outcome and timing are.
type Record struct {
	RequestID      string     `gorm:"column:request_id;primaryKey;size:64" bson:"_id" json:"request_id"`
	Kind           string     `gorm:"size:32;not null" bson:"kind" json:"kind"`
	ExecutionID    string     `gorm:"size:128;not null;index:idx_human_request_audit_execution" bson:"execution_id" json:"execution_id"`
	TaskID         string     `gorm:"size:128;not null" bson:"task_id" json:"task_id"`
	AgentID        string     `gorm:"size:128;not null" bson:"agent_id" json:"agent_id"`
	AgentName      string     `gorm:"size:255;not null" bson:"agent_name" json:"agent_name,omitempty"`
	TaskName       string     `gorm:"size:255;not null" bson:"task_name" json:"task_name,omitempty"`
	Prompt         string     `gorm:"type:text;not null" bson:"prompt" json:"prompt"`
	TimeoutSeconds int        `gorm:"not null" bson:"timeout_seconds" json:"timeout_seconds"`
	Outcome        string     `gorm:"size:32;not null;index:idx_human_request_audit_outcome" bson:"outcome" json:"outcome,omitempty"`
	WaitedMillis   int64      `gorm:"column:waited_ms;not null" bson:"waited_ms" json:"waited_ms"`
	CreatedAt      time.Time  `gorm:"not null;index:idx_human_request_audit_created" bson:"created_at" json:"created_at"`
	ResolvedAt     *time.Time `bson:"resolved_at,omitempty" json:"resolved_at,omitempty"`
}

// TableName implements gorm's tabler.
func (Record) TableName() string { return TableName }

// Resolved reports whether an outcome has been recorded.
func (r Record) Resolved() bool { return r.Outcome != "" }

// FromRequest builds a pending record.
func FromRequest(req hitl.HumanRequest) Record {
	return Record{
		RequestID:      req.ID,
		Kind:           string(req.Kind),
		ExecutionID:    req.ExecutionID,
		TaskID:         req.TaskID,
		AgentID:        req.AgentID,
		AgentName:      req.AgentName,
		TaskName:       req.TaskName,
		Prompt:         req.Prompt,
		TimeoutSeconds: req.TimeoutSeconds(),
		CreatedAt:      req.CreatedAt,
	}
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	ExecutionID string
	Outcome     string
	// Limit defaults to DefaultListLimit and is capped at MaxListLimit.
	Limit int
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

func (f Filter) limit() int {
	switch {
	case f.Limit <= 0:
		return DefaultListLimit
	case f.Limit > MaxListLimit:
		return MaxListLimit
	default:
		return f.Limit
	}
}

// Store persists audit records.
type Store interface {
	// Create inserts a pending record.
	Create(ctx context.Context, rec Record) error
	// Resolve stores the outcome. A record missing because Create failed
	// is inserted in full.
	Resolve(ctx context.Context, rec Record) error
	Get(ctx context.Context, requestID string) (Record, error)
	// List returns records newest first.
	List(ctx context.Context, f Filter) ([]Record, error)
}
