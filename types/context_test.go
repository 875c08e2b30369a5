package types

import (
	"context"
	"testing"
)

func TestContextHelpers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	if _, ok := RequestID(ctx); ok {
		t.Fatalf("expected no request id on empty context")
	}

	ctx = WithTraceID(ctx, "t1")
	if got, ok := TraceID(ctx); !ok || got != "t1" {
		t.Fatalf("TraceID mismatch: %v %v", got, ok)
	}

	ctx = WithRequestID(ctx, "req-1")
	if got, ok := RequestID(ctx); !ok || got != "req-1" {
		t.Fatalf("RequestID mismatch: %v %v", got, ok)
	}

	ctx = WithOperator(ctx, "alice")
	if got, ok := Operator(ctx); !ok || got != "alice" {
		t.Fatalf("Operator mismatch: %v %v", got, ok)
	}

	ctx = WithOperator(ctx, "")
	if _, ok := Operator(ctx); ok {
		t.Fatalf("empty operator should report not found")
	}
}
