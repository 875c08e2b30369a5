package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/hitlbridge/hitl"
)

// DefaultWriteTimeout bounds a single store write.
const DefaultWriteTimeout = 5 * time.Second

// Recorder writes the request lifecycle to a Store. Write failures are
// logged and never reach the waiting agent.
type Recorder struct {
	store        Store
	writeTimeout time.Duration
	now          func() time.Time
	logger       *zap.Logger
}

var _ hitl.Observer = (*Recorder)(nil)

// NewRecorder creates a Recorder. A non-positive writeTimeout uses DefaultWriteTimeout.
func NewRecorder(store Store, writeTimeout time.Duration, logger *zap.Logger) *Recorder {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		store:        store,
		writeTimeout: writeTimeout,
		now:          time.Now,
		logger:       logger.With(zap.String("component", "audit")),
	}
}

func (r *Recorder) OnCreated(req hitl.HumanRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
	defer cancel()

	if err := r.store.Create(ctx, FromRequest(req)); err != nil {
		r.logger.Error("audit create failed", zap.String("request_id", req.ID), zap.Error(err))
	}
}

func (r *Recorder) OnResolved(req hitl.HumanRequest, outcome hitl.Outcome, waited time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
	defer cancel()

	rec := FromRequest(req)
	rec.Outcome = string(outcome)
	rec.WaitedMillis = waited.Milliseconds()
	resolvedAt := r.now().UTC()
	rec.ResolvedAt = &resolvedAt

	if err := r.store.Resolve(ctx, rec); err != nil {
		r.logger.Error("audit resolve failed",
			zap.String("request_id", req.ID),
			zap.String("outcome", string(outcome)),
			zap.Error(err),
		)
	}
}
