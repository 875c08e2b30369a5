package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/BaSui01/hitlbridge/hitl/audit"
	"github.com/BaSui01/hitlbridge/types"
)

// AuditHandler 审计记录查询
type AuditHandler struct {
	store  audit.Store
	logger *zap.Logger
}

// NewAuditHandler 创建处理器。store 为 nil 时所有端点返回 503.
func NewAuditHandler(store audit.Store, logger *zap.Logger) *AuditHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditHandler{store: store, logger: logger}
}

// HandleList 按条件列出审计记录，最新在前
// @Summary 审计记录列表
// @Tags audit
// @Produce json
// @Param execution_id query string false "执行 id"
// @Param outcome query string false "结果，如 responded、timed_out"
// @Param limit query int false "条数，默认 50，最大 500"
// @Success 200 {object} Response{data=[]audit.Record}
// @Failure 400 {object} Response
// @Failure 503 {object} Response
// @Router /api/v1/audit [get]
func (h *AuditHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		ExecutionID: q.Get("execution_id"),
		Outcome:     q.Get("outcome"),
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "limit must be a non-negative integer", h.logger)
			return
		}
		filter.Limit = n
	}

	records, err := h.store.List(r.Context(), filter)
	if err != nil {
		WriteError(w, types.NewInternalError("failed to list audit records").WithCause(err), h.logger)
		return
	}
	if records == nil {
		records = []audit.Record{}
	}
	WriteSuccess(w, records)
}

// HandleGet 查询单条审计记录
// @Summary 审计记录
// @Tags audit
// @Produce json
// @Param id path string true "请求 id"
// @Success 200 {object} Response{data=audit.Record}
// @Failure 404 {object} Response
// @Router /api/v1/audit/{id} [get]
func (h *AuditHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}

	rec, err := h.store.Get(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, audit.ErrNotFound):
		WriteError(w, types.NewError(types.ErrNotFound, "audit record not found"), h.logger)
	case err != nil:
		WriteError(w, types.NewInternalError("failed to load audit record").WithCause(err), h.logger)
	default:
		WriteSuccess(w, rec)
	}
}

func (h *AuditHandler) available(w http.ResponseWriter) bool {
	if h.store != nil {
		return true
	}
	WriteError(w, types.NewError(types.ErrServiceUnavailable, "audit trail is disabled"), h.logger)
	return false
}
