package handlers

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/hitlbridge/hitl"
	"github.com/BaSui01/hitlbridge/types"
)

// SourceHTTP 标记经 REST 提交的回复.
const SourceHTTP = "http"

// PendingRequests 由 *hitl.Bridge 实现.
type PendingRequests interface {
	ListPending(executionID string) map[string]hitl.HumanRequest
	Get(id string) (hitl.HumanRequest, bool)
	SubmitResponse(requestID, text string) bool
	CleanupExpired(maxAge time.Duration) int
}

// ReplyHook 每次提交回复后调用，用于指标.
type ReplyHook func(source string, accepted bool)

// RequestView 待处理请求的 API 表示
type RequestView struct {
	ID             string         `json:"id"`
	ShortID        string         `json:"short_id"`
	Kind           string         `json:"kind"`
	ExecutionID    string         `json:"execution_id"`
	TaskID         string         `json:"task_id"`
	AgentID        string         `json:"agent_id"`
	AgentName      string         `json:"agent_name,omitempty"`
	TaskName       string         `json:"task_name,omitempty"`
	Prompt         string         `json:"prompt"`
	Context        map[string]any `json:"context,omitempty"`
	Message        string         `json:"message"`
	TimeoutSeconds int            `json:"timeout_seconds"`
	CreatedAt      time.Time      `json:"created_at"`
	ExpiresAt      time.Time      `json:"expires_at"`
}

func toRequestView(req hitl.HumanRequest) RequestView {
	return RequestView{
		ID:             req.ID,
		ShortID:        hitl.ShortID(req.ID),
		Kind:           string(req.Kind),
		ExecutionID:    req.ExecutionID,
		TaskID:         req.TaskID,
		AgentID:        req.AgentID,
		AgentName:      req.AgentName,
		TaskName:       req.TaskName,
		Prompt:         req.Prompt,
		Context:        req.Context,
		Message:        hitl.FormatMessage(req),
		TimeoutSeconds: req.TimeoutSeconds(),
		CreatedAt:      req.CreatedAt,
		ExpiresAt:      req.CreatedAt.Add(req.Timeout),
	}
}

// SubmitResponseRequest 人工回复
type SubmitResponseRequest struct {
	Response string `json:"response"`
}

// SubmitResponseResult 提交结果
type SubmitResponseResult struct {
	RequestID string `json:"request_id"`
	Accepted  bool   `json:"accepted"`
}

// CleanupResult 手动清理结果
type CleanupResult struct {
	Removed int    `json:"removed"`
	MaxAge  string `json:"max_age"`
}

// RequestHandler 待处理请求的查询、回复与清理
type RequestHandler struct {
	pending       PendingRequests
	defaultMaxAge time.Duration
	hook          ReplyHook
	logger        *zap.Logger
}

// NewRequestHandler 创建处理器。defaultMaxAge 用于未指定 max_age 的清理请求.
func NewRequestHandler(pending PendingRequests, defaultMaxAge time.Duration, hook ReplyHook, logger *zap.Logger) *RequestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultMaxAge <= 0 {
		defaultMaxAge = hitl.DefaultJanitorMaxAge
	}
	return &RequestHandler{
		pending:       pending,
		defaultMaxAge: defaultMaxAge,
		hook:          hook,
		logger:        logger,
	}
}

// HandleList 列出待处理请求，按创建时间升序
// @Summary 待处理请求列表
// @Tags requests
// @Produce json
// @Param execution_id query string false "按执行 id 过滤"
// @Success 200 {object} Response{data=[]RequestView}
// @Router /api/v1/requests [get]
func (h *RequestHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	pending := h.pending.ListPending(strings.TrimSpace(r.URL.Query().Get("execution_id")))

	views := make([]RequestView, 0, len(pending))
	for _, req := range pending {
		views = append(views, toRequestView(req))
	}
	sort.Slice(views, func(i, j int) bool {
		if views[i].CreatedAt.Equal(views[j].CreatedAt) {
			return views[i].ID < views[j].ID
		}
		return views[i].CreatedAt.Before(views[j].CreatedAt)
	})

	WriteSuccess(w, views)
}

// HandleGet 查询单个待处理请求
// @Summary 查询待处理请求
// @Tags requests
// @Produce json
// @Param id path string true "请求 id"
// @Success 200 {object} Response{data=RequestView}
// @Failure 404 {object} Response
// @Router /api/v1/requests/{id} [get]
func (h *RequestHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	req, ok := h.pending.Get(id)
	if !ok {
		WriteError(w, types.NewNotFoundError("request is not pending"), h.logger)
		return
	}
	WriteSuccess(w, toRequestView(req))
}

// HandleSubmit 提交人工回复。请求已结束或不存在时返回 404
// @Summary 提交人工回复
// @Tags requests
// @Accept json
// @Produce json
// @Param id path string true "请求 id"
// @Param request body SubmitResponseRequest true "回复"
// @Success 200 {object} Response{data=SubmitResponseResult}
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Router /api/v1/requests/{id}/response [post]
func (h *RequestHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "request id is required", h.logger)
		return
	}
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var body SubmitResponseRequest
	if err := DecodeJSONBody(w, r, &body, h.logger); err != nil {
		return
	}

	accepted := h.pending.SubmitResponse(id, body.Response)
	if h.hook != nil {
		h.hook(SourceHTTP, accepted)
	}
	if !accepted {
		WriteError(w, types.NewNotFoundError("request is not pending"), h.logger)
		return
	}

	h.logger.Info("human response submitted", zap.String("request_id", id), zap.String("source", SourceHTTP))
	WriteSuccess(w, SubmitResponseResult{RequestID: id, Accepted: true})
}

// HandleCleanup 立即执行一次过期清理，max_age 查询参数为 Go duration
// @Summary 清理过期请求
// @Tags requests
// @Produce json
// @Param max_age query string false "如 30m，默认使用配置值"
// @Success 200 {object} Response{data=CleanupResult}
// @Failure 400 {object} Response
// @Router /api/v1/requests/cleanup [post]
func (h *RequestHandler) HandleCleanup(w http.ResponseWriter, r *http.Request) {
	maxAge := h.defaultMaxAge
	if raw := r.URL.Query().Get("max_age"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "max_age must be a non-negative duration", h.logger)
			return
		}
		maxAge = d
	}

	removed := h.pending.CleanupExpired(maxAge)
	WriteSuccess(w, CleanupResult{Removed: removed, MaxAge: maxAge.String()})
}
