package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/hitlbridge/hitl"
)

type fakePending struct {
	mu        sync.Mutex
	requests  map[string]hitl.HumanRequest
	submitted map[string]string
	maxAge    time.Duration
}

func newFakePending(reqs ...hitl.HumanRequest) *fakePending {
	f := &fakePending{requests: map[string]hitl.HumanRequest{}, submitted: map[string]string{}}
	for _, r := range reqs {
		f.requests[r.ID] = r
	}
	return f
}

func (f *fakePending) ListPending(executionID string) map[string]hitl.HumanRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]hitl.HumanRequest{}
	for id, r := range f.requests {
		if executionID == "" || r.ExecutionID == executionID {
			out[id] = r
		}
	}
	return out
}

func (f *fakePending) Get(id string) (hitl.HumanRequest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	return r, ok
}

func (f *fakePending) SubmitResponse(id, text string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.requests[id]; !ok {
		return false
	}
	f.submitted[id] = text
	return true
}

func (f *fakePending) CleanupExpired(maxAge time.Duration) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.maxAge = maxAge
	n := len(f.requests)
	f.requests = map[string]hitl.HumanRequest{}
	return n
}

var created = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func sampleRequest(id, execID string, offset time.Duration) hitl.HumanRequest {
	return hitl.HumanRequest{
		ID:          id,
		Kind:        hitl.KindApproval,
		ExecutionID: execID,
		TaskID:      "task-1",
		AgentID:     "agent-1",
		Prompt:      "Deploy to production?",
		Timeout:     5 * time.Minute,
		CreatedAt:   created.Add(offset),
	}
}

func newRequestMux(h *RequestHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/requests", h.HandleList)
	mux.HandleFunc("POST /api/v1/requests/cleanup", h.HandleCleanup)
	mux.HandleFunc("GET /api/v1/requests/{id}", h.HandleGet)
	mux.HandleFunc("POST /api/v1/requests/{id}/response", h.HandleSubmit)
	return mux
}

func decodeData(t *testing.T, body *strings.Reader, dst any) {
	t.Helper()
	var resp struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(body).Decode(&resp))
	require.True(t, resp.Success)
	require.NoError(t, json.Unmarshal(resp.Data, dst))
}

func serve(mux http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	return w
}

func TestRequestHandler_List(t *testing.T) {
	pending := newFakePending(
		sampleRequest("b-req", "exec-1", time.Second),
		sampleRequest("a-req", "exec-1", 0),
		sampleRequest("c-req", "exec-2", 2*time.Second),
	)
	mux := newRequestMux(NewRequestHandler(pending, 0, nil, zap.NewNop()))

	w := serve(mux, http.MethodGet, "/api/v1/requests", "")
	require.Equal(t, http.StatusOK, w.Code)
	var all []RequestView
	decodeData(t, strings.NewReader(w.Body.String()), &all)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"a-req", "b-req", "c-req"}, []string{all[0].ID, all[1].ID, all[2].ID})
	assert.Equal(t, 300, all[0].TimeoutSeconds)
	assert.Equal(t, created.Add(5*time.Minute), all[0].ExpiresAt.UTC())
	assert.Contains(t, all[0].Message, "**APPROVAL**")

	w = serve(mux, http.MethodGet, "/api/v1/requests?execution_id=exec-2", "")
	var filtered []RequestView
	decodeData(t, strings.NewReader(w.Body.String()), &filtered)
	require.Len(t, filtered, 1)
	assert.Equal(t, "c-req", filtered[0].ID)
}

func TestRequestHandler_ListEmpty(t *testing.T) {
	mux := newRequestMux(NewRequestHandler(newFakePending(), 0, nil, nil))

	w := serve(mux, http.MethodGet, "/api/v1/requests", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"data":[]`)
}

func TestRequestHandler_Get(t *testing.T) {
	mux := newRequestMux(NewRequestHandler(newFakePending(sampleRequest("req-123456789", "exec-1", 0)), 0, nil, nil))

	w := serve(mux, http.MethodGet, "/api/v1/requests/req-123456789", "")
	require.Equal(t, http.StatusOK, w.Code)
	var view RequestView
	decodeData(t, strings.NewReader(w.Body.String()), &view)
	assert.Equal(t, "req-1234", view.ShortID)
	assert.Equal(t, "approval", view.Kind)

	w = serve(mux, http.MethodGet, "/api/v1/requests/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRequestHandler_Submit(t *testing.T) {
	pending := newFakePending(sampleRequest("req-1", "exec-1", 0))
	var hooks []bool
	hook := func(source string, accepted bool) {
		assert.Equal(t, SourceHTTP, source)
		hooks = append(hooks, accepted)
	}
	mux := newRequestMux(NewRequestHandler(pending, 0, hook, zap.NewNop()))

	tests := []struct {
		name       string
		target     string
		body       string
		wantStatus int
	}{
		{"accepted", "/api/v1/requests/req-1/response", `{"response":"approve"}`, http.StatusOK},
		{"unknown request", "/api/v1/requests/nope/response", `{"response":"approve"}`, http.StatusNotFound},
		{"bad json", "/api/v1/requests/req-1/response", `{"response":`, http.StatusBadRequest},
		{"unknown field", "/api/v1/requests/req-1/response", `{"answer":"x"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(mux, http.MethodPost, tt.target, tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}

	assert.Equal(t, "approve", pending.submitted["req-1"])
	assert.Equal(t, []bool{true, false}, hooks, "only decoded submissions reach the hook")
}

func TestRequestHandler_SubmitRequiresJSON(t *testing.T) {
	mux := newRequestMux(NewRequestHandler(newFakePending(sampleRequest("req-1", "", 0)), 0, nil, nil))

	r := httptest.NewRequest(http.MethodPost, "/api/v1/requests/req-1/response", strings.NewReader(`{"response":"x"}`))
	r.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequestHandler_Cleanup(t *testing.T) {
	pending := newFakePending(sampleRequest("req-1", "", 0), sampleRequest("req-2", "", 0))
	mux := newRequestMux(NewRequestHandler(pending, 45*time.Minute, nil, nil))

	w := serve(mux, http.MethodPost, "/api/v1/requests/cleanup", "")
	require.Equal(t, http.StatusOK, w.Code)
	var res CleanupResult
	decodeData(t, strings.NewReader(w.Body.String()), &res)
	assert.Equal(t, 2, res.Removed)
	assert.Equal(t, "45m0s", res.MaxAge)
	assert.Equal(t, 45*time.Minute, pending.maxAge)

	w = serve(mux, http.MethodPost, "/api/v1/requests/cleanup?max_age=10s", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 10*time.Second, pending.maxAge)

	w = serve(mux, http.MethodPost, "/api/v1/requests/cleanup?max_age=soon", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequestHandler_BridgeRoundTrip(t *testing.T) {
	delivered := make(chan hitl.OutboundMessage, 1)
	bridge := hitl.New(hitl.SenderFunc(func(_ context.Context, msg hitl.OutboundMessage) error {
		delivered <- msg
		return nil
	}))
	defer bridge.Close()
	mux := newRequestMux(NewRequestHandler(bridge, time.Hour, nil, zap.NewNop()))

	results := make(chan hitl.Result, 1)
	go func() {
		results <- bridge.RequestAndWait(context.Background(), hitl.RequestSpec{
			Kind:        hitl.KindDecision,
			ExecutionID: "exec-7",
			Prompt:      "Pick A or B",
			Timeout:     5 * time.Second,
		})
	}()

	var msg hitl.OutboundMessage
	select {
	case msg = <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("request not delivered")
	}
	id := msg.Metadata["request_id"].(string)

	w := serve(mux, http.MethodGet, "/api/v1/requests?execution_id=exec-7", "")
	var views []RequestView
	decodeData(t, strings.NewReader(w.Body.String()), &views)
	require.Len(t, views, 1)
	assert.Equal(t, id, views[0].ID)

	w = serve(mux, http.MethodPost, "/api/v1/requests/"+id+"/response", `{"response":"B"}`)
	require.Equal(t, http.StatusOK, w.Code)

	res := <-results
	assert.True(t, res.Responded())
	assert.Equal(t, "B", res.Value)

	w = serve(mux, http.MethodPost, "/api/v1/requests/"+id+"/response", `{"response":"A"}`)
	assert.Equal(t, http.StatusNotFound, w.Code, "a resolved request takes no second answer")
}
