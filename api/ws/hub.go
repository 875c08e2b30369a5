package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/BaSui01/hitlbridge/hitl"
)

// SourceWebSocket labels replies that arrived over an operator connection.
const SourceWebSocket = "websocket"

var (
	// ErrNoOperators is returned by Send when no connected operator watches the execution.
	ErrNoOperators = errors.New("no operators connected")
	// ErrHubStopped is returned once Run has exited.
	ErrHubStopped = errors.New("operator hub stopped")
)

// Frame types.
const (
	FrameHumanRequest  = "human_request"
	FrameHumanResponse = "human_response"
	FrameAck           = "ack"
	FrameError         = "error"
)

// Frame is the JSON envelope for both directions.
type Frame struct {
	Type      string                `json:"type"`
	Request   *hitl.OutboundMessage `json:"request,omitempty"`
	RequestID string                `json:"request_id,omitempty"`
	Response  string                `json:"response,omitempty"`
	Accepted  *bool                 `json:"accepted,omitempty"`
	Message   string                `json:"message,omitempty"`
}

// Submitter receives operator replies. *hitl.Bridge implements it.
type Submitter interface {
	SubmitResponse(requestID, text string) bool
}

// SubmitterFunc adapts a function to Submitter.
type SubmitterFunc func(requestID, text string) bool

func (f SubmitterFunc) SubmitResponse(requestID, text string) bool {
	return f(requestID, text)
}

// ReplyHook observes every reply and whether it was accepted.
type ReplyHook func(source string, accepted bool)

// Config tunes the hub.
type Config struct {
	// OutboxSize bounds queued frames per connection; a full outbox drops the connection.
	OutboxSize   int
	WriteTimeout time.Duration
	// OriginPatterns is passed to websocket.Accept.
	OriginPatterns []string
}

// DefaultConfig returns the default hub settings.
func DefaultConfig() Config {
	return Config{
		OutboxSize:   64,
		WriteTimeout: 10 * time.Second,
	}
}

// Hub fans human requests out to connected operators and feeds their answers
// back into the bridge. Connection bookkeeping lives on the Run goroutine.
type Hub struct {
	submitter Submitter
	hook      ReplyHook
	cfg       Config
	logger    *zap.Logger

	cmds    chan func(clients map[*client]struct{})
	stopped chan struct{}
}

var _ hitl.Sender = (*Hub)(nil)

// NewHub creates a hub. Run must be started before Send or ServeHTTP.
func NewHub(sub Submitter, cfg Config, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.OutboxSize <= 0 {
		cfg.OutboxSize = def.OutboxSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	return &Hub{
		submitter: sub,
		cfg:       cfg,
		logger:    logger.With(zap.String("component", "operator_hub")),
		cmds:      make(chan func(map[*client]struct{})),
		stopped:   make(chan struct{}),
	}
}

// SetReplyHook installs a hook called for each reply. Call before Run.
func (h *Hub) SetReplyHook(hook ReplyHook) {
	h.hook = hook
}

// Run owns the connection set until ctx is done, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	clients := make(map[*client]struct{})
	defer func() {
		for c := range clients {
			c.close(websocket.StatusGoingAway, "server shutting down")
		}
		close(h.stopped)
		h.logger.Info("operator hub stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-h.cmds:
			cmd(clients)
		}
	}
}

// do runs fn on the Run goroutine and waits for it.
func (h *Hub) do(ctx context.Context, fn func(map[*client]struct{})) error {
	done := make(chan struct{})
	wrapped := func(clients map[*client]struct{}) {
		fn(clients)
		close(done)
	}
	select {
	case h.cmds <- wrapped:
	case <-h.stopped:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-done
	return nil
}

// Operators returns the number of connected operators.
func (h *Hub) Operators(ctx context.Context) (int, error) {
	var n int
	err := h.do(ctx, func(clients map[*client]struct{}) { n = len(clients) })
	return n, err
}

// Send queues msg for every operator watching msg.ExecutionID.
func (h *Hub) Send(ctx context.Context, msg hitl.OutboundMessage) error {
	data, err := json.Marshal(Frame{Type: FrameHumanRequest, Request: &msg})
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	var queued int
	err = h.do(ctx, func(clients map[*client]struct{}) {
		for c := range clients {
			if !c.watches(msg.ExecutionID) {
				continue
			}
			if c.enqueue(data) {
				queued++
				continue
			}
			h.logger.Warn("operator outbox full, dropping connection", zap.String("remote", c.remote))
			delete(clients, c)
			c.close(websocket.StatusPolicyViolation, "outbox full")
		}
	})
	if err != nil {
		return err
	}
	if queued == 0 {
		return ErrNoOperators
	}
	return nil
}

// ServeHTTP upgrades the request and serves one operator connection.
// The optional execution_id query parameter (comma separated) restricts
// which requests the operator receives.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// server read/write timeouts must not cut long-lived operator sessions
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.cfg.OriginPatterns})
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}

	c := newClient(conn, r.RemoteAddr, parseExecutions(r.URL.Query().Get("execution_id")), h.cfg.OutboxSize)
	ctx := r.Context()
	if err := h.do(ctx, func(clients map[*client]struct{}) { clients[c] = struct{}{} }); err != nil {
		c.close(websocket.StatusTryAgainLater, "hub unavailable")
		return
	}
	h.logger.Info("operator connected", zap.String("remote", c.remote))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writeLoop(ctx, h.cfg.WriteTimeout)
	}()

	h.readLoop(ctx, c)

	_ = h.do(context.WithoutCancel(ctx), func(clients map[*client]struct{}) { delete(clients, c) })
	c.close(websocket.StatusNormalClosure, "")
	wg.Wait()
	h.logger.Info("operator disconnected", zap.String("remote", c.remote))
}

func (h *Hub) readLoop(ctx context.Context, c *client) {
	for {
		var in Frame
		if err := wsjson.Read(ctx, c.conn, &in); err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				h.logger.Debug("operator read ended", zap.String("remote", c.remote), zap.Error(err))
			}
			return
		}

		switch in.Type {
		case FrameHumanResponse:
			if in.RequestID == "" {
				c.enqueueFrame(Frame{Type: FrameError, Message: "request_id is required"})
				continue
			}
			accepted := h.submitter.SubmitResponse(in.RequestID, in.Response)
			if h.hook != nil {
				h.hook(SourceWebSocket, accepted)
			}
			c.enqueueFrame(Frame{Type: FrameAck, RequestID: in.RequestID, Accepted: &accepted})
		default:
			c.enqueueFrame(Frame{Type: FrameError, Message: fmt.Sprintf("unknown frame type %q", in.Type)})
		}
	}
}

func parseExecutions(raw string) map[string]bool {
	if raw == "" {
		return nil
	}
	out := make(map[string]bool)
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			out[id] = true
		}
	}
	return out
}

// client is one operator connection. Only writeLoop writes to conn.
type client struct {
	conn       *websocket.Conn
	remote     string
	executions map[string]bool
	outbox     chan []byte
	done       chan struct{}
	closeOnce  sync.Once
}

func newClient(conn *websocket.Conn, remote string, executions map[string]bool, outboxSize int) *client {
	return &client{
		conn:       conn,
		remote:     remote,
		executions: executions,
		outbox:     make(chan []byte, outboxSize),
		done:       make(chan struct{}),
	}
}

func (c *client) watches(executionID string) bool {
	return len(c.executions) == 0 || c.executions[executionID]
}

// enqueue never blocks; false means the outbox is full or the client is gone.
func (c *client) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.outbox <- data:
		return true
	default:
		return false
	}
}

func (c *client) enqueueFrame(f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	c.enqueue(data)
}

func (c *client) writeLoop(ctx context.Context, timeout time.Duration) {
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		case data := <-c.outbox:
			wctx, cancel := context.WithTimeout(ctx, timeout)
			err := c.conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				c.close(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}

// close stops the writer at once; the close handshake runs in the background
// so the Run goroutine never waits on a slow peer.
func (c *client) close(code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		go func() { _ = c.conn.Close(code, reason) }()
	})
}
