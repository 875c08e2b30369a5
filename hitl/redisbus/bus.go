package redisbus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/hitlbridge/config"
	"github.com/BaSui01/hitlbridge/hitl"
	"github.com/BaSui01/hitlbridge/internal/pool"
	"github.com/BaSui01/hitlbridge/internal/tlsutil"
)

// SourceRedis labels replies that arrived over the bus.
const SourceRedis = "redis"

var (
	// ErrNoSubscribers is returned by Send when nobody listens on the outbound channel.
	ErrNoSubscribers = errors.New("no subscribers on outbound channel")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("redis bus is closed")
)

// Reply is the JSON payload operators publish on the replies channel.
type Reply struct {
	RequestID string `json:"request_id"`
	Response  string `json:"response"`
}

// Submitter receives decoded replies. *hitl.Bridge implements it.
type Submitter interface {
	SubmitResponse(requestID, text string) bool
}

// ReplyHook observes every decoded reply and whether it was accepted.
type ReplyHook func(source string, accepted bool)

// Bus publishes outbound messages to `<prefix>outbound:<execution_id>` and
// listens for replies on `<prefix>replies`.
type Bus struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
	hook   ReplyHook

	mu     sync.RWMutex
	closed bool
}

var _ hitl.Sender = (*Bus)(nil)

// NewBus connects using cfg and verifies the connection.
func NewBus(cfg config.RedisConfig, logger *zap.Logger) (*Bus, error) {
	opts := &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	}
	if cfg.TLS {
		opts.TLSConfig = tlsutil.ForAddr(cfg.Addr)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	b := NewBusWithClient(client, cfg.ChannelPrefix, logger)
	b.logger.Info("redis bus initialized",
		zap.String("addr", cfg.Addr),
		zap.String("replies_channel", b.RepliesChannel()),
	)
	return b, nil
}

// NewBusWithClient wraps an existing client. Close closes the client.
func NewBusWithClient(client *redis.Client, prefix string, logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		client: client,
		prefix: prefix,
		logger: logger.With(zap.String("component", "redis_bus")),
	}
}

// SetReplyHook installs a hook called for each decoded reply. Call before ListenReplies.
func (b *Bus) SetReplyHook(h ReplyHook) {
	b.hook = h
}

// OutboundChannel is the channel a request for executionID is published on.
func (b *Bus) OutboundChannel(executionID string) string {
	if executionID == "" {
		executionID = "_"
	}
	return b.prefix + "outbound:" + executionID
}

// RepliesChannel is the channel operators answer on.
func (b *Bus) RepliesChannel() string {
	return b.prefix + "replies"
}

// Send publishes msg as JSON. It fails with ErrNoSubscribers when the
// publish reached no one, so the waiting agent learns about it immediately.
func (b *Bus) Send(ctx context.Context, msg hitl.OutboundMessage) error {
	if b.isClosed() {
		return ErrClosed
	}
	buf := pool.ByteBufferPool.Get()
	defer pool.ByteBufferPool.Put(buf)
	if err := json.NewEncoder(buf).Encode(msg); err != nil {
		return fmt.Errorf("marshal outbound message: %w", err)
	}
	data := bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})

	channel := b.OutboundChannel(msg.ExecutionID)
	receivers, err := b.client.Publish(ctx, channel, data).Result()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	if receivers == 0 {
		return fmt.Errorf("%w %s", ErrNoSubscribers, channel)
	}
	b.logger.Debug("outbound message published",
		zap.String("channel", channel),
		zap.Int64("receivers", receivers),
	)
	return nil
}

// PublishReply publishes a reply as an operator client would.
func (b *Bus) PublishReply(ctx context.Context, r Reply) error {
	if b.isClosed() {
		return ErrClosed
	}
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.RepliesChannel(), data).Err()
}

// ListenReplies subscribes to the replies channel and hands every valid
// reply to sub until ctx is done. Malformed payloads are logged and skipped.
func (b *Bus) ListenReplies(ctx context.Context, sub Submitter) error {
	if b.isClosed() {
		return ErrClosed
	}
	ps := b.client.Subscribe(ctx, b.RepliesChannel())
	defer ps.Close()

	// wait for the subscription to be confirmed
	if _, err := ps.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe %s: %w", b.RepliesChannel(), err)
	}
	b.logger.Info("listening for replies", zap.String("channel", b.RepliesChannel()))

	msgs := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("reply listener stopped")
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			b.handleReply(msg.Payload, sub)
		}
	}
}

func (b *Bus) handleReply(payload string, sub Submitter) {
	var r Reply
	if err := json.Unmarshal([]byte(payload), &r); err != nil || r.RequestID == "" {
		b.logger.Warn("malformed reply dropped", zap.Int("bytes", len(payload)), zap.Error(err))
		return
	}
	accepted := sub.SubmitResponse(r.RequestID, r.Response)
	if b.hook != nil {
		b.hook(SourceRedis, accepted)
	}
}

// Ping checks the connection.
func (b *Bus) Ping(ctx context.Context) error {
	if b.isClosed() {
		return ErrClosed
	}
	return b.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.client.Close()
}

func (b *Bus) isClosed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}
