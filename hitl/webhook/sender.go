// Package webhook delivers human requests to an HTTP endpoint, typically a
// chat integration that later posts the answer back to the reply API.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/hitlbridge/config"
	"github.com/BaSui01/hitlbridge/hitl"
	"github.com/BaSui01/hitlbridge/internal/tlsutil"
)

const (
	HeaderSignature = "X-HITL-Signature"
	HeaderRequestID = "X-HITL-Request-ID"

	maxErrorBody = 512
)

// Sender posts each OutboundMessage as JSON. Any non-2xx status is a
// delivery failure.
type Sender struct {
	url    string
	secret []byte
	client *http.Client
	logger *zap.Logger
}

var _ hitl.Sender = (*Sender)(nil)

// New creates a Sender from cfg.
func New(cfg config.WebhookConfig, logger *zap.Logger) (*Sender, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook: url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Sender{
		url:    cfg.URL,
		secret: []byte(cfg.Secret),
		client: tlsutil.HTTPClient(timeout),
		logger: logger.With(zap.String("component", "webhook")),
	}, nil
}

func (s *Sender) Send(ctx context.Context, msg hitl.OutboundMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if id, ok := msg.Metadata["request_id"].(string); ok {
		req.Header.Set(HeaderRequestID, id)
	}
	if len(s.secret) > 0 {
		req.Header.Set(HeaderSignature, Sign(s.secret, body))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("webhook: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	s.logger.Debug("webhook delivered", zap.Int("status", resp.StatusCode))
	return nil
}

// Sign returns the signature header value for body: "sha256=" + hex HMAC.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature header value in constant time.
func Verify(secret, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(signature))
}
