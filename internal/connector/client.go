// Package connector talks to the connector that fronts this engine. Both
// peer handshake messages and settlement notifications go through it.
package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"settlement-engine/internal/platform/metrics"
	"settlement-engine/internal/platform/tracing"
	dErrors "settlement-engine/pkg/domain-errors"
	"settlement-engine/pkg/platform/sentinel"
)

const (
	callMessage    = "message"
	callSettlement = "settlement"

	// maxResponseBytes bounds handshake replies read from peers.
	maxResponseBytes = 1 << 20
)

// Client posts to {baseURL}/accounts/{id}/... with a fixed timeout and no
// retries.
type Client struct {
	baseURL string
	http    *http.Client
	newKey  func() string
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithHTTPClient replaces the underlying client. Its Timeout is overwritten.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithIdempotencyKeys replaces uuid.NewString for Idempotency-Key headers.
func WithIdempotencyKeys(fn func() string) Option {
	return func(c *Client) {
		if fn != nil {
			c.newKey = fn
		}
	}
}

func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{},
		newKey:  uuid.NewString,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.http.Timeout = timeout
	return c
}

// SendMessage forwards raw handshake bytes to the peer behind accountID and
// returns the peer's raw reply. Every call carries a fresh Idempotency-Key.
func (c *Client) SendMessage(ctx context.Context, accountID string, raw []byte) ([]byte, error) {
	req, err := c.newRequest(ctx, accountID, "messages", raw)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Idempotency-Key", c.newKey())

	return c.do(req, callMessage, accountID)
}

type settlementNotification struct {
	Amount string `json:"amount"`
	Scale  int    `json:"scale"`
}

// NotifySettlement tells the connector that accountID was credited with
// amount at scale.
func (c *Client) NotifySettlement(ctx context.Context, accountID string, amount *big.Int, scale int) error {
	body, err := json.Marshal(settlementNotification{Amount: amount.String(), Scale: scale})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode settlement notification")
	}
	req, err := c.newRequest(ctx, accountID, "settlement", body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	_, err = c.do(req, callSettlement, accountID)
	return err
}

func (c *Client) newRequest(ctx context.Context, accountID, resource string, body []byte) (*http.Request, error) {
	target := c.baseURL + "/accounts/" + url.PathEscape(accountID) + "/" + resource
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build connector request")
	}
	tracing.Inject(ctx, req.Header)
	return req, nil
}

func (c *Client) do(req *http.Request, call, accountID string) ([]byte, error) {
	start := time.Now()
	defer c.metrics.ObserveOutbound(call, start)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WarnContext(req.Context(), "connector call failed",
			"call", call,
			"account_id", accountID,
			"error", err,
		)
		return nil, classify(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, dErrors.Wrap(fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err), dErrors.CodeUnavailable, "failed to read connector response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.WarnContext(req.Context(), "connector rejected call",
			"call", call,
			"account_id", accountID,
			"status", resp.StatusCode,
		)
		return nil, dErrors.Wrap(
			fmt.Errorf("%w: status %d", sentinel.ErrRejected, resp.StatusCode),
			dErrors.CodeUnavailable,
			"connector rejected "+call,
		)
	}
	return body, nil
}

func classify(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "connector call timed out")
	}
	return dErrors.Wrap(fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err), dErrors.CodeUnavailable, "connector unreachable")
}
