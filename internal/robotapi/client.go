// Package robotapi is the client for the remote robot service: list
// positions, move, reset, start-auto and stop-auto. Every operation goes
// through the retry executor and never touches client-side state.
package robotapi

import (
	"context"
	"log/slog"
	"net/http"
	"robotfleet/internal/retry"
	"strings"
	"time"
)

// Operation names, used for logging and metrics.
const (
	OpListPositions = "list-positions"
	OpMove          = "move"
	OpReset         = "reset"
	OpStartAuto     = "start-auto"
	OpStopAuto      = "stop-auto"
)

// DefaultBaseURL is where the robot service listens by default.
const DefaultBaseURL = "http://localhost:4000"

// DefaultListPolicy is lighter than the mutating policy: one retry after 500ms.
func DefaultListPolicy() retry.Policy {
	return retry.Policy{MaxRetries: 1, RetryDelay: 500 * time.Millisecond}
}

// Config holds client settings. Zero values use defaults.
type Config struct {
	BaseURL       string
	Timeout       time.Duration
	HTTPClient    *http.Client // overrides Timeout when set
	Executor      *retry.Executor
	ListPolicy    *retry.Policy
	CommandPolicy *retry.Policy
	Logger        *slog.Logger
}

// Client talks to the robot service.
type Client struct {
	baseURL       string
	http          *http.Client
	exec          *retry.Executor
	listPolicy    retry.Policy
	commandPolicy retry.Policy
	logger        *slog.Logger
}

// NewClient creates a client.
func NewClient(cfg Config) *Client {
	c := &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		http:          cfg.HTTPClient,
		exec:          cfg.Executor,
		listPolicy:    DefaultListPolicy(),
		commandPolicy: retry.DefaultPolicy(),
		logger:        cfg.Logger,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.http == nil {
		c.http = NewHTTPClient(cfg.Timeout)
	}
	if cfg.ListPolicy != nil {
		c.listPolicy = *cfg.ListPolicy
	}
	if cfg.CommandPolicy != nil {
		c.commandPolicy = *cfg.CommandPolicy
	}
	if c.logger == nil {
		c.logger = slog.With("component", "robotapi")
	}
	return c
}

// BaseURL returns the service root the client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListPositions fetches current robot positions. Cancelling ctx abandons the
// call with apperrors.ErrCancelled.
func (c *Client) ListPositions(ctx context.Context) (PositionSet, error) {
	return c.robots(ctx, c.listPolicy, OpListPositions, newCall(http.MethodGet, "/robots", nil, nil))
}

// Move steps every robot by meters and returns the new positions.
func (c *Client) Move(ctx context.Context, meters float64) (PositionSet, error) {
	return c.robots(ctx, c.commandPolicy, OpMove, newCall(http.MethodPost, "/move", MoveRequest{Meters: meters}, nil))
}

// Reset replaces the fleet with count freshly placed robots.
func (c *Client) Reset(ctx context.Context, count int) (PositionSet, error) {
	return c.robots(ctx, c.commandPolicy, OpReset, newCall(http.MethodPost, "/reset", ResetRequest{Count: count}, nil))
}

// StartAuto turns on continuous movement on the server.
func (c *Client) StartAuto(ctx context.Context, meters, intervalMs float64) error {
	cl := newCall(http.MethodPost, "/start-auto", StartAutoRequest{Meters: meters, IntervalMs: intervalMs}, nil)
	return c.ack(ctx, OpStartAuto, cl)
}

// StopAuto turns off continuous movement on the server.
func (c *Client) StopAuto(ctx context.Context) error {
	return c.ack(ctx, OpStopAuto, newCall(http.MethodPost, "/stop-auto", nil, nil))
}

// robots runs a call whose response carries a robots list. A missing list is
// an empty set, not an error.
func (c *Client) robots(ctx context.Context, p retry.Policy, op string, cl call) (PositionSet, error) {
	logger := c.logger.With("operation", op, "requestId", cl.requestID)
	set, err := retry.Execute(ctx, c.exec, p, op, func(ctx context.Context) (PositionSet, error) {
		var resp RobotsResponse
		attempt := cl
		attempt.out = &resp
		if err := c.do(ctx, attempt); err != nil {
			return nil, err
		}
		return resp.Robots.Clone(), nil
	})
	if err != nil {
		return nil, err
	}
	logger.Debug("Robots received", "count", len(set))
	return set, nil
}

// ack runs a call whose response body is ignored.
func (c *Client) ack(ctx context.Context, op string, cl call) error {
	_, err := retry.Execute(ctx, c.exec, c.commandPolicy, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.do(ctx, cl)
	})
	if err == nil {
		c.logger.Debug("Command acknowledged", "operation", op, "requestId", cl.requestID)
	}
	return err
}
