// Package api is the outbound request layer for the coursedesk REST API.
//
// Every non-public request carries the live push channel identifier in the
// X-Socket-ID header so the server can address job events back to this
// client. Network failures, 5xx responses and exhausted 429 retries are
// reported once on the toast bus; job state is never touched here.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"coursedesk/internal/toast"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	// SocketIDHeader carries the push channel identifier.
	SocketIDHeader = "X-Socket-ID"
	// JobIDHeader carries the client-side job id so the server can echo it
	// as jobId in push events.
	JobIDHeader = "X-Job-ID"
)

// Bus event types published by the client.
const (
	ErrorTypeNetwork   = "network"
	ErrorTypeServer    = "server"
	ErrorTypeRateLimit = "rate_limit"
)

// ErrUnauthorized is returned for 401 responses.
var ErrUnauthorized = errors.New("unauthorized")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.Code)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.Code, e.Message)
}

// IDSource reports the live push channel identifier.
type IDSource interface {
	CurrentID() string
}

// Publisher receives cross-cutting failure reports.
type Publisher interface {
	Publish(ev toast.Event)
}

// Options configure a Client.
type Options struct {
	BaseURL      string
	Token        string
	Channel      IDSource
	Errors       Publisher
	Timeout      time.Duration
	RetryCount   int
	RetryWait    time.Duration
	RetryMaxWait time.Duration
	Logger       *zap.Logger
}

// Client represents a coursedesk API client
type Client struct {
	http    *resty.Client
	channel IDSource
	errors  Publisher
	logger  *zap.Logger

	mu    sync.RWMutex
	token string
}

type publicKey struct{}
type noRetryKey struct{}
type jobIDKey struct{}

// Public marks requests made with ctx as public: no X-Socket-ID header.
func Public(ctx context.Context) context.Context {
	return context.WithValue(ctx, publicKey{}, true)
}

// WithJobID attaches a client-side job id to requests made with ctx.
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobIDKey{}, jobID)
}

// NewClient creates a new API client
func NewClient(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	retryWait := opts.RetryWait
	if retryWait <= 0 {
		retryWait = 500 * time.Millisecond
	}
	retryMaxWait := opts.RetryMaxWait
	if retryMaxWait < retryWait {
		retryMaxWait = 8 * retryWait
	}

	c := &Client{
		channel: opts.Channel,
		errors:  opts.Errors,
		logger:  logger,
		token:   opts.Token,
	}

	c.http = resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetHeader("Accept", "application/json").
		SetTimeout(timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(retryWait).
		SetRetryMaxWaitTime(retryMaxWait).
		SetRetryResetReaders(true).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if r != nil && r.Request != nil {
				if noRetry, _ := r.Request.Context().Value(noRetryKey{}).(bool); noRetry {
					return false
				}
			}
			if err != nil {
				return true
			}
			// Retry on 429 (Too Many Requests) and transient gateway errors
			code := r.StatusCode()
			return code == http.StatusTooManyRequests || (code >= 502 && code <= 504)
		}).
		OnBeforeRequest(c.attachHeaders)

	return c
}

// SetToken replaces the bearer credential used for later requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) currentToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) attachHeaders(_ *resty.Client, req *resty.Request) error {
	if jobID, _ := req.Context().Value(jobIDKey{}).(string); jobID != "" {
		req.SetHeader(JobIDHeader, jobID)
	}
	if public, _ := req.Context().Value(publicKey{}).(bool); public {
		return nil
	}
	if c.channel == nil {
		return nil
	}
	if id := c.channel.CurrentID(); id != "" {
		req.SetHeader(SocketIDHeader, id)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context) *resty.Request {
	req := c.http.R().SetContext(ctx)
	if token := c.currentToken(); token != "" {
		req.SetAuthToken(token)
	}
	return req
}

// Get performs a GET request and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, endpoint string, params map[string]string, out any) error {
	req := c.newRequest(ctx)
	if params != nil {
		req.SetQueryParams(params)
	}
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Get(buildPath(endpoint))
	return c.check(ctx, http.MethodGet, endpoint, resp, err)
}

// Post performs a JSON POST request and decodes the response into out.
func (c *Client) Post(ctx context.Context, endpoint string, body, out any) error {
	req := c.newRequest(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body)
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Post(buildPath(endpoint))
	return c.check(ctx, http.MethodPost, endpoint, resp, err)
}

// UploadFiles posts paths as multipart "files" fields. Uploads are not
// retried; the server may already have started processing the first attempt.
func (c *Client) UploadFiles(ctx context.Context, endpoint string, paths []string, out any) error {
	if len(paths) == 0 {
		return errors.New("no files to upload")
	}

	req := c.newRequest(context.WithValue(ctx, noRetryKey{}, true))
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()
		req.SetFileReader("files", filepath.Base(path), f)
	}
	if out != nil {
		req.SetResult(out)
	}

	resp, err := req.Post(buildPath(endpoint))
	return c.check(ctx, http.MethodPost, endpoint, resp, err)
}

// check turns transport and status failures into errors, reporting the
// cross-cutting ones on the error bus.
func (c *Client) check(ctx context.Context, method, endpoint string, resp *resty.Response, err error) error {
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		c.logger.Warn("request failed",
			zap.String("method", method),
			zap.String("endpoint", endpoint),
			zap.Error(err))
		c.publish(ErrorTypeNetwork, "Network error: unable to reach the server")
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	if resp.IsSuccess() {
		return nil
	}

	code := resp.StatusCode()
	statusErr := &StatusError{Code: code, Message: serverMessage(resp.Body())}
	c.logger.Warn("request rejected",
		zap.String("method", method),
		zap.String("endpoint", endpoint),
		zap.Int("status", code),
		zap.Int("attempts", resp.Request.Attempt))

	switch {
	case code == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, statusErr.Message)
	case code == http.StatusTooManyRequests:
		c.publish(ErrorTypeRateLimit, "Too many requests. Please wait a moment and try again.")
	case code >= 500:
		c.publish(ErrorTypeServer, fmt.Sprintf("Server error (%d). Please try again later.", code))
	}
	return statusErr
}

func (c *Client) publish(kind, message string) {
	if c.errors == nil {
		return
	}
	c.errors.Publish(toast.Event{Message: message, Type: kind})
}

// serverMessage extracts {"message": ...} or {"error": ...} from a JSON body.
func serverMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return strings.TrimSpace(string(body))
	}
	if payload.Message != "" {
		return payload.Message
	}
	return payload.Error
}

// buildPath normalizes an endpoint relative to the base URL
func buildPath(endpoint string) string {
	return "/" + strings.TrimPrefix(endpoint, "/")
}
