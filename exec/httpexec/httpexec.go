// Package httpexec dispatches step operations to a step executor server
// over HTTP.
package httpexec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/mobiq/stepflow/exec"
)

// DefaultUsername is the default HTTP Basic authentication username.
const DefaultUsername = "stepflow"

// DefaultTimeout is the HTTP client timeout for dispatching operations.
// Step executors run operations synchronously so this is generous.
const DefaultTimeout = 2 * time.Minute

var ErrMissingURL = errors.New("missing executor URL")

// Client dispatches step operations to a step executor server over HTTP.
// Requests are JSON POSTs authenticated with HTTP Basic.
type Client struct {
	url      string
	apiKey   string
	username string
	client   *http.Client
	ops      map[string]struct{}
}

type Option func(*Client)

// WithClient sets the HTTP client used for dispatching operations.
func WithClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// WithUsername sets the HTTP Basic authentication username.
func WithUsername(username string) Option {
	return func(c *Client) {
		c.username = username
	}
}

// WithOperations replaces the set of operations the executor supports.
func WithOperations(ops []string) Option {
	return func(c *Client) {
		c.ops = make(map[string]struct{}, len(ops))
		for _, op := range ops {
			c.ops[op] = struct{}{}
		}
	}
}

// New creates a new step executor client for the server at url.
// The API key is sent as the HTTP Basic authentication password and
// may be empty for executors that do not authenticate.
func New(url, apiKey string, opts ...Option) (*Client, error) {
	if url == "" {
		return nil, ErrMissingURL
	}
	c := &Client{
		url:      url,
		apiKey:   apiKey,
		username: DefaultUsername,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: DefaultTimeout}
	}
	if c.ops == nil {
		WithOperations(DefaultOperations())(c)
	}
	return c, nil
}

// Supports reports whether the executor implements operation.
func (c *Client) Supports(operation string) bool {
	_, ok := c.ops[operation]
	return ok
}

// Operations returns the sorted list of supported operations.
func (c *Client) Operations() []string {
	ops := make([]string, 0, len(c.ops))
	for op := range c.ops {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

// Run POSTs r to the step executor and decodes the reply.
// A non-2xx reply is reported as a failed response, not an error:
// the executor answered, it just could not perform the operation.
func (c *Client) Run(ctx context.Context, r *exec.Request) (*exec.Response, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.SetBasicAuth(c.username, c.apiKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, resp.Body)
		return &exec.Response{Message: fmt.Sprintf("unexpected status: %s", resp.Status)}, nil
	}
	response := new(exec.Response)
	if err = json.NewDecoder(resp.Body).Decode(response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return response, nil
}
