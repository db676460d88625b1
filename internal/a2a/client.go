package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds a single remote call, which may cover a multi-step
// agent turn.
const DefaultTimeout = 600 * time.Second

// maxResponseSize caps how much of a response body is read (4MB).
const maxResponseSize = 4 << 20

// agentCardPath is where A2A servers publish their AgentCard.
const agentCardPath = "/.well-known/agent.json"

// StatusError reports a non-2xx HTTP response whose body was not a JSON-RPC
// error.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("a2a: unexpected HTTP status %d", e.StatusCode)
	}
	return fmt.Sprintf("a2a: unexpected HTTP status %d: %s", e.StatusCode, e.Body)
}

// Client sends JSON-RPC requests to a single A2A endpoint.
type Client struct {
	endpoint   string
	method     string
	httpClient *http.Client
	headers    map[string]string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithMethod selects the JSON-RPC method (MethodTasksSend or MethodMessageSend).
func WithMethod(method string) ClientOption {
	return func(c *Client) {
		if method != "" {
			c.method = method
		}
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// Timeout returns the HTTP timeout applied to each call.
func (c *Client) Timeout() time.Duration {
	return c.httpClient.Timeout
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) ClientOption {
	return func(c *Client) {
		c.headers[key] = value
	}
}

// NewClient creates a client for the agent at endpoint.
func NewClient(endpoint string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint:   strings.TrimSpace(endpoint),
		method:     MethodTasksSend,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		headers:    map[string]string{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// messageSendParams is the parameter object of message/send.
type messageSendParams struct {
	Message       Message             `json:"message"`
	Configuration messageSendSettings `json:"configuration"`
	Metadata      map[string]any      `json:"metadata,omitempty"`
}

type messageSendSettings struct {
	AcceptedOutputModes []string `json:"acceptedOutputModes"`
	Blocking            bool     `json:"blocking"`
}

// Send performs one JSON-RPC call and decodes the response into an Envelope.
func (c *Client) Send(ctx context.Context, params SendParams) (Envelope, error) {
	if c.endpoint == "" {
		return nil, errors.New("a2a: endpoint is required")
	}

	var rpcParams any = params
	if c.method == MethodMessageSend {
		msg := params.Message
		msg.Kind = "message"
		rpcParams = messageSendParams{
			Message: msg,
			Configuration: messageSendSettings{
				AcceptedOutputModes: params.AcceptedOutputModes,
				Blocking:            true,
			},
			Metadata: params.Metadata,
		}
	}

	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      params.ID,
		Method:  c.method,
		Params:  rpcParams,
	})
	if err != nil {
		return nil, fmt.Errorf("a2a: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("a2a: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("a2a: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("a2a: read response: %w", err)
	}

	env, decodeErr := DecodeEnvelope(body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Some servers report JSON-RPC errors with a non-2xx status.
		if decodeErr == nil {
			if errEnv, ok := env.(*ErrorEnvelope); ok {
				return errEnv, nil
			}
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), 200)}
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	return env, nil
}

// FetchAgentCard retrieves the AgentCard published next to the endpoint.
func (c *Client) FetchAgentCard(ctx context.Context) (*AgentCard, error) {
	cardURL, err := agentCardURL(c.endpoint)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cardURL, nil)
	if err != nil {
		return nil, fmt.Errorf("a2a: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("a2a: fetch agent card: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("a2a: read agent card: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), 200)}
	}

	var card AgentCard
	if err := json.Unmarshal(body, &card); err != nil {
		return nil, &DecodeError{Field: "agent card", Err: err}
	}
	return &card, nil
}

// agentCardURL resolves the well-known card location relative to the
// endpoint, keeping any path prefix the agent is mounted under.
func agentCardURL(endpoint string) (string, error) {
	if strings.TrimSpace(endpoint) == "" {
		return "", errors.New("a2a: endpoint is required")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("a2a: invalid endpoint: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("a2a: invalid endpoint %q", endpoint)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + agentCardPath
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
