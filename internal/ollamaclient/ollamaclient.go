// Package ollamaclient implements [client.Client] against a real Ollama
// server's HTTP API.
//
// Only standard library packages are used for the wire format itself — no
// additional dependencies are required beyond Go's net/http and
// encoding/json. A [resilience.CircuitBreaker] wraps every call so a
// persistently unreachable host fails fast instead of queuing timeouts.
package ollamaclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/triepod-ai/ollama-research-mcp/internal/research/client"
	"github.com/triepod-ai/ollama-research-mcp/internal/resilience"
)

// DefaultBaseURL is the default base URL for a locally running Ollama instance.
const DefaultBaseURL = "http://127.0.0.1:11434"

// Ensure Client implements client.Client at compile time.
var _ client.Client = (*Client)(nil)

// config holds optional configuration collected from functional options.
type config struct {
	httpClient *http.Client
	breakerCfg resilience.CircuitBreakerConfig
}

// Option is a functional option for [New].
type Option func(*config)

// WithHTTPClient overrides the underlying [http.Client]. Useful in tests to
// inject a client pointed at an httptest.Server.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.httpClient = hc }
}

// WithCircuitBreaker overrides the circuit breaker configuration guarding
// transport-level failures (dial errors, connection refused — not HTTP
// status codes from a reachable server).
func WithCircuitBreaker(cfg resilience.CircuitBreakerConfig) Option {
	return func(c *config) { c.breakerCfg = cfg }
}

// Client is an Ollama-backed implementation of [client.Client].
//
// Client is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
}

// New constructs a Client against baseURL (e.g. "http://127.0.0.1:11434").
// If baseURL is empty, [DefaultBaseURL] is used. A trailing slash is
// stripped automatically.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	cfg := &config{
		httpClient: &http.Client{},
		breakerCfg: resilience.CircuitBreakerConfig{
			Name:      "ollama-upstream",
			IsFailure: isBreakerFailure,
		},
	}
	for _, o := range opts {
		o(cfg)
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: cfg.httpClient,
		breaker:    resilience.NewCircuitBreaker(cfg.breakerCfg),
	}
}

type tagsResponse struct {
	Models []struct {
		Name       string `json:"name"`
		Size       int64  `json:"size"`
		Digest     string `json:"digest"`
		ModifiedAt string `json:"modified_at"`
	} `json:"models"`
}

// ListModels implements [client.Client] by calling GET /api/tags.
func (c *Client) ListModels(ctx context.Context) ([]client.ModelListing, error) {
	var out tagsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/tags", nil, &out, 0); err != nil {
		return nil, err
	}

	listings := make([]client.ModelListing, 0, len(out.Models))
	for _, m := range out.Models {
		if m.Name == "" {
			continue
		}
		listings = append(listings, client.ModelListing{
			Name:      m.Name,
			SizeBytes: m.Size,
			Digest:    m.Digest,
		})
	}
	return listings, nil
}

type showRequest struct {
	Name string `json:"name"`
}

type showResponse struct {
	Parameters string `json:"parameters"`
	Details    struct {
		ParameterSize     string `json:"parameter_size"`
		QuantizationLevel string `json:"quantization_level"`
		Family            string `json:"family"`
	} `json:"details"`
}

// DescribeModel implements [client.Client] by calling POST /api/show.
func (c *Client) DescribeModel(ctx context.Context, name string) (client.ModelDetails, error) {
	var out showResponse
	body, err := json.Marshal(showRequest{Name: name})
	if err != nil {
		return client.ModelDetails{}, fmt.Errorf("ollamaclient: marshal show request: %w", err)
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/show", body, &out, 0); err != nil {
		return client.ModelDetails{}, err
	}
	return client.ModelDetails{
		Name:              name,
		ParameterSize:     out.Details.ParameterSize,
		QuantizationLevel: out.Details.QuantizationLevel,
		Family:            out.Details.Family,
	}, nil
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options,omitempty"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Response  string `json:"response"`
	Done      bool   `json:"done"`
	EvalCount int    `json:"eval_count"`
}

// Generate implements [client.Client] by calling POST /api/generate with
// stream disabled. The call is bounded by opts.Timeout via a derived
// context; cancellation is reported as an error for which [ErrTimeout]
// returns true, which callers map to [research.KindTimeout].
func (c *Client) Generate(ctx context.Context, model, prompt string, opts client.GenerateOptions) (client.GenerateResult, error) {
	reqBody, err := json.Marshal(generateRequest{
		Model:  model,
		Prompt: prompt,
		Stream: false,
		Options: generateOptions{
			Temperature: opts.Temperature,
		},
	})
	if err != nil {
		return client.GenerateResult{}, fmt.Errorf("ollamaclient: marshal generate request: %w", err)
	}

	start := time.Now()
	var out generateResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/generate", reqBody, &out, opts.Timeout); err != nil {
		return client.GenerateResult{}, err
	}
	latency := time.Since(start)

	tokens := out.EvalCount
	if tokens == 0 {
		tokens = len(strings.Fields(out.Response))
	}

	return client.GenerateResult{
		Text:      out.Response,
		Tokens:    tokens,
		LatencyMs: latency.Milliseconds(),
	}, nil
}

// PullOptions configures a pull/push call.
type PullOptions struct {
	Insecure bool
}

type pullPushRequest struct {
	Name     string `json:"name"`
	Insecure bool   `json:"insecure,omitempty"`
}

type ndjsonStatus struct {
	Status    string `json:"status"`
	Error     string `json:"error"`
	Completed int64  `json:"completed"`
	Total     int64  `json:"total"`
}

// Pull implements the `pull` passthrough tool by calling POST /api/pull. The
// upstream streams newline-delimited JSON progress events; only the final
// status line is returned to the caller.
func (c *Client) Pull(ctx context.Context, name string, opts PullOptions) (string, error) {
	return c.streamStatus(ctx, "/api/pull", name, opts.Insecure)
}

// Push implements the `push` passthrough tool by calling POST /api/push.
func (c *Client) Push(ctx context.Context, name string, opts PullOptions) (string, error) {
	return c.streamStatus(ctx, "/api/push", name, opts.Insecure)
}

// Remove implements the `remove` passthrough tool by calling DELETE
// /api/delete.
func (c *Client) Remove(ctx context.Context, name string) error {
	body, err := json.Marshal(showRequest{Name: name})
	if err != nil {
		return fmt.Errorf("ollamaclient: marshal delete request: %w", err)
	}
	return c.doJSON(ctx, http.MethodDelete, "/api/delete", body, nil, 0)
}

// ChatMessage is one turn in a chat_completion call.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string          `json:"model"`
	Messages []ChatMessage   `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  generateOptions `json:"options,omitempty"`
}

type chatResponse struct {
	Message   ChatMessage `json:"message"`
	Done      bool        `json:"done"`
	EvalCount int         `json:"eval_count"`
}

// Chat implements the `chat_completion` passthrough tool by calling POST
// /api/chat with stream disabled.
func (c *Client) Chat(ctx context.Context, model string, messages []ChatMessage, opts client.GenerateOptions) (client.GenerateResult, error) {
	reqBody, err := json.Marshal(chatRequest{
		Model:    model,
		Messages: messages,
		Stream:   false,
		Options:  generateOptions{Temperature: opts.Temperature},
	})
	if err != nil {
		return client.GenerateResult{}, fmt.Errorf("ollamaclient: marshal chat request: %w", err)
	}

	start := time.Now()
	var out chatResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/chat", reqBody, &out, opts.Timeout); err != nil {
		return client.GenerateResult{}, err
	}
	latency := time.Since(start)

	tokens := out.EvalCount
	if tokens == 0 {
		tokens = len(strings.Fields(out.Message.Content))
	}

	return client.GenerateResult{
		Text:      out.Message.Content,
		Tokens:    tokens,
		LatencyMs: latency.Milliseconds(),
	}, nil
}

// streamStatus performs a request whose response body is newline-delimited
// JSON status events, draining all of them and returning only the last
// line's status string.
func (c *Client) streamStatus(ctx context.Context, path, name string, insecure bool) (string, error) {
	body, err := json.Marshal(pullPushRequest{Name: name, Insecure: insecure})
	if err != nil {
		return "", fmt.Errorf("ollamaclient: marshal request: %w", err)
	}

	raw, err := c.doRaw(ctx, http.MethodPost, path, body)
	if err != nil {
		return "", err
	}

	var last ndjsonStatus
	for _, line := range strings.Split(strings.TrimSpace(string(raw)), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var s ndjsonStatus
		if err := json.Unmarshal([]byte(line), &s); err != nil {
			continue
		}
		last = s
	}
	if last.Error != "" {
		return "", fmt.Errorf("ollamaclient: %s: %s", path, last.Error)
	}
	return last.Status, nil
}

// doRaw is like doJSON but returns the raw response body without decoding,
// for endpoints whose body is newline-delimited JSON rather than a single
// object.
func (c *Client) doRaw(ctx context.Context, method, path string, reqBody []byte) ([]byte, error) {
	var respBody []byte
	err := c.breaker.Execute(func() error {
		var reqReader io.Reader
		if reqBody != nil {
			reqReader = bytes.NewReader(reqBody)
		}
		req, buildErr := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqReader)
		if buildErr != nil {
			return fmt.Errorf("ollamaclient: build request: %w", buildErr)
		}
		if reqBody != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, doErr := c.httpClient.Do(req)
		if doErr != nil {
			return classifyTransportError(doErr)
		}
		defer resp.Body.Close()

		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("ollamaclient: read response: %w", readErr)
		}
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("ollamaclient: %w: status 404", errModelNotFound)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("ollamaclient: unexpected status %d: %s", resp.StatusCode, string(body))
		}
		respBody = body
		return nil
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, fmt.Errorf("ollamaclient: %w", errUnavailable)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("ollamaclient: %w", errTimeout)
		}
		return nil, err
	}
	return respBody, nil
}

// doJSON performs one request/response cycle through the circuit breaker and
// decodes the response body as a single JSON object. A non-zero timeout
// derives a child context with that deadline; zero means "use ctx as given"
// (callers pass their own upstream deadline).
func (c *Client) doJSON(ctx context.Context, method, path string, reqBody []byte, out any, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	respBody, err := c.doRaw(ctx, method, path, reqBody)
	if err != nil {
		return err
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("ollamaclient: decode response: %w", err)
		}
	}
	return nil
}

// Sentinel errors classified by callers (the executor and orchestrator) via
// errors.Is into a [research.Kind].
var (
	errUnavailable   = errors.New("upstream unavailable")
	errTimeout       = errors.New("upstream timeout")
	errModelNotFound = errors.New("model not found")
)

// ErrUnavailable reports whether err represents an unreachable upstream
// (circuit open or transport-level failure).
func ErrUnavailable(err error) bool { return errors.Is(err, errUnavailable) }

// ErrTimeout reports whether err represents a deadline exceeded waiting on
// the upstream.
func ErrTimeout(err error) bool { return errors.Is(err, errTimeout) }

// ErrModelNotFound reports whether err represents a 404 from the upstream.
func ErrModelNotFound(err error) bool { return errors.Is(err, errModelNotFound) }

// isBreakerFailure reports whether err should count toward the circuit
// breaker's consecutive-failure threshold. Only errUnavailable — a
// dial/DNS/connection-refused failure classified by classifyTransportError,
// or a circuit-open rejection from a prior call — represents the host
// itself being unreachable. A 404 (model not found) or any other non-200
// status from a server that did respond is a model- or request-level
// problem, not a reachability problem, and must not trip the breaker.
func isBreakerFailure(err error) bool {
	return errors.Is(err, errUnavailable)
}

// classifyTransportError maps a low-level net/http.Client.Do error into the
// unavailable sentinel when it looks like a dial/connection failure, so the
// circuit breaker's failure accounting only counts genuine outages.
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("ollamaclient: %w", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("ollamaclient: %w: %v", errUnavailable, err)
	}
	if strings.Contains(err.Error(), "connection refused") || strings.Contains(err.Error(), "no such host") {
		return fmt.Errorf("ollamaclient: %w: %v", errUnavailable, err)
	}
	return fmt.Errorf("ollamaclient: %w", err)
}
