// Package mcpserver exposes the research core as a set of MCP tools over a
// stdio transport, using the official go-sdk.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/triepod-ai/ollama-research-mcp/internal/ollamaclient"
	"github.com/triepod-ai/ollama-research-mcp/internal/research"
	"github.com/triepod-ai/ollama-research-mcp/internal/research/capability"
	"github.com/triepod-ai/ollama-research-mcp/internal/research/client"
	"github.com/triepod-ai/ollama-research-mcp/internal/research/orchestrator"
)

const serverName = "ollama-research-mcp"

// Orchestrator is the subset of orchestrator.Orchestrator this package
// depends on, so the server can be tested against a fake.
type Orchestrator interface {
	Execute(ctx context.Context, req research.Request) (research.Result, error)
	HealthCheck(ctx context.Context) research.HealthStatus
}

// Upstream is the passthrough surface (pull/push/remove/chat) backed by a
// concrete [ollamaclient.Client]; these operations fall outside the narrow
// [client.Client] contract the research core depends on.
type Upstream interface {
	client.Client
	Pull(ctx context.Context, name string, opts ollamaclient.PullOptions) (string, error)
	Push(ctx context.Context, name string, opts ollamaclient.PullOptions) (string, error)
	Remove(ctx context.Context, name string) error
	Chat(ctx context.Context, model string, messages []ollamaclient.ChatMessage, opts client.GenerateOptions) (client.GenerateResult, error)
}

// Registry is the subset of capability.Registry the `list` tool needs.
type Registry interface {
	List(ctx context.Context) ([]research.Capabilities, error)
}

var (
	_ Orchestrator = (*orchestrator.Orchestrator)(nil)
	_ Registry     = (*capability.Registry)(nil)
	_ Upstream     = (*ollamaclient.Client)(nil)
)

// New builds an *mcp.Server with the full tool surface registered: research,
// list, show, pull, push, remove, run, chat_completion, and health_check.
//
// defaultTimeout is the fallback per-request timeout applied when a tool
// call doesn't specify timeout_ms; zero leaves the research call's
// complexity-based budget (or the passthrough tools' own 60s default) in
// effect.
func New(orch Orchestrator, registry Registry, upstream Upstream, defaultTimeout time.Duration) *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{Name: serverName, Version: "0.1.0"},
		&mcp.ServerOptions{
			Instructions: "Research a question across the locally installed Ollama models, " +
				"or use the thin passthrough tools (list/show/pull/push/remove/run/chat_completion) " +
				"to operate the upstream host directly. Prefer `research` for open-ended questions " +
				"that benefit from synthesizing several models' answers; use `run` or `chat_completion` " +
				"for a single, specific model call.",
		},
	)

	registerResearch(server, orch, defaultTimeout)
	registerList(server, registry)
	registerShow(server, upstream)
	registerPull(server, upstream)
	registerPush(server, upstream)
	registerRemove(server, upstream)
	registerRun(server, upstream, defaultTimeout)
	registerChatCompletion(server, upstream, defaultTimeout)
	registerHealthCheck(server, orch)

	return server
}

// ResearchInput is the `research` tool's input.
type ResearchInput struct {
	Question        string   `json:"question" jsonschema:"The natural-language question to research"`
	Complexity      string   `json:"complexity,omitempty" jsonschema:"simple, medium, or complex; defaults to medium"`
	Focus           string   `json:"focus,omitempty" jsonschema:"technical, business, ethical, creative, or general; defaults to general"`
	Models          []string `json:"models,omitempty" jsonschema:"Explicit model names to use instead of automatic selection"`
	Parallel        bool     `json:"parallel,omitempty" jsonschema:"Dispatch to all chosen models concurrently instead of sequentially"`
	IncludeMetadata bool     `json:"include_metadata,omitempty" jsonschema:"Include per-model metadata (tier, parameter count) in the result"`
	Temperature     float64  `json:"temperature,omitempty" jsonschema:"Base sampling temperature, 0-2; defaults to 0.7"`
	TimeoutMs       int64    `json:"timeout_ms,omitempty" jsonschema:"Override the per-request timeout budget, in milliseconds"`
}

func registerResearch(server *mcp.Server, orch Orchestrator, defaultTimeout time.Duration) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "research",
		Description: "Dispatch a question to a diverse subset of locally installed Ollama models and synthesize a composite answer with convergent themes, divergent perspectives, and a calibrated confidence score.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input ResearchInput) (*mcp.CallToolResult, any, error) {
		req := research.Request{
			Question:        input.Question,
			Complexity:      complexityOrDefault(input.Complexity),
			Focus:           focusOrDefault(input.Focus),
			Models:          input.Models,
			Parallel:        input.Parallel,
			IncludeMetadata: input.IncludeMetadata,
			Temperature:     temperatureOrDefault(input.Temperature),
			Timeout:         defaultTimeout,
		}
		if input.TimeoutMs > 0 {
			req.Timeout = time.Duration(input.TimeoutMs) * time.Millisecond
		}

		result, err := orch.Execute(ctx, req)
		if err != nil {
			return toolError(err), nil, nil
		}

		payload, marshalErr := json.Marshal(result)
		if marshalErr != nil {
			return nil, nil, fmt.Errorf("mcpserver: marshal research result: %w", marshalErr)
		}
		return textResult(string(payload)), nil, nil
	})
}

func registerList(server *mcp.Server, registry Registry) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list",
		Description: "List the models currently installed on the upstream Ollama host, one per line, as \"<name>\\t<size in GB>\".",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
		caps, err := registry.List(ctx)
		if err != nil {
			return toolError(err), nil, nil
		}

		sort.Slice(caps, func(i, j int) bool { return caps[i].Name < caps[j].Name })

		var b strings.Builder
		for _, c := range caps {
			fmt.Fprintf(&b, "%s\t%.1f\n", c.Name, float64(c.SizeBytes)/1e9)
		}
		return textResult(strings.TrimRight(b.String(), "\n")), nil, nil
	})
}

// ModelNameInput names a single model, shared by show/pull/push/remove.
type ModelNameInput struct {
	Name string `json:"name" jsonschema:"The model's tag name, e.g. llama3.1:8b"`
}

func registerShow(server *mcp.Server, upstream Upstream) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "show",
		Description: "Return the upstream host's raw metadata for a single model (parameter size, quantization, family).",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input ModelNameInput) (*mcp.CallToolResult, any, error) {
		details, err := upstream.DescribeModel(ctx, input.Name)
		if err != nil {
			return toolError(err), nil, nil
		}
		payload, marshalErr := json.Marshal(details)
		if marshalErr != nil {
			return nil, nil, fmt.Errorf("mcpserver: marshal show result: %w", marshalErr)
		}
		return textResult(string(payload)), nil, nil
	})
}

func registerPull(server *mcp.Server, upstream Upstream) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "pull",
		Description: "Download a model onto the upstream host, draining progress events and returning the final status.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input ModelNameInput) (*mcp.CallToolResult, any, error) {
		status, err := upstream.Pull(ctx, input.Name, ollamaclient.PullOptions{})
		if err != nil {
			return toolError(err), nil, nil
		}
		return textResult(status), nil, nil
	})
}

func registerPush(server *mcp.Server, upstream Upstream) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "push",
		Description: "Upload a model from the upstream host to its configured remote, draining progress events and returning the final status.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input ModelNameInput) (*mcp.CallToolResult, any, error) {
		status, err := upstream.Push(ctx, input.Name, ollamaclient.PullOptions{})
		if err != nil {
			return toolError(err), nil, nil
		}
		return textResult(status), nil, nil
	})
}

func registerRemove(server *mcp.Server, upstream Upstream) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "remove",
		Description: "Delete a model from the upstream host.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input ModelNameInput) (*mcp.CallToolResult, any, error) {
		if err := upstream.Remove(ctx, input.Name); err != nil {
			return toolError(err), nil, nil
		}
		return textResult("removed"), nil, nil
	})
}

// RunInput is the `run` tool's input: a single ad hoc generate call.
type RunInput struct {
	Model       string  `json:"model" jsonschema:"The model's tag name to generate with"`
	Prompt      string  `json:"prompt" jsonschema:"The prompt to send"`
	Temperature float64 `json:"temperature,omitempty" jsonschema:"Sampling temperature, 0-2; defaults to 0.7"`
	TimeoutMs   int64   `json:"timeout_ms,omitempty" jsonschema:"Request timeout, in milliseconds; defaults to the configured default timeout, or 60000 when none is set"`
}

func registerRun(server *mcp.Server, upstream Upstream, defaultTimeout time.Duration) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "run",
		Description: "Generate a single completion from one named model, with no capability classification or synthesis.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input RunInput) (*mcp.CallToolResult, any, error) {
		timeout := fallbackTimeout(defaultTimeout)
		if input.TimeoutMs > 0 {
			timeout = time.Duration(input.TimeoutMs) * time.Millisecond
		}
		result, err := upstream.Generate(ctx, input.Model, input.Prompt, client.GenerateOptions{
			Temperature: temperatureOrDefault(input.Temperature),
			Timeout:     timeout,
		})
		if err != nil {
			return toolError(err), nil, nil
		}
		return textResult(result.Text), nil, nil
	})
}

// ChatCompletionInput is the `chat_completion` tool's input.
type ChatCompletionInput struct {
	Model       string                     `json:"model" jsonschema:"The model's tag name to chat with"`
	Messages    []ollamaclient.ChatMessage `json:"messages" jsonschema:"The chat turns, each with a role and content"`
	Temperature float64                    `json:"temperature,omitempty" jsonschema:"Sampling temperature, 0-2; defaults to 0.7"`
	TimeoutMs   int64                      `json:"timeout_ms,omitempty" jsonschema:"Request timeout, in milliseconds; defaults to the configured default timeout, or 60000 when none is set"`
}

func registerChatCompletion(server *mcp.Server, upstream Upstream, defaultTimeout time.Duration) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "chat_completion",
		Description: "Forward an OpenAI-style chat turn list to a single named model.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input ChatCompletionInput) (*mcp.CallToolResult, any, error) {
		timeout := fallbackTimeout(defaultTimeout)
		if input.TimeoutMs > 0 {
			timeout = time.Duration(input.TimeoutMs) * time.Millisecond
		}
		result, err := upstream.Chat(ctx, input.Model, input.Messages, client.GenerateOptions{
			Temperature: temperatureOrDefault(input.Temperature),
			Timeout:     timeout,
		})
		if err != nil {
			return toolError(err), nil, nil
		}
		return textResult(result.Text), nil, nil
	})
}

func registerHealthCheck(server *mcp.Server, orch Orchestrator) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "health_check",
		Description: "Report whether the upstream Ollama host is reachable and how many models it has installed.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
		status := orch.HealthCheck(ctx)
		payload, err := json.Marshal(status)
		if err != nil {
			return nil, nil, fmt.Errorf("mcpserver: marshal health status: %w", err)
		}
		return textResult(string(payload)), nil, nil
	})
}

// complexityOrDefault fills in the documented default for an unset field.
// An invalid, non-empty value is passed through unchanged so the
// orchestrator's request validation — not this transport layer — is what
// rejects it with a structured error.
func complexityOrDefault(raw string) research.Complexity {
	if raw == "" {
		return research.ComplexityMedium
	}
	return research.Complexity(raw)
}

func focusOrDefault(raw string) research.Focus {
	if raw == "" {
		return research.FocusGeneral
	}
	return research.Focus(raw)
}

// fallbackTimeout returns the configured default timeout, or 60s if none was
// configured.
func fallbackTimeout(defaultTimeout time.Duration) time.Duration {
	if defaultTimeout > 0 {
		return defaultTimeout
	}
	return 60 * time.Second
}

// temperatureOrDefault fills in the documented default for an unset field.
// A non-zero, out-of-range value (including negative) is passed through
// unchanged so the orchestrator's request validation rejects it instead of
// this transport layer silently coercing it away.
func temperatureOrDefault(t float64) float64 {
	if t == 0 {
		return 0.7
	}
	return t
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

func toolError(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
	}
}
