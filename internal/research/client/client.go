// Package client defines the narrow contract the research core uses to talk
// to an Ollama-compatible upstream, independent of transport.
package client

import (
	"context"
	"time"
)

// ModelListing describes one entry from the upstream's model catalog.
type ModelListing struct {
	Name      string
	SizeBytes int64
	Digest    string
}

// ModelDetails is the best-effort metadata returned for a single model.
type ModelDetails struct {
	Name              string `json:"name"`
	ParameterSize     string `json:"parameterSize"` // e.g. "7.2B", as reported by the upstream
	QuantizationLevel string `json:"quantizationLevel"`
	Family            string `json:"family"`
}

// GenerateOptions configures one generation call.
type GenerateOptions struct {
	Temperature float64
	Timeout     time.Duration
}

// GenerateResult is the outcome of a successful generation call.
type GenerateResult struct {
	Text       string
	Tokens     int
	LatencyMs  int64
}

// Client is the contract the research core uses against an upstream model
// host: list installed models, fetch per-model metadata, and invoke
// generation with a bounded deadline.
//
// Implementations must classify transport-level failures into predicates
// the research core can switch on without depending on net/http, rather
// than leaking raw HTTP errors — see ollamaclient's ErrTimeout,
// ErrModelNotFound, and ErrUnavailable for the reference implementation's
// approach.
type Client interface {
	ListModels(ctx context.Context) ([]ModelListing, error)
	DescribeModel(ctx context.Context, name string) (ModelDetails, error)
	Generate(ctx context.Context, model, prompt string, opts GenerateOptions) (GenerateResult, error)
}
