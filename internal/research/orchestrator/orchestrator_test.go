package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/triepod-ai/ollama-research-mcp/internal/research"
	"github.com/triepod-ai/ollama-research-mcp/internal/research/capability"
	"github.com/triepod-ai/ollama-research-mcp/internal/research/client"
	"github.com/triepod-ai/ollama-research-mcp/internal/research/executor"
	"github.com/triepod-ai/ollama-research-mcp/internal/research/history"
	"github.com/triepod-ai/ollama-research-mcp/internal/research/selector"
)

type fakeClient struct {
	listings []client.ModelListing
	listErr  error

	generate func(ctx context.Context, model, prompt string, opts client.GenerateOptions) (client.GenerateResult, error)
}

func (f *fakeClient) ListModels(ctx context.Context) ([]client.ModelListing, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.listings, nil
}

func (f *fakeClient) DescribeModel(ctx context.Context, name string) (client.ModelDetails, error) {
	return client.ModelDetails{Name: name}, nil
}

func (f *fakeClient) Generate(ctx context.Context, model, prompt string, opts client.GenerateOptions) (client.GenerateResult, error) {
	if f.generate != nil {
		return f.generate(ctx, model, prompt, opts)
	}
	return client.GenerateResult{Text: "a reasonable answer about " + model, Tokens: 10}, nil
}

func buildOrchestrator(cl client.Client) *Orchestrator {
	reg := capability.New(cl)
	hist := history.New()
	sel := selector.New(hist)
	exec := executor.New(cl, hist)
	return New(reg, sel, exec)
}

func TestExecute_EmptyQuestionIsValidationError(t *testing.T) {
	o := buildOrchestrator(&fakeClient{listings: []client.ModelListing{{Name: "llama3.1:8b", SizeBytes: 1}}})

	_, err := o.Execute(context.Background(), research.Request{Question: "   "})

	var rerr *research.Error
	if !errors.As(err, &rerr) || rerr.Kind != research.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestExecute_NoModelsIsUnavailable(t *testing.T) {
	o := buildOrchestrator(&fakeClient{})

	_, err := o.Execute(context.Background(), research.Request{Question: "what is up"})

	var rerr *research.Error
	if !errors.As(err, &rerr) || rerr.Kind != research.KindUnavailable {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestExecute_UnknownExplicitModelIsNotFound(t *testing.T) {
	o := buildOrchestrator(&fakeClient{listings: []client.ModelListing{{Name: "llama3.1:8b", SizeBytes: 1}}})

	_, err := o.Execute(context.Background(), research.Request{
		Question: "what is up",
		Models:   []string{"does-not-exist"},
	})

	var rerr *research.Error
	if !errors.As(err, &rerr) || rerr.Kind != research.KindNotFound {
		t.Fatalf("expected not_found error, got %v", err)
	}
}

func TestExecute_HappyPath(t *testing.T) {
	cl := &fakeClient{listings: []client.ModelListing{
		{Name: "phi3:3.8b", SizeBytes: 1},
		{Name: "llama3.1:8b", SizeBytes: 1},
		{Name: "qwen2.5-coder:32b", SizeBytes: 1},
	}}
	o := buildOrchestrator(cl)

	result, err := o.Execute(context.Background(), research.Request{
		Question:   "what are the tradeoffs of microservices",
		Complexity: research.ComplexityMedium,
		Focus:      research.FocusTechnical,
		Parallel:   true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Responses) == 0 {
		t.Fatalf("expected responses, got none")
	}
	if result.Synthesis == "" {
		t.Fatalf("expected a synthesis")
	}
	if result.ExecutionTime <= 0 {
		t.Fatalf("expected a positive execution time")
	}
}

func TestExecute_ModelFailureDoesNotAbortCall(t *testing.T) {
	cl := &fakeClient{
		listings: []client.ModelListing{
			{Name: "phi3:3.8b", SizeBytes: 1},
			{Name: "llama3.1:8b", SizeBytes: 1},
		},
		generate: func(ctx context.Context, model, prompt string, opts client.GenerateOptions) (client.GenerateResult, error) {
			if model == "phi3:3.8b" {
				return client.GenerateResult{}, errors.New("connection refused")
			}
			return client.GenerateResult{Text: "a fine answer here with enough length to count", Tokens: 20}, nil
		},
	}
	o := buildOrchestrator(cl)

	result, err := o.Execute(context.Background(), research.Request{
		Question:   "should we migrate",
		Complexity: research.ComplexitySimple,
		Parallel:   true,
	})
	if err != nil {
		t.Fatalf("unexpected top-level error: %v", err)
	}

	var sawFailure, sawSuccess bool
	for _, r := range result.Responses {
		if r.Err != nil {
			sawFailure = true
		} else {
			sawSuccess = true
		}
	}
	if !sawFailure || !sawSuccess {
		t.Fatalf("expected a mix of failure and success, got %+v", result.Responses)
	}
}

func TestHealthCheck(t *testing.T) {
	o := buildOrchestrator(&fakeClient{listings: []client.ModelListing{{Name: "llama3.1:8b", SizeBytes: 1}}})

	status := o.HealthCheck(context.Background())
	if !status.Healthy || status.Models != 1 {
		t.Fatalf("expected healthy status with 1 model, got %+v", status)
	}
}

// TestHealthCheck_NoModels verifies a reachable-but-empty host reports
// healthy with zero models — distinct from an unreachable host, which
// reports unhealthy.
func TestHealthCheck_NoModels(t *testing.T) {
	o := buildOrchestrator(&fakeClient{})

	status := o.HealthCheck(context.Background())
	if !status.Healthy || status.Models != 0 {
		t.Fatalf("expected healthy status with 0 models, got %+v", status)
	}
}

func TestHealthCheck_Unreachable(t *testing.T) {
	o := buildOrchestrator(&fakeClient{listErr: errors.New("connection refused")})

	status := o.HealthCheck(context.Background())
	if status.Healthy {
		t.Fatalf("expected unhealthy status, got %+v", status)
	}
}

func TestExecute_RespectsContextCancellation(t *testing.T) {
	cl := &fakeClient{
		listings: []client.ModelListing{{Name: "llama3.1:8b", SizeBytes: 1}},
		generate: func(ctx context.Context, model, prompt string, opts client.GenerateOptions) (client.GenerateResult, error) {
			select {
			case <-ctx.Done():
				return client.GenerateResult{}, ctx.Err()
			case <-time.After(50 * time.Millisecond):
				return client.GenerateResult{Text: "late"}, nil
			}
		},
	}
	o := buildOrchestrator(cl)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	result, err := o.Execute(ctx, research.Request{Question: "slow question"})
	if err != nil {
		t.Fatalf("unexpected top-level error: %v", err)
	}
	if len(result.Responses) != 1 || result.Responses[0].Err == nil {
		t.Fatalf("expected a single failed response, got %+v", result.Responses)
	}
}
