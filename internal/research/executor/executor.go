// Package executor dispatches generation requests to the models chosen by
// the selector, honoring per-tier adaptive timeouts and parallel/sequential
// dispatch modes.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/triepod-ai/ollama-research-mcp/internal/ollamaclient"
	"github.com/triepod-ai/ollama-research-mcp/internal/research"
	"github.com/triepod-ai/ollama-research-mcp/internal/research/client"
	"github.com/triepod-ai/ollama-research-mcp/internal/research/history"
)

// Executor dispatches generation calls for a [research.Strategy] against a
// [client.Client], recording observed latencies into [history.History].
type Executor struct {
	cl   client.Client
	hist *history.History
}

// New constructs an Executor.
func New(cl client.Client, hist *history.History) *Executor {
	return &Executor{cl: cl, hist: hist}
}

// Run dispatches one generate call per slot in strategy, in parallel or
// sequentially per req.Parallel, and returns responses in strategy (dispatch)
// order regardless of completion order.
func (e *Executor) Run(ctx context.Context, req research.Request, strategy research.Strategy) []research.Response {
	slots := strategy.Slots()
	responses := make([]research.Response, len(slots))

	if req.Parallel {
		g, gctx := errgroup.WithContext(ctx)
		for i, capa := range slots {
			i, capa := i, capa
			g.Go(func() error {
				responses[i] = e.dispatchOne(gctx, req, *capa)
				return nil
			})
		}
		_ = g.Wait()
		return responses
	}

	deadline := time.Now().Add(overallBudget(req, slots))
	for i, capa := range slots {
		if time.Now().After(deadline) {
			responses[i] = research.Response{Model: capa.Name, Err: research.NewTimeoutError(capa.Name)}
			continue
		}
		responses[i] = e.dispatchOne(ctx, req, *capa)
	}
	return responses
}

// overallBudget bounds the sequential path's total wall clock as the sum of
// each slot's per-model budget, so one slow model cannot starve later ones
// indefinitely.
func overallBudget(req research.Request, slots []*research.Capabilities) time.Duration {
	var total time.Duration
	for _, c := range slots {
		total += perModelBudget(req, *c)
	}
	if total <= 0 {
		total = research.BaseBudget[research.ComplexityMedium]
	}
	return total
}

func perModelBudget(req research.Request, capa research.Capabilities) time.Duration {
	return research.ModelBudget(req, capa.Tier)
}

func (e *Executor) dispatchOne(ctx context.Context, req research.Request, capa research.Capabilities) research.Response {
	budget := perModelBudget(req, capa)
	prompt := buildPrompt(req, capa)
	temperature := req.Temperature
	if capa.Tier == research.TierFast {
		temperature = clampTemp(temperature + 0.15)
	}

	genCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	start := time.Now()
	result, err := e.cl.Generate(genCtx, capa.Name, prompt, client.GenerateOptions{
		Temperature: temperature,
		Timeout:     budget,
	})
	elapsed := time.Since(start)

	if err != nil {
		return research.Response{
			Model: capa.Name,
			Err:   classifyError(capa.Name, err),
		}
	}

	e.hist.Record(capa.Name, elapsed)

	resp := research.Response{
		Model:        capa.Name,
		Text:         result.Text,
		ResponseTime: elapsed,
		TokenCount:   result.Tokens,
		Confidence:   rawModelConfidence(capa.Tier, elapsed, len([]rune(result.Text)), budget),
		Tier:         capa.Tier,
	}
	if req.IncludeMetadata {
		resp.Metadata = map[string]string{
			"parameters":  fmt.Sprintf("%d", capa.Parameters),
			"tier":        string(capa.Tier),
			"promptBytes": fmt.Sprintf("%d", len(prompt)),
		}
	}
	return resp
}

// classifyError maps an upstream error into a [research.Error]. It checks
// the ollamaclient sentinel predicates first, since that is the only
// [client.Client] implementation in this repo, then falls back to context
// deadline detection for any other implementation.
func classifyError(model string, err error) error {
	switch {
	case ollamaclient.ErrTimeout(err), errors.Is(err, context.DeadlineExceeded):
		return research.NewTimeoutError(model)
	case ollamaclient.ErrModelNotFound(err):
		return research.NewNotFoundError([]string{model})
	case ollamaclient.ErrUnavailable(err):
		return research.NewUnavailableError("model %s: %v", model, err)
	default:
		return research.NewUpstreamError(model, err)
	}
}

// focusStems bias the model toward a particular framing of the answer.
var focusStems = map[research.Focus]string{
	research.FocusTechnical: "Answer with an emphasis on technical implementation detail.",
	research.FocusBusiness:  "Answer with an emphasis on business impact and tradeoffs.",
	research.FocusEthical:   "Answer with an emphasis on ethical considerations and tensions.",
	research.FocusCreative:  "Answer with an emphasis on creative and exploratory framing.",
	research.FocusGeneral:   "Answer in a clear, balanced way.",
}

var complexityDirectives = map[research.Complexity]string{
	research.ComplexitySimple:  "Keep the answer concise: two to four sentences.",
	research.ComplexityMedium:  "Provide a structured paragraph answer.",
	research.ComplexityComplex: "Provide a multi-paragraph analysis, including caveats and edge cases.",
}

func buildPrompt(req research.Request, capa research.Capabilities) string {
	var b strings.Builder
	b.WriteString(focusStems[req.Focus])
	b.WriteString(" ")
	b.WriteString(complexityDirectives[req.Complexity])
	if capa.Tier == research.TierFast {
		b.WriteString(" Provide your own angle rather than a generic answer.")
	}
	b.WriteString("\n\nQuestion: ")
	b.WriteString(req.Question)
	return b.String()
}

func clampTemp(v float64) float64 {
	if v > 2.0 {
		return 2.0
	}
	return v
}

// rawModelConfidence is the per-response confidence input consumed by the
// analyzer's aggregate calibration. base varies by tier; a length
// bonus rewards substantive answers and a latency penalty discounts answers
// that came in within 10% of their own dispatch budget.
func rawModelConfidence(tier research.Tier, latency time.Duration, textLen int, budget time.Duration) float64 {
	var base float64
	switch tier {
	case research.TierFast:
		base = 0.35
	case research.TierBalanced:
		base = 0.45
	default:
		base = 0.55
	}

	var lengthBonus float64
	if textLen >= 200 {
		lengthBonus = 0.1
	}

	var latencyPenalty float64
	if budget > 0 && latency >= budget*9/10 {
		latencyPenalty = 0.1
	}

	return clampFloat(base+lengthBonus-latencyPenalty, 0.05, 0.9)
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
