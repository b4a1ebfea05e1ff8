// Package orchestrator ties the capability registry, selector, executor, and
// analyzer into the single entry point that answers one research call.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/triepod-ai/ollama-research-mcp/internal/observe"
	"github.com/triepod-ai/ollama-research-mcp/internal/research"
	"github.com/triepod-ai/ollama-research-mcp/internal/research/analyzer"
	"github.com/triepod-ai/ollama-research-mcp/internal/research/capability"
	"github.com/triepod-ai/ollama-research-mcp/internal/research/executor"
	"github.com/triepod-ai/ollama-research-mcp/internal/research/selector"
)

const defaultPreferredCount = 3

// Orchestrator validates a [research.Request], resolves the model set to
// dispatch against, runs generation, and synthesizes the result.
//
// All exported methods are safe for concurrent use; the registry, selector,
// and executor it wraps are each independently safe for concurrent use.
type Orchestrator struct {
	registry *capability.Registry
	selector *selector.Selector
	executor *executor.Executor
	metrics  *observe.Metrics

	preferredCount int
	requireDiverse bool

	lastModelCount atomic.Int64
}

// Option configures an [Orchestrator] during construction.
type Option func(*Orchestrator)

// WithMetrics attaches an [observe.Metrics] instance. Without this option,
// [observe.DefaultMetrics] is used.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithPreferredCount overrides the default number of models selected when a
// request does not name them explicitly. The default is 3.
func WithPreferredCount(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.preferredCount = n
		}
	}
}

// WithDiversityRequired toggles whether automatic selection must span more
// than one capability tier when possible. Defaults to true.
func WithDiversityRequired(required bool) Option {
	return func(o *Orchestrator) { o.requireDiverse = required }
}

// New constructs an Orchestrator from its collaborators.
func New(registry *capability.Registry, sel *selector.Selector, exec *executor.Executor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:       registry,
		selector:       sel,
		executor:       exec,
		preferredCount: defaultPreferredCount,
		requireDiverse: true,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	return o
}

// Execute validates req, resolves the model set, dispatches generation, and
// returns the synthesized [research.Result].
//
// A [research.Error] is returned only for request-level failures
// (validation, unknown model names, or an empty/unreachable registry);
// individual model failures are instead carried inline on each
// [research.Response.Err] and never abort the call.
func (o *Orchestrator) Execute(ctx context.Context, req research.Request) (research.Result, error) {
	ctx, span := observe.StartSpan(ctx, "research.execute")
	defer span.End()

	if req.CorrelationID == "" {
		req.CorrelationID = uuid.NewString()
	}

	start := time.Now()
	logger := observe.Logger(ctx).With(slog.String("correlation_id", req.CorrelationID))

	result, err := o.execute(ctx, req)
	elapsed := time.Since(start)
	result.ExecutionTime = elapsed

	outcome := "ok"
	if err != nil {
		var rerr *research.Error
		if errors.As(err, &rerr) {
			outcome = rerr.Kind.String()
		} else {
			outcome = "upstream"
		}
		logger.Error("research call failed", "error", err, "outcome", outcome, "elapsed", elapsed)
	} else {
		logger.Info("research call completed",
			"models", len(result.Responses),
			"confidence", result.Confidence,
			"themes", len(result.ConvergentThemes),
			"elapsed", elapsed,
		)
	}

	o.metrics.RecordResearchCall(ctx, outcome)
	o.metrics.ResearchDuration.Record(ctx, elapsed.Seconds())
	if err == nil {
		o.metrics.Confidence.Record(ctx, result.Confidence)
		o.metrics.SynthesisLength.Record(ctx, float64(len(result.Synthesis)))
	}

	return result, err
}

func (o *Orchestrator) execute(ctx context.Context, req research.Request) (research.Result, error) {
	if err := validate(req); err != nil {
		return research.Result{}, err
	}
	req = applyDefaults(req)

	available, err := o.registry.List(ctx)
	if err != nil {
		return research.Result{}, research.NewUnavailableError("listing models: %v", err)
	}
	if len(available) == 0 {
		return research.Result{}, research.NewUnavailableError("no suitable models")
	}
	o.recordRegisteredModels(ctx, len(available))

	strategy, err := o.resolveStrategy(req, available)
	if err != nil {
		return research.Result{}, err
	}
	if len(strategy.Slots()) == 0 {
		return research.Result{}, research.NewUnavailableError("no model satisfied the requested complexity/focus")
	}

	responses := o.executor.Run(ctx, req, strategy)
	for _, r := range responses {
		status := "ok"
		tier := ""
		if capa, ok := o.registry.Get(r.Model); ok {
			tier = string(capa.Tier)
		}
		if r.Err != nil {
			status = "error"
			var rerr *research.Error
			if errors.As(r.Err, &rerr) {
				o.metrics.RecordUpstreamError(ctx, rerr.Kind.String())
			}
		}
		o.metrics.RecordModelDispatch(ctx, r.Model, tier, status)
		o.metrics.ModelDispatchDuration.Record(ctx, r.ResponseTime.Seconds())
	}

	result := analyzer.Analyze(req, responses)
	return result, nil
}

// recordRegisteredModels updates the RegisteredModels gauge, which is an
// [metric.Int64UpDownCounter] rather than a settable gauge, by adding the
// delta from the last observed count.
func (o *Orchestrator) recordRegisteredModels(ctx context.Context, count int) {
	prev := o.lastModelCount.Swap(int64(count))
	if delta := int64(count) - prev; delta != 0 {
		o.metrics.RegisteredModels.Add(ctx, delta)
	}
}

func (o *Orchestrator) resolveStrategy(req research.Request, available []research.Capabilities) (research.Strategy, error) {
	if len(req.Models) > 0 {
		return o.resolveExplicit(req.Models, available)
	}

	criteria := selector.Criteria{
		Complexity:       req.Complexity,
		Focus:            req.Focus,
		Available:        available,
		PreferredCount:   o.preferredCount,
		RequireDiversity: o.requireDiverse,
		MaxTimeout:       req.Timeout,
	}
	return o.selector.Select(criteria), nil
}

func (o *Orchestrator) resolveExplicit(names []string, available []research.Capabilities) (research.Strategy, error) {
	byName := make(map[string]research.Capabilities, len(available))
	for _, c := range available {
		byName[c.Name] = c
	}

	var missing []string
	var chosen []research.Capabilities
	for _, name := range names {
		c, ok := byName[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		chosen = append(chosen, c)
	}
	if len(missing) > 0 {
		return research.Strategy{}, research.NewNotFoundError(missing)
	}

	var s research.Strategy
	for i := range chosen {
		c := chosen[i]
		switch i {
		case 0:
			s.Primary = &c
		case 1:
			s.Secondary = &c
		case 2:
			s.Tertiary = &c
		}
	}
	return s, nil
}

var (
	validComplexities = map[research.Complexity]bool{
		research.ComplexitySimple:  true,
		research.ComplexityMedium:  true,
		research.ComplexityComplex: true,
	}
	validFoci = map[research.Focus]bool{
		research.FocusTechnical: true,
		research.FocusBusiness:  true,
		research.FocusEthical:   true,
		research.FocusCreative:  true,
		research.FocusGeneral:   true,
	}
)

const (
	minTimeout = 1 * time.Second
	maxTimeout = 600 * time.Second
)

// validate checks req against the invariants the orchestrator relies on:
// a non-empty question, recognized complexity/focus enums, a bounded
// temperature, and — when given — a timeout within the supported range.
// Unset Complexity/Focus/Temperature are left for downstream defaulting.
func validate(req research.Request) error {
	if strings.TrimSpace(req.Question) == "" {
		return research.NewValidationError("question must not be empty")
	}
	if req.Complexity != "" && !validComplexities[req.Complexity] {
		return research.NewValidationError("invalid complexity %q", req.Complexity)
	}
	if req.Focus != "" && !validFoci[req.Focus] {
		return research.NewValidationError("invalid focus %q", req.Focus)
	}
	if req.Temperature != 0 && (req.Temperature < 0 || req.Temperature > 2) {
		return research.NewValidationError("temperature must be within [0, 2], got %v", req.Temperature)
	}
	if req.Timeout != 0 && (req.Timeout < minTimeout || req.Timeout > maxTimeout) {
		return research.NewValidationError("timeout must be within [%s, %s], got %s", minTimeout, maxTimeout, req.Timeout)
	}
	return nil
}

// applyDefaults fills in the documented defaults for fields validate leaves
// unset: complexity, focus, and temperature.
func applyDefaults(req research.Request) research.Request {
	if req.Complexity == "" {
		req.Complexity = research.ComplexityMedium
	}
	if req.Focus == "" {
		req.Focus = research.FocusGeneral
	}
	if req.Temperature == 0 {
		req.Temperature = 0.7
	}
	return req
}

// HealthCheck reports whether the upstream host is reachable. A reachable
// host with zero installed models is still healthy — connectable-but-empty
// is distinct from unreachable.
func (o *Orchestrator) HealthCheck(ctx context.Context) research.HealthStatus {
	ctx, span := observe.StartSpan(ctx, "research.health_check")
	defer span.End()

	available, err := o.registry.Refresh(ctx)
	if err != nil {
		return research.HealthStatus{Healthy: false, Message: fmt.Sprintf("upstream unreachable: %v", err)}
	}
	o.recordRegisteredModels(ctx, len(available))
	if len(available) == 0 {
		return research.HealthStatus{Healthy: true, Models: 0, Message: "upstream reachable but no models installed"}
	}
	return research.HealthStatus{Healthy: true, Models: len(available), Message: "ok"}
}
