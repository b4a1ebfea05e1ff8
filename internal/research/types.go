// Package research defines the data model shared across the capability
// registry, selector, executor, analyzer, and orchestrator that together
// implement cross-model research over a local Ollama host.
package research

import "time"

// Complexity classifies how demanding a question is, which drives both model
// selection (tier preference) and prompt composition (response length).
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
)

// Focus biases model selection and prompt framing toward a particular lens.
type Focus string

const (
	FocusTechnical Focus = "technical"
	FocusBusiness  Focus = "business"
	FocusEthical   Focus = "ethical"
	FocusCreative  Focus = "creative"
	FocusGeneral   Focus = "general"
)

// Tier is a coarse capability class derived from a model's parameter count.
type Tier string

const (
	TierFast     Tier = "fast"
	TierBalanced Tier = "balanced"
	TierQuality  Tier = "quality"
)

// TimeoutMultiplier returns the per-tier multiplier applied to the
// complexity-derived base budget.
func (t Tier) TimeoutMultiplier() float64 {
	switch t {
	case TierFast:
		return 1.0
	case TierQuality:
		return 3.0
	default:
		return 1.5
	}
}

// Request is the validated input to a research call.
type Request struct {
	Question         string
	Complexity       Complexity
	Focus            Focus
	Models           []string
	Parallel         bool
	IncludeMetadata  bool
	Temperature      float64
	Timeout          time.Duration
	CorrelationID    string
}

// Capabilities describes one model's inferred capability profile.
type Capabilities struct {
	Name              string
	SizeBytes         int64
	Parameters        int64
	Tier              Tier
	TimeoutMultiplier float64
	ComplexityFit     map[Complexity]bool
	FocusFit          map[Focus]bool
}

// Strategy is the set of models chosen for one research call.
type Strategy struct {
	Primary   *Capabilities
	Secondary *Capabilities
	Tertiary  *Capabilities
}

// Slots returns the filled strategy slots in primary-secondary-tertiary
// order, skipping absent ones.
func (s Strategy) Slots() []*Capabilities {
	out := make([]*Capabilities, 0, 3)
	for _, c := range []*Capabilities{s.Primary, s.Secondary, s.Tertiary} {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}

// Response is one model's contribution to a research call. Tier is populated
// on every successful response (the analyzer's confidence calibration depends
// on it); a failed response carries only Model and Err. Metadata
// is the caller-optional extra detail gated by Request.IncludeMetadata.
type Response struct {
	Model        string            `json:"model"`
	Text         string            `json:"response"`
	ResponseTime time.Duration     `json:"responseTime"`
	TokenCount   int               `json:"tokenCount"`
	Confidence   float64           `json:"confidence"`
	Tier         Tier              `json:"-"`
	Err          error             `json:"error,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Result is the composite outcome of a research call.
type Result struct {
	Question              string        `json:"question"`
	Responses             []Response    `json:"responses"`
	ConvergentThemes      []string      `json:"convergentThemes"`
	DivergentPerspectives []string      `json:"divergentPerspectives"`
	Synthesis             string        `json:"synthesis"`
	Confidence            float64       `json:"confidence"`
	ExecutionTime         time.Duration `json:"executionTime"`
}

// HealthStatus is the outcome of a health check.
type HealthStatus struct {
	Healthy bool   `json:"healthy"`
	Models  int    `json:"models"`
	Message string `json:"message"`
}
