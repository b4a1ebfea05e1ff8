// Package capability classifies upstream model listings into the capability
// tiers the selector and executor reason about.
package capability

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/triepod-ai/ollama-research-mcp/internal/research"
	"github.com/triepod-ai/ollama-research-mcp/internal/research/client"
)

// paramSuffix matches a trailing parameter-count hint in a model tag, e.g.
// "qwen2.5-coder:7b", "llama3.1:70b-instruct", "phi3:3.8b".
var paramSuffix = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*b\b`)

var technicalHints = []string{"code", "coder", "instruct", "deepseek"}
var creativeHints = []string{"mistral", "llama3", "llama-3"}

// Registry caches [research.Capabilities] derived from the upstream's model
// listing for the lifetime of the process, invalidated by [Registry.Refresh].
//
// Registry is safe for concurrent use.
type Registry struct {
	cl client.Client

	mu     sync.RWMutex
	byName map[string]research.Capabilities
	loaded bool
}

// New constructs a Registry backed by cl.
func New(cl client.Client) *Registry {
	return &Registry{cl: cl, byName: make(map[string]research.Capabilities)}
}

// List returns the cached capability set, populating it from the upstream on
// first call. Subsequent calls reuse the cache until [Registry.Refresh] is
// called explicitly.
func (r *Registry) List(ctx context.Context) ([]research.Capabilities, error) {
	r.mu.RLock()
	if r.loaded {
		out := r.snapshotLocked()
		r.mu.RUnlock()
		return out, nil
	}
	r.mu.RUnlock()

	return r.Refresh(ctx)
}

// Refresh re-queries the upstream and replaces the cached capability set.
// Entries present in the previous cache but absent from the new listing are
// dropped.
func (r *Registry) Refresh(ctx context.Context) ([]research.Capabilities, error) {
	listings, err := r.cl.ListModels(ctx)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]research.Capabilities, len(listings))
	for _, l := range listings {
		if l.Name == "" {
			continue
		}
		byName[l.Name] = classify(l.Name, l.SizeBytes)
	}

	r.mu.Lock()
	r.byName = byName
	r.loaded = true
	out := r.snapshotLocked()
	r.mu.Unlock()

	return out, nil
}

// Get returns the capability record for name, if known.
func (r *Registry) Get(name string) (research.Capabilities, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byName[name]
	return c, ok
}

// Len returns the number of models currently cached.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

func (r *Registry) snapshotLocked() []research.Capabilities {
	out := make([]research.Capabilities, 0, len(r.byName))
	for _, c := range r.byName {
		out = append(out, c)
	}
	return out
}

// classify derives a [research.Capabilities] record deterministically from a
// model's name and reported size, per the parameter-estimation and tier
// rules of the capability model. A name with no recognizable parameter-count
// suffix and no usable reported size carries no classification signal at
// all, so it falls back to the balanced/medium/general defaults rather than
// being misclassified as the fastest, least capable tier.
func classify(name string, sizeBytes int64) research.Capabilities {
	params, hasSignal := estimateParameters(name, sizeBytes)

	tier := research.TierBalanced
	complexityFit := set(research.ComplexityMedium)
	focusFit := map[research.Focus]bool{research.FocusGeneral: true}
	if hasSignal {
		tier = tierFor(params)
		complexityFit = complexityFitFor(tier)
		focusFit = focusFitFor(name, tier)
	}

	return research.Capabilities{
		Name:              name,
		SizeBytes:         sizeBytes,
		Parameters:        params,
		Tier:              tier,
		TimeoutMultiplier: tier.TimeoutMultiplier(),
		ComplexityFit:     complexityFit,
		FocusFit:          focusFit,
	}
}

// estimateParameters prefers a numeric suffix parsed from the name; falling
// back to a size-based estimate (~2 parameters per byte: size in bytes × 2)
// when no suffix is present. The second return value is false
// when neither signal is available.
func estimateParameters(name string, sizeBytes int64) (int64, bool) {
	if m := paramSuffix.FindStringSubmatch(name); m != nil {
		if f, err := strconv.ParseFloat(m[1], 64); err == nil {
			return int64(f * 1_000_000_000), true
		}
	}
	if sizeBytes <= 0 {
		return 0, false
	}
	return sizeBytes * 2, true
}

func tierFor(params int64) research.Tier {
	const billion = 1_000_000_000
	switch {
	case params <= 3*billion:
		return research.TierFast
	case params <= 15*billion:
		return research.TierBalanced
	default:
		return research.TierQuality
	}
}

func complexityFitFor(tier research.Tier) map[research.Complexity]bool {
	switch tier {
	case research.TierFast:
		return set(research.ComplexitySimple, research.ComplexityMedium)
	case research.TierQuality:
		return set(research.ComplexityMedium, research.ComplexityComplex)
	default:
		return set(research.ComplexitySimple, research.ComplexityMedium, research.ComplexityComplex)
	}
}

func focusFitFor(name string, tier research.Tier) map[research.Focus]bool {
	lower := strings.ToLower(name)
	fits := map[research.Focus]bool{research.FocusGeneral: true}

	for _, hint := range technicalHints {
		if strings.Contains(lower, hint) {
			fits[research.FocusTechnical] = true
			break
		}
	}
	for _, hint := range creativeHints {
		if strings.Contains(lower, hint) {
			fits[research.FocusCreative] = true
			break
		}
	}
	if tier == research.TierBalanced || tier == research.TierQuality {
		fits[research.FocusEthical] = true
		fits[research.FocusBusiness] = true
	}
	return fits
}

func set[T comparable](vals ...T) map[T]bool {
	m := make(map[T]bool, len(vals))
	for _, v := range vals {
		m[v] = true
	}
	return m
}
