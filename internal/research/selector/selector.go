// Package selector chooses a diverse, budget-appropriate subset of models
// for a research call.
package selector

import (
	"sort"
	"time"

	"github.com/triepod-ai/ollama-research-mcp/internal/research"
	"github.com/triepod-ai/ollama-research-mcp/internal/research/history"
)

// Criteria bundles the inputs to one Select call.
type Criteria struct {
	Complexity       research.Complexity
	Focus            research.Focus
	Available        []research.Capabilities
	PreferredCount   int
	RequireDiversity bool
	MaxTimeout       time.Duration
}

// minPerModelBudget is the shortest per-model timeout considered plausible;
// below this a candidate is dropped. If that would empty the set, only the
// fastest-tier candidates (lowest timeout multiplier) are kept.
const minPerModelBudget = 1 * time.Second

// Selector picks a [research.Strategy] from a [Criteria] bundle, using
// [history.History] as a low-weight tiebreaker.
type Selector struct {
	hist *history.History
}

// New constructs a Selector backed by hist. A nil hist disables the history
// tiebreaker (historyScore always 0).
func New(hist *history.History) *Selector {
	return &Selector{hist: hist}
}

// Select filters candidates by complexity fit, scores by focus/tier/history,
// filters by timeout plausibility, picks the top N, then diversifies across
// tiers.
func (s *Selector) Select(c Criteria) research.Strategy {
	if c.PreferredCount <= 0 {
		c.PreferredCount = 3
	}

	candidates := filterByComplexity(c.Available, c.Complexity)
	if len(candidates) == 0 {
		candidates = append([]research.Capabilities(nil), c.Available...)
	}
	if len(candidates) == 0 {
		return research.Strategy{}
	}

	scored := make([]scoredCandidate, len(candidates))
	for i, capa := range candidates {
		scored[i] = scoredCandidate{
			cap:   capa,
			score: s.score(capa, c),
		}
	}

	filtered := filterByTimeoutBudget(scored, c)
	if len(filtered) == 0 {
		lowest := scored[0].cap.TimeoutMultiplier
		for _, sc := range scored[1:] {
			if sc.cap.TimeoutMultiplier < lowest {
				lowest = sc.cap.TimeoutMultiplier
			}
		}
		for _, sc := range scored {
			if sc.cap.TimeoutMultiplier == lowest {
				filtered = append(filtered, sc)
			}
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].score != filtered[j].score {
			return filtered[i].score > filtered[j].score
		}
		if filtered[i].cap.TimeoutMultiplier != filtered[j].cap.TimeoutMultiplier {
			return filtered[i].cap.TimeoutMultiplier < filtered[j].cap.TimeoutMultiplier
		}
		return filtered[i].cap.Name < filtered[j].cap.Name
	})

	n := c.PreferredCount
	if n > len(filtered) {
		n = len(filtered)
	}
	selected := make([]research.Capabilities, n)
	for i := 0; i < n; i++ {
		selected[i] = filtered[i].cap
	}

	if c.RequireDiversity && n >= 2 {
		selected = diversify(selected, filtered)
	}

	return toStrategy(selected)
}

type scoredCandidate struct {
	cap   research.Capabilities
	score float64
}

func filterByComplexity(available []research.Capabilities, complexity research.Complexity) []research.Capabilities {
	out := make([]research.Capabilities, 0, len(available))
	for _, c := range available {
		if c.ComplexityFit[complexity] {
			out = append(out, c)
		}
	}
	return out
}

func (s *Selector) score(c research.Capabilities, criteria Criteria) float64 {
	var score float64
	if c.FocusFit[criteria.Focus] {
		score += 2
	}
	score += tierScore(c.Tier, criteria.Complexity)

	if s.hist != nil {
		if avg, ok := s.hist.Average(c.Name); ok && criteria.MaxTimeout > 0 {
			budget := float64(criteria.MaxTimeout.Milliseconds())
			ratio := 1 - avg/budget
			score += clamp(ratio, 0, 1)
		}
	}
	return score
}

func tierScore(tier research.Tier, complexity research.Complexity) float64 {
	switch complexity {
	case research.ComplexitySimple:
		switch tier {
		case research.TierFast:
			return 2
		case research.TierBalanced:
			return 1
		default:
			return 0
		}
	case research.ComplexityComplex:
		switch tier {
		case research.TierQuality:
			return 2
		case research.TierBalanced:
			return 1
		default:
			return 0
		}
	default: // medium
		switch tier {
		case research.TierBalanced:
			return 2
		case research.TierFast, research.TierQuality:
			return 1
		}
	}
	return 0
}

func filterByTimeoutBudget(scored []scoredCandidate, c Criteria) []scoredCandidate {
	if c.MaxTimeout <= 0 || c.PreferredCount <= 0 {
		return scored
	}
	out := make([]scoredCandidate, 0, len(scored))
	for _, sc := range scored {
		perModel := time.Duration(float64(c.MaxTimeout) / float64(c.PreferredCount) * sc.cap.TimeoutMultiplier)
		if perModel >= minPerModelBudget {
			out = append(out, sc)
		}
	}
	return out
}

// diversify walks the selected list and, when fewer than two distinct tiers
// are represented, swaps in the next-best candidate (from filtered, in
// score order) belonging to an unrepresented tier.
func diversify(selected []research.Capabilities, filtered []scoredCandidate) []research.Capabilities {
	tiers := map[research.Tier]bool{}
	for _, c := range selected {
		tiers[c.Tier] = true
	}
	if len(tiers) >= 2 {
		return selected
	}

	used := map[string]bool{}
	for _, c := range selected {
		used[c.Name] = true
	}

	for i := len(selected) - 1; i >= 1 && len(tiers) < 2; i-- {
		for _, sc := range filtered {
			if used[sc.cap.Name] || tiers[sc.cap.Tier] {
				continue
			}
			delete(used, selected[i].Name)
			selected[i] = sc.cap
			used[sc.cap.Name] = true
			tiers[sc.cap.Tier] = true
			break
		}
	}
	return selected
}

func toStrategy(selected []research.Capabilities) research.Strategy {
	var s research.Strategy
	for i := range selected {
		c := selected[i]
		switch i {
		case 0:
			s.Primary = &c
		case 1:
			s.Secondary = &c
		case 2:
			s.Tertiary = &c
		}
	}
	return s
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
