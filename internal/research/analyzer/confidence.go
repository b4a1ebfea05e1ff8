package analyzer

import (
	"time"

	"github.com/triepod-ai/ollama-research-mcp/internal/research"
)

// Per-tier confidence ceilings, named so the knob is visible in one place
// rather than scattered through the formula.
const (
	ceilingFastOnly     = 0.45
	ceilingBalancedOnly = 0.50
	ceilingWithQuality  = 0.60
	hardCeiling         = 0.95
	floorWithResponses  = 0.10
)

// calibrateConfidence combines mean per-response confidence with agreement,
// diversity, failure, and timeliness adjustments, then clamps the result to
// a tier-dependent ceiling.
func calibrateConfidence(responses []research.Response, survivors []research.Response, themeCount int, maxBudget time.Duration) float64 {
	if len(survivors) == 0 {
		return 0
	}

	var sum float64
	for _, r := range survivors {
		sum += r.Confidence
	}
	base := sum / float64(len(survivors))

	agreementBoost := 0.15 * min1(float64(themeCount)/4)

	tiers := map[string]bool{}
	for _, r := range survivors {
		if r.Tier != "" {
			tiers[string(r.Tier)] = true
		}
	}
	var diversityBoost float64
	if len(survivors) >= 2 && len(tiers) >= 2 {
		diversityBoost = 0.05
	}

	var errCount int
	for _, r := range responses {
		if r.Err != nil {
			errCount++
		}
	}
	failurePenalty := 0.15 * (float64(errCount) / float64(len(responses)))

	var timelinessPenalty float64
	if maxBudget > 0 {
		var totalTime time.Duration
		for _, r := range survivors {
			totalTime += r.ResponseTime
		}
		avg := totalTime / time.Duration(len(survivors))
		if float64(avg) > 0.8*float64(maxBudget) {
			timelinessPenalty = 0.1
		}
	}

	confidence := base + agreementBoost + diversityBoost - failurePenalty - timelinessPenalty

	ceiling := tierCeiling(tiers)
	if ceiling > hardCeiling {
		ceiling = hardCeiling
	}
	return clamp(confidence, floorWithResponses, ceiling)
}

func tierCeiling(tiers map[string]bool) float64 {
	if tiers[string(research.TierQuality)] {
		return ceilingWithQuality
	}
	if tiers[string(research.TierBalanced)] {
		return ceilingBalancedOnly
	}
	if tiers[string(research.TierFast)] {
		return ceilingFastOnly
	}
	return hardCeiling
}

func min1(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
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
