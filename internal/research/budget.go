package research

import "time"

// BaseBudget is the complexity-keyed per-model timeout baseline, before a
// tier's [Tier.TimeoutMultiplier] is applied.
var BaseBudget = map[Complexity]time.Duration{
	ComplexitySimple:  30 * time.Second,
	ComplexityMedium:  60 * time.Second,
	ComplexityComplex: 120 * time.Second,
}

// ModelBudget returns the per-model generation timeout for req against a
// model of the given tier: req.Timeout verbatim when the caller set one,
// otherwise the complexity base scaled by the tier's timeout multiplier.
// Both the executor (to bound a live call) and the analyzer (to calibrate
// the timeliness penalty) derive their budget this same way, so neither
// drifts from the other.
func ModelBudget(req Request, tier Tier) time.Duration {
	if req.Timeout > 0 {
		return req.Timeout
	}
	base, ok := BaseBudget[req.Complexity]
	if !ok {
		base = BaseBudget[ComplexityMedium]
	}
	return time.Duration(float64(base) * tier.TimeoutMultiplier())
}
