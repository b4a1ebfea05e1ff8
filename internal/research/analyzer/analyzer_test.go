package analyzer

import (
	"strings"
	"testing"
	"time"

	"github.com/triepod-ai/ollama-research-mcp/internal/research"
)

func TestAnalyze_NoSurvivors(t *testing.T) {
	req := research.Request{Question: "what happened"}
	responses := []research.Response{
		{Model: "a", Err: research.NewTimeoutError("a")},
		{Model: "b", Text: "   "},
	}

	result := Analyze(req, responses)

	if result.Confidence != 0 {
		t.Fatalf("confidence = %v, want 0", result.Confidence)
	}
	if !strings.Contains(result.Synthesis, "insufficient") {
		t.Fatalf("synthesis = %q, want it to mention insufficiency", result.Synthesis)
	}
	if len(result.ConvergentThemes) != 0 || len(result.DivergentPerspectives) != 0 {
		t.Fatalf("expected no themes/perspectives, got %v / %v", result.ConvergentThemes, result.DivergentPerspectives)
	}
}

func TestAnalyze_ConvergentTheme(t *testing.T) {
	req := research.Request{Question: "should we use microservices", Complexity: research.ComplexityMedium, Focus: research.FocusTechnical}
	responses := []research.Response{
		{
			Model: "a", Text: "Microservices architecture improves scalability but adds operational complexity.",
			ResponseTime: time.Second, Confidence: 0.5, Tier: research.TierBalanced,
		},
		{
			Model: "b", Text: "A microservices architecture can improve scalability, though it increases operational complexity significantly.",
			ResponseTime: time.Second, Confidence: 0.5, Tier: research.TierQuality,
		},
	}

	result := Analyze(req, responses)

	if len(result.ConvergentThemes) == 0 {
		t.Fatalf("expected at least one convergent theme, got none")
	}
	found := false
	for _, theme := range result.ConvergentThemes {
		if strings.Contains(strings.ToLower(theme), "operational complexity") || strings.Contains(strings.ToLower(theme), "scalability") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a scalability/complexity theme, got %v", result.ConvergentThemes)
	}
	if result.Confidence <= 0 {
		t.Fatalf("confidence = %v, want > 0", result.Confidence)
	}
	if !strings.Contains(result.Synthesis, req.Question) {
		t.Fatalf("synthesis should reference the question, got %q", result.Synthesis)
	}
}

func TestAnalyze_DivergentPerspective(t *testing.T) {
	req := research.Request{Question: "what is the best database", Complexity: research.ComplexitySimple, Focus: research.FocusGeneral}
	responses := []research.Response{
		{Model: "a", Text: "Postgres handles relational workloads with strong consistency guarantees.", ResponseTime: time.Second, Confidence: 0.4},
		{Model: "b", Text: "Postgres offers relational consistency guarantees for structured workloads.", ResponseTime: time.Second, Confidence: 0.4},
		{Model: "c", Text: "Switching vendors entirely introduces migration risk that outweighs any marginal gain.", ResponseTime: time.Second, Confidence: 0.4},
	}

	result := Analyze(req, responses)

	if len(result.DivergentPerspectives) == 0 {
		t.Fatalf("expected at least one divergent perspective, got none")
	}
}

func TestAnalyze_SynthesisRespectsComplexityCap(t *testing.T) {
	req := research.Request{Question: "q", Complexity: research.ComplexitySimple, Focus: research.FocusGeneral}
	responses := []research.Response{
		{Model: "a", Text: strings.Repeat("alpha beta gamma delta epsilon zeta. ", 50), ResponseTime: time.Second, Confidence: 0.4},
		{Model: "b", Text: strings.Repeat("alpha beta gamma delta epsilon zeta. ", 50), ResponseTime: time.Second, Confidence: 0.4},
	}

	result := Analyze(req, responses)

	if len(result.Synthesis) > synthesisLimits[research.ComplexitySimple] {
		t.Fatalf("synthesis length = %d, want <= %d", len(result.Synthesis), synthesisLimits[research.ComplexitySimple])
	}
	if result.Synthesis != "" {
		last := result.Synthesis[len(result.Synthesis)-1]
		if last != '.' && last != '!' && last != '?' {
			t.Fatalf("synthesis should end on a sentence boundary, got %q", result.Synthesis)
		}
	}
}

func TestAnalyze_ConfidenceCeilingFastOnly(t *testing.T) {
	req := research.Request{Question: "q", Complexity: research.ComplexitySimple, Focus: research.FocusGeneral}
	responses := []research.Response{
		{Model: "a", Text: "A fast answer about the question at hand.", ResponseTime: time.Millisecond, Confidence: 0.9, Tier: research.TierFast},
		{Model: "b", Text: "Another fast answer about the question at hand.", ResponseTime: time.Millisecond, Confidence: 0.9, Tier: research.TierFast},
	}

	result := Analyze(req, responses)

	if result.Confidence > 0.45 {
		t.Fatalf("confidence = %v, want <= 0.45 with only fast-tier responses", result.Confidence)
	}
}

func TestAnalyze_DivergentPerspectiveFromClusterContrast(t *testing.T) {
	req := research.Request{Question: "should we adopt microservices", Complexity: research.ComplexityMedium, Focus: research.FocusTechnical}
	responses := []research.Response{
		// Cluster A: tight agreement (~0.85 cosine), converges on "scalability".
		{Model: "a", Text: "Scalability improves significantly with microservices adoption patterns emerging.", ResponseTime: time.Second, Confidence: 0.5},
		{Model: "b", Text: "Scalability improves significantly with microservices adoption trends emerging.", ResponseTime: time.Second, Confidence: 0.5},
		// Cluster B: tight agreement (~0.85 cosine), never mentions "scalability".
		{Model: "c", Text: "Vendor lock risk increases when migrating database platforms.", ResponseTime: time.Second, Confidence: 0.5},
		{Model: "d", Text: "Vendor lock risk increases when migrating storage platforms.", ResponseTime: time.Second, Confidence: 0.5},
	}

	result := Analyze(req, responses)

	// Each response's own maxSim is to its in-cluster neighbor (~0.85), well
	// above divergenceMax, so the per-response mechanism alone would find no
	// divergent perspectives here: any surfaced here must come from the
	// cluster-contrast mechanism.
	if len(result.DivergentPerspectives) == 0 {
		t.Fatalf("expected a cluster-contrast divergent perspective, got none")
	}

	found := false
	for _, p := range result.DivergentPerspectives {
		if strings.Contains(p, "Scalability") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a perspective contrasting the Scalability theme, got %v", result.DivergentPerspectives)
	}
}

func TestClusterContrasts_NoSharedTheme(t *testing.T) {
	survivors := []research.Response{
		{Model: "a", Text: "alpha beta gamma"},
		{Model: "b", Text: "delta epsilon zeta"},
	}
	sims := [][]float64{{0, 0}, {0, 0}}

	if got := clusterContrasts(survivors, nil, sims, 6); got != nil {
		t.Fatalf("expected nil with no themes, got %v", got)
	}
}

func TestCosineSimilarity(t *testing.T) {
	a := map[string]int{"alpha": 1, "beta": 1}
	b := map[string]int{"alpha": 1, "beta": 1}
	if sim := cosineSimilarity(a, b); sim < 0.99 {
		t.Fatalf("identical bags should have similarity ~1, got %v", sim)
	}

	c := map[string]int{"gamma": 1, "delta": 1}
	if sim := cosineSimilarity(a, c); sim != 0 {
		t.Fatalf("disjoint bags should have similarity 0, got %v", sim)
	}
}

func TestTruncateAtSentence(t *testing.T) {
	s := "First sentence. Second sentence. Third sentence that runs long."
	got := truncateAtSentence(s, 33)
	if got != "First sentence. Second sentence." {
		t.Fatalf("got %q", got)
	}
}
