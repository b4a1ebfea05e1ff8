// Package analyzer turns a set of per-model responses into convergent
// themes, divergent perspectives, a composed synthesis, and a calibrated
// confidence score.
package analyzer

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/triepod-ai/ollama-research-mcp/internal/research"
)

var wordRe = regexp.MustCompile(`[a-zA-Z0-9']+`)

const (
	maxThemes       = 8
	maxPerspectives = 6
	minWordLen      = 4
	divergenceMax   = 0.55
	clusterMin      = 0.7
)

var synthesisLimits = map[research.Complexity]int{
	research.ComplexitySimple:  400,
	research.ComplexityMedium:  900,
	research.ComplexityComplex: 1800,
}

var benefitWords = []string{"benefit", "advantage", "improve", "gain", "opportunity"}
var riskWords = []string{"risk", "danger", "concern", "threat", "downside"}
var tradeoffWords = []string{"tradeoff", "trade-off", "balance", "however", "but"}

// Analyze filters out failed/empty responses, extracts convergent themes
// and divergent perspectives, composes a synthesis, and calibrates a
// confidence score.
func Analyze(req research.Request, responses []research.Response) research.Result {
	survivors := filterSurvivors(responses)

	result := research.Result{
		Question:  req.Question,
		Responses: responses,
	}

	if len(survivors) == 0 {
		result.Synthesis = "insufficient surviving responses to synthesize an answer."
		result.Confidence = 0
		return result
	}

	docs := tokenizeAll(survivors)
	themes := extractThemes(docs)
	perspectives := extractPerspectives(survivors, docs, themes)

	result.ConvergentThemes = themes
	result.DivergentPerspectives = perspectives
	result.Synthesis = composeSynthesis(req, themes, perspectives)

	maxBudget := maxModelBudget(req, survivors)
	result.Confidence = calibrateConfidence(responses, survivors, len(themes), maxBudget)
	return result
}

func filterSurvivors(responses []research.Response) []research.Response {
	out := make([]research.Response, 0, len(responses))
	for _, r := range responses {
		if r.Err != nil {
			continue
		}
		if strings.TrimSpace(r.Text) == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}

// maxModelBudget reconstructs the per-model timeout ceiling each survivor
// was dispatched under (the same req.Timeout-or-complexity-base-times-tier
// derivation the executor used to bound the live call) and returns the
// largest one, as the ceiling the timeliness penalty measures mean response
// time against. It is not derived from observed response times, which would
// make the penalty self-referential.
func maxModelBudget(req research.Request, survivors []research.Response) time.Duration {
	var max time.Duration
	for _, r := range survivors {
		if b := research.ModelBudget(req, r.Tier); b > max {
			max = b
		}
	}
	return max
}

// tokenizeAll lowercases and tokenizes each survivor's text, stripping
// stopwords, and returns one token slice per response (parallel to
// survivors).
func tokenizeAll(survivors []research.Response) [][]string {
	docs := make([][]string, len(survivors))
	for i, r := range survivors {
		docs[i] = tokenize(r.Text)
	}
	return docs
}

func tokenize(text string) []string {
	raw := wordRe.FindAllString(strings.ToLower(text), -1)
	out := make([]string, 0, len(raw))
	for _, w := range raw {
		if stopwords[w] {
			continue
		}
		out = append(out, w)
	}
	return out
}

// extractThemes finds n-grams (length 1-3) that appear across a majority of
// documents, ranked by document frequency, n-gram length, and total
// frequency.
func extractThemes(docs [][]string) []string {
	type counter struct {
		docFreq   int
		totalFreq int
		n         int
		seenDocs  map[int]bool
	}
	candidates := make(map[string]*counter)

	for di, tokens := range docs {
		seen := make(map[string]bool)
		for n := 1; n <= 3; n++ {
			for i := 0; i+n <= len(tokens); i++ {
				gram := tokens[i : i+n]
				if !validGram(gram) {
					continue
				}
				key := strings.Join(gram, " ")
				c, ok := candidates[key]
				if !ok {
					c = &counter{n: n, seenDocs: make(map[int]bool)}
					candidates[key] = c
				}
				c.totalFreq++
				if !seen[key] {
					seen[key] = true
					if !c.seenDocs[di] {
						c.seenDocs[di] = true
						c.docFreq++
					}
				}
			}
		}
	}

	threshold := (len(docs) + 1) / 2
	if len(docs) == 2 {
		threshold = 2
	}

	type scored struct {
		phrase string
		c      *counter
	}
	var matches []scored
	for phrase, c := range candidates {
		if c.docFreq >= threshold {
			matches = append(matches, scored{phrase, c})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].c.docFreq != matches[j].c.docFreq {
			return matches[i].c.docFreq > matches[j].c.docFreq
		}
		if matches[i].c.n != matches[j].c.n {
			return matches[i].c.n > matches[j].c.n
		}
		if matches[i].c.totalFreq != matches[j].c.totalFreq {
			return matches[i].c.totalFreq > matches[j].c.totalFreq
		}
		return matches[i].phrase < matches[j].phrase
	})

	out := make([]string, 0, maxThemes)
	for _, m := range matches {
		if len(out) >= maxThemes {
			break
		}
		out = append(out, titleCase(m.phrase))
	}
	return out
}

func validGram(gram []string) bool {
	if len(gram) == 1 {
		w := gram[0]
		if len(w) < minWordLen {
			return false
		}
		if isNumeric(w) {
			return false
		}
		return true
	}
	if stopwords[gram[0]] || stopwords[gram[len(gram)-1]] {
		return false
	}
	hasNonStopword := false
	for _, w := range gram {
		if !stopwords[w] {
			hasNonStopword = true
			break
		}
	}
	return hasNonStopword
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func titleCase(phrase string) string {
	words := strings.Fields(phrase)
	for i, w := range words {
		if len(w) == 0 {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// extractPerspectives finds responses whose vocabulary diverges meaningfully
// from the rest, by cosine similarity against every other surviving response.
func extractPerspectives(survivors []research.Response, docs [][]string, themes []string) []string {
	n := len(docs)
	vectors := make([]map[string]int, n)
	for i, tokens := range docs {
		vectors[i] = bagOfWords(tokens)
	}

	sims := make([][]float64, n)
	for i := range sims {
		sims[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			s := cosineSimilarity(vectors[i], vectors[j])
			sims[i][j] = s
			sims[j][i] = s
		}
	}

	var perspectives []string
	for i := 0; i < n && len(perspectives) < maxPerspectives; i++ {
		maxSim := 0.0
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			if sims[i][j] > maxSim {
				maxSim = sims[i][j]
			}
		}
		if n > 1 && maxSim >= divergenceMax {
			continue
		}
		perspectives = append(perspectives, perspectiveSummary(survivors[i].Text))
	}

	if len(perspectives) < maxPerspectives {
		for _, c := range clusterContrasts(survivors, themes, sims, maxPerspectives-len(perspectives)) {
			perspectives = append(perspectives, c)
		}
	}

	return perspectives
}

// clusterContrasts groups survivors into clusters connected by ≥clusterMin
// pairwise similarity, then looks for a convergent theme mentioned by at
// least one response in one cluster but by no response in another: that
// contrast is a divergent perspective the per-response maxSim<divergenceMax
// check above cannot surface, since every response in a tight cluster has a
// high maxSim to its cluster-mates. Returns at most limit perspectives.
func clusterContrasts(survivors []research.Response, themes []string, sims [][]float64, limit int) []string {
	n := len(survivors)
	if limit <= 0 || n < 2 || len(themes) == 0 {
		return nil
	}

	clusters := connectedComponents(n, sims, clusterMin)
	if len(clusters) < 2 {
		return nil
	}

	var out []string
	for _, theme := range themes {
		lower := strings.ToLower(theme)

		var withIdx, withoutIdx = -1, -1
		for ci, cluster := range clusters {
			if clusterMentions(cluster, survivors, lower) {
				if withIdx == -1 {
					withIdx = ci
				}
			} else if withoutIdx == -1 {
				withoutIdx = ci
			}
		}
		if withIdx == -1 || withoutIdx == -1 {
			continue
		}

		out = append(out, clusterContrastSummary(theme, survivors, clusters[withIdx], clusters[withoutIdx]))
		if len(out) >= limit {
			break
		}
	}
	return out
}

// connectedComponents groups indices [0,n) into clusters using union-find
// over every pair whose similarity is >= min.
func connectedComponents(n int, sims [][]float64, min float64) [][]int {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if sims[i][j] >= min {
				union(i, j)
			}
		}
	}

	groups := make(map[int][]int)
	for i := 0; i < n; i++ {
		root := find(i)
		groups[root] = append(groups[root], i)
	}

	out := make([][]int, 0, len(groups))
	for _, g := range groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

// clusterMentions reports whether any survivor in cluster contains theme
// (already lowercased) as a substring of its response text.
func clusterMentions(cluster []int, survivors []research.Response, lowerTheme string) bool {
	for _, idx := range cluster {
		if strings.Contains(strings.ToLower(survivors[idx].Text), lowerTheme) {
			return true
		}
	}
	return false
}

func clusterContrastSummary(theme string, survivors []research.Response, with, without []int) string {
	addressed := firstSentence(survivors[with[0]].Text)
	return "A split emerged on " + theme + ": one group of responses addressed it (" + addressed + ") while another left it out entirely."
}

func bagOfWords(tokens []string) map[string]int {
	m := make(map[string]int, len(tokens))
	for _, t := range tokens {
		m[t]++
	}
	return m
}

func cosineSimilarity(a, b map[string]int) float64 {
	var dot, normA, normB float64
	for k, va := range a {
		dot += float64(va) * float64(b[k])
		normA += float64(va) * float64(va)
	}
	for _, vb := range b {
		normB += float64(vb) * float64(vb)
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func perspectiveSummary(text string) string {
	sentence := firstSentence(text)
	qualifier := qualifierFor(text)
	return qualifier + sentence
}

func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			return text[:i+1]
		}
	}
	if len(text) > 200 {
		return text[:200] + "…"
	}
	return text
}

func qualifierFor(text string) string {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, riskWords):
		return "Raising a risk: "
	case containsAny(lower, tradeoffWords):
		return "Weighing a tradeoff: "
	case containsAny(lower, benefitWords):
		return "Emphasizing a benefit: "
	default:
		return "A distinct view: "
	}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

var focusClosers = map[research.Focus]string{
	research.FocusTechnical: "the main implementation implication is to validate this against the system's actual constraints.",
	research.FocusBusiness:  "the business impact depends on how quickly these tradeoffs can be operationalized.",
	research.FocusEthical:   "the central tension is worth surfacing explicitly before acting on any single answer.",
	research.FocusCreative:  "there is room to explore these possibilities further rather than settling on one framing.",
	research.FocusGeneral:   "taken together, these responses sketch a reasonably consistent picture.",
}

func composeSynthesis(req research.Request, themes, perspectives []string) string {
	var b strings.Builder
	b.WriteString("Considering \"")
	b.WriteString(req.Question)
	b.WriteString("\", the models converge on several points.")

	connectors := []string{" Also, ", " Further, "}
	for i, t := range themes {
		if i >= 5 {
			break
		}
		if i == 0 {
			b.WriteString(" ")
			b.WriteString(t)
			b.WriteString(" stood out across responses.")
			continue
		}
		b.WriteString(connectors[i%len(connectors)])
		b.WriteString(t)
		b.WriteString(" was also raised.")
	}

	contrastors := []string{" However, ", " Although ", " While ", " But "}
	for i, p := range perspectives {
		if i >= 3 {
			break
		}
		b.WriteString(contrastors[i%len(contrastors)])
		b.WriteString(lowerFirst(p))
	}

	b.WriteString(" Overall, ")
	closer, ok := focusClosers[req.Focus]
	if !ok {
		closer = focusClosers[research.FocusGeneral]
	}
	b.WriteString(closer)

	out := b.String()
	limit, ok := synthesisLimits[req.Complexity]
	if !ok {
		limit = synthesisLimits[research.ComplexityMedium]
	}
	return truncateAtSentence(out, limit)
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func truncateAtSentence(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := s[:limit]
	if idx := strings.LastIndexAny(cut, ".!?"); idx > 0 {
		return cut[:idx+1]
	}
	return cut
}
