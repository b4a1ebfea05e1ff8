package analyzer

// stopwords is the standard English function-word set excluded from theme
// and n-gram extraction. It is not exhaustive by design — it covers the
// high-frequency words that would otherwise dominate every response.
var stopwords = buildStopwords()

func buildStopwords() map[string]bool {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "when",
		"while", "for", "to", "of", "in", "on", "at", "by", "with", "about",
		"against", "between", "into", "through", "during", "before", "after",
		"above", "below", "from", "up", "down", "out", "off", "over", "under",
		"again", "further", "once", "here", "there", "all", "any", "both",
		"each", "few", "more", "most", "other", "some", "such", "no", "nor",
		"not", "only", "own", "same", "so", "than", "too", "very", "s", "t",
		"can", "will", "just", "don", "should", "now", "is", "are", "was",
		"were", "be", "been", "being", "have", "has", "had", "having", "do",
		"does", "did", "doing", "would", "could", "might", "must", "shall",
		"i", "me", "my", "myself", "we", "our", "ours", "ourselves", "you",
		"your", "yours", "yourself", "yourselves", "he", "him", "his",
		"himself", "she", "her", "hers", "herself", "it", "its", "itself",
		"they", "them", "their", "theirs", "themselves", "what", "which",
		"who", "whom", "this", "that", "these", "those", "am", "as", "until",
		"because", "until", "also", "however", "although", "though", "thus",
		"therefore", "hence", "moreover", "furthermore",
	}
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}
