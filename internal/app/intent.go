package app

import "regexp"

// Ordered heuristic for deciding whether a user turn should be augmented
// with web-search results. False positives and negatives are expected and
// accepted; the turn proceeds either way.
var searchIntentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bsearch (for|the web for)\b`),
	regexp.MustCompile(`(?i)^what (is|are|was|were)\b`),
	regexp.MustCompile(`(?i)\blatest news (about|on|of)\b`),
	regexp.MustCompile(`(?i)\bcurrent (price|weather|news|events|status|score|time)\b`),
	regexp.MustCompile(`(?i)^(can|could|would) you (search|find|look ?up|get)\b`),
	regexp.MustCompile(`(?i)^(please )?(search|find|look ?up|get)\b`),
}

func detectSearchIntent(text string) bool {
	for _, pattern := range searchIntentPatterns {
		if pattern.MatchString(text) {
			return true
		}
	}
	return false
}
