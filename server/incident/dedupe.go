package incident

import (
	"fmt"
	"strings"
	"time"
)

// Summaries that share more than this fraction of their words with a previous summary are rejected
const DefaultSimilarityThreshold = 0.6

// Number of times we try to generate a unique summary, before giving up and using UniqueFallback
const DefaultMaxSummaryAttempts = 3

func wordSet(s string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = struct{}{}
	}
	return set
}

// Similarity is the number of distinct words in common, divided by the number of distinct
// words of the larger of the two. Returns 0 if either text has no words.
func Similarity(a, b string) float64 {
	wa := wordSet(a)
	wb := wordSet(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	common := 0
	for w := range wa {
		if _, ok := wb[w]; ok {
			common++
		}
	}
	return float64(common) / float64(max(len(wa), len(wb)))
}

// IsDuplicate returns true if candidate is too similar to any of the history entries
func IsDuplicate(candidate string, history []string, threshold float64) bool {
	for _, h := range history {
		if Similarity(candidate, h) > threshold {
			return true
		}
	}
	return false
}

// UniqueFallback embeds the incident counter, so it can never repeat
func UniqueFallback(incidentID int64, at time.Time) string {
	return fmt.Sprintf("Violation #%v: Security threat detected at %v - Armed individual identified - Incident requires immediate security response", incidentID, at.Format("15:04:05"))
}

// Dedupe calls generate until it produces a summary that is not a duplicate of history,
// up to maxAttempts times. If every attempt is a duplicate, the result of fallback is returned.
// The second return value is the number of rejected candidates.
func Dedupe(generate func(attempt int) string, history []string, threshold float64, maxAttempts int, fallback func() string) (string, int) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		candidate := generate(attempt)
		if !IsDuplicate(candidate, history, threshold) {
			return candidate, attempt
		}
	}
	return fallback(), maxAttempts
}
