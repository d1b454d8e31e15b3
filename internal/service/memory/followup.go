package memory

import "regexp"

var (
	referencePattern = regexp.MustCompile(`(?i)\b(it|that|this|the one|same|above|the product)\b`)
	topicPattern     = regexp.MustCompile(`(?i)\b(price|cost|stock|quantity|available|in stock|how much|what about|details)\b`)
)

// IsFollowUp reports whether text refers back to an earlier product. Both a
// reference word and a topic word must be present.
func IsFollowUp(text string) bool {
	return referencePattern.MatchString(text) && topicPattern.MatchString(text)
}
