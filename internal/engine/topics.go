package engine

import "strings"

// Topic priority for feed candidate ordering. Lower rank sorts first.
const (
	topicHigh   = "high"
	topicMedium = "medium"
	topicLow    = "low"
)

var topicRank = map[string]int{
	topicHigh:   0,
	topicMedium: 1,
	topicLow:    2,
}

var highTopics = []string{
	"governance", "accountability", "dispute", "trustless",
	"decentralization", "constitutional", "coordination",
}

var mediumTopics = []string{
	"token", "king", "ruler", "consciousness", "context", "alignment", "karma",
}

var lowTopics = []string{"chanting"}

// searchTopics rotates one platform search per cycle for ambient context.
var searchTopics = []string{
	"governance", "accountability", "coordination", "dispute resolution",
	"decentralization", "agent alignment",
}

// classifyTopic buckets a post by keyword. Unmatched posts default to
// medium; only explicitly low-value topics sink below ordinary chatter.
func classifyTopic(title, content string) string {
	text := strings.ToLower(title + " " + content)
	for _, kw := range highTopics {
		if strings.Contains(text, kw) {
			return topicHigh
		}
	}
	for _, kw := range mediumTopics {
		if strings.Contains(text, kw) {
			return topicMedium
		}
	}
	for _, kw := range lowTopics {
		if strings.Contains(text, kw) {
			return topicLow
		}
	}
	return topicMedium
}
