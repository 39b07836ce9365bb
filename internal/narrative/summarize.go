package narrative

import (
	"strings"

	"github.com/antoniostano/aria/internal/memory"
)

var topicKeywords = []struct {
	category string
	words    []string
}{
	{"work", []string{"work", "job", "boss", "office", "meeting", "project", "deadline", "colleague", "career", "interview"}},
	{"family", []string{"family", "mother", "father", "mom", "dad", "sister", "brother", "wife", "husband", "partner", "son", "daughter", "kids"}},
	{"health", []string{"health", "doctor", "sick", "sleep", "tired", "headache", "gym", "diet", "therapy", "medication"}},
	{"travel", []string{"travel", "trip", "flight", "vacation", "holiday", "hotel", "visit", "abroad"}},
	{"hobbies", []string{"hobby", "music", "guitar", "movie", "book", "game", "cooking", "painting", "hiking", "running", "photography"}},
	{"plans", []string{"plan", "tomorrow", "weekend", "schedule", "appointment", "birthday", "party", "event"}},
	{"feelings", []string{"feel", "happy", "sad", "anxious", "stressed", "excited", "lonely", "worried", "angry", "grateful"}},
}

// summarize reduces an older-tier record to a category-labeled excerpt. The
// excerpt budget is the single truncation point for this tier: the category
// prefix is accounted for inside maxChars so the whole summary respects the
// budget without a second cut downstream.
func summarize(r memory.Record, maxChars int) Summary {
	category := topicOf(r.Content)

	excerpt := firstSentence(r.Content)
	budget := maxChars - len([]rune(category)) - 3 // "(cat) " framing in render
	if budget < 16 {
		budget = 16
	}
	excerpt = truncate(excerpt, budget)

	return Summary{
		Category:  category,
		Content:   excerpt,
		Timestamp: r.Timestamp,
	}
}

func topicOf(content string) string {
	lowered := strings.ToLower(content)
	for _, topic := range topicKeywords {
		for _, word := range topic.words {
			if containsWord(lowered, word) {
				return topic.category
			}
		}
	}
	return "general"
}

func containsWord(haystack, word string) bool {
	idx := 0
	for {
		i := strings.Index(haystack[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		beforeOK := start == 0 || !isWordChar(haystack[start-1])
		afterOK := end == len(haystack) || !isWordChar(haystack[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// firstSentence keeps the leading sentence when the record spans several; a
// single long sentence falls through to the truncation budget.
func firstSentence(s string) string {
	s = strings.TrimSpace(s)
	for i, r := range s {
		if r == '.' || r == '!' || r == '?' {
			return s[:i+1]
		}
	}
	return s
}
