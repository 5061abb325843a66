// Package classify assigns topics to text snippets. The chunker consumes the
// Classifier interface so the topic model stays an injected capability.
package classify

import "strings"

// Unclassified is the sentinel topic for text matching nothing in the set.
const Unclassified = "unclassified"

// Classifier maps a piece of text onto one of a closed topic set, returning
// Unclassified when nothing fits. Implementations must be pure functions:
// identical input yields identical output.
type Classifier interface {
	Classify(text string, topics []string) string
}

// Func adapts a plain function to the Classifier interface.
type Func func(text string, topics []string) string

// Classify calls f.
func (f Func) Classify(text string, topics []string) string { return f(text, topics) }

// Keyword scores each topic by counting occurrences of its words in the
// text; the highest-scoring topic wins and ties resolve to the earlier topic
// in the caller's order. Deterministic and dependency-free; callers wanting
// model-based classification inject their own Classifier.
type Keyword struct{}

// Classify implements Classifier.
func (Keyword) Classify(text string, topics []string) string {
	counts := wordCounts(text)
	best, bestScore := Unclassified, 0
	for _, topic := range topics {
		score := 0
		for _, w := range strings.FieldsFunc(strings.ToLower(topic), notAlnum) {
			score += counts[w]
		}
		if score > bestScore {
			best, bestScore = topic, score
		}
	}
	return best
}

func wordCounts(text string) map[string]int {
	counts := make(map[string]int)
	for _, w := range strings.FieldsFunc(strings.ToLower(text), notAlnum) {
		counts[w]++
	}
	return counts
}

func notAlnum(r rune) bool {
	return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
}
