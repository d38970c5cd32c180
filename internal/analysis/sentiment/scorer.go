// Package sentiment scores the polarity of a clinician message.
package sentiment

import (
	"math"
	"strings"
	"unicode"
)

// DefaultNegativeThreshold is the polarity below which a message counts as hostile.
const DefaultNegativeThreshold = -0.3

// Scorer maps a message to a polarity in [-1, 1].
type Scorer interface {
	Score(text string) float64
}

// ScorerFunc adapts a plain function to Scorer.
type ScorerFunc func(text string) float64

// Score implements Scorer.
func (f ScorerFunc) Score(text string) float64 {
	return f(text)
}

// Lexicon is the default lexicon-based scorer.
var Lexicon Scorer = ScorerFunc(Score)

// IsNegative reports whether score falls strictly below threshold.
func IsNegative(score, threshold float64) bool {
	return score < threshold
}

const (
	negationWindow = 3
	negationFactor = -0.5
	exclaimBoost   = 0.1
	maxExclaims    = 3
)

// Score averages the polarity of every lexicon word in text. Intensifiers scale
// the next polar word, negators flip and damp it, and exclamation marks push the
// result away from zero. Empty or neutral text scores 0.
func Score(text string) float64 {
	words := tokenize(text)
	if len(words) == 0 {
		return 0
	}

	var (
		sum        float64
		matched    int
		multiplier = 1.0
		negated    = 0
	)

	for _, word := range words {
		if isNegator(word) {
			negated = negationWindow
			continue
		}
		if m, ok := intensifiers[word]; ok {
			multiplier *= m
			continue
		}

		p, ok := polarity[word]
		if !ok {
			multiplier = 1
			if negated > 0 {
				negated--
			}
			continue
		}

		p *= multiplier
		if negated > 0 {
			p *= negationFactor
		}
		sum += clamp(p)
		matched++

		multiplier = 1
		negated = 0
	}

	if matched == 0 {
		return 0
	}

	score := sum / float64(matched)
	if exclaims := strings.Count(text, "!"); exclaims > 0 {
		score *= 1 + exclaimBoost*float64(min(exclaims, maxExclaims))
	}
	return clamp(score)
}

func tokenize(text string) []string {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return nil
	}
	normalized = strings.ReplaceAll(normalized, "’", "'")

	return strings.FieldsFunc(normalized, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
}

func isNegator(word string) bool {
	if _, ok := negators[word]; ok {
		return true
	}
	return strings.HasSuffix(word, "n't")
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(-1, math.Min(1, v))
}
