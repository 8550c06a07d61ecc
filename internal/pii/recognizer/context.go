package recognizer

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	internal_errors "github.com/bricks-cloud/dkpii/internal/errors"
)

const (
	DefaultSimilarityFactor    float64 = 0.35
	DefaultMinScoreWithContext float64 = 0.4
	DefaultPrefixCount         int     = 5
	DefaultSuffixCount         int     = 5
)

// ContextEnhancer raises the score of results that have one of the
// recognizer's context keywords within a word window around them.
type ContextEnhancer struct {
	SimilarityFactor    float64
	MinScoreWithContext float64
	PrefixCount         int
	SuffixCount         int
}

func NewContextEnhancer() *ContextEnhancer {
	return &ContextEnhancer{
		SimilarityFactor:    DefaultSimilarityFactor,
		MinScoreWithContext: DefaultMinScoreWithContext,
		PrefixCount:         DefaultPrefixCount,
		SuffixCount:         DefaultSuffixCount,
	}
}

// Validate checks that the window sizes are not negative and that the boost
// and floor keep scores within [0, 1].
func (e *ContextEnhancer) Validate() error {
	if e == nil {
		return nil
	}

	if e.PrefixCount < 0 || e.SuffixCount < 0 {
		return internal_errors.NewFieldValidationError("context enhancer", fmt.Sprintf("window of %d words before and %d after must not be negative", e.PrefixCount, e.SuffixCount))
	}

	if e.SimilarityFactor < MinScore || e.SimilarityFactor > MaxScore {
		return internal_errors.NewFieldValidationError("context enhancer", fmt.Sprintf("similarity factor %v is outside [0, 1]", e.SimilarityFactor))
	}

	if e.MinScoreWithContext < MinScore || e.MinScoreWithContext > MaxScore {
		return internal_errors.NewFieldValidationError("context enhancer", fmt.Sprintf("minimum score with context %v is outside [0, 1]", e.MinScoreWithContext))
	}

	return nil
}

type word struct {
	text  string
	start int
	end   int
}

// Enhance boosts results in place. A result is boosted at most once no matter
// how many keywords surround it.
func (e *ContextEnhancer) Enhance(text string, results []*Result, keywords []string) {
	if e == nil || len(results) == 0 || len(keywords) == 0 {
		return
	}

	kws := normalizeKeywords(keywords)
	if len(kws) == 0 {
		return
	}

	words := splitWords(text)
	for _, r := range results {
		if r.Validity == Valid {
			continue
		}

		window := e.window(text, words, r.Start, r.End)
		if kw, ok := findKeyword(window, kws); ok {
			r.Score = e.boost(r.Score)
			r.ContextWord = kw
		}
	}
}

func (e *ContextEnhancer) boost(score float64) float64 {
	score += e.SimilarityFactor
	if score < e.MinScoreWithContext {
		score = e.MinScoreWithContext
	}

	if score > MaxScore {
		score = MaxScore
	}

	return score
}

// window collects the normalised words before and after the span. Words that
// straddle the span contribute only the part outside of it.
func (e *ContextEnhancer) window(text string, words []word, start, end int) []string {
	prefix := []string{}
	suffix := []string{}

	for _, w := range words {
		switch {
		case w.end <= start:
			prefix = append(prefix, w.text)
		case w.start >= end:
			if len(suffix) < e.SuffixCount {
				suffix = append(suffix, w.text)
			}
		default:
			if w.start < start {
				prefix = append(prefix, text[w.start:start])
			}
			if w.end > end && len(suffix) < e.SuffixCount {
				suffix = append(suffix, text[end:w.end])
			}
		}
	}

	if len(prefix) > e.PrefixCount {
		prefix = prefix[len(prefix)-e.PrefixCount:]
	}

	out := make([]string, 0, len(prefix)+len(suffix))
	for _, w := range append(prefix, suffix...) {
		if n := normalize(w); len(n) != 0 {
			out = append(out, n)
		}
	}

	return out
}

func findKeyword(window []string, keywords []string) (string, bool) {
	if len(window) == 0 {
		return "", false
	}

	joined := " " + strings.Join(window, " ") + " "
	for _, kw := range keywords {
		if strings.Contains(joined, " "+kw+" ") {
			return kw, true
		}
	}

	return "", false
}

func normalizeKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	seen := map[string]bool{}

	for _, kw := range keywords {
		parts := []string{}
		for _, f := range strings.Fields(kw) {
			if n := normalize(f); len(n) != 0 {
				parts = append(parts, n)
			}
		}

		joined := strings.Join(parts, " ")
		if len(joined) == 0 || seen[joined] {
			continue
		}

		seen[joined] = true
		out = append(out, joined)
	}

	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSymbol(r)
	}))
}

func splitWords(text string) []word {
	words := []word{}
	start := -1

	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				words = append(words, word{text: text[start:i], start: start, end: i})
				start = -1
			}
			continue
		}

		if start < 0 {
			start = i
		}
	}

	if start >= 0 {
		words = append(words, word{text: text[start:], start: start, end: len(text)})
	}

	return words
}

// runeOffsets maps rune indexes to byte offsets; the extra last entry is
// len(text).
func runeOffsets(text string) []int {
	offsets := make([]int, 0, utf8.RuneCountInString(text)+1)
	for i := range text {
		offsets = append(offsets, i)
	}

	return append(offsets, len(text))
}
