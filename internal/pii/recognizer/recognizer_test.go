package recognizer

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	internal_errors "github.com/bricks-cloud/dkpii/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecognizer(t *testing.T, opts ...Option) *Recognizer {
	t.Helper()

	base := []Option{
		WithEntity("TEST_NUMBER"),
		WithLanguage("da"),
		WithPatterns(MustPattern("four digits", `\b\d{4}\b`, 0.3)),
		WithContext("kode", "pin kode"),
	}

	r, err := New("TestRecognizer", append(base, opts...)...)
	require.Nil(t, err)

	return r
}

func TestNew(t *testing.T) {
	t.Run("when patterns are missing", func(t *testing.T) {
		_, err := New("r", WithEntity("E"), WithLanguage("da"))
		require.NotNil(t, err)

		var ve *internal_errors.ValidationError
		assert.True(t, errors.As(err, &ve))
	})

	t.Run("when entity is missing", func(t *testing.T) {
		_, err := New("r", WithLanguage("da"), WithPatterns(MustPattern("p", `a`, 0.5)))
		require.NotNil(t, err)
	})

	t.Run("when language is missing", func(t *testing.T) {
		_, err := New("r", WithEntity("E"), WithPatterns(MustPattern("p", `a`, 0.5)))
		require.NotNil(t, err)
	})

	t.Run("when regex is invalid", func(t *testing.T) {
		_, err := New("r", WithEntity("E"), WithLanguage("da"), WithPatterns(&Pattern{name: "broken", regex: `(\d`, score: 0.5}))
		require.NotNil(t, err)

		var ve *internal_errors.ValidationError
		require.True(t, errors.As(err, &ve))
		assert.Equal(t, "pattern broken", ve.Field())
	})

	t.Run("when only a deny list is given", func(t *testing.T) {
		r, err := New("r", WithEntity("TITLE"), WithLanguage("da"), WithDenyList("hr.", "fru"))
		require.Nil(t, err)

		results := r.FindMatches("Kære Fru Hansen og hr. Jensen")
		require.Len(t, results, 2)
		assert.Equal(t, "Fru", results[0].Text)
		assert.Equal(t, "hr.", results[1].Text)
		assert.Equal(t, MaxScore, results[0].Score)
	})

	t.Run("accessors return copies", func(t *testing.T) {
		r := newTestRecognizer(t)

		ctx := r.Context()
		ctx[0] = "changed"
		patterns := r.Patterns()
		patterns[0] = nil

		assert.Equal(t, "kode", r.Context()[0])
		assert.NotNil(t, r.Patterns()[0])
		assert.Equal(t, "TEST_NUMBER", r.SupportedEntity())
		assert.Equal(t, "da", r.SupportedLanguage())
		assert.Equal(t, "TestRecognizer", r.Name())
	})
}

func TestNewPattern(t *testing.T) {
	_, err := NewPattern("too high", `a`, 1.5)
	assert.NotNil(t, err)

	_, err = NewPattern("negative", `a`, -0.1)
	assert.NotNil(t, err)

	_, err = NewPattern("empty", ``, 0.5)
	assert.NotNil(t, err)

	p, err := NewPattern("ok", `a+`, 0.5)
	require.Nil(t, err)
	assert.Equal(t, "ok (0.50): a+", p.String())

	assert.Panics(t, func() {
		MustPattern("broken", `[`, 0.5)
	})
}

func TestPattern_Accessors(t *testing.T) {
	p := MustPattern("four digits", `\b\d{4}\b`, 0.3)

	assert.Equal(t, "four digits", p.Name())
	assert.Equal(t, `\b\d{4}\b`, p.Regex())
	assert.Equal(t, 0.3, p.Score())

	data, err := json.Marshal(p)
	require.Nil(t, err)
	assert.JSONEq(t, `{"name": "four digits", "regex": "\\b\\d{4}\\b", "score": 0.3}`, string(data))

	r := newTestRecognizer(t, WithPatterns(p))
	patterns := r.Patterns()
	patterns[0] = MustPattern("any", `\d`, 1)

	results := r.FindMatches("kode 1234")
	require.Len(t, results, 1)
	assert.Equal(t, "four digits", r.Patterns()[0].Name())
	assert.Equal(t, 0.3, p.Score())
}

func TestNew_Enhancer(t *testing.T) {
	cases := map[string]*ContextEnhancer{
		"negative prefix":  {SimilarityFactor: 0.35, MinScoreWithContext: 0.4, PrefixCount: -1, SuffixCount: 5},
		"negative suffix":  {SimilarityFactor: 0.35, MinScoreWithContext: 0.4, PrefixCount: 5, SuffixCount: -1},
		"negative factor":  {SimilarityFactor: -0.1, MinScoreWithContext: 0.4, PrefixCount: 5, SuffixCount: 5},
		"factor above one": {SimilarityFactor: 1.5, MinScoreWithContext: 0.4, PrefixCount: 5, SuffixCount: 5},
		"negative floor":   {SimilarityFactor: 0.35, MinScoreWithContext: -1, PrefixCount: 5, SuffixCount: 5},
		"floor above one":  {SimilarityFactor: 0.35, MinScoreWithContext: 2, PrefixCount: 5, SuffixCount: 5},
	}

	for name, e := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New("r", WithEntity("E"), WithLanguage("da"), WithPatterns(MustPattern("p", `a`, 0.5)), WithEnhancer(e))
			require.NotNil(t, err)

			var ve *internal_errors.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, "context enhancer", ve.Field())
		})
	}

	t.Run("zero window and nil enhancer are accepted", func(t *testing.T) {
		r := newTestRecognizer(t, WithEnhancer(&ContextEnhancer{SimilarityFactor: 0.35, MinScoreWithContext: 0.4}))
		results := r.FindMatches("kode 1234")
		require.Len(t, results, 1)
		assert.Equal(t, 0.3, results[0].Score)

		newTestRecognizer(t, WithEnhancer(nil))
	})
}

func TestRecognizer_FindMatches(t *testing.T) {
	t.Run("empty text has no matches", func(t *testing.T) {
		r := newTestRecognizer(t)
		assert.Empty(t, r.FindMatches(""))
	})

	t.Run("text without the shape has no matches", func(t *testing.T) {
		r := newTestRecognizer(t)
		assert.Empty(t, r.FindMatches("ingen tal her, kun ord"))
	})

	t.Run("every occurrence is reported in order", func(t *testing.T) {
		r := newTestRecognizer(t)

		results := r.FindMatches("1234 og 5678")
		require.Len(t, results, 2)
		assert.Equal(t, "1234", results[0].Text)
		assert.Equal(t, 0, results[0].Start)
		assert.Equal(t, 4, results[0].End)
		assert.Equal(t, "5678", results[1].Text)
		assert.Equal(t, 0.3, results[1].Score)
		assert.Equal(t, "four digits", results[1].PatternName)
		assert.Equal(t, "TestRecognizer", results[1].Recognizer)
	})

	t.Run("offsets are byte offsets", func(t *testing.T) {
		r := newTestRecognizer(t)

		text := "Æble Øl 1234"
		results := r.FindMatches(text)
		require.Len(t, results, 1)
		assert.Equal(t, "1234", text[results[0].Start:results[0].End])
	})

	t.Run("overlapping patterns are not deduplicated", func(t *testing.T) {
		r := newTestRecognizer(t, WithPatterns(
			MustPattern("four", `\d{4}`, 0.3),
			MustPattern("two", `\d{2}`, 0.2),
		))

		results := r.FindMatches("1234")
		require.Len(t, results, 3)
		assert.Equal(t, "four", results[0].PatternName)
		assert.Equal(t, "12", results[1].Text)
		assert.Equal(t, "34", results[2].Text)
	})

	t.Run("zero length matches are skipped", func(t *testing.T) {
		r := newTestRecognizer(t, WithPatterns(MustPattern("optional", `\d*`, 0.3)))

		results := r.FindMatches("ab 12")
		require.Len(t, results, 1)
		assert.Equal(t, "12", results[0].Text)
	})

	t.Run("results are deterministic", func(t *testing.T) {
		r := newTestRecognizer(t)
		text := "kode 1234 og 5678"

		assert.Equal(t, r.FindMatches(text), r.FindMatches(text))
	})

	t.Run("validator raises or drops results", func(t *testing.T) {
		r := newTestRecognizer(t, WithValidator(func(match string) Validity {
			switch match {
			case "1111":
				return Valid
			case "2222":
				return Invalid
			}
			return Unknown
		}))

		results := r.FindMatches("1111 2222 3333")
		require.Len(t, results, 2)
		assert.Equal(t, MaxScore, results[0].Score)
		assert.Equal(t, Valid, results[0].Validity)
		assert.Equal(t, 0.3, results[1].Score)
	})

	t.Run("concurrent use", func(t *testing.T) {
		r := newTestRecognizer(t)

		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.Len(t, r.FindMatches("kode 1234 5678"), 2)
			}()
		}
		wg.Wait()
	})
}

func TestRecognizer_Match(t *testing.T) {
	r := newTestRecognizer(t,
		WithPatterns(MustPattern("catastrophic", `^(a+)+$`, 0.1)),
		WithMatchTimeout(time.Millisecond),
	)

	text := ""
	for i := 0; i < 40; i++ {
		text += "a"
	}
	text += "!"

	_, err := r.Match(text)
	assert.NotNil(t, err)
}

func TestRecognizer_ContextBoost(t *testing.T) {
	t.Run("keyword before the match", func(t *testing.T) {
		r := newTestRecognizer(t)

		results := r.FindMatches("Din kode er 1234")
		require.Len(t, results, 1)
		assert.InDelta(t, 0.65, results[0].Score, 1e-9)
		assert.Equal(t, 0.3, results[0].BaseScore)
		assert.Equal(t, "kode", results[0].ContextWord)
		assert.True(t, results[0].Boosted())
	})

	t.Run("keyword after the match", func(t *testing.T) {
		r := newTestRecognizer(t)

		results := r.FindMatches("1234 er din kode")
		require.Len(t, results, 1)
		assert.True(t, results[0].Boosted())
	})

	t.Run("keyword outside the window", func(t *testing.T) {
		r := newTestRecognizer(t)

		results := r.FindMatches("kode en to tre fire fem seks 1234")
		require.Len(t, results, 1)
		assert.False(t, results[0].Boosted())
		assert.Equal(t, 0.3, results[0].Score)
	})

	t.Run("multi word keyword with punctuation and case", func(t *testing.T) {
		r := newTestRecognizer(t)

		results := r.FindMatches("PIN KODE: 1234")
		require.Len(t, results, 1)
		assert.Equal(t, "kode", results[0].ContextWord)
	})

	t.Run("substring of a word is not a keyword", func(t *testing.T) {
		r := newTestRecognizer(t)

		results := r.FindMatches("kodeord 1234")
		require.Len(t, results, 1)
		assert.False(t, results[0].Boosted())
	})

	t.Run("score is capped at one", func(t *testing.T) {
		r := newTestRecognizer(t, WithPatterns(MustPattern("high", `\b\d{4}\b`, 0.9)))

		results := r.FindMatches("kode kode pin kode 1234 kode")
		require.Len(t, results, 1)
		assert.Equal(t, MaxScore, results[0].Score)
	})

	t.Run("minimum score with context", func(t *testing.T) {
		r := newTestRecognizer(t, WithPatterns(MustPattern("low", `\b\d{4}\b`, 0.01)))

		results := r.FindMatches("kode 1234")
		require.Len(t, results, 1)
		assert.Equal(t, DefaultMinScoreWithContext, results[0].Score)
	})

	t.Run("enhancer can be disabled", func(t *testing.T) {
		r := newTestRecognizer(t, WithEnhancer(nil))

		results := r.FindMatches("kode 1234")
		require.Len(t, results, 1)
		assert.Equal(t, 0.3, results[0].Score)
	})

	t.Run("custom window", func(t *testing.T) {
		e := NewContextEnhancer()
		e.PrefixCount = 1
		e.SuffixCount = 0
		r := newTestRecognizer(t, WithEnhancer(e))

		assert.False(t, r.FindMatches("kode er 1234")[0].Boosted())
		assert.True(t, r.FindMatches("kode 1234")[0].Boosted())
		assert.False(t, r.FindMatches("1234 kode")[0].Boosted())
	})

	t.Run("keyword glued to the match", func(t *testing.T) {
		r := newTestRecognizer(t, WithPatterns(MustPattern("digits", `\d{4}`, 0.3)))

		results := r.FindMatches("kode:1234")
		require.Len(t, results, 1)
		assert.True(t, results[0].Boosted())
	})
}
