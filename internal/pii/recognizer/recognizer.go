// Package recognizer implements pattern based entity recognition: a set of
// scored regular expressions, an optional validator and a list of context
// keywords that raise confidence when they appear near a match.
package recognizer

import (
	"fmt"
	"strings"
	"time"

	"github.com/dlclark/regexp2"

	internal_errors "github.com/bricks-cloud/dkpii/internal/errors"
)

// EntityRecognizer is what the registry and detectors need from a recognizer.
type EntityRecognizer interface {
	Name() string
	SupportedEntity() string
	SupportedLanguage() string
	Patterns() []*Pattern
	Context() []string
	FindMatches(text string) []*Result
}

type Option func(*settings)

type settings struct {
	entity       string
	language     string
	patterns     []*Pattern
	context      []string
	denyList     []string
	validator    Validator
	enhancer     *ContextEnhancer
	timeout      time.Duration
	regexOptions regexp2.RegexOptions
	optionsSet   bool
}

func WithEntity(entity string) Option {
	return func(s *settings) {
		s.entity = entity
	}
}

func WithLanguage(language string) Option {
	return func(s *settings) {
		s.language = language
	}
}

// WithPatterns replaces the patterns. An empty list is ignored so that callers
// can pass through optional overrides.
func WithPatterns(patterns ...*Pattern) Option {
	return func(s *settings) {
		if len(patterns) != 0 {
			s.patterns = patterns
		}
	}
}

// WithContext replaces the context keywords. An empty list is ignored.
func WithContext(keywords ...string) Option {
	return func(s *settings) {
		if len(keywords) != 0 {
			s.context = keywords
		}
	}
}

func WithDenyList(words ...string) Option {
	return func(s *settings) {
		s.denyList = append(s.denyList, words...)
	}
}

func WithValidator(v Validator) Option {
	return func(s *settings) {
		s.validator = v
	}
}

// WithEnhancer sets the context enhancer. nil disables context boosting.
func WithEnhancer(e *ContextEnhancer) Option {
	return func(s *settings) {
		s.enhancer = e
	}
}

// WithMatchTimeout bounds the time spent on a single match attempt.
func WithMatchTimeout(d time.Duration) Option {
	return func(s *settings) {
		s.timeout = d
	}
}

func WithRegexOptions(opts regexp2.RegexOptions) Option {
	return func(s *settings) {
		s.regexOptions = opts
		s.optionsSet = true
	}
}

// Recognizer is immutable after New and safe for concurrent use.
type Recognizer struct {
	name      string
	entity    string
	language  string
	patterns  []*Pattern
	context   []string
	validator Validator
	enhancer  *ContextEnhancer
}

func New(name string, opts ...Option) (*Recognizer, error) {
	s := &settings{
		enhancer:     NewContextEnhancer(),
		regexOptions: DefaultRegexOptions,
	}

	for _, opt := range opts {
		opt(s)
	}

	if len(s.entity) == 0 {
		return nil, internal_errors.NewFieldValidationError("recognizer "+name, "supported entity is empty")
	}

	if len(s.language) == 0 {
		return nil, internal_errors.NewFieldValidationError("recognizer "+name, "supported language is empty")
	}

	if len(s.patterns) == 0 && len(s.denyList) == 0 {
		return nil, internal_errors.NewFieldValidationError("recognizer "+name, "no patterns or deny list provided")
	}

	if err := s.enhancer.Validate(); err != nil {
		return nil, err
	}

	patterns := make([]*Pattern, 0, len(s.patterns)+1)
	for _, p := range s.patterns {
		if p == nil {
			return nil, internal_errors.NewFieldValidationError("recognizer "+name, "nil pattern")
		}

		if p.compiled == nil || s.optionsSet || s.timeout > 0 {
			compiled, err := p.recompile(s.regexOptions, s.timeout)
			if err != nil {
				return nil, err
			}
			p = compiled
		}

		patterns = append(patterns, p)
	}

	if len(s.denyList) != 0 {
		p, err := newPattern(fmt.Sprintf("%s deny list", s.entity), denyListRegex(s.denyList), MaxScore, s.regexOptions, s.timeout)
		if err != nil {
			return nil, err
		}

		patterns = append(patterns, p)
	}

	return &Recognizer{
		name:      name,
		entity:    s.entity,
		language:  s.language,
		patterns:  patterns,
		context:   append([]string{}, s.context...),
		validator: s.validator,
		enhancer:  s.enhancer,
	}, nil
}

func denyListRegex(words []string) string {
	escaped := make([]string, 0, len(words))
	for _, w := range words {
		escaped = append(escaped, regexp2.Escape(w))
	}

	return `(?:^|(?<=\W))(?i:` + strings.Join(escaped, "|") + `)(?:(?=\W)|$)`
}

func (r *Recognizer) Name() string {
	return r.name
}

func (r *Recognizer) SupportedEntity() string {
	return r.entity
}

func (r *Recognizer) SupportedLanguage() string {
	return r.language
}

// Patterns returns a copy of the pattern list. Patterns themselves are
// immutable.
func (r *Recognizer) Patterns() []*Pattern {
	return append([]*Pattern{}, r.patterns...)
}

// Context returns a copy of the context keywords.
func (r *Recognizer) Context() []string {
	return append([]string{}, r.context...)
}

// FindMatches returns every match of every pattern. Results of one pattern
// are in text order; overlapping results of different patterns are all kept.
func (r *Recognizer) FindMatches(text string) []*Result {
	results, _ := r.Match(text)
	return results
}

// Match is FindMatches with the match timeout error surfaced. On timeout the
// results found so far are returned along with the error.
func (r *Recognizer) Match(text string) ([]*Result, error) {
	results := []*Result{}
	if len(text) == 0 {
		return results, nil
	}

	var offsets []int
	var matchErr error

	for _, p := range r.patterns {
		m, err := p.compiled.FindStringMatch(text)
		for err == nil && m != nil {
			if m.Length > 0 {
				if offsets == nil {
					offsets = runeOffsets(text)
				}

				if res := r.newResult(p, offsets, m); res != nil {
					results = append(results, res)
				}
			}

			m, err = p.compiled.FindNextMatch(m)
		}

		if err != nil {
			matchErr = fmt.Errorf("pattern %q of recognizer %s: %w", p.name, r.name, err)
			break
		}
	}

	r.enhancer.Enhance(text, results, r.context)

	return results, matchErr
}

func (r *Recognizer) newResult(p *Pattern, offsets []int, m *regexp2.Match) *Result {
	start := offsets[m.Index]
	end := offsets[m.Index+m.Length]

	res := &Result{
		EntityType:  r.entity,
		Start:       start,
		End:         end,
		Text:        m.String(),
		Score:       p.score,
		BaseScore:   p.score,
		PatternName: p.name,
		Recognizer:  r.name,
	}

	if r.validator != nil {
		res.Validity = r.validator(res.Text)
		switch res.Validity {
		case Valid:
			res.Score = MaxScore
		case Invalid:
			return nil
		}
	}

	return res
}
