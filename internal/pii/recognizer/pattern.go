package recognizer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dlclark/regexp2"

	internal_errors "github.com/bricks-cloud/dkpii/internal/errors"
)

const (
	MinScore float64 = 0
	MaxScore float64 = 1
)

// DefaultRegexOptions sets multi-line anchors and dot matching newlines.
// IgnoreCase is left out because the Danish patterns use capitalisation to
// find street and city names, so all lowercase addresses such as
// "nørrebrogade 10, 2200 københavn n" do not match. Pass WithRegexOptions
// with regexp2.IgnoreCase to match them.
const DefaultRegexOptions = regexp2.Multiline | regexp2.Singleline

// Pattern is a named regular expression with a fixed confidence score. It
// cannot be changed once constructed, so patterns are shared freely between
// recognizers.
type Pattern struct {
	name     string
	regex    string
	score    float64
	compiled *regexp2.Regexp
}

type patternJSON struct {
	Name  string  `json:"name"`
	Regex string  `json:"regex"`
	Score float64 `json:"score"`
}

func NewPattern(name, regex string, score float64) (*Pattern, error) {
	return newPattern(name, regex, score, DefaultRegexOptions, 0)
}

// MustPattern is NewPattern for package level defaults.
func MustPattern(name, regex string, score float64) *Pattern {
	p, err := NewPattern(name, regex, score)
	if err != nil {
		panic(err)
	}

	return p
}

func newPattern(name, regex string, score float64, opts regexp2.RegexOptions, timeout time.Duration) (*Pattern, error) {
	if len(regex) == 0 {
		return nil, internal_errors.NewFieldValidationError("pattern "+name, "regex is empty")
	}

	if score < MinScore || score > MaxScore {
		return nil, internal_errors.NewFieldValidationError("pattern "+name, fmt.Sprintf("score %v is outside [0, 1]", score))
	}

	re, err := regexp2.Compile(regex, opts)
	if err != nil {
		return nil, internal_errors.NewFieldValidationError("pattern "+name, fmt.Sprintf("invalid regex: %v", err))
	}

	if timeout > 0 {
		re.MatchTimeout = timeout
	}

	return &Pattern{
		name:     name,
		regex:    regex,
		score:    score,
		compiled: re,
	}, nil
}

// recompile returns a copy of p compiled with the given options. Patterns are
// shared between recognizers so they are never modified in place.
func (p *Pattern) recompile(opts regexp2.RegexOptions, timeout time.Duration) (*Pattern, error) {
	return newPattern(p.name, p.regex, p.score, opts, timeout)
}

func (p *Pattern) Name() string {
	return p.name
}

func (p *Pattern) Regex() string {
	return p.regex
}

func (p *Pattern) Score() float64 {
	return p.score
}

func (p *Pattern) MarshalJSON() ([]byte, error) {
	return json.Marshal(&patternJSON{
		Name:  p.name,
		Regex: p.regex,
		Score: p.score,
	})
}

func (p *Pattern) String() string {
	return fmt.Sprintf("%s (%.2f): %s", p.name, p.score, p.regex)
}
