package recognizer

// Validity is the outcome of a Validator run on a matched string.
type Validity int

const (
	Unknown Validity = iota
	Valid
	Invalid
)

// Validator inspects a matched string beyond what the regex can express, for
// example a check digit.
type Validator func(match string) Validity

// Result is a single match produced by a recognizer. Start and End are byte
// offsets into the analysed text.
type Result struct {
	EntityType  string   `json:"entityType"`
	Start       int      `json:"start"`
	End         int      `json:"end"`
	Text        string   `json:"text"`
	Score       float64  `json:"score"`
	BaseScore   float64  `json:"baseScore"`
	PatternName string   `json:"patternName"`
	Recognizer  string   `json:"recognizer"`
	ContextWord string   `json:"contextWord,omitempty"`
	Validity    Validity `json:"validity,omitempty"`
}

func (r *Result) Boosted() bool {
	return len(r.ContextWord) != 0
}

func (r *Result) Contains(other *Result) bool {
	return r.Start <= other.Start && other.End <= r.End
}
