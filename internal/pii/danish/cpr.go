package danish

import (
	"github.com/bricks-cloud/dkpii/internal/pii/recognizer"
)

var cprPatterns = []*recognizer.Pattern{
	recognizer.MustPattern(
		"CPR (Medium)",
		`\b(0[1-9]|[12][0-9]|3[01])(0[1-9]|1[0-2])(\d{2})-?(\d{4})\b`,
		0.5,
	),
}

var cprContext = []string{
	"cpr",
	"cpr-nummer",
	"personnummer",
	"fødselsdato",
	"fødselsnummer",
	"cpr nummer",
	"cprnr",
	"cpr nr",
}

var cprWeights = [10]int{4, 3, 2, 7, 6, 5, 4, 3, 2, 1}

func CprPatterns() []*recognizer.Pattern {
	return append([]*recognizer.Pattern{}, cprPatterns...)
}

func CprContext() []string {
	return append([]string{}, cprContext...)
}

func NewCprRecognizer(opts ...recognizer.Option) (*recognizer.Recognizer, error) {
	return build("DaCprRecognizer", CprEntity, cprPatterns, cprContext, opts)
}

// WithCprChecksum enables modulus 11 validation. Numbers issued after 2007 may
// legitimately fail it, so it is off by default.
func WithCprChecksum() recognizer.Option {
	return recognizer.WithValidator(func(match string) recognizer.Validity {
		if ValidCprChecksum(match) {
			return recognizer.Valid
		}

		return recognizer.Invalid
	})
}

// ValidCprChecksum reports whether the ten digits of s pass the modulus 11
// check. Non-digits are ignored; anything other than ten digits fails.
func ValidCprChecksum(s string) bool {
	digits := make([]int, 0, len(cprWeights))
	for _, r := range s {
		if r < '0' || r > '9' {
			continue
		}

		if len(digits) == len(cprWeights) {
			return false
		}

		digits = append(digits, int(r-'0'))
	}

	if len(digits) != len(cprWeights) {
		return false
	}

	sum := 0
	for i, d := range digits {
		sum += d * cprWeights[i]
	}

	return sum%11 == 0
}
