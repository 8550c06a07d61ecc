package danish

import (
	"github.com/bricks-cloud/dkpii/internal/pii/recognizer"
)

// Danish subscriber numbers are eight digits. Numbers written with the +45 or
// 0045 prefix are scored higher than bare local numbers.
var phonePatterns = []*recognizer.Pattern{
	recognizer.MustPattern(
		"Danish Phone (International)",
		`(?:\+|\b00)45\s?(?:\(0\)\s?)?(?:[2-9]\d\s?\d{2}\s?\d{2}\s?\d{2}|[2-9]\d{3}\s?\d{4})\b`,
		0.7,
	),
	recognizer.MustPattern(
		"Danish Phone (Local)",
		`(?<![+\d])\b\d{2}(?:\s?\d{2}){3}\b`,
		0.5,
	),
}

var legacyPhonePatterns = []*recognizer.Pattern{
	recognizer.MustPattern(
		"Danish Phone",
		`(?:(?:\+|00)45\s?(?:\(0\)\s?)?)?(?:[2-9]\d{1}\s?\d{2}\s?\d{2}\s?\d{2}|[2-9]\d{3}\s?\d{4}|[2-9]\d{7})`,
		0.6,
	),
}

var phoneContext = []string{
	"telefon",
	"mobil",
	"nummer",
	"telefonnummer",
	"mobilnummer",
	"tlf",
	"tlf.",
	"mob",
	"mob.",
	"ring",
	"ringer",
	"opkald",
	"telefonopkald",
	"telefonnummeret",
	"mobilnummeret",
	"tlfnr",
	"mobnr",
}

func PhonePatterns() []*recognizer.Pattern {
	return append([]*recognizer.Pattern{}, phonePatterns...)
}

// LegacyPhonePatterns is the single pattern phone definition that predates the
// international / local split.
func LegacyPhonePatterns() []*recognizer.Pattern {
	return append([]*recognizer.Pattern{}, legacyPhonePatterns...)
}

func PhoneContext() []string {
	return append([]string{}, phoneContext...)
}

func NewPhoneRecognizer(opts ...recognizer.Option) (*recognizer.Recognizer, error) {
	return build("DaPhoneRecognizer", PhoneEntity, phonePatterns, phoneContext, opts)
}

func NewLegacyPhoneRecognizer(opts ...recognizer.Option) (*recognizer.Recognizer, error) {
	return build("DaLegacyPhoneRecognizer", PhoneEntity, legacyPhonePatterns, phoneContext, opts)
}
