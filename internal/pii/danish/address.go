package danish

import (
	"github.com/bricks-cloud/dkpii/internal/pii/recognizer"
)

var addressPatterns = []*recognizer.Pattern{
	// street name, number, optional floor, postal code and city
	recognizer.MustPattern(
		"Danish Address (Medium)",
		`\b([A-ZÆØÅ][a-zæøå]+(?:\s[A-ZÆØÅ][a-zæøå]+)*)\s+(\d+[A-Z]?)(?:\s*,\s*(\d+\.\s*)?)?\s*(\d{4})\s+([A-ZÆØÅ][a-zæøå]+(?:\s[A-ZÆØÅ][a-zæøå]+)*)(?:\s+[ØNVSØ])?\b`,
		0.7,
	),
	recognizer.MustPattern(
		"Danish Postal Code (Medium)",
		`\b(\d{4})\s+([A-ZÆØÅ][a-zæøå]+(?:\s[A-ZÆØÅ][a-zæøå]+)*)(?:\s+[ØNVSØ])?\b`,
		0.5,
	),
}

var addressContext = []string{
	"adresse",
	"gade",
	"vej",
	"alle",
	"plads",
	"torv",
	"bynavn",
	"postnummer",
	"postnr",
	"by",
	"gadenavn",
	"vejnavn",
	"adressen",
	"gaden",
	"vejen",
	"alleen",
	"pladsen",
	"torvet",
	"bynavnet",
	"postnummeret",
	"postnret",
	"byen",
}

func AddressPatterns() []*recognizer.Pattern {
	return append([]*recognizer.Pattern{}, addressPatterns...)
}

func AddressContext() []string {
	return append([]string{}, addressContext...)
}

func NewAddressRecognizer(opts ...recognizer.Option) (*recognizer.Recognizer, error) {
	return build("DaAddressRecognizer", AddressEntity, addressPatterns, addressContext, opts)
}
