// Package danish provides the built-in recognizers for Danish addresses, CPR
// numbers and phone numbers.
package danish

import (
	"github.com/bricks-cloud/dkpii/internal/pii/recognizer"
)

const (
	Language string = "da"

	AddressEntity string = "DK_ADDRESS"
	CprEntity     string = "DK_CPR"
	PhoneEntity   string = "DK_PHONE"
)

// build applies the recognizer defaults first so that caller options win.
func build(name string, entity string, patterns []*recognizer.Pattern, context []string, opts []recognizer.Option) (*recognizer.Recognizer, error) {
	all := []recognizer.Option{
		recognizer.WithEntity(entity),
		recognizer.WithLanguage(Language),
		recognizer.WithPatterns(patterns...),
		recognizer.WithContext(context...),
	}

	return recognizer.New(name, append(all, opts...)...)
}

type Options struct {
	CprChecksum bool
	LegacyPhone bool
	Recognizer  []recognizer.Option
}

// Defaults builds the address, CPR and phone recognizers. The shared options
// are applied to each of them.
func Defaults(o Options) ([]*recognizer.Recognizer, error) {
	address, err := NewAddressRecognizer(o.Recognizer...)
	if err != nil {
		return nil, err
	}

	cprOpts := o.Recognizer
	if o.CprChecksum {
		cprOpts = append(append([]recognizer.Option{}, cprOpts...), WithCprChecksum())
	}

	cpr, err := NewCprRecognizer(cprOpts...)
	if err != nil {
		return nil, err
	}

	newPhone := NewPhoneRecognizer
	if o.LegacyPhone {
		newPhone = NewLegacyPhoneRecognizer
	}

	phone, err := newPhone(o.Recognizer...)
	if err != nil {
		return nil, err
	}

	return []*recognizer.Recognizer{address, cpr, phone}, nil
}
