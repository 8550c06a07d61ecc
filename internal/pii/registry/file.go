package registry

import (
	"fmt"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	internal_errors "github.com/bricks-cloud/dkpii/internal/errors"
	"github.com/bricks-cloud/dkpii/internal/pii/danish"
	"github.com/bricks-cloud/dkpii/internal/pii/recognizer"
)

type PatternDefinition struct {
	Name  string  `json:"name"`
	Regex string  `json:"regex"`
	Score float64 `json:"score"`
}

// Definition describes a recognizer in a recognizers file. When no patterns
// are given the entry must name a built-in entity, whose patterns are kept.
type Definition struct {
	Name        string              `json:"name"`
	Entity      string              `json:"entity"`
	Language    string              `json:"language"`
	Patterns    []PatternDefinition `json:"patterns"`
	Context     []string            `json:"context"`
	DenyList    []string            `json:"deny_list"`
	CprChecksum bool                `json:"cpr_checksum"`
}

type FileConfig struct {
	Recognizers []Definition `json:"recognizers"`
}

// LoadFile reads recognizer definitions from a JSON file and adds them to the
// registry. Nothing is added when any definition is invalid.
func (reg *Registry) LoadFile(path string, opts ...recognizer.Option) error {
	built, err := readFile(path, opts...)
	if err != nil {
		return err
	}

	reg.Add(built...)
	return nil
}

func readFile(path string, opts ...recognizer.Option) ([]recognizer.EntityRecognizer, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), json.Parser()); err != nil {
		return nil, fmt.Errorf("unable to read recognizers file with path %s: %w", path, err)
	}

	fc := &FileConfig{}
	if err := k.UnmarshalWithConf("", fc, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal recognizers file with path %s: %w", path, err)
	}

	built := make([]recognizer.EntityRecognizer, 0, len(fc.Recognizers))
	for i, d := range fc.Recognizers {
		r, err := d.Build(opts...)
		if err != nil {
			return nil, fmt.Errorf("recognizer %d in %s: %w", i, path, err)
		}

		built = append(built, r)
	}

	return built, nil
}

// Build turns the definition into a recognizer. Shared options are applied
// before the definition's own fields.
func (d *Definition) Build(opts ...recognizer.Option) (*recognizer.Recognizer, error) {
	if len(d.Entity) == 0 {
		return nil, internal_errors.NewFieldValidationError("entity", "entity is required")
	}

	language := d.Language
	if len(language) == 0 {
		language = danish.Language
	}

	patterns := make([]*recognizer.Pattern, 0, len(d.Patterns))
	for _, pd := range d.Patterns {
		p, err := recognizer.NewPattern(pd.Name, pd.Regex, pd.Score)
		if err != nil {
			return nil, err
		}

		patterns = append(patterns, p)
	}

	all := append([]recognizer.Option{}, opts...)
	all = append(all,
		recognizer.WithLanguage(language),
		recognizer.WithEntity(d.Entity),
		recognizer.WithPatterns(patterns...),
		recognizer.WithContext(d.Context...),
	)

	if len(d.DenyList) != 0 {
		all = append(all, recognizer.WithDenyList(d.DenyList...))
	}

	if d.CprChecksum {
		all = append(all, danish.WithCprChecksum())
	}

	name := d.Name
	switch d.Entity {
	case danish.AddressEntity:
		if len(name) == 0 {
			name = "DaAddressRecognizer"
		}
		return buildWithDefaults(name, danish.AddressPatterns(), danish.AddressContext(), all)
	case danish.CprEntity:
		if len(name) == 0 {
			name = "DaCprRecognizer"
		}
		return buildWithDefaults(name, danish.CprPatterns(), danish.CprContext(), all)
	case danish.PhoneEntity:
		if len(name) == 0 {
			name = "DaPhoneRecognizer"
		}
		return buildWithDefaults(name, danish.PhonePatterns(), danish.PhoneContext(), all)
	}

	if len(name) == 0 {
		name = d.Entity + "Recognizer"
	}

	return recognizer.New(name, all...)
}

// buildWithDefaults puts the built-in patterns and context first so that the
// definition's non-empty values replace them.
func buildWithDefaults(name string, patterns []*recognizer.Pattern, context []string, opts []recognizer.Option) (*recognizer.Recognizer, error) {
	defaults := []recognizer.Option{
		recognizer.WithPatterns(patterns...),
		recognizer.WithContext(context...),
	}

	return recognizer.New(name, append(defaults, opts...)...)
}
