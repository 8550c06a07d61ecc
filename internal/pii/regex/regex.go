package regex

import (
	"sync"
	"time"

	"github.com/bricks-cloud/dkpii/internal/pii"
	"github.com/bricks-cloud/dkpii/internal/pii/recognizer"
	"github.com/bricks-cloud/dkpii/internal/telemetry"
	"go.uber.org/zap"
)

const Source = "regex"

// RecognizerSource is the part of the registry the detector needs.
type RecognizerSource interface {
	ForLanguage(language string, entities ...string) ([]recognizer.EntityRecognizer, error)
}

type matcher interface {
	Match(text string) ([]*recognizer.Result, error)
}

type Detector struct {
	source    RecognizerSource
	language  string
	entities  []string
	threshold float64
	log       *zap.Logger
}

func NewDetector(source RecognizerSource, language string, threshold float64, log *zap.Logger, entities ...string) *Detector {
	return &Detector{
		source:    source,
		language:  language,
		entities:  entities,
		threshold: threshold,
		log:       log,
	}
}

// Detect runs every recognizer of the detector's language over each input.
// Entities scoring below the threshold are dropped.
func (d *Detector) Detect(input []string) (*pii.Result, error) {
	recognizers, err := d.source.ForLanguage(d.language, d.entities...)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		telemetry.Timing("dkpii.regex.detect.latency", time.Since(start), nil, 1)
	}()

	result := &pii.Result{
		Detections: make([]*pii.Detection, len(input)),
	}

	var wg sync.WaitGroup
	for index, text := range input {
		wg.Add(1)
		go func(t string, i int) {
			defer wg.Done()

			result.Detections[i] = &pii.Detection{
				Input:    t,
				Entities: d.detect(t, recognizers),
			}
		}(text, index)
	}

	wg.Wait()

	return result, nil
}

func (d *Detector) detect(text string, recognizers []recognizer.EntityRecognizer) []*pii.Entity {
	entities := []*pii.Entity{}

	for _, r := range recognizers {
		var results []*recognizer.Result
		if m, ok := r.(matcher); ok {
			var err error
			results, err = m.Match(text)
			if err != nil {
				telemetry.Incr("dkpii.regex.detect.timeout", []string{"recognizer:" + r.Name()}, 1)
				d.log.Debug("error when matching recognizer patterns", zap.String("recognizer", r.Name()), zap.Error(err))
			}
		} else {
			results = r.FindMatches(text)
		}

		for _, res := range results {
			if res.Score < d.threshold {
				continue
			}

			tags := []string{"entity:" + res.EntityType}
			telemetry.Incr("dkpii.regex.detect.entities", tags, 1)
			telemetry.Observe("dkpii.regex.detect.score", res.Score, tags, 1)

			entities = append(entities, &pii.Entity{
				BeginOffset: res.Start,
				EndOffset:   res.End,
				Type:        res.EntityType,
				Score:       res.Score,
				Text:        res.Text,
				Source:      Source,
			})
		}
	}

	return entities
}

// WithFilter returns a detector over the same recognizers with a different
// entity filter and threshold.
func (d *Detector) WithFilter(threshold float64, entities ...string) *Detector {
	return NewDetector(d.source, d.language, threshold, d.log, entities...)
}

// WithLanguage returns a detector for another language of the same source.
func (d *Detector) WithLanguage(language string) *Detector {
	return NewDetector(d.source, language, d.threshold, d.log, d.entities...)
}

func (d *Detector) Language() string {
	return d.language
}
