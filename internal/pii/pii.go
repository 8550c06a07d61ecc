package pii

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/bricks-cloud/dkpii/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

type Detector interface {
	Detect(input []string) (*Result, error)
}

type Scanner struct {
	detectors []Detector
	log       *zap.Logger
}

type Detection struct {
	Input    string    `json:"input"`
	Entities []*Entity `json:"entities"`
}

type Entity struct {
	BeginOffset int     `json:"beginOffset"`
	EndOffset   int     `json:"endOffset"`
	Type        string  `json:"type"`
	Score       float64 `json:"score"`
	Text        string  `json:"text,omitempty"`
	Source      string  `json:"source,omitempty"`
}

type Result struct {
	Detections []*Detection `json:"detections"`
}

func NewScanner(log *zap.Logger, ds ...Detector) *Scanner {
	return &Scanner{
		detectors: ds,
		log:       log,
	}
}

// Scan runs every detector over the input and merges their entities per input.
// A failing detector is skipped as long as another one succeeds.
func (s *Scanner) Scan(input []string) (*Result, error) {
	_, span := otel.Tracer("github.com/bricks-cloud/dkpii/internal/pii").Start(context.Background(), "pii.scan")
	defer span.End()

	span.SetAttributes(
		attribute.Int("pii.inputs", len(input)),
		attribute.Int("pii.detectors", len(s.detectors)),
	)

	start := time.Now()
	defer func() {
		telemetry.Timing("dkpii.scanner.scan.latency", time.Since(start), nil, 1)
	}()

	merged := &Result{
		Detections: make([]*Detection, len(input)),
	}

	for i, text := range input {
		merged.Detections[i] = &Detection{
			Input:    text,
			Entities: []*Entity{},
		}
	}

	var errs []error
	for _, d := range s.detectors {
		r, err := d.Detect(input)
		if err != nil {
			telemetry.Incr("dkpii.scanner.scan.detector_error", nil, 1)
			s.log.Debug("error when detecting pii entities", zap.Error(err))
			errs = append(errs, err)
			continue
		}

		for i, detection := range r.Detections {
			if detection == nil || i >= len(merged.Detections) {
				continue
			}

			merged.Detections[i].Entities = append(merged.Detections[i].Entities, detection.Entities...)
		}
	}

	if len(s.detectors) != 0 && len(errs) == len(s.detectors) {
		err := errors.Join(errs...)
		span.RecordError(err)
		span.SetStatus(codes.Error, "all detectors failed")
		return nil, errs[0]
	}

	found := 0
	for _, detection := range merged.Detections {
		detection.Entities = RemoveDuplicates(detection.Entities)
		found += len(detection.Entities)
	}

	span.SetAttributes(attribute.Int("pii.entities", found))
	telemetry.Incr("dkpii.scanner.scan.success", nil, 1)

	return merged, nil
}

// RemoveDuplicates sorts entities by offset and drops any entity whose span is
// contained in another entity of the same type with at least the same score.
func RemoveDuplicates(entities []*Entity) []*Entity {
	sorted := append([]*Entity{}, entities...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].BeginOffset != sorted[j].BeginOffset {
			return sorted[i].BeginOffset < sorted[j].BeginOffset
		}

		if sorted[i].EndOffset != sorted[j].EndOffset {
			return sorted[i].EndOffset > sorted[j].EndOffset
		}

		return sorted[i].Score > sorted[j].Score
	})

	kept := []*Entity{}
	for i, e := range sorted {
		dominated := false
		for j, other := range sorted {
			if i == j || other.Type != e.Type {
				continue
			}

			if other.BeginOffset > e.BeginOffset || other.EndOffset < e.EndOffset {
				continue
			}

			sameSpan := other.BeginOffset == e.BeginOffset && other.EndOffset == e.EndOffset
			if other.Score > e.Score || (other.Score == e.Score && (!sameSpan || j < i)) {
				dominated = true
				break
			}
		}

		if !dominated {
			kept = append(kept, e)
		}
	}

	return kept
}
