package policy

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	internal_errors "github.com/bricks-cloud/dkpii/internal/errors"
	"github.com/bricks-cloud/dkpii/internal/pii"
	"github.com/bricks-cloud/dkpii/internal/telemetry"
	"github.com/tidwall/gjson"

	goopenai "github.com/sashabaranov/go-openai"
)

type Action string

const (
	Block          Action = "block"
	AllowButWarn   Action = "allow_but_warn"
	AllowButRedact Action = "allow_but_redact"
	Allow          Action = "allow"
)

var precedence = map[Action]int{
	Allow:          0,
	AllowButRedact: 1,
	AllowButWarn:   2,
	Block:          3,
}

func (a Action) Valid() bool {
	_, ok := precedence[a]
	return ok
}

func (a Action) outranks(other Action) bool {
	return precedence[a] > precedence[other]
}

type Scanner interface {
	Scan(input []string) (*pii.Result, error)
}

// Policy maps entity types onto actions. Types without a rule are allowed.
type Policy struct {
	Id             string            `json:"id"`
	Rules          map[string]Action `json:"rules"`
	ScoreThreshold float64           `json:"scoreThreshold"`
}

// Request carries the contents to inspect. Strings found in Body at the gjson
// Paths are inspected after Contents.
type Request struct {
	Contents []string        `json:"contents"`
	Body     json.RawMessage `json:"body,omitempty"`
	Paths    []string        `json:"paths,omitempty"`
	Policy   *Policy         `json:"policy"`
}

func (r *Request) AllContents() []string {
	contents := append([]string{}, r.Contents...)
	if len(r.Body) == 0 || len(r.Paths) == 0 {
		return contents
	}

	return append(contents, ContentsFromJSON(r.Body, r.Paths...)...)
}

type Response struct {
	Contents       []string        `json:"contents"`
	Action         Action          `json:"action"`
	Warnings       map[string]bool `json:"warnings"`
	BlockedReasons map[string]bool `json:"blockedReasons"`
}

func (p *Policy) Validate() error {
	if p == nil {
		return internal_errors.NewFieldValidationError("policy", "is required")
	}

	for entity, action := range p.Rules {
		if !action.Valid() {
			return internal_errors.NewFieldValidationError("rules."+entity, "unknown action "+string(action))
		}
	}

	if p.ScoreThreshold < 0 || p.ScoreThreshold > 1 {
		return internal_errors.NewFieldValidationError("scoreThreshold", "must be between 0 and 1")
	}

	return nil
}

func (p *Policy) action(entityType string) Action {
	if a, ok := p.Rules[entityType]; ok {
		return a
	}

	return Allow
}

func (p *Policy) shouldInspect() bool {
	for _, a := range p.Rules {
		if a != Allow {
			return true
		}
	}

	return false
}

// Inspect scans the contents and applies the policy to every entity at or
// above the score threshold. Redacted spans are replaced with <ENTITY_TYPE>.
func (p *Policy) Inspect(s Scanner, contents []string) (*Response, error) {
	resp := &Response{
		Contents:       append([]string{}, contents...),
		Action:         Allow,
		Warnings:       map[string]bool{},
		BlockedReasons: map[string]bool{},
	}

	if p == nil || !p.shouldInspect() {
		return resp, nil
	}

	result, err := s.Scan(contents)
	if err != nil {
		return nil, err
	}

	for i, detection := range result.Detections {
		if detection == nil || i >= len(contents) {
			continue
		}

		redact := []*pii.Entity{}
		for _, e := range detection.Entities {
			if e.Score < p.ScoreThreshold {
				continue
			}

			a := p.action(e.Type)
			switch a {
			case Block:
				resp.BlockedReasons[e.Type] = true
			case AllowButWarn:
				resp.Warnings[e.Type] = true
			case AllowButRedact:
				redact = append(redact, e)
			}

			if a.outranks(resp.Action) {
				resp.Action = a
			}
		}

		resp.Contents[i] = Redact(contents[i], redact)
	}

	telemetry.Incr("dkpii.policy.inspect.action", []string{"action:" + string(resp.Action)}, 1)

	return resp, nil
}

// Redact replaces the entity spans in text with their type in angle brackets.
// Overlapping spans collapse into the earliest one.
func Redact(text string, entities []*pii.Entity) string {
	if len(entities) == 0 {
		return text
	}

	sorted := append([]*pii.Entity{}, entities...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].BeginOffset != sorted[j].BeginOffset {
			return sorted[i].BeginOffset < sorted[j].BeginOffset
		}

		return sorted[i].EndOffset > sorted[j].EndOffset
	})

	var b strings.Builder
	last := 0
	for _, e := range sorted {
		if e.BeginOffset < last || e.BeginOffset < 0 || e.EndOffset > len(text) || e.BeginOffset >= e.EndOffset {
			continue
		}

		b.WriteString(text[last:e.BeginOffset])
		b.WriteString("<" + e.Type + ">")
		last = e.EndOffset
	}

	b.WriteString(text[last:])

	return b.String()
}

func keys(m map[string]bool) []string {
	ks := make([]string, 0, len(m))
	for k := range m {
		ks = append(ks, k)
	}

	sort.Strings(ks)
	return ks
}

// Filter inspects OpenAI style requests in place. Blocked contents surface as
// a BlockedError and warnings as a WarningError.
func (p *Policy) Filter(s Scanner, input any) error {
	if p == nil || !p.shouldInspect() {
		return nil
	}

	switch converted := input.(type) {
	case *goopenai.EmbeddingRequest:
		if inputs, ok := converted.Input.([]interface{}); ok {
			inputsToInspect := []string{}

			for _, input := range inputs {
				stringified, ok := input.(string)
				if !ok {
					return internal_errors.NewFieldValidationError("input", "input is not string")
				}

				inputsToInspect = append(inputsToInspect, stringified)
			}

			updated, err := p.inspect(s, inputsToInspect)
			if err != nil {
				return err
			}

			converted.Input = updated
		} else if inputs, ok := converted.Input.([]string); ok {
			updated, err := p.inspect(s, inputs)
			if err != nil {
				return err
			}

			converted.Input = updated
		} else if input, ok := converted.Input.(string); ok {
			updated, err := p.inspect(s, []string{input})
			if err != nil {
				return err
			}

			if len(updated) == 1 {
				converted.Input = updated[0]
			}
		}

		return nil
	case *goopenai.ChatCompletionRequest:
		contents := []string{}
		for _, message := range converted.Messages {
			contents = append(contents, message.Content)
		}

		updatedContents, err := p.inspect(s, contents)
		if err != nil {
			return err
		}

		if len(updatedContents) != len(converted.Messages) {
			return fmt.Errorf("updated contents length %d not consistent with %d messages", len(updatedContents), len(converted.Messages))
		}

		for index, c := range updatedContents {
			converted.Messages[index].Content = c
		}

		return nil
	}

	return nil
}

func (p *Policy) inspect(s Scanner, contents []string) ([]string, error) {
	resp, err := p.Inspect(s, contents)
	if err != nil {
		return nil, err
	}

	if resp.Action == Block {
		return nil, internal_errors.NewBlockedError(keys(resp.BlockedReasons))
	}

	if len(resp.Warnings) != 0 {
		return nil, internal_errors.NewWarningError(keys(resp.Warnings))
	}

	return resp.Contents, nil
}

// ContentsFromJSON collects every string found at the given gjson paths.
// Arrays are flattened one level.
func ContentsFromJSON(body []byte, paths ...string) []string {
	contents := []string{}
	for _, r := range gjson.GetManyBytes(body, paths...) {
		if r.IsArray() {
			for _, item := range r.Array() {
				if item.Type == gjson.String {
					contents = append(contents, item.String())
				}
			}

			continue
		}

		if r.Type == gjson.String {
			contents = append(contents, r.String())
		}
	}

	return contents
}
