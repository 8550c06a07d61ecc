// Package registry keeps the recognizers known to the service, keyed by
// language and entity.
package registry

import (
	"fmt"
	"sort"
	"sync"

	internal_errors "github.com/bricks-cloud/dkpii/internal/errors"
	"github.com/bricks-cloud/dkpii/internal/pii/recognizer"
)

type key struct {
	language string
	entity   string
}

func keyOf(r recognizer.EntityRecognizer) key {
	return key{language: r.SupportedLanguage(), entity: r.SupportedEntity()}
}

type Registry struct {
	mu          sync.RWMutex
	recognizers map[key]recognizer.EntityRecognizer
	order       []key
	generation  uint64
}

func New() *Registry {
	return &Registry{
		recognizers: map[key]recognizer.EntityRecognizer{},
	}
}

// Add registers r. A recognizer already registered for the same language and
// entity is replaced and keeps its position.
func (reg *Registry) Add(rs ...recognizer.EntityRecognizer) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	for _, r := range rs {
		k := keyOf(r)
		if _, ok := reg.recognizers[k]; !ok {
			reg.order = append(reg.order, k)
		}

		reg.recognizers[k] = r
	}

	if len(rs) != 0 {
		reg.generation++
	}
}

func (reg *Registry) Remove(language, entity string) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	k := key{language: language, entity: entity}
	if _, ok := reg.recognizers[k]; !ok {
		return false
	}

	delete(reg.recognizers, k)
	for i, o := range reg.order {
		if o == k {
			reg.order = append(reg.order[:i], reg.order[i+1:]...)
			break
		}
	}

	reg.generation++
	return true
}

// Generation changes whenever recognizers are added, replaced or removed.
func (reg *Registry) Generation() uint64 {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	return reg.generation
}

func (reg *Registry) Get(language, entity string) (recognizer.EntityRecognizer, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	r, ok := reg.recognizers[key{language: language, entity: entity}]
	if !ok {
		return nil, internal_errors.NewNotFoundError("recognizer", fmt.Sprintf("no recognizer for entity %s in language %s", entity, language))
	}

	return r, nil
}

// ForLanguage returns the recognizers of a language in registration order,
// limited to the given entities when any are passed.
func (reg *Registry) ForLanguage(language string, entities ...string) ([]recognizer.EntityRecognizer, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	wanted := map[string]bool{}
	for _, e := range entities {
		wanted[e] = true
	}

	found := false
	selected := []recognizer.EntityRecognizer{}
	for _, k := range reg.order {
		if k.language != language {
			continue
		}

		found = true
		if len(wanted) != 0 && !wanted[k.entity] {
			continue
		}

		selected = append(selected, reg.recognizers[k])
	}

	if !found {
		return nil, internal_errors.NewNotFoundError("language", fmt.Sprintf("no recognizers for language %s", language))
	}

	return selected, nil
}

func (reg *Registry) Entities(language string) []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	entities := []string{}
	for _, k := range reg.order {
		if k.language == language {
			entities = append(entities, k.entity)
		}
	}

	return entities
}

func (reg *Registry) Languages() []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	seen := map[string]bool{}
	languages := []string{}
	for _, k := range reg.order {
		if !seen[k.language] {
			seen[k.language] = true
			languages = append(languages, k.language)
		}
	}

	sort.Strings(languages)
	return languages
}

func (reg *Registry) Len() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	return len(reg.order)
}
