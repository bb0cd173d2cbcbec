package crawler

import (
	"errors"
	"fmt"

	"bbsharvest/internal/logger"
	"bbsharvest/internal/models"
)

// Registry errors.
var (
	ErrNoTargets     = errors.New("no targets registered")
	ErrUnknownTarget = errors.New("unknown target")
)

// Registry holds the named crawl targets and the current selection.
type Registry struct {
	targets map[string]models.CrawlTarget
	order   []string
	current string
}

// NewRegistry registers targets in order and selects current, or the first
// target when current is empty.
func NewRegistry(targets []models.CrawlTarget, current string) (*Registry, error) {
	if len(targets) == 0 {
		return nil, ErrNoTargets
	}

	r := &Registry{targets: make(map[string]models.CrawlTarget, len(targets))}
	for _, t := range targets {
		r.Add(t)
	}

	if current == "" {
		current = r.order[0]
	}

	if err := r.Use(current); err != nil {
		return nil, err
	}

	return r, nil
}

// Add registers a target. Re-adding a key replaces the target in place.
func (r *Registry) Add(t models.CrawlTarget) {
	if _, exists := r.targets[t.Key]; !exists {
		r.order = append(r.order, t.Key)
	}

	r.targets[t.Key] = t
}

// Use switches the current target.
func (r *Registry) Use(key string) error {
	if _, ok := r.targets[key]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTarget, key)
	}

	r.current = key

	return nil
}

// Current returns the selected target.
func (r *Registry) Current() models.CrawlTarget {
	return r.targets[r.current]
}

// Get returns the target registered under key.
func (r *Registry) Get(key string) (models.CrawlTarget, bool) {
	t, ok := r.targets[key]

	return t, ok
}

// List returns all targets in registration order.
func (r *Registry) List() []models.CrawlTarget {
	out := make([]models.CrawlTarget, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.targets[key])
	}

	return out
}

// Select resolves keys to targets, preserving the order given. An empty key
// list selects every target. Unknown keys are returned separately.
func (r *Registry) Select(keys []string) ([]models.CrawlTarget, []string) {
	if len(keys) == 0 {
		return r.List(), nil
	}

	var (
		selected []models.CrawlTarget
		unknown  []string
	)

	for _, key := range keys {
		t, ok := r.targets[key]
		if !ok {
			unknown = append(unknown, key)

			continue
		}

		selected = append(selected, t)
	}

	return selected, unknown
}

// LogTargets writes the registered targets to l, marking the current one.
func (r *Registry) LogTargets(l *logger.Logger) {
	for _, t := range r.List() {
		l.Info("target",
			"key", t.Key,
			"name", t.DisplayName(),
			"current", t.Key == r.current,
			"section_id", t.SectionID,
			"topic_class_id", t.TopicClassID,
			"description", t.Description,
		)
	}
}
