// Package types contains the job tree shared across the harness: tags, jobs,
// suites and tests.
package types

import (
	"fmt"
	"strings"
	"sync"
)

// Special tag names.
const (
	TagSkip  = "skip"
	TagOnly  = "only"
	TagDebug = "debug"
	TagTodo  = "todo"
)

// PaletteSize is the number of distinct tag colors.
const PaletteSize = 10

// Palette holds the tag badge colors, indexed by Tag.Color.
var Palette = [PaletteSize]string{
	"#0d6efd", "#6610f2", "#d63384", "#dc3545", "#fd7e14",
	"#ffc107", "#198754", "#20c997", "#0dcaf0", "#6c757d",
}

// ConfigEntry is a parsed key=value tag.
type ConfigEntry struct {
	Key   string
	Value string
	apply func(*JobConfig)
}

// Apply writes the entry into cfg.
func (c *ConfigEntry) Apply(cfg *JobConfig) {
	c.apply(cfg)
}

// Tag is interned by name: two tags with the same name are the same pointer.
type Tag struct {
	Name    string
	Special bool
	Config  *ConfigEntry
	Color   int
}

func (t *Tag) String() string {
	return t.Name
}

// Ordinary reports whether the tag is neither special nor a config tag.
func (t *Tag) Ordinary() bool {
	return !t.Special && t.Config == nil
}

// TagRegistry interns tags.
type TagRegistry struct {
	mu   sync.Mutex
	tags map[string]*Tag
	// order keeps first-seen order for listing.
	order []*Tag
}

func NewTagRegistry() *TagRegistry {
	return &TagRegistry{tags: make(map[string]*Tag)}
}

// Intern returns the tag for name, creating it on first use. Config tags with
// an unknown key or an invalid value are rejected.
func (r *TagRegistry) Intern(name string) (*Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("tag name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if tag, ok := r.tags[name]; ok {
		return tag, nil
	}

	tag := &Tag{Name: name, Color: TagColor(name)}
	switch name {
	case TagSkip, TagOnly, TagDebug, TagTodo:
		tag.Special = true
	default:
		if key, value, ok := strings.Cut(name, "="); ok {
			entry, err := parseConfigTag(strings.TrimSpace(key), strings.TrimSpace(value))
			if err != nil {
				return nil, fmt.Errorf("invalid config tag %q: %w", name, err)
			}
			tag.Config = entry
		}
	}
	r.tags[name] = tag
	r.order = append(r.order, tag)
	return tag, nil
}

// InternAll interns every name, collapsing duplicates while keeping the first
// occurrence order.
func (r *TagRegistry) InternAll(names ...string) ([]*Tag, error) {
	tags := make([]*Tag, 0, len(names))
	seen := make(map[*Tag]bool, len(names))
	for _, name := range names {
		tag, err := r.Intern(name)
		if err != nil {
			return nil, err
		}
		if !seen[tag] {
			seen[tag] = true
			tags = append(tags, tag)
		}
	}
	return tags, nil
}

// Lookup returns an already interned tag.
func (r *TagRegistry) Lookup(name string) (*Tag, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tag, ok := r.tags[strings.TrimSpace(name)]
	return tag, ok
}

// All returns the interned tags in first-seen order.
func (r *TagRegistry) All() []*Tag {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Tag, len(r.order))
	copy(out, r.order)
	return out
}

// TagColor returns the palette index of name: the sum of its runes. Collisions
// are expected.
func TagColor(name string) int {
	sum := 0
	for _, r := range name {
		sum += int(r)
	}
	return sum % PaletteSize
}
