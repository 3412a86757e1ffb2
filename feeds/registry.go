// Package feeds provides the ordered feed registry shown in the reader menu
package feeds

import (
	"errors"
	"fmt"
	"strings"

	"feedreader/config"

	"github.com/samber/lo"
)

var (
	ErrEmptyRegistry   = errors.New("feed registry is empty")
	ErrIndexOutOfRange = errors.New("feed index out of range")
)

// Descriptor identifies a single feed by URL and display name
type Descriptor struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

// Registry is an ordered, read-only list of feed descriptors
type Registry struct {
	feeds []Descriptor
}

func NewRegistry(feeds []Descriptor) *Registry {
	return &Registry{feeds: append([]Descriptor(nil), feeds...)}
}

// FromConfig builds a registry from the [[feeds]] section, keeping file order
func FromConfig(cfg *config.TomlConfig) *Registry {
	return &Registry{
		feeds: lo.Map(cfg.Feeds, func(f config.TomlFeed, _ int) Descriptor {
			return Descriptor{URL: f.URL, Name: f.Name}
		}),
	}
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.feeds)
}

// All returns a copy of the descriptors
func (r *Registry) All() []Descriptor {
	if r == nil {
		return nil
	}
	return append([]Descriptor(nil), r.feeds...)
}

func (r *Registry) Get(index int) (Descriptor, error) {
	if index < 0 || index >= r.Len() {
		return Descriptor{}, fmt.Errorf("%w: %d (registry has %d feeds)", ErrIndexOutOfRange, index, r.Len())
	}
	return r.feeds[index], nil
}

// IndexOf returns the index of the first feed with the given name, or -1
func (r *Registry) IndexOf(name string) int {
	_, index, ok := lo.FindIndexOf(r.All(), func(d Descriptor) bool {
		return strings.EqualFold(d.Name, name)
	})
	if !ok {
		return -1
	}
	return index
}

// ValidationError reports a missing field on a registry entry
type ValidationError struct {
	Index int
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("feed %d: %s is not defined", e.Index, e.Field)
}

// Validate checks that the registry is non-empty and that every feed has a
// non-empty url and name. All violations are reported, not just the first one.
func Validate(r *Registry) error {
	if r.Len() == 0 {
		return ErrEmptyRegistry
	}

	var errs []error
	for i, feed := range r.feeds {
		if feed.URL == "" {
			errs = append(errs, &ValidationError{Index: i, Field: "url"})
		}
		if feed.Name == "" {
			errs = append(errs, &ValidationError{Index: i, Field: "name"})
		}
	}

	return errors.Join(errs...)
}
