// File: internal/fixture/fixture.go
package fixture

import (
	"errors"
	"fmt"
	"sort"
)

// Set kinds.
const (
	KindSelectors = "selectors"
	KindMessages  = "messages"
	KindStyles    = "styles"
)

// ErrMissingKey is matched by every *MissingKeyError.
var ErrMissingKey = errors.New("missing fixture key")

// MissingKeyError reports a lookup of a key that the set does not define.
type MissingKeyError struct {
	Kind string
	Key  string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("missing fixture key %q in %s", e.Key, e.Kind)
}

// Is lets errors.Is match ErrMissingKey.
func (e *MissingKeyError) Is(target error) bool {
	return target == ErrMissingKey
}

// Set is an immutable, validated key to value mapping for one kind of fixture data.
type Set struct {
	kind    string
	entries map[string]string
	keys    []string
}

// NewSet copies entries into a new Set. Empty keys or values are rejected.
func NewSet(kind string, entries map[string]string) (*Set, error) {
	s := &Set{
		kind:    kind,
		entries: make(map[string]string, len(entries)),
		keys:    make([]string, 0, len(entries)),
	}
	for k, v := range entries {
		if k == "" {
			return nil, fmt.Errorf("%s: empty key", kind)
		}
		if v == "" {
			return nil, fmt.Errorf("%s: key %q has an empty value", kind, k)
		}
		s.entries[k] = v
		s.keys = append(s.keys, k)
	}
	sort.Strings(s.keys)
	return s, nil
}

// MustSet is NewSet for package-level literals; it panics on invalid input.
func MustSet(kind string, entries map[string]string) *Set {
	s, err := NewSet(kind, entries)
	if err != nil {
		panic(err)
	}
	return s
}

// Kind returns the set's label.
func (s *Set) Kind() string {
	if s == nil {
		return ""
	}
	return s.kind
}

// Lookup returns the value for key or a *MissingKeyError.
func (s *Set) Lookup(key string) (string, error) {
	if s == nil {
		return "", &MissingKeyError{Key: key}
	}
	v, ok := s.entries[key]
	if !ok {
		return "", &MissingKeyError{Kind: s.kind, Key: key}
	}
	return v, nil
}

// Has reports whether key is defined.
func (s *Set) Has(key string) bool {
	_, err := s.Lookup(key)
	return err == nil
}

// Keys returns the defined keys in sorted order.
func (s *Set) Keys() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Len returns the number of entries.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}

// with returns a new Set holding s overlaid by override.
func (s *Set) with(override *Set) (*Set, error) {
	merged := make(map[string]string, s.Len()+override.Len())
	if s != nil {
		for k, v := range s.entries {
			merged[k] = v
		}
	}
	if override != nil {
		for k, v := range override.entries {
			merged[k] = v
		}
	}
	kind := s.Kind()
	if kind == "" {
		kind = override.Kind()
	}
	return NewSet(kind, merged)
}

// Page groups the fixtures for one page under test.
type Page struct {
	Name      string
	Selectors *Set
	Messages  *Set
	Styles    *Set
}

// NewPage validates the three maps and builds a Page.
func NewPage(name string, selectors, messages, styles map[string]string) (*Page, error) {
	sel, err := NewSet(KindSelectors, selectors)
	if err != nil {
		return nil, err
	}
	msg, err := NewSet(KindMessages, messages)
	if err != nil {
		return nil, err
	}
	sty, err := NewSet(KindStyles, styles)
	if err != nil {
		return nil, err
	}
	return &Page{Name: name, Selectors: sel, Messages: msg, Styles: sty}, nil
}

// Selector looks up a selector.
func (p *Page) Selector(key string) (string, error) { return p.Selectors.Lookup(key) }

// Message looks up an expected message.
func (p *Page) Message(key string) (string, error) { return p.Messages.Lookup(key) }

// Style looks up an expected computed style.
func (p *Page) Style(key string) (string, error) { return p.Styles.Lookup(key) }

// Merge returns a new Page whose sets are p's overlaid with override's values.
// Keys that only exist in override are kept. Neither input is modified.
func (p *Page) Merge(override *Page) (*Page, error) {
	if override == nil {
		return p, nil
	}
	sel, err := p.Selectors.with(override.Selectors)
	if err != nil {
		return nil, err
	}
	msg, err := p.Messages.with(override.Messages)
	if err != nil {
		return nil, err
	}
	sty, err := p.Styles.with(override.Styles)
	if err != nil {
		return nil, err
	}
	name := p.Name
	if override.Name != "" {
		name = override.Name
	}
	return &Page{Name: name, Selectors: sel, Messages: msg, Styles: sty}, nil
}

// Unknown lists the override keys p does not define, as "kind.key". Such keys
// are kept by Merge but no built-in scenario reads them, so they usually
// point at a misspelled override.
func (p *Page) Unknown(override *Page) []string {
	if override == nil {
		return nil
	}
	var out []string
	pairs := []struct{ base, over *Set }{
		{p.Selectors, override.Selectors},
		{p.Messages, override.Messages},
		{p.Styles, override.Styles},
	}
	for _, pair := range pairs {
		for _, key := range pair.over.Keys() {
			if !pair.base.Has(key) {
				out = append(out, pair.over.Kind()+"."+key)
			}
		}
	}
	return out
}
