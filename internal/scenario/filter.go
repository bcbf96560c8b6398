// internal/scenario/filter.go
package scenario

import (
	"fmt"
	"strings"
)

// Filter selects scenarios by tag and kind. The zero value selects everything.
type Filter struct {
	Tags []string
	Kind Kind
}

// NormalizeTag maps the accepted spellings of a tag onto the canonical form:
// "t_01", "T01", "01" and "1" all become "T_01".
func NormalizeTag(tag string) string {
	t := strings.ToUpper(strings.TrimSpace(tag))
	if t == "" {
		return ""
	}
	num := t
	switch {
	case strings.HasPrefix(t, "T_"):
		num = t[2:]
	case strings.HasPrefix(t, "T"):
		num = t[1:]
	}
	if num == "" || strings.Trim(num, "0123456789") != "" {
		return t
	}
	if len(num) == 1 {
		num = "0" + num
	}
	return "T_" + num
}

// Select returns the matching scenarios in suite order. A tag that names no
// scenario of the suite, or names one the kind filter leaves out, is a
// *ConfigurationError.
func (f Filter) Select(s Suite) ([]*Scenario, error) {
	want := make(map[string]bool, len(f.Tags))
	for _, tag := range f.Tags {
		if n := NormalizeTag(tag); n != "" {
			want[n] = false
		}
	}

	var out []*Scenario
	var excluded []string
	for _, sc := range s.Scenarios {
		tag := NormalizeTag(sc.Tag)
		if len(want) > 0 {
			if _, ok := want[tag]; !ok {
				continue
			}
			want[tag] = true
		}
		if f.Kind != KindAny && sc.Kind != f.Kind {
			if len(want) > 0 {
				excluded = append(excluded, sc.Tag)
			}
			continue
		}
		out = append(out, sc)
	}

	var unknown []string
	for _, tag := range f.Tags {
		n := NormalizeTag(tag)
		if seen, ok := want[n]; ok && !seen {
			unknown = append(unknown, tag)
			want[n] = true
		}
	}
	if len(unknown) > 0 {
		return nil, configErr(fmt.Sprintf("unknown scenario tag(s) %s", strings.Join(unknown, ", ")), nil)
	}
	if len(excluded) > 0 {
		return nil, configErr(fmt.Sprintf("scenario(s) %s are not of kind %s", strings.Join(excluded, ", "), f.Kind), nil)
	}
	return out, nil
}
