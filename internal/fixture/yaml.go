// File: internal/fixture/yaml.go
package fixture

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// DuplicateKeyError reports a key defined twice in a fixture document, either
// literally or after nested mappings are flattened into dotted keys.
type DuplicateKeyError struct {
	Section   string
	Key       string
	FirstLine int
	Line      int
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate fixture key %q in %s (line %d, first defined on line %d)", e.Key, e.Section, e.Line, e.FirstLine)
}

// LoadFile opens path and parses it with LoadYAML.
func LoadFile(path string) (*Page, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fixture file: %w", err)
	}
	defer f.Close()

	page, err := LoadYAML(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return page, nil
}

// LoadYAML reads a fixture document of the form
//
//	name: signin
//	selectors:
//	  userEmail:
//	    input: '[id="text-input"]'
//	messages: {...}
//	styles: {...}
//
// Nested mappings flatten to dotted keys. Any duplicate is an error.
func LoadYAML(r io.Reader) (*Page, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("fixture document is empty")
		}
		return nil, fmt.Errorf("failed to parse fixture document: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, errors.New("fixture document is empty")
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: fixture document must be a mapping", root.Line)
	}

	var name string
	sections := map[string]map[string]string{}
	seen := map[string]int{}

	for i := 0; i+1 < len(root.Content); i += 2 {
		k, v := root.Content[i], root.Content[i+1]
		if first, dup := seen[k.Value]; dup {
			return nil, &DuplicateKeyError{Section: "document", Key: k.Value, FirstLine: first, Line: k.Line}
		}
		seen[k.Value] = k.Line

		switch k.Value {
		case "name":
			if v.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: name must be a string", v.Line)
			}
			name = v.Value
		case KindSelectors, KindMessages, KindStyles:
			entries := map[string]string{}
			if v.Kind == yaml.ScalarNode && v.Tag == "!!null" {
				sections[k.Value] = entries
				continue
			}
			if err := flatten(k.Value, "", v, entries, map[string]int{}); err != nil {
				return nil, err
			}
			sections[k.Value] = entries
		default:
			return nil, fmt.Errorf("line %d: unknown fixture section %q", k.Line, k.Value)
		}
	}

	return NewPage(name, sections[KindSelectors], sections[KindMessages], sections[KindStyles])
}

func flatten(section, prefix string, n *yaml.Node, out map[string]string, lines map[string]int) error {
	if n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: %s must be a mapping", n.Line, qualified(section, prefix))
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if k.Value == "" {
			return fmt.Errorf("line %d: empty key in %s", k.Line, section)
		}
		key := k.Value
		if prefix != "" {
			key = prefix + "." + k.Value
		}
		if v.Kind == yaml.AliasNode {
			v = v.Alias
		}
		switch v.Kind {
		case yaml.MappingNode:
			if first, dup := lines[key]; dup {
				return &DuplicateKeyError{Section: section, Key: key, FirstLine: first, Line: k.Line}
			}
			lines[key] = k.Line
			if err := flatten(section, key, v, out, lines); err != nil {
				return err
			}
		case yaml.ScalarNode:
			if first, dup := lines[key]; dup {
				return &DuplicateKeyError{Section: section, Key: key, FirstLine: first, Line: k.Line}
			}
			lines[key] = k.Line
			out[key] = v.Value
		default:
			return fmt.Errorf("line %d: %s must be a string or a mapping", v.Line, qualified(section, key))
		}
	}
	return nil
}

func qualified(section, key string) string {
	if key == "" {
		return section
	}
	return section + "." + key
}
