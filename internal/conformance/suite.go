// Package conformance runs YAML suites of FHIRPath cases against one or
// more database targets and compares the results.
package conformance

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Suite is one YAML file of cases sharing a fixture resource.
type Suite struct {
	Name     string    `yaml:"name"`
	Resource yaml.Node `yaml:"resource"`
	Cases    []*Case   `yaml:"cases"`

	Path string `yaml:"-"`
}

// Case is one expression with its expected outcome.
type Case struct {
	Name         string    `yaml:"name"`
	Expression   string    `yaml:"expression"`
	ResourceType string    `yaml:"resourceType"`
	Resource     yaml.Node `yaml:"resource"`
	Expected     yaml.Node `yaml:"expected"`

	// Error, when set, expects compilation to fail with a message
	// containing it.
	Error string `yaml:"error"`

	// Skip lists dialects the case does not run on.
	Skip []string `yaml:"skip"`

	fixture      json.RawMessage
	expected     []any
	resourceType string
}

// Fixture returns the resource the case is evaluated against.
func (c *Case) Fixture() json.RawMessage {
	return c.fixture
}

// Want returns the expected collection.
func (c *Case) Want() []any {
	return c.expected
}

// SkipsDialect reports whether the case is excluded on dialect.
func (c *Case) SkipsDialect(dialect string) bool {
	return slices.Contains(c.Skip, dialect)
}

// LoadSuites reads every suite in paths. A directory contributes its
// *.yaml and *.yml files.
func LoadSuites(paths ...string) ([]*Suite, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if ext := filepath.Ext(path); !d.IsDir() && (ext == ".yaml" || ext == ".yml") {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	suites := make([]*Suite, 0, len(files))
	for _, f := range files {
		s, err := LoadSuite(f)
		if err != nil {
			return nil, err
		}
		suites = append(suites, s)
	}
	return suites, nil
}

// LoadSuite reads and checks one suite file.
func LoadSuite(path string) (*Suite, error) {
	data, err := os.ReadFile(path) //nolint:gosec // suite paths come from the user
	if err != nil {
		return nil, err
	}
	s, err := ParseSuite(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.Path = path
	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return s, nil
}

// ParseSuite decodes a suite and resolves each case's fixture and
// expected values.
func ParseSuite(data []byte) (*Suite, error) {
	var s Suite
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, err
	}

	for i, c := range s.Cases {
		if c.Name == "" {
			c.Name = c.Expression
		}
		if c.Expression == "" {
			return nil, fmt.Errorf("case %d (%s): expression is required", i, c.Name)
		}

		node := &c.Resource
		if node.Kind == 0 {
			node = &s.Resource
		}
		if node.Kind == 0 {
			return nil, fmt.Errorf("case %s: no resource", c.Name)
		}
		fixture, rt, err := decodeResource(node)
		if err != nil {
			return nil, fmt.Errorf("case %s: %w", c.Name, err)
		}
		c.fixture = fixture
		c.resourceType = c.ResourceType
		if c.resourceType == "" {
			c.resourceType = rt
		}

		if c.Error != "" {
			if c.Expected.Kind != 0 {
				return nil, fmt.Errorf("case %s: expected and error are exclusive", c.Name)
			}
			continue
		}
		want, err := decodeExpected(&c.Expected)
		if err != nil {
			return nil, fmt.Errorf("case %s: %w", c.Name, err)
		}
		c.expected = want
	}
	return &s, nil
}

func decodeResource(node *yaml.Node) (json.RawMessage, string, error) {
	var v map[string]any
	if err := node.Decode(&v); err != nil {
		return nil, "", fmt.Errorf("resource: %w", err)
	}
	rt, _ := v["resourceType"].(string)
	if rt == "" {
		return nil, "", errors.New("resource has no resourceType")
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, "", fmt.Errorf("resource: %w", err)
	}
	return raw, rt, nil
}

// decodeExpected converts the expected node into the runner's value form.
// A missing node or a scalar stands for a one-item (or empty) collection.
func decodeExpected(node *yaml.Node) ([]any, error) {
	if node.Kind == 0 {
		return []any{}, nil
	}
	v, err := nodeValue(node)
	if err != nil {
		return nil, err
	}
	if items, ok := v.([]any); ok {
		return items, nil
	}
	return []any{v}, nil
}

func nodeValue(node *yaml.Node) (any, error) {
	switch node.Kind {
	case yaml.DocumentNode:
		return nodeValue(node.Content[0])
	case yaml.AliasNode:
		return nodeValue(node.Alias)
	case yaml.SequenceNode:
		out := make([]any, len(node.Content))
		for i, item := range node.Content {
			v, err := nodeValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case yaml.MappingNode:
		out := make(map[string]any, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			v, err := nodeValue(node.Content[i+1])
			if err != nil {
				return nil, err
			}
			out[node.Content[i].Value] = v
		}
		return out, nil
	case yaml.ScalarNode:
		switch node.ShortTag() {
		case "!!int", "!!float":
			d, err := decimal.NewFromString(node.Value)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", node.Line, err)
			}
			return d, nil
		case "!!bool":
			var b bool
			if err := node.Decode(&b); err != nil {
				return nil, err
			}
			return b, nil
		case "!!null":
			return nil, nil
		default:
			return node.Value, nil
		}
	}
	return nil, fmt.Errorf("line %d: unsupported YAML node", node.Line)
}
