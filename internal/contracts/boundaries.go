package contracts

import (
	"fmt"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

// ForbiddenPattern is one banned construct within a boundary layer.
type ForbiddenPattern struct {
	Pattern string `yaml:"pattern"`
	Reason  string `yaml:"reason,omitempty"`

	// compiled is the parsed regex, populated by ParseBoundaries.
	compiled *regexp.Regexp
}

// Match reports whether the pattern occurs in the content.
func (f *ForbiddenPattern) Match(content string) bool {
	return f.compiled != nil && f.compiled.MatchString(content)
}

// Layer scopes forbidden patterns to files matching a glob.
type Layer struct {
	Name      string             `yaml:"name,omitempty"`
	Glob      string             `yaml:"glob"`
	Forbidden []ForbiddenPattern `yaml:"forbidden,omitempty"`
}

// Boundaries is the parsed boundaries contract.
type Boundaries struct {
	Layers []Layer `yaml:"layers"`
}

// ParseBoundaries decodes the boundaries contract and compiles every
// forbidden pattern. A bad glob or regex fails the whole parse so broken
// contracts surface at pin time, not mid-phase.
func ParseBoundaries(content string) (*Boundaries, error) {
	var b Boundaries
	if err := yaml.Unmarshal([]byte(content), &b); err != nil {
		return nil, fmt.Errorf("parsing boundaries contract: %w", err)
	}
	for i := range b.Layers {
		layer := &b.Layers[i]
		if layer.Glob == "" {
			return nil, fmt.Errorf("boundaries layer %d has no glob", i)
		}
		for j := range layer.Forbidden {
			f := &layer.Forbidden[j]
			re, err := regexp.Compile(f.Pattern)
			if err != nil {
				return nil, fmt.Errorf("boundaries layer %q pattern %q: %w", layer.Glob, f.Pattern, err)
			}
			f.compiled = re
		}
	}
	return &b, nil
}

// Physics is the parsed physics contract: the declared API surface.
type Physics struct {
	Paths []string
}

// physicsDoc accepts both shapes the contract appears in: a plain list of
// path strings, or an OpenAPI-style mapping keyed by path.
type physicsDoc struct {
	Paths yaml.Node `yaml:"paths"`
}

// ParsePhysics extracts the declared route paths from the physics contract.
func ParsePhysics(content string) (*Physics, error) {
	var doc physicsDoc
	if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
		return nil, fmt.Errorf("parsing physics contract: %w", err)
	}

	var paths []string
	switch doc.Paths.Kind {
	case yaml.SequenceNode:
		if err := doc.Paths.Decode(&paths); err != nil {
			return nil, fmt.Errorf("physics paths list: %w", err)
		}
	case yaml.MappingNode:
		for i := 0; i < len(doc.Paths.Content); i += 2 {
			paths = append(paths, doc.Paths.Content[i].Value)
		}
	case 0:
		// No paths section: an empty surface is legal.
	default:
		return nil, fmt.Errorf("physics paths must be a list or mapping")
	}

	sort.Strings(paths)
	return &Physics{Paths: paths}, nil
}
