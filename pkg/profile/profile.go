// SPDX-License-Identifier: MPL-2.0

package profile

import (
	"slices"
	"strings"

	"github.com/hitbuild/hit/internal/dag"
)

// Reserved is the package name that refers to the synthetic profile package.
const Reserved = "profile"

type (
	// Source is one input of a package, identified by its content key.
	Source struct {
		URL    string `json:"url"`
		Key    string `json:"key"`
		Target string `json:"target"`
		Strip  int    `json:"strip"`
	}

	// Package is a node of the profile's dependency graph.
	Package struct {
		Name         string            `json:"name"`
		Sources      []Source          `json:"sources,omitempty"`
		Dependencies []string          `json:"dependencies,omitempty"`
		Parameters   map[string]string `json:"parameters,omitempty"`
		Build        string            `json:"build"`
	}

	// Profile is a validated set of packages. Its zero value is not usable;
	// obtain one from Load or Parse.
	Profile struct {
		Name       string            `json:"name"`
		Parameters map[string]string `json:"parameters,omitempty"`
		Packages   []Package         `json:"packages"`

		// Path is the profile file the profile was loaded from.
		Path string `json:"-"`

		graph *dag.Graph
		order []string
		index map[string]int
	}
)

// Package returns the named package.
func (p *Profile) Package(name string) (Package, bool) {
	i, ok := p.index[name]
	if !ok {
		return Package{}, false
	}
	return p.Packages[i], true
}

// Names returns the package names in declared order.
func (p *Profile) Names() []string {
	names := make([]string, len(p.Packages))
	for i := range p.Packages {
		names[i] = p.Packages[i].Name
	}
	return names
}

// Order returns the package names in build order: dependencies first, ties
// broken by declared order.
func (p *Profile) Order() []string {
	return slices.Clone(p.order)
}

// Closure returns name and all of its transitive dependencies in build order.
func (p *Profile) Closure(name string) ([]string, error) {
	return p.graph.Closure(name)
}

// LinkName returns the path of the profile symlink: the profile file path
// without its .yaml suffix.
func (p *Profile) LinkName() string {
	return p.Path[:len(p.Path)-len(Suffix)]
}

// EnvName returns the recipe variable that holds a dependency's artifact
// directory: the upper-cased name with every other character replaced by
// an underscore, followed by _DIR. Parse rejects profiles in which two
// packages map to the same variable.
func EnvName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - 'a' + 'A')
		case (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	b.WriteString("_DIR")
	return b.String()
}
