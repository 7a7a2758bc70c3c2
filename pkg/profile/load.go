// SPDX-License-Identifier: MPL-2.0

package profile

import (
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
	"mvdan.cc/sh/v3/syntax"

	"github.com/hitbuild/hit/internal/dag"
	"github.com/hitbuild/hit/pkg/cueutil"
)

// Suffix is the required extension of profile files.
const Suffix = ".yaml"

var (
	//go:embed profile_schema.cue
	profileSchema []byte

	namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._+-]*$`)
)

// Load reads, validates and returns the profile stored at path.
// Relative source paths are resolved against the profile's directory.
func Load(path string) (*Profile, error) {
	if !strings.HasSuffix(path, Suffix) {
		return nil, configErr(path, "", "profile file name must end in %s", Suffix)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigurationError{Path: path, Err: err}
	}
	return Parse(data, path)
}

// Parse validates profile content that was read from path. The path is used
// for the default profile name, for resolving relative sources and in errors.
func Parse(data []byte, path string) (*Profile, error) {
	if !strings.HasSuffix(path, Suffix) {
		return nil, configErr(path, "", "profile file name must end in %s", Suffix)
	}
	if err := cueutil.CheckFileSize(data, cueutil.DefaultMaxFileSize, path); err != nil {
		return nil, &ConfigurationError{Path: path, Err: err}
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ConfigurationError{Path: path, Err: err}
	}
	if len(doc.Content) == 0 {
		return nil, configErr(path, "", "profile is empty")
	}
	raw, err := nodeValue(doc.Content[0], false)
	if err != nil {
		return nil, &ConfigurationError{Path: path, Err: err}
	}

	result, err := cueutil.DecodeValue[Profile](profileSchema, raw, "#Profile", cueutil.WithFilename(path))
	if err != nil {
		// cueutil already prefixes the file name.
		return nil, &ConfigurationError{Err: err}
	}

	p := result.Value
	p.Path = path
	if p.Name == "" {
		p.Name = strings.TrimSuffix(filepath.Base(path), Suffix)
		if !namePattern.MatchString(p.Name) {
			return nil, configErr(path, "", "profile name %q derived from the file name is not valid; set name explicitly", p.Name)
		}
	}

	if err := p.resolve(filepath.Dir(path)); err != nil {
		return nil, err
	}
	return p, nil
}

// resolve checks the cross-package invariants and builds the dependency graph.
func (p *Profile) resolve(baseDir string) error {
	p.index = make(map[string]int, len(p.Packages))
	p.graph = dag.New()
	envNames := make(map[string]string, len(p.Packages))
	for i := range p.Packages {
		name := p.Packages[i].Name
		if _, dup := p.index[name]; dup {
			return configErr(p.Path, name, "declared more than once")
		}
		env := EnvName(name)
		if other, clash := envNames[env]; clash {
			return configErr(p.Path, name, "directory variable %s is also used by package %q; rename one of them", env, other)
		}
		envNames[env] = name
		p.index[name] = i
		p.graph.AddNode(name)
	}

	for i := range p.Packages {
		pkg := &p.Packages[i]
		for _, dep := range pkg.Dependencies {
			if _, ok := p.index[dep]; !ok {
				return configErr(p.Path, pkg.Name, "unknown dependency %q", dep)
			}
			p.graph.AddEdge(dep, pkg.Name)
		}
		if _, err := syntax.NewParser().Parse(strings.NewReader(pkg.Build), pkg.Name); err != nil {
			return configErr(p.Path, pkg.Name, "build script: %w", err)
		}
		for j := range pkg.Sources {
			if err := resolveSource(&pkg.Sources[j], baseDir); err != nil {
				return &ConfigurationError{Path: p.Path, Package: pkg.Name, Err: err}
			}
		}
	}

	order, err := p.graph.TopologicalSort()
	if err != nil {
		return &ConfigurationError{Path: p.Path, Err: err}
	}
	p.order = order
	return nil
}

func resolveSource(src *Source, baseDir string) error {
	clean := path.Clean(src.Target)
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("source %s: target %q must stay inside the build directory", src.Key, src.Target)
	}
	src.Target = clean

	if u, err := url.Parse(src.URL); err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		return nil
	}
	if !filepath.IsAbs(src.URL) {
		src.URL = filepath.Join(baseDir, src.URL)
	}
	return nil
}

// nodeValue converts a YAML node into the generic value tree CUE encodes.
// Under a "parameters" key, scalars keep their literal text so that
// `version: 1.10` stays "1.10" instead of becoming the float 1.1.
func nodeValue(n *yaml.Node, literal bool) (any, error) {
	switch n.Kind {
	case yaml.AliasNode:
		return nodeValue(n.Alias, literal)
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return nodeValue(n.Content[0], literal)
	case yaml.MappingNode:
		m := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i].Value
			if _, dup := m[key]; dup {
				return nil, fmt.Errorf("line %d: key %q already defined", n.Content[i].Line, key)
			}
			v, err := nodeValue(n.Content[i+1], literal || key == "parameters")
			if err != nil {
				return nil, err
			}
			m[key] = v
		}
		return m, nil
	case yaml.SequenceNode:
		s := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := nodeValue(c, literal)
			if err != nil {
				return nil, err
			}
			s = append(s, v)
		}
		return s, nil
	case yaml.ScalarNode:
		if literal && n.Tag != "!!null" {
			return n.Value, nil
		}
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, errors.New("unsupported YAML node")
	}
}
