// SPDX-License-Identifier: MPL-2.0

package buildspec

import (
	"bytes"
	"cmp"
	"crypto/sha256"
	"encoding/base32"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/hitbuild/hit/pkg/profile"
)

const (
	// KindPackage marks a document built by running a package recipe.
	KindPackage Kind = "package"
	// KindProfile marks the synthetic document that composes a profile.
	KindProfile Kind = "profile"

	// HashLength is the number of base32 characters kept from the digest.
	HashLength = 32
	// ShortHashLength is the number of hash characters in a ShortID.
	ShortHashLength = 8
)

var hashEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

type (
	// Kind tells the store how a document is realized.
	Kind string

	// ID is an artifact identity of the form "<name>/<hash>".
	ID string

	// SourceRef is the identity-relevant part of a source. The URL is not
	// part of it, so mirrors of the same content share an identity.
	SourceRef struct {
		Key    string `json:"key"`
		Target string `json:"target"`
		Strip  int    `json:"strip"`
	}

	// DependencyRef pins a dependency to the artifact it resolved to.
	DependencyRef struct {
		Name string `json:"name"`
		ID   ID     `json:"id"`
	}

	// Document is the structured build input. Field order is fixed by the
	// struct definition and map keys are sorted by encoding/json, so the only
	// ordering left to fix is that of the slices; see Canonicalize.
	Document struct {
		Kind         Kind              `json:"kind"`
		Name         string            `json:"name"`
		Build        string            `json:"build"`
		Sources      []SourceRef       `json:"sources"`
		Dependencies []DependencyRef   `json:"dependencies"`
		Parameters   map[string]string `json:"parameters"`
		// Compose lists, for a profile, the packages in the order their
		// artifacts are merged. It is significant and never sorted: on a
		// file conflict the earlier package wins.
		Compose []string `json:"compose,omitempty"`
	}

	// BuildSpec is an immutable, hashed Document.
	BuildSpec struct {
		doc       Document
		canonical []byte
		hash      string
	}
)

// String implements fmt.Stringer.
func (id ID) String() string { return string(id) }

// Split returns the name and hash parts of the ID.
func (id ID) Split() (name, hash string) {
	name, hash, _ = strings.Cut(string(id), "/")
	return name, hash
}

// Make derives the BuildSpec of pkg. deps must hold the artifact ID of every
// dependency pkg declares; params are the profile-level parameters, which the
// package's own parameters override.
func Make(pkg profile.Package, deps map[string]ID, params map[string]string) (BuildSpec, error) {
	doc := Document{
		Kind:       KindPackage,
		Name:       pkg.Name,
		Build:      pkg.Build,
		Parameters: make(map[string]string, len(params)+len(pkg.Parameters)),
	}
	maps.Copy(doc.Parameters, params)
	maps.Copy(doc.Parameters, pkg.Parameters)

	for _, src := range pkg.Sources {
		doc.Sources = append(doc.Sources, SourceRef{Key: src.Key, Target: src.Target, Strip: src.Strip})
	}
	for _, name := range pkg.Dependencies {
		id, ok := deps[name]
		if !ok || id == "" {
			return BuildSpec{}, fmt.Errorf("package %q: dependency %q has no resolved artifact id", pkg.Name, name)
		}
		doc.Dependencies = append(doc.Dependencies, DependencyRef{Name: name, ID: id})
	}
	return New(doc)
}

// MakeProfile derives the BuildSpec of the profile package, which depends on
// every package in order. deps must hold an artifact ID for each of them.
func MakeProfile(name string, order []string, deps map[string]ID, params map[string]string) (BuildSpec, error) {
	doc := Document{
		Kind:       KindProfile,
		Name:       name,
		Parameters: maps.Clone(params),
		Compose:    slices.Clone(order),
	}
	for _, dep := range order {
		id, ok := deps[dep]
		if !ok || id == "" {
			return BuildSpec{}, fmt.Errorf("profile %q: package %q has no resolved artifact id", name, dep)
		}
		doc.Dependencies = append(doc.Dependencies, DependencyRef{Name: dep, ID: id})
	}
	return New(doc)
}

// New canonicalizes and hashes doc.
func New(doc Document) (BuildSpec, error) {
	if doc.Name == "" {
		return BuildSpec{}, fmt.Errorf("build spec has no name")
	}
	canon := Canonicalize(doc)
	data, err := Encode(canon)
	if err != nil {
		return BuildSpec{}, err
	}
	return BuildSpec{doc: canon, canonical: data, hash: HashBytes(data)}, nil
}

// Canonicalize returns a deep copy of doc with sources sorted by
// (target, key), dependencies sorted by (name, id) with exact duplicates
// removed, and nil collections replaced by empty ones.
func Canonicalize(doc Document) Document {
	out := doc
	out.Sources = slices.Clone(doc.Sources)
	if out.Sources == nil {
		out.Sources = []SourceRef{}
	}
	slices.SortFunc(out.Sources, func(a, b SourceRef) int {
		return cmp.Or(cmp.Compare(a.Target, b.Target), cmp.Compare(a.Key, b.Key), cmp.Compare(a.Strip, b.Strip))
	})

	out.Dependencies = slices.Clone(doc.Dependencies)
	if out.Dependencies == nil {
		out.Dependencies = []DependencyRef{}
	}
	slices.SortFunc(out.Dependencies, func(a, b DependencyRef) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	out.Dependencies = slices.Compact(out.Dependencies)

	out.Parameters = maps.Clone(doc.Parameters)
	if out.Parameters == nil {
		out.Parameters = map[string]string{}
	}
	out.Compose = slices.Clone(doc.Compose)
	return out
}

// Encode serializes a canonical document. It does not reorder anything.
func Encode(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode build spec %s: %w", doc.Name, err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// HashBytes returns the artifact hash of canonical bytes: SHA-256, lower-case
// base32 without padding, truncated to HashLength characters.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return strings.ToLower(hashEncoding.EncodeToString(sum[:]))[:HashLength]
}

// Name returns the package or profile name.
func (s BuildSpec) Name() string { return s.doc.Name }

// Kind returns the document kind.
func (s BuildSpec) Kind() Kind { return s.doc.Kind }

// Hash returns the content hash.
func (s BuildSpec) Hash() string { return s.hash }

// ArtifactID returns "<name>/<hash>".
func (s BuildSpec) ArtifactID() ID { return ID(s.doc.Name + "/" + s.hash) }

// ShortID returns "<name>-<hash prefix>", safe for use as a file name.
func (s BuildSpec) ShortID() string { return s.doc.Name + "-" + s.hash[:ShortHashLength] }

// IsZero reports whether s was never constructed.
func (s BuildSpec) IsZero() bool { return s.hash == "" }

// Doc returns a copy of the canonical document.
func (s BuildSpec) Doc() Document { return Canonicalize(s.doc) }

// Canonical returns a copy of the bytes the hash was computed over.
func (s BuildSpec) Canonical() []byte { return bytes.Clone(s.canonical) }

// Dependencies returns the dependency references in canonical order.
func (s BuildSpec) Dependencies() []DependencyRef { return slices.Clone(s.doc.Dependencies) }

// Compose returns the profile composition order, or nil for a package.
func (s BuildSpec) Compose() []string { return slices.Clone(s.doc.Compose) }

// DependencyIDs returns the dependency artifact IDs in canonical order.
func (s BuildSpec) DependencyIDs() []ID {
	ids := make([]ID, len(s.doc.Dependencies))
	for i, d := range s.doc.Dependencies {
		ids[i] = d.ID
	}
	return ids
}

// Indent renders the document for humans.
func (s BuildSpec) Indent() ([]byte, error) {
	return json.MarshalIndent(s.doc, "", "  ")
}
