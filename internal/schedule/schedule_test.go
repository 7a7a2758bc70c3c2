// SPDX-License-Identifier: MPL-2.0

package schedule

import (
	"errors"
	"slices"
	"testing"

	"github.com/hitbuild/hit/internal/dag"
)

func builtSet(names ...string) func(string) (bool, error) {
	return func(name string) (bool, error) {
		return slices.Contains(names, name), nil
	}
}

func TestRefresh(t *testing.T) {
	t.Parallel()

	// zlib <- libpng <- app, plus an independent bzip2.
	order := []string{"app", "libpng", "zlib", "bzip2"}
	deps := map[string][]string{"app": {"libpng", "zlib"}, "libpng": {"zlib"}}

	tests := []struct {
		name  string
		built []string
		want  []string
	}{
		{"nothing built", nil, []string{"zlib", "bzip2"}},
		{"leaf built", []string{"zlib"}, []string{"libpng", "bzip2"}},
		{"chain built", []string{"zlib", "libpng", "bzip2"}, []string{"app"}},
		{"all built", []string{"zlib", "libpng", "bzip2", "app"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s, err := New(order, deps)
			if err != nil {
				t.Fatal(err)
			}
			got, err := s.Refresh(builtSet(tt.built...))
			if err != nil {
				t.Fatal(err)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("Refresh() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLifecycle(t *testing.T) {
	t.Parallel()

	s, err := New([]string{"a", "b"}, map[string][]string{"b": {"a"}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Refresh(builtSet()); err != nil {
		t.Fatal(err)
	}
	if st, _ := s.State("b"); st != Unresolved {
		t.Fatalf("State(b) = %s, want unresolved", st)
	}

	if err := s.Start("b"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Start(b) error = %v, want ErrInvalidTransition", err)
	}
	if err := s.Start("a"); err != nil {
		t.Fatal(err)
	}
	if err := s.Start("a"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second Start(a) error = %v, want ErrInvalidTransition", err)
	}

	// A refresh during the build must not disturb the in-flight package.
	ready, err := s.Refresh(builtSet())
	if err != nil {
		t.Fatal(err)
	}
	if len(ready) != 0 {
		t.Errorf("Refresh() during build = %v, want empty", ready)
	}
	if st, _ := s.State("a"); st != Building {
		t.Errorf("State(a) = %s, want building", st)
	}

	if err := s.Finish("a", errors.New("boom")); err != nil {
		t.Fatal(err)
	}
	if ready, _ := s.Refresh(builtSet()); len(ready) != 0 {
		t.Errorf("Refresh() after failure = %v, want empty", ready)
	}
	if st, _ := s.State("a"); st != Failed {
		t.Errorf("State(a) = %s, want failed", st)
	}

	if err := s.Reset("a"); err != nil {
		t.Fatal(err)
	}
	ready, _ = s.Refresh(builtSet())
	if !slices.Equal(ready, []string{"a"}) {
		t.Fatalf("Refresh() after reset = %v, want [a]", ready)
	}
	if err := s.Start("a"); err != nil {
		t.Fatal(err)
	}
	if err := s.Finish("a", nil); err != nil {
		t.Fatal(err)
	}
	ready, _ = s.Refresh(builtSet("a"))
	if !slices.Equal(ready, []string{"b"}) {
		t.Errorf("Refresh() after success = %v, want [b]", ready)
	}
	if got := s.Snapshot(); got["a"] != Built || got["b"] != Ready {
		t.Errorf("Snapshot() = %v", got)
	}
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	if _, err := New([]string{"a", "a"}, nil); err == nil {
		t.Error("New() accepted a duplicate package")
	}
	if _, err := New([]string{"a"}, map[string][]string{"a": {"missing"}}); err == nil {
		t.Error("New() accepted an unknown dependency")
	}
	var cycle *dag.CycleError
	_, err := New([]string{"a", "b"}, map[string][]string{"a": {"b"}, "b": {"a"}})
	if !errors.As(err, &cycle) {
		t.Errorf("New() error = %v, want *dag.CycleError", err)
	}
}

func TestAllowed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to State
		want     bool
	}{
		{Unresolved, Ready, true},
		{Ready, Building, true},
		{Building, Built, true},
		{Building, Failed, true},
		{Failed, Unresolved, true},
		{Unresolved, Building, false},
		{Built, Building, false},
		{Failed, Building, false},
		{Building, Ready, false},
	}
	for _, tt := range tests {
		if got := Allowed(tt.from, tt.to); got != tt.want {
			t.Errorf("Allowed(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}
