// SPDX-License-Identifier: MPL-2.0

package dag

import (
	"errors"
	"slices"
	"testing"
)

func TestTopologicalSort_EmptyGraph(t *testing.T) {
	t.Parallel()
	order, err := New().TopologicalSort()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order != nil {
		t.Errorf("expected nil, got %v", order)
	}
}

func TestTopologicalSort_LinearChain(t *testing.T) {
	t.Parallel()
	g := New()
	g.AddEdge("zlib", "libpng")
	g.AddEdge("libpng", "freetype")

	order, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if expected := []string{"zlib", "libpng", "freetype"}; !slices.Equal(order, expected) {
		t.Errorf("expected %v, got %v", expected, order)
	}
}

func TestTopologicalSort_DeclaredOrderBreaksTies(t *testing.T) {
	t.Parallel()
	g := New()
	g.AddNode("zlib")
	g.AddNode("openssl")
	g.AddNode("bzip2")
	g.AddEdge("zlib", "openssl")

	order, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if expected := []string{"zlib", "openssl", "bzip2"}; !slices.Equal(order, expected) {
		t.Errorf("expected %v, got %v", expected, order)
	}
}

func TestTopologicalSort_Diamond(t *testing.T) {
	t.Parallel()
	g := New()
	g.AddEdge("A", "B")
	g.AddEdge("A", "C")
	g.AddEdge("B", "D")
	g.AddEdge("C", "D")

	order, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if expected := []string{"A", "B", "C", "D"}; !slices.Equal(order, expected) {
		t.Errorf("expected %v, got %v", expected, order)
	}
}

func TestTopologicalSort_DuplicateEdges(t *testing.T) {
	t.Parallel()
	g := New()
	g.AddEdge("A", "B")
	g.AddEdge("A", "B")

	order, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(order, []string{"A", "B"}) {
		t.Errorf("expected [A B], got %v", order)
	}
	if deps := g.Prerequisites("B"); !slices.Equal(deps, []string{"A"}) {
		t.Errorf("expected deduplicated prerequisites [A], got %v", deps)
	}
}

func TestTopologicalSort_Cycles(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		edges   [][2]string
		wantLen int
	}{
		{name: "self loop", edges: [][2]string{{"A", "A"}}, wantLen: 2},
		{name: "two nodes", edges: [][2]string{{"A", "B"}, {"B", "A"}}, wantLen: 3},
		{name: "three nodes", edges: [][2]string{{"A", "B"}, {"B", "C"}, {"C", "A"}}, wantLen: 4},
		{
			name:    "cycle behind an acyclic prefix",
			edges:   [][2]string{{"root", "A"}, {"A", "B"}, {"B", "A"}, {"B", "leaf"}},
			wantLen: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := New()
			for _, e := range tt.edges {
				g.AddEdge(e[0], e[1])
			}

			_, err := g.TopologicalSort()
			var cycleErr *CycleError
			if !errors.As(err, &cycleErr) {
				t.Fatalf("expected *CycleError, got %T: %v", err, err)
			}
			if len(cycleErr.Cycle) != tt.wantLen {
				t.Fatalf("expected closed path of length %d, got %v", tt.wantLen, cycleErr.Cycle)
			}
			if cycleErr.Cycle[0] != cycleErr.Cycle[len(cycleErr.Cycle)-1] {
				t.Errorf("cycle path should be closed, got %v", cycleErr.Cycle)
			}
			for _, node := range cycleErr.Cycle {
				if node == "root" || node == "leaf" {
					t.Errorf("cycle path should only contain cycle members, got %v", cycleErr.Cycle)
				}
			}
		})
	}
}

func TestClosure(t *testing.T) {
	t.Parallel()
	g := New()
	g.AddNode("bzip2")
	g.AddEdge("zlib", "libpng")
	g.AddEdge("libpng", "freetype")
	g.AddEdge("bzip2", "freetype")
	g.AddNode("python")

	got, err := g.Closure("freetype")
	if err != nil {
		t.Fatalf("Closure() error = %v", err)
	}
	if expected := []string{"bzip2", "zlib", "libpng", "freetype"}; !slices.Equal(got, expected) {
		t.Errorf("expected %v, got %v", expected, got)
	}

	got, err = g.Closure("python")
	if err != nil {
		t.Fatalf("Closure() error = %v", err)
	}
	if !slices.Equal(got, []string{"python"}) {
		t.Errorf("expected [python], got %v", got)
	}

	if _, err := g.Closure("missing"); err == nil {
		t.Error("expected error for unknown node")
	}
}

func TestCycleError_Message(t *testing.T) {
	t.Parallel()
	err := &CycleError{Cycle: []string{"A", "B", "A"}}
	if expected := "dependency cycle detected: A -> B -> A"; err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}
}
