// SPDX-License-Identifier: MPL-2.0

package schedule

import (
	"fmt"
	"sync"

	"github.com/hitbuild/hit/internal/dag"
)

// Scheduler holds the state machine of one profile. It is safe for
// concurrent use.
type Scheduler struct {
	order []string
	deps  map[string][]string

	mu    sync.Mutex
	state map[string]State
}

// New returns a scheduler over the packages in order, where deps maps each
// package to its dependencies. Every package starts Unresolved.
func New(order []string, deps map[string][]string) (*Scheduler, error) {
	g := dag.New()
	for _, name := range order {
		if g.Has(name) {
			return nil, fmt.Errorf("package %q listed more than once", name)
		}
		g.AddNode(name)
	}
	for _, name := range order {
		for _, d := range deps[name] {
			if !g.Has(d) {
				return nil, fmt.Errorf("package %q: unknown dependency %q", name, d)
			}
			g.AddEdge(d, name)
		}
	}
	if _, err := g.TopologicalSort(); err != nil {
		return nil, err
	}

	s := &Scheduler{
		order: append([]string(nil), order...),
		deps:  make(map[string][]string, len(order)),
		state: make(map[string]State, len(order)),
	}
	for _, name := range order {
		s.deps[name] = g.Prerequisites(name)
		s.state[name] = Unresolved
	}
	return s, nil
}

// Refresh recomputes the state of every package that is neither Building nor
// Failed from isBuilt, and returns the ready set in declared order. Only
// committed state is consulted; in-flight builds are left alone.
func (s *Scheduler) Refresh(isBuilt func(name string) (bool, error)) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]State, len(s.state))
	for _, name := range s.order {
		switch cur := s.state[name]; cur {
		case Building, Failed:
			next[name] = cur
			continue
		}
		built, err := isBuilt(name)
		if err != nil {
			return nil, fmt.Errorf("package %q: %w", name, err)
		}
		if built {
			next[name] = Built
		}
	}

	var ready []string
	for _, name := range s.order {
		if _, done := next[name]; done {
			continue
		}
		next[name] = Ready
		for _, d := range s.deps[name] {
			if next[d] != Built {
				next[name] = Unresolved
				break
			}
		}
		if next[name] == Ready {
			ready = append(ready, name)
		}
	}
	s.state = next
	return ready, nil
}

// Start moves a Ready package to Building.
func (s *Scheduler) Start(name string) error {
	return s.transition(name, Ready, Building)
}

// Finish records the outcome of a build started with Start.
func (s *Scheduler) Finish(name string, buildErr error) error {
	if buildErr != nil {
		return s.transition(name, Building, Failed)
	}
	return s.transition(name, Building, Built)
}

// Reset moves a Failed package back to Unresolved so that the next Refresh
// reconsiders it.
func (s *Scheduler) Reset(name string) error {
	return s.transition(name, Failed, Unresolved)
}

// State returns the current state of name.
func (s *Scheduler) State(name string) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.state[name]
	return st, ok
}

// Snapshot returns a copy of every package state.
func (s *Scheduler) Snapshot() map[string]State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]State, len(s.state))
	for k, v := range s.state {
		out[k] = v
	}
	return out
}

// Len returns the number of packages.
func (s *Scheduler) Len() int { return len(s.order) }

func (s *Scheduler) transition(name string, from, to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.state[name]
	if !ok {
		return fmt.Errorf("unknown package %q", name)
	}
	if cur != from || !Allowed(from, to) {
		return &TransitionError{Package: name, From: from, To: to, Current: cur}
	}
	s.state[name] = to
	return nil
}
