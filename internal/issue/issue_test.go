// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"strings"
	"testing"
)

var allIds = []Id{
	ProfileNotFoundId,
	ProfileInvalidId,
	DependencyCycleId,
	BuildFailedId,
	TargetExistsId,
	ConfigLoadFailedId,
	StoreCorruptId,
	SourceFetchFailedId,
	LddNotFoundId,
	ShellNotFoundId,
}

func TestId_Constants(t *testing.T) {
	seen := make(map[Id]bool)
	for _, id := range allIds {
		if seen[id] {
			t.Errorf("duplicate ID: %d", id)
		}
		seen[id] = true
	}

	if ProfileNotFoundId != 1 {
		t.Errorf("ProfileNotFoundId = %d, want 1", ProfileNotFoundId)
	}
}

func TestGet(t *testing.T) {
	tests := []struct {
		id       Id
		contains string
	}{
		{ProfileNotFoundId, "Profile not found"},
		{ProfileInvalidId, "Invalid profile"},
		{DependencyCycleId, "Dependency cycle"},
		{BuildFailedId, "hit build -k error"},
		{TargetExistsId, "-f"},
		{ConfigLoadFailedId, "hit config init"},
		{StoreCorruptId, "completion marker"},
		{SourceFetchFailedId, "key"},
		{LddNotFoundId, "ldd"},
		{ShellNotFoundId, "virtual"},
	}

	for _, tt := range tests {
		issue := Get(tt.id)
		if issue == nil {
			t.Errorf("Get(%d) returned nil", tt.id)
			continue
		}
		if issue.Id() != tt.id {
			t.Errorf("Get(%d).Id() = %d", tt.id, issue.Id())
		}
		if !strings.Contains(string(issue.MarkdownMsg()), tt.contains) {
			t.Errorf("issue %d should mention %q", tt.id, tt.contains)
		}
	}

	if Get(Id(9999)) != nil {
		t.Error("Get(9999) should return nil")
	}
}

func TestValues(t *testing.T) {
	if got := len(Values()); got != len(allIds) {
		t.Errorf("Values() returned %d issues, want %d", got, len(allIds))
	}
}

func TestIssue_Render_PassesStyle(t *testing.T) {
	originalRender := render
	defer func() { render = originalRender }()

	var gotStyle string
	render = func(in string, stylePath string) (string, error) {
		gotStyle = stylePath
		return in, nil
	}

	rendered, err := Get(BuildFailedId).Render("light")
	if err != nil {
		t.Fatalf("Render() returned error: %v", err)
	}
	if gotStyle != "light" {
		t.Errorf("style = %q, want %q", gotStyle, "light")
	}
	if rendered != string(Get(BuildFailedId).MarkdownMsg()) {
		t.Error("Render() should hand the markdown to the renderer unchanged")
	}
}

func TestAllIssuesAreRenderable(t *testing.T) {
	originalRender := render
	defer func() { render = originalRender }()

	render = func(in string, stylePath string) (string, error) {
		return in, nil
	}

	for _, issue := range Values() {
		rendered, err := issue.Render("")
		if err != nil {
			t.Errorf("Issue %d failed to render: %v", issue.Id(), err)
		}
		if strings.TrimSpace(rendered) == "" {
			t.Errorf("Issue %d rendered to empty string", issue.Id())
		}
	}
}
