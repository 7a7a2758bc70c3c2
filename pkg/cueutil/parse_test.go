// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"strings"
	"testing"
)

const testSchema = `
#Recipe: {
	name:     string & =~"^[a-z]+$"
	jobs:     int & >=1
	keep?:    "always" | "never" | "error"
	params?: [string]: string
}
`

type testRecipe struct {
	Name   string            `json:"name"`
	Jobs   int               `json:"jobs"`
	Keep   string            `json:"keep,omitempty"`
	Params map[string]string `json:"params,omitempty"`
}

func TestParseAndDecode(t *testing.T) {
	t.Parallel()

	t.Run("valid document parses", func(t *testing.T) {
		t.Parallel()

		data := []byte(`
name: "zlib"
jobs: 4
keep: "error"
params: {version: "1.3"}
`)
		result, err := ParseAndDecode[testRecipe]([]byte(testSchema), data, "#Recipe")
		if err != nil {
			t.Fatalf("ParseAndDecode failed: %v", err)
		}
		if result.Value.Name != "zlib" || result.Value.Jobs != 4 || result.Value.Keep != "error" {
			t.Errorf("unexpected decode result: %+v", result.Value)
		}
		if result.Value.Params["version"] != "1.3" {
			t.Errorf("expected params.version=1.3, got %v", result.Value.Params)
		}
	})

	t.Run("constraint violation names the file", func(t *testing.T) {
		t.Parallel()

		data := []byte(`
name: "zlib"
jobs: 0
`)
		_, err := ParseAndDecode[testRecipe]([]byte(testSchema), data, "#Recipe", WithFilename("recipe.cue"))
		if err == nil {
			t.Fatal("expected error for jobs < 1")
		}
		if !strings.Contains(err.Error(), "recipe.cue") {
			t.Errorf("error should contain filename, got: %v", err)
		}
	})

	t.Run("size limit is enforced", func(t *testing.T) {
		t.Parallel()

		data := []byte(`name: "zlib", jobs: 1`)
		if _, err := ParseAndDecode[testRecipe]([]byte(testSchema), data, "#Recipe", WithMaxFileSize(4)); err == nil {
			t.Fatal("expected size limit error")
		}
	})

	t.Run("unknown definition is an internal error", func(t *testing.T) {
		t.Parallel()

		_, err := ParseAndDecode[testRecipe]([]byte(testSchema), []byte(`name: "x"`), "#Missing")
		if err == nil || !strings.Contains(err.Error(), "#Missing") {
			t.Fatalf("expected missing definition error, got %v", err)
		}
	})
}

func TestDecodeValue(t *testing.T) {
	t.Parallel()

	t.Run("generic map decodes", func(t *testing.T) {
		t.Parallel()

		raw := map[string]any{
			"name":   "python",
			"jobs":   2,
			"params": map[string]any{"abi": "3"},
		}
		result, err := DecodeValue[testRecipe]([]byte(testSchema), raw, "#Recipe")
		if err != nil {
			t.Fatalf("DecodeValue failed: %v", err)
		}
		if result.Value.Name != "python" || result.Value.Params["abi"] != "3" {
			t.Errorf("unexpected decode result: %+v", result.Value)
		}
	})

	t.Run("closed definition rejects unknown fields", func(t *testing.T) {
		t.Parallel()

		raw := map[string]any{"name": "python", "jobs": 2, "colour": "blue"}
		_, err := DecodeValue[testRecipe]([]byte(testSchema), raw, "#Recipe", WithFilename("default.yaml"))
		if err == nil {
			t.Fatal("expected error for unknown field")
		}
		if !strings.Contains(err.Error(), "default.yaml") {
			t.Errorf("error should contain filename, got: %v", err)
		}
	})

	t.Run("non-concrete value fails when concrete is required", func(t *testing.T) {
		t.Parallel()

		raw := map[string]any{"name": "python"}
		if _, err := DecodeValue[testRecipe]([]byte(testSchema), raw, "#Recipe"); err == nil {
			t.Fatal("expected error for missing jobs")
		}
	})
}
