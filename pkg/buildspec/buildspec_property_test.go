// SPDX-License-Identifier: MPL-2.0

package buildspec

import (
	"maps"
	"slices"
	"testing"

	"pgregory.net/rapid"

	"github.com/hitbuild/hit/pkg/profile"
)

var (
	nameGen  = rapid.StringMatching(`[a-z][a-z0-9]{0,7}`)
	valueGen = rapid.StringMatching(`[a-zA-Z0-9._-]{0,12}`)
)

// packageInput draws a package together with resolved ids for its
// dependencies and a set of profile parameters.
func packageInput(t *rapid.T) (profile.Package, map[string]ID, map[string]string) {
	deps := rapid.SliceOfNDistinct(nameGen, 0, 5, rapid.ID[string]).Draw(t, "deps")
	ids := make(map[string]ID, len(deps))
	for _, d := range deps {
		ids[d] = ID(d + "/" + rapid.StringMatching(`[a-z2-7]{32}`).Draw(t, "hash-"+d))
	}
	pkg := profile.Package{
		Name:         nameGen.Draw(t, "name"),
		Dependencies: deps,
		Parameters:   rapid.MapOfN(nameGen, valueGen, 0, 4).Draw(t, "pkgParams"),
		Build:        rapid.StringMatching(`[a-z ;$"-]{1,40}`).Draw(t, "build"),
	}
	for i := range rapid.IntRange(0, 3).Draw(t, "sources") {
		pkg.Sources = append(pkg.Sources, profile.Source{
			Key:    "sha256:" + rapid.StringMatching(`[0-9a-f]{8}`).Draw(t, "key"),
			Target: rapid.SampledFrom([]string{".", "src", "patches"}).Draw(t, "target"),
			Strip:  i % 2,
		})
	}
	params := rapid.MapOfN(nameGen, valueGen, 0, 4).Draw(t, "params")
	return pkg, ids, params
}

func TestProperty_Deterministic(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		pkg, ids, params := packageInput(t)

		a, err := Make(pkg, ids, params)
		if err != nil {
			t.Fatal(err)
		}

		// Same content, different input order.
		shuffled := pkg
		shuffled.Dependencies = slices.Clone(pkg.Dependencies)
		slices.Reverse(shuffled.Dependencies)
		shuffled.Sources = slices.Clone(pkg.Sources)
		slices.Reverse(shuffled.Sources)
		shuffled.Parameters = maps.Clone(pkg.Parameters)

		b, err := Make(shuffled, maps.Clone(ids), maps.Clone(params))
		if err != nil {
			t.Fatal(err)
		}
		if a.ArtifactID() != b.ArtifactID() {
			t.Fatalf("identical content hashed differently: %s vs %s", a.ArtifactID(), b.ArtifactID())
		}
		if string(a.Canonical()) != string(b.Canonical()) {
			t.Fatalf("identical content serialized differently:\n%s\n%s", a.Canonical(), b.Canonical())
		}
	})
}

func TestProperty_SensitiveToEveryInput(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		pkg, ids, params := packageInput(t)
		base, err := Make(pkg, ids, params)
		if err != nil {
			t.Fatal(err)
		}

		mutated := pkg
		mutatedIDs := maps.Clone(ids)
		mutatedParams := maps.Clone(params)

		switch rapid.IntRange(0, 2).Draw(t, "mutation") {
		case 0:
			mutated.Build = pkg.Build + "\ntrue"
		case 1:
			if len(pkg.Dependencies) == 0 {
				t.Skip("no dependency to change")
			}
			dep := rapid.SampledFrom(pkg.Dependencies).Draw(t, "dep")
			mutatedIDs[dep] = ID(dep + "/changed")
		case 2:
			key := nameGen.Draw(t, "paramKey")
			if _, overridden := pkg.Parameters[key]; overridden {
				t.Skip("profile parameter shadowed by the package")
			}
			mutatedParams[key] = params[key] + "x"
		}

		changed, err := Make(mutated, mutatedIDs, mutatedParams)
		if err != nil {
			t.Fatal(err)
		}
		if base.ArtifactID() == changed.ArtifactID() {
			t.Fatalf("artifact id did not change after mutation: %s", base.ArtifactID())
		}
	})
}
