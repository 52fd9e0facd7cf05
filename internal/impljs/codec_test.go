package impljs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// objcArtifact mirrors the artifact rustdoc generates for implementors of
// objc::Message: 3 fragments from objc itself, 6 from objc_foundation.
const objcArtifact = `(function() {
    var implementors = Object.fromEntries([["objc",[` +
	`"<section id=\"impl-Message-for-Object\" class=\"impl\"><h3 class=\"code-header\">impl Message for Object</h3></section>",` +
	`"<section id=\"impl-Message-for-Class\" class=\"impl\"><h3 class=\"code-header\">impl Message for Class</h3></section>",` +
	`"<section id=\"impl-Message-for-Exception\" class=\"impl\"><h3 class=\"code-header\">impl Message for Exception</h3></section>"` +
	`]],["objc_foundation",[` +
	`"<section id=\"impl-Message-for-NSObject\" class=\"impl\"><h3 class=\"code-header\">impl Message for NSObject</h3></section>",` +
	`"<section id=\"impl-Message-for-NSString\" class=\"impl\"><h3 class=\"code-header\">impl Message for NSString</h3></section>",` +
	`"<section id=\"impl-Message-for-NSData\" class=\"impl\"><h3 class=\"code-header\">impl Message for NSData</h3></section>",` +
	`"<section id=\"impl-Message-for-NSValue\" class=\"impl\"><h3 class=\"code-header\">impl Message for NSValue</h3></section>",` +
	`"<section id=\"impl-Message-for-NSArray\" class=\"impl\"><h3 class=\"code-header\">impl Message for NSArray</h3></section>",` +
	`"<section id=\"impl-Message-for-NSDictionary\" class=\"impl\"><h3 class=\"code-header\">impl Message for NSDictionary</h3></section>"` +
	`]]]);
    if (window.register_implementors) {
        window.register_implementors(implementors);
    } else {
        window.pending_implementors = implementors;
    }
})()`

func TestParse_ObjcArtifact(t *testing.T) {
	t.Parallel()

	m, err := Parse([]byte(objcArtifact))
	if err != nil {
		t.Fatal(err)
	}

	crates := m.Crates()
	if len(crates) != 2 {
		t.Fatalf("expected 2 crates, got %d: %v", len(crates), crates)
	}
	if crates[0] != "objc" || crates[1] != "objc_foundation" {
		t.Errorf("crate order wrong: %v", crates)
	}

	objcFrags, ok := m.Fragments("objc")
	if !ok || len(objcFrags) != 3 {
		t.Fatalf("expected 3 objc fragments, got %d", len(objcFrags))
	}
	foundationFrags, ok := m.Fragments("objc_foundation")
	if !ok || len(foundationFrags) != 6 {
		t.Fatalf("expected 6 objc_foundation fragments, got %d", len(foundationFrags))
	}

	// Fragment order within a key must be preserved as given.
	if !strings.Contains(objcFrags[0], "impl-Message-for-Object") {
		t.Errorf("first objc fragment out of order: %s", objcFrags[0])
	}
	if !strings.Contains(foundationFrags[5], "impl-Message-for-NSDictionary") {
		t.Errorf("last foundation fragment out of order: %s", foundationFrags[5])
	}
}

func TestParse_Empty(t *testing.T) {
	t.Parallel()

	m, err := Parse([]byte(`(function() {
    var implementors = Object.fromEntries([]);
    if (window.register_implementors) {
        window.register_implementors(implementors);
    } else {
        window.pending_implementors = implementors;
    }
})()`))
	if err != nil {
		t.Fatal(err)
	}
	if m.Len() != 0 {
		t.Errorf("expected empty mapping, got %d crates", m.Len())
	}
}

func TestParse_Rejects(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"not_artifact":  `console.log("hello")`,
		"bad_payload":   `Object.fromEntries({"objc": 1})`,
		"short_pair":    `Object.fromEntries([["objc"]])`,
		"duplicate_key": `Object.fromEntries([["objc",["a"]],["objc",["b"]]])`,
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(src)); err == nil {
				t.Errorf("expected error for %s", name)
			}
		})
	}
}

func TestEmitParse_RoundTrip(t *testing.T) {
	t.Parallel()

	m := NewMapping()
	m.Set("objc", []string{"<section>a</section>", "<section>b</section>"})
	m.Set("objc_foundation", []string{"<section>c</section>"})

	data, err := Emit(m)
	if err != nil {
		t.Fatal(err)
	}

	got, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(m) {
		t.Errorf("round-trip mismatch:\n%s", data)
	}

	// Emitted artifact must probe the hook and fall back to the pending slot.
	if !strings.Contains(string(data), "window."+HookName+"(implementors)") {
		t.Error("emitted artifact does not invoke the registration hook")
	}
	if !strings.Contains(string(data), "window."+PendingSlot+" = implementors") {
		t.Error("emitted artifact does not assign the pending slot")
	}
}

func TestParseFile_DerivesTrait(t *testing.T) {
	cases := map[string]struct {
		rel  string
		want string
	}{
		"crate_root":    {filepath.Join("trait.impl", "objc", "trait.Message.js"), "objc::Message"},
		"nested_module": {filepath.Join("trait.impl", "objc", "runtime", "trait.Imp.js"), "objc::runtime::Imp"},
		"deep_module":   {filepath.Join("trait.impl", "core", "cmp", "trait.PartialEq.js"), "core::cmp::PartialEq"},
		"legacy_layout": {filepath.Join("implementors", "objc", "declare", "trait.Imp.js"), "objc::declare::Imp"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tc.rel)
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(path, []byte(objcArtifact), 0644); err != nil {
				t.Fatal(err)
			}

			m, err := ParseFile(path)
			if err != nil {
				t.Fatal(err)
			}
			if m.Trait != tc.want {
				t.Errorf("trait = %q, want %q", m.Trait, tc.want)
			}
		})
	}
}

func TestArtifactPath(t *testing.T) {
	t.Parallel()

	got, err := ArtifactPath("objc::Message")
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join("trait.impl", "objc", "trait.Message.js")
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	// Module segments become directories, so same-named traits in
	// different modules emit to distinct files.
	got, err = ArtifactPath("objc::runtime::Imp")
	if err != nil {
		t.Fatal(err)
	}
	want = filepath.Join("trait.impl", "objc", "runtime", "trait.Imp.js")
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	other, err := ArtifactPath("objc::declare::Imp")
	if err != nil {
		t.Fatal(err)
	}
	if other == got {
		t.Errorf("distinct traits share artifact path %q", got)
	}

	if _, err := ArtifactPath("Message"); err == nil {
		t.Error("expected error for unqualified trait path")
	}
	if _, err := ArtifactPath("objc::::Imp"); err == nil {
		t.Error("expected error for empty path segment")
	}
}

// Derivation and emission agree: a nested artifact parsed from disk emits
// back to the same site-relative location it was read from.
func TestParseFile_ArtifactPath_RoundTrip(t *testing.T) {
	rel := filepath.Join("trait.impl", "objc", "runtime", "trait.Imp.js")
	path := filepath.Join(t.TempDir(), rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(objcArtifact), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := ParseFile(path)
	if err != nil {
		t.Fatal(err)
	}
	got, err := ArtifactPath(m.Trait)
	if err != nil {
		t.Fatal(err)
	}
	if got != rel {
		t.Errorf("got %q, want %q", got, rel)
	}
}

func TestMapping_Equal(t *testing.T) {
	t.Parallel()

	a := NewMapping()
	a.Set("objc", []string{"x"})
	b := NewMapping()
	b.Set("objc", []string{"x"})
	if !a.Equal(b) {
		t.Error("identical mappings not equal")
	}

	b.Set("objc_foundation", []string{"y"})
	if a.Equal(b) {
		t.Error("mappings with different lengths reported equal")
	}

	c := NewMapping()
	c.Set("objc", []string{"z"})
	if a.Equal(c) {
		t.Error("mappings with different fragments reported equal")
	}
}
