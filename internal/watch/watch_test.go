package watch

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/traitdex/traitdex/internal/impljs"
	"github.com/traitdex/traitdex/internal/registry"
)

const testArtifact = `(function() {
    var implementors = Object.fromEntries([["objc",["<section id=\"impl-Message-for-Object\" class=\"impl\"><h3 class=\"code-header\">impl Message for Object</h3></section>"]]]);
    if (window.register_implementors) {
        window.register_implementors(implementors);
    } else {
        window.pending_implementors = implementors;
    }
})()`

func writeArtifact(t *testing.T, root, crate, trait string) string {
	t.Helper()
	dir := filepath.Join(root, "trait.impl", crate)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "trait."+trait+".js")
	if err := os.WriteFile(path, []byte(testArtifact), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func TestWatcher_PublishesExisting(t *testing.T) {
	root := t.TempDir()
	writeArtifact(t, root, "objc", "Message")

	reg := registry.New()
	w, err := New(root, reg)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	// No sink installed yet: the pre-existing artifact must park.
	w.Start()
	if !waitFor(t, 2*time.Second, func() bool { return reg.Pending() == 1 }) {
		t.Fatalf("pending = %d, want 1", reg.Pending())
	}

	var got []*impljs.Mapping
	reg.Install(func(m *impljs.Mapping) { got = append(got, m) })
	if len(got) != 1 || got[0].Trait != "objc::Message" {
		t.Fatalf("drained mappings: %v", got)
	}
}

func TestWatcher_PublishesNewArtifact(t *testing.T) {
	root := t.TempDir()
	// The artifact dir must exist before the watcher starts so the
	// crate subdirectory create event is observed.
	if err := os.MkdirAll(filepath.Join(root, "trait.impl"), 0755); err != nil {
		t.Fatal(err)
	}

	reg := registry.New()
	var mu sync.Mutex
	var published []*impljs.Mapping
	reg.Install(func(m *impljs.Mapping) {
		mu.Lock()
		published = append(published, m)
		mu.Unlock()
	})

	w, err := New(root, reg)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	w.Start()

	writeArtifact(t, root, "objc", "Encode")

	if !waitFor(t, 5*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(published) == 1
	}) {
		t.Fatal("artifact was not published")
	}

	mu.Lock()
	defer mu.Unlock()
	if published[0].Trait != "objc::Encode" {
		t.Errorf("trait = %q, want objc::Encode", published[0].Trait)
	}
}

func TestWatcher_NestedModuleArtifact(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "trait.impl", "objc", "runtime")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "trait.Imp.js"), []byte(testArtifact), 0644); err != nil {
		t.Fatal(err)
	}

	reg := registry.New()
	w, err := New(root, reg)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	w.Start()

	var got []*impljs.Mapping
	if !waitFor(t, 2*time.Second, func() bool { return reg.Pending() == 1 }) {
		t.Fatalf("pending = %d, want 1", reg.Pending())
	}
	reg.Install(func(m *impljs.Mapping) { got = append(got, m) })

	// Module directories are path segments, not the crate name.
	if len(got) != 1 || got[0].Trait != "objc::runtime::Imp" {
		t.Fatalf("drained mappings: %v", got)
	}
}

func TestIsArtifact(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"trait.Message.js": true,
		"trait.Encode.js":  true,
		"index.html":       false,
		"trait.Message":    false,
		"search-index.js":  false,
	}
	for name, want := range cases {
		if got := isArtifact(filepath.Join("x", name)); got != want {
			t.Errorf("isArtifact(%s) = %v, want %v", name, got, want)
		}
	}
}
