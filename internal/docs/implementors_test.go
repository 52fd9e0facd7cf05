package docs

import (
	"encoding/json"
	"strings"
	"testing"
)

func strPtr(s string) *string { return &s }

// messageCrate builds a minimal rustdoc crate for objc defining the Message
// trait with three impls: two local types and one from objc_foundation.
func messageCrate() *RustdocCrate {
	return &RustdocCrate{
		Index: map[string]RustdocItem{
			"1": {ID: 1, Name: strPtr("Message"), Docs: strPtr("Types that can receive Objective-C messages."),
				Inner: json.RawMessage(`{"trait":{"implementations":[10,11,12]}}`)},
			"10": {ID: 10, Inner: json.RawMessage(`{"impl":{"trait":{"name":"Message","id":1},"for":{"resolved_path":{"name":"Object","id":2}},"items":[]}}`)},
			"11": {ID: 11, Inner: json.RawMessage(`{"impl":{"trait":{"name":"Message","id":1},"for":{"resolved_path":{"name":"Class","id":3}},"items":[]}}`)},
			"12": {ID: 12, Inner: json.RawMessage(`{"impl":{"trait":{"name":"Message","id":1},"for":{"resolved_path":{"name":"NSObject","id":4}},"items":[]}}`)},
		},
		Paths: map[string]RustdocSummary{
			"1": {CrateID: 0, Path: []string{"objc", "Message"}, Kind: "trait"},
			"2": {CrateID: 0, Path: []string{"objc", "runtime", "Object"}, Kind: "struct"},
			"3": {CrateID: 0, Path: []string{"objc", "runtime", "Class"}, Kind: "struct"},
			"4": {CrateID: 5, Path: []string{"objc_foundation", "NSObject"}, Kind: "struct"},
		},
		ExternalCrates: map[string]ExternalCrate{
			"5": {Name: "objc_foundation", HTMLRootURL: "https://docs.rs/objc-foundation/0.1.1/"},
		},
	}
}

func TestCollectTraits(t *testing.T) {
	t.Parallel()

	crate := messageCrate()
	traits := CollectTraits(crate, "objc")
	if len(traits) != 1 {
		t.Fatalf("expected 1 trait, got %d", len(traits))
	}

	tr := traits[0]
	if tr.Name != "Message" {
		t.Errorf("name = %q, want Message", tr.Name)
	}
	if tr.Path != "objc::Message" {
		t.Errorf("path = %q, want objc::Message", tr.Path)
	}
	if len(tr.ImplIDs) != 3 {
		t.Errorf("impl IDs = %v, want 3 entries", tr.ImplIDs)
	}
	if !strings.Contains(tr.Docs, "Objective-C messages") {
		t.Errorf("docs not carried: %q", tr.Docs)
	}
}

func TestImplementorMapping(t *testing.T) {
	t.Parallel()

	crate := messageCrate()
	traits := CollectTraits(crate, "objc")
	m := ImplementorMapping(traits[0], crate, "objc")

	if m.Trait != "objc::Message" {
		t.Errorf("mapping trait = %q", m.Trait)
	}

	crates := m.Crates()
	if len(crates) != 2 || crates[0] != "objc" || crates[1] != "objc-foundation" {
		t.Fatalf("crate grouping wrong: %v", crates)
	}

	local, _ := m.Fragments("objc")
	if len(local) != 2 {
		t.Fatalf("expected 2 local fragments, got %d", len(local))
	}
	// Impl order within a group follows rustdoc's impl list order.
	if !strings.Contains(local[0], `id="impl-Message-for-Object"`) {
		t.Errorf("first local fragment: %s", local[0])
	}
	if !strings.Contains(local[1], `id="impl-Message-for-Class"`) {
		t.Errorf("second local fragment: %s", local[1])
	}
	if !strings.Contains(local[0], "impl Message for Object") {
		t.Errorf("header text missing: %s", local[0])
	}

	external, _ := m.Fragments("objc-foundation")
	if len(external) != 1 || !strings.Contains(external[0], "impl Message for NSObject") {
		t.Fatalf("external fragment wrong: %v", external)
	}
}

func TestImplementorMapping_EscapesHeader(t *testing.T) {
	t.Parallel()

	crate := &RustdocCrate{
		Index: map[string]RustdocItem{
			"1": {ID: 1, Name: strPtr("Encode"),
				Inner: json.RawMessage(`{"trait":{"implementations":[10]}}`)},
			"10": {ID: 10, Inner: json.RawMessage(`{"impl":{"for":{"resolved_path":{"name":"Block","id":2,"args":{"angle_bracketed":{"args":[{"type":{"generic":"A"}},{"type":{"generic":"R"}}]}}}},"items":[]}}`)},
		},
		Paths: map[string]RustdocSummary{
			"1": {CrateID: 0, Path: []string{"objc", "Encode"}, Kind: "trait"},
			"2": {CrateID: 0, Path: []string{"objc", "Block"}, Kind: "struct"},
		},
	}
	traits := CollectTraits(crate, "objc")
	m := ImplementorMapping(traits[0], crate, "objc")

	frags, ok := m.Fragments("objc")
	if !ok || len(frags) != 1 {
		t.Fatalf("fragments: %v", frags)
	}
	if !strings.Contains(frags[0], "impl Encode for Block&lt;A, R&gt;") {
		t.Errorf("generic args not escaped in header: %s", frags[0])
	}
	if !strings.Contains(frags[0], `id="impl-Encode-for-Block-A-R"`) {
		t.Errorf("anchor not sanitized: %s", frags[0])
	}
}

func TestResolveTypeName(t *testing.T) {
	t.Parallel()

	crate := messageCrate()
	cases := map[string]struct {
		in   string
		want string
	}{
		"resolved":  {`{"resolved_path":{"name":"Object","id":2}}`, "Object"},
		"qualified": {`{"resolved_path":{"name":"runtime::Object","id":2}}`, "Object"},
		"primitive": {`{"primitive":"usize"}`, "usize"},
		"generic":   {`{"generic":"T"}`, "T"},
		"ref":       {`{"borrowed_ref":{"is_mutable":true,"type":{"resolved_path":{"name":"Object","id":2}}}}`, "&mut Object"},
		"slice":     {`{"slice":{"primitive":"u8"}}`, "[u8]"},
		"tuple":     {`{"tuple":[{"primitive":"i32"},{"generic":"T"}]}`, "(i32, T)"},
		"dyn":       {`{"dyn_trait":{"traits":[{"trait":{"name":"Message"}}]}}`, "dyn Message"},
		"raw_ptr":   {`{"raw_pointer":{"is_mutable":false,"type":{"primitive":"c_void"}}}`, "*const c_void"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got := resolveTypeName(json.RawMessage(tc.in), crate)
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}
