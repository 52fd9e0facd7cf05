package impljs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// entriesMarker precedes the pair-array payload in a generated artifact.
// The payload itself ([["crate",["frag",...]],...]) is valid JSON.
const entriesMarker = "Object.fromEntries("

// Parse extracts the crate→fragments mapping from an implementors artifact.
// Duplicate crate keys are rejected; an empty pair array is a valid,
// empty mapping.
func Parse(data []byte) (*Mapping, error) {
	idx := bytes.Index(data, []byte(entriesMarker))
	if idx < 0 {
		return nil, fmt.Errorf("not an implementors artifact: missing %q", entriesMarker)
	}

	dec := json.NewDecoder(bytes.NewReader(data[idx+len(entriesMarker):]))
	var pairs [][]json.RawMessage
	if err := dec.Decode(&pairs); err != nil {
		return nil, fmt.Errorf("decoding implementors payload: %w", err)
	}

	m := NewMapping()
	for i, pair := range pairs {
		if len(pair) != 2 {
			return nil, fmt.Errorf("entry %d: expected [crate, fragments] pair, got %d elements", i, len(pair))
		}
		var crate string
		if err := json.Unmarshal(pair[0], &crate); err != nil {
			return nil, fmt.Errorf("entry %d: decoding crate name: %w", i, err)
		}
		var fragments []string
		if err := json.Unmarshal(pair[1], &fragments); err != nil {
			return nil, fmt.Errorf("entry %d (%s): decoding fragments: %w", i, crate, err)
		}
		if _, exists := m.Fragments(crate); exists {
			return nil, fmt.Errorf("entry %d: duplicate crate %q", i, crate)
		}
		m.Set(crate, fragments)
	}
	return m, nil
}

// ParseFile parses an artifact from disk and derives the trait path from the
// file's location. Both site layouts are recognized:
//
//	<root>/trait.impl/<crate>/<module...>/trait.<Name>.js
//	<root>/implementors/<crate>/<module...>/trait.<Name>.js
func ParseFile(path string) (*Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading artifact: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	m.Trait = traitFromPath(path)
	return m, nil
}

// traitFromPath derives the qualified trait path from an artifact's
// location. The generated tree mirrors the full module path, so every
// directory between the artifact root and the file is a path segment:
//
//	.../trait.impl/objc/runtime/trait.Imp.js → "objc::runtime::Imp"
//
// Without a recognizable artifact root, the immediate parent directory is
// taken as the crate. Returns "" if the file name doesn't follow the
// generated layout.
func traitFromPath(path string) string {
	base := filepath.Base(path)
	name := strings.TrimSuffix(strings.TrimPrefix(base, "trait."), ".js")
	if name == base || name == "" {
		return ""
	}

	dirs := strings.Split(filepath.ToSlash(filepath.Dir(path)), "/")
	for i := len(dirs) - 1; i >= 0; i-- {
		if dirs[i] != "trait.impl" && dirs[i] != "implementors" {
			continue
		}
		segments := dirs[i+1:]
		if len(segments) == 0 || segments[0] == "" {
			return ""
		}
		return strings.Join(append(segments, name), "::")
	}

	crate := dirs[len(dirs)-1]
	if crate == "" || crate == "." {
		return ""
	}
	return crate + "::" + name
}

// Emit renders a mapping back into artifact form: the same immediately
// invoked function rustdoc generates, probing the registration hook and
// falling back to the pending slot.
func Emit(m *Mapping) ([]byte, error) {
	var payload bytes.Buffer
	payload.WriteByte('[')
	first := true
	for _, crate := range m.Crates() {
		fragments, _ := m.Fragments(crate)
		if !first {
			payload.WriteByte(',')
		}
		first = false

		crateJSON, err := json.Marshal(crate)
		if err != nil {
			return nil, fmt.Errorf("encoding crate name %q: %w", crate, err)
		}
		fragJSON, err := json.Marshal(fragments)
		if err != nil {
			return nil, fmt.Errorf("encoding fragments for %q: %w", crate, err)
		}
		payload.WriteByte('[')
		payload.Write(crateJSON)
		payload.WriteByte(',')
		payload.Write(fragJSON)
		payload.WriteByte(']')
	}
	payload.WriteByte(']')

	var b bytes.Buffer
	b.WriteString("(function() {\n")
	b.WriteString("    var implementors = " + entriesMarker)
	b.Write(payload.Bytes())
	b.WriteString(");\n")
	b.WriteString("    if (window." + HookName + ") {\n")
	b.WriteString("        window." + HookName + "(implementors);\n")
	b.WriteString("    } else {\n")
	b.WriteString("        window." + PendingSlot + " = implementors;\n")
	b.WriteString("    }\n")
	b.WriteString("})()\n")
	return b.Bytes(), nil
}

// ArtifactPath returns the site-relative path an emitted artifact belongs
// at, given a qualified trait path like "objc::Message". Module segments
// become directories, mirroring the generated tree, so
// "objc::runtime::Imp" and "objc::declare::Imp" land in distinct files.
func ArtifactPath(traitPath string) (string, error) {
	segments := strings.Split(traitPath, "::")
	if len(segments) < 2 {
		return "", fmt.Errorf("invalid trait path %q: want crate::Name", traitPath)
	}
	for _, s := range segments {
		if s == "" {
			return "", fmt.Errorf("invalid trait path %q: empty segment", traitPath)
		}
	}

	parts := append([]string{"trait.impl"}, segments[:len(segments)-1]...)
	parts = append(parts, "trait."+segments[len(segments)-1]+".js")
	return filepath.Join(parts...), nil
}
