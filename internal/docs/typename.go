package docs

import (
	"encoding/json"
	"strconv"
	"strings"
)

// resolveTypeName renders a plain-text type name from a rustdoc Type JSON
// value, e.g. "Object", "NSArray<T>", "&mut Object", "[u8]".
func resolveTypeName(typeJSON json.RawMessage, crate *RustdocCrate) string {
	var outer map[string]json.RawMessage
	if err := json.Unmarshal(typeJSON, &outer); err != nil {
		return ""
	}

	if resolved, ok := outer["resolved_path"]; ok {
		return formatResolvedPath(resolved, crate)
	}

	if prim, ok := outer["primitive"]; ok {
		var name string
		if err := json.Unmarshal(prim, &name); err == nil {
			return name
		}
	}

	if g, ok := outer["generic"]; ok {
		var name string
		if err := json.Unmarshal(g, &name); err == nil {
			return name
		}
	}

	if br, ok := outer["borrowed_ref"]; ok {
		return formatBorrowedRef(br, crate)
	}

	if sl, ok := outer["slice"]; ok {
		if inner := resolveTypeName(sl, crate); inner != "" {
			return "[" + inner + "]"
		}
	}

	if tp, ok := outer["tuple"]; ok {
		return formatTuple(tp, crate)
	}

	if dt, ok := outer["dyn_trait"]; ok {
		return formatDynTrait(dt, crate)
	}

	if rp, ok := outer["raw_pointer"]; ok {
		return formatRawPointer(rp, crate)
	}

	return ""
}

func formatResolvedPath(resolved json.RawMessage, crate *RustdocCrate) string {
	var rp struct {
		Name string           `json:"name"`
		ID   int              `json:"id"`
		Args *json.RawMessage `json:"args"`
	}
	if err := json.Unmarshal(resolved, &rp); err != nil {
		return ""
	}

	// Name can be empty in rustdoc JSON; fall back to the paths table
	name := rp.Name
	if name == "" {
		if summary, ok := crate.Paths[strconv.Itoa(rp.ID)]; ok && len(summary.Path) > 0 {
			name = summary.Path[len(summary.Path)-1]
		}
	}
	if name == "" {
		return ""
	}
	// Drop the module prefix for display; the anchor uses the bare name.
	if i := strings.LastIndex(name, "::"); i >= 0 {
		name = name[i+2:]
	}

	if rp.Args != nil {
		if args := formatGenericArgs(*rp.Args, crate); args != "" {
			name += args
		}
	}
	return name
}

func formatGenericArgs(argsJSON json.RawMessage, crate *RustdocCrate) string {
	var args struct {
		AngleBracketed *struct {
			Args []json.RawMessage `json:"args"`
		} `json:"angle_bracketed"`
	}
	if err := json.Unmarshal(argsJSON, &args); err != nil || args.AngleBracketed == nil {
		return ""
	}

	var parts []string
	for _, arg := range args.AngleBracketed.Args {
		var a map[string]json.RawMessage
		if err := json.Unmarshal(arg, &a); err != nil {
			continue
		}
		if typeData, ok := a["type"]; ok {
			if t := resolveTypeName(typeData, crate); t != "" {
				parts = append(parts, t)
			}
		} else if lifetime, ok := a["lifetime"]; ok {
			var lt string
			if json.Unmarshal(lifetime, &lt) == nil {
				parts = append(parts, lt)
			}
		}
	}

	if len(parts) == 0 {
		return ""
	}
	return "<" + strings.Join(parts, ", ") + ">"
}

func formatBorrowedRef(br json.RawMessage, crate *RustdocCrate) string {
	var ref struct {
		Lifetime  *string         `json:"lifetime"`
		IsMutable bool            `json:"is_mutable"`
		Type      json.RawMessage `json:"type"`
	}
	if err := json.Unmarshal(br, &ref); err != nil {
		return ""
	}

	inner := resolveTypeName(ref.Type, crate)
	if inner == "" {
		return ""
	}

	var b strings.Builder
	b.WriteString("&")
	if ref.Lifetime != nil {
		b.WriteString(*ref.Lifetime)
		b.WriteString(" ")
	}
	if ref.IsMutable {
		b.WriteString("mut ")
	}
	b.WriteString(inner)
	return b.String()
}

func formatTuple(tp json.RawMessage, crate *RustdocCrate) string {
	var types []json.RawMessage
	if err := json.Unmarshal(tp, &types); err != nil {
		return ""
	}
	parts := make([]string, 0, len(types))
	for _, t := range types {
		if name := resolveTypeName(t, crate); name != "" {
			parts = append(parts, name)
		}
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func formatDynTrait(dt json.RawMessage, crate *RustdocCrate) string {
	var d struct {
		Traits []struct {
			Trait struct {
				Name string `json:"name"`
				Path string `json:"path"`
			} `json:"trait"`
		} `json:"traits"`
	}
	if err := json.Unmarshal(dt, &d); err != nil || len(d.Traits) == 0 {
		return ""
	}

	parts := make([]string, 0, len(d.Traits))
	for _, t := range d.Traits {
		name := t.Trait.Name
		if name == "" {
			name = t.Trait.Path
		}
		if name != "" {
			parts = append(parts, name)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "dyn " + strings.Join(parts, " + ")
}

func formatRawPointer(rp json.RawMessage, crate *RustdocCrate) string {
	var ptr struct {
		IsMutable bool            `json:"is_mutable"`
		Type      json.RawMessage `json:"type"`
	}
	if err := json.Unmarshal(rp, &ptr); err != nil {
		return ""
	}
	inner := resolveTypeName(ptr.Type, crate)
	if inner == "" {
		return ""
	}
	if ptr.IsMutable {
		return "*mut " + inner
	}
	return "*const " + inner
}
