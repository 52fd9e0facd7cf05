package docs

import (
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/traitdex/traitdex/internal/impljs"
)

// Parse decodes rustdoc JSON bytes into a crate structure.
func Parse(data []byte) (*RustdocCrate, error) {
	var crate RustdocCrate
	if err := json.Unmarshal(data, &crate); err != nil {
		return nil, fmt.Errorf("unmarshaling rustdoc JSON: %w", err)
	}
	return &crate, nil
}

// CollectTraits returns every trait the local crate defines, with the impl
// block IDs rustdoc recorded for it. Results are ordered by path so repeated
// runs over the same crate produce the same artifact set.
func CollectTraits(crate *RustdocCrate, crateName string) []TraitInfo {
	var traits []TraitInfo
	for id, item := range crate.Index {
		if item.CrateID != 0 || item.Name == nil {
			continue
		}
		traitData := unwrapInner(item.Inner, "trait")
		if traitData == nil {
			continue
		}

		var t struct {
			Implementations []int `json:"implementations"`
		}
		if err := json.Unmarshal(traitData, &t); err != nil {
			continue
		}

		path := crateName + "::" + *item.Name
		if summary, ok := crate.Paths[id]; ok && len(summary.Path) > 0 {
			path = strings.Join(summary.Path, "::")
		}

		docs := ""
		if item.Docs != nil {
			docs = *item.Docs
		}

		traits = append(traits, TraitInfo{
			RustdocID: id,
			Name:      *item.Name,
			Path:      path,
			Docs:      docs,
			ImplIDs:   t.Implementations,
		})
	}

	sort.Slice(traits, func(i, j int) bool { return traits[i].Path < traits[j].Path })
	return traits
}

// ImplementorMapping builds the ordered crate→fragments mapping for one
// trait: one HTML fragment per impl block, grouped under the crate that
// defines the implementing type, in rustdoc's impl order.
func ImplementorMapping(trait TraitInfo, crate *RustdocCrate, crateName string) *impljs.Mapping {
	m := impljs.NewMapping()
	m.Trait = trait.Path

	for _, implID := range trait.ImplIDs {
		implItem, ok := crate.Index[strconv.Itoa(implID)]
		if !ok {
			continue
		}
		implData := unwrapInner(implItem.Inner, "impl")
		if implData == nil {
			continue
		}

		var impl struct {
			IsNegative bool            `json:"is_negative"`
			For        json.RawMessage `json:"for"`
			Generics   json.RawMessage `json:"generics"`
		}
		if err := json.Unmarshal(implData, &impl); err != nil {
			continue
		}

		forName := resolveTypeName(impl.For, crate)
		if forName == "" {
			continue
		}

		header := "impl " + trait.Name + " for " + forName
		if impl.IsNegative {
			header = "impl !" + trait.Name + " for " + forName
		}

		owner := implementingCrate(impl.For, crate, crateName)
		fragments, _ := m.Fragments(owner)
		m.Set(owner, append(fragments, renderImplFragment(trait.Name, forName, header)))
	}

	return m
}

// renderImplFragment renders one implementor section the way generated
// documentation pages expect it: opaque to everything downstream.
func renderImplFragment(traitName, forName, header string) string {
	return fmt.Sprintf(`<section id=%q class="impl"><h3 class="code-header">%s</h3></section>`,
		fragmentID(traitName, forName), html.EscapeString(header))
}

var idUnsafeRe = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// fragmentID builds the section anchor, e.g. "impl-Message-for-Object".
func fragmentID(traitName, forName string) string {
	id := "impl-" + traitName + "-for-" + forName
	return strings.Trim(idUnsafeRe.ReplaceAllString(id, "-"), "-")
}

// implementingCrate names the crate that defines the implementing type.
// Types that can't be resolved through the paths table (generics,
// primitives, references) belong to the documented crate itself.
func implementingCrate(typeJSON json.RawMessage, crate *RustdocCrate, crateName string) string {
	var outer map[string]json.RawMessage
	if err := json.Unmarshal(typeJSON, &outer); err != nil {
		return crateName
	}
	resolved, ok := outer["resolved_path"]
	if !ok {
		return crateName
	}

	var rp struct {
		ID int `json:"id"`
	}
	if err := json.Unmarshal(resolved, &rp); err != nil {
		return crateName
	}

	summary, ok := crate.Paths[strconv.Itoa(rp.ID)]
	if !ok || summary.CrateID == 0 {
		return crateName
	}
	if name := crate.ExternalCrateName(summary.CrateID); name != "" {
		return name
	}
	return crateName
}

// ExternalCrateName looks up the Cargo package name for a dependency by
// crate_id. Prefers the name extracted from html_root_url since the Name
// field uses the Rust lib name (underscores) which may differ from the
// Cargo name (hyphens).
func (c *RustdocCrate) ExternalCrateName(crateID int) string {
	ext, ok := c.ExternalCrates[strconv.Itoa(crateID)]
	if !ok {
		return ""
	}
	if m := docsRsCrateNameRe.FindStringSubmatch(ext.HTMLRootURL); len(m) == 2 {
		return m[1]
	}
	return ext.Name
}

// docsRsCrateNameRe extracts the crate name from a docs.rs html_root_url.
// Example: "https://docs.rs/objc-foundation/0.1.1/x86_64-unknown-linux-gnu/" → "objc-foundation"
var docsRsCrateNameRe = regexp.MustCompile(`^https?://docs\.rs/([^/]+)/`)

// unwrapInner extracts the inner data for a given kind from a rustdoc
// Item's Inner field. Inner is shaped like {"trait": {...}} or {"impl": {...}}.
func unwrapInner(inner json.RawMessage, kind string) json.RawMessage {
	if len(inner) == 0 {
		return nil
	}
	var outer map[string]json.RawMessage
	if err := json.Unmarshal(inner, &outer); err != nil {
		return nil
	}
	data, ok := outer[kind]
	if !ok {
		return nil
	}
	return data
}
