package docs

import (
	gm "github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	gmparser "github.com/gomarkdown/markdown/parser"
)

// RenderDocs renders an item's markdown documentation to HTML for storage
// alongside its implementor fragments. gomarkdown parsers are single-use, so
// each call builds a fresh one.
func RenderDocs(markdown string) string {
	if markdown == "" {
		return ""
	}

	p := gmparser.NewWithExtensions(gmparser.CommonExtensions | gmparser.Autolink)
	doc := p.Parse([]byte(markdown))

	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{
		Flags: mdhtml.CommonFlags,
	})
	return string(gm.Render(doc, renderer))
}
