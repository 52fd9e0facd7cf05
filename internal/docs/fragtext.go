package docs

import (
	"strings"

	"golang.org/x/net/html"
)

// FragmentText extracts the visible text of an HTML fragment for search
// indexing. The stored fragment itself is never modified.
func FragmentText(fragment string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(fragment))

	var parts []string
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return strings.Join(parts, " ")
		case html.TextToken:
			if text := strings.TrimSpace(string(tokenizer.Text())); text != "" {
				parts = append(parts, text)
			}
		}
	}
}
