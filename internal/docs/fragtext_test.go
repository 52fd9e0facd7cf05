package docs

import (
	"strings"
	"testing"
)

func TestFragmentText(t *testing.T) {
	t.Parallel()

	frag := `<section id="impl-Message-for-Object" class="impl"><h3 class="code-header">impl Message for Object</h3></section>`
	got := FragmentText(frag)
	if got != "impl Message for Object" {
		t.Errorf("got %q", got)
	}
}

func TestFragmentText_NestedAndEntities(t *testing.T) {
	t.Parallel()

	frag := `<section><h3>impl Encode for <a href="#">Block</a>&lt;A, R&gt;</h3></section>`
	got := FragmentText(frag)
	if !strings.Contains(got, "impl Encode for") || !strings.Contains(got, "Block") {
		t.Errorf("got %q", got)
	}
	if !strings.Contains(got, "<A, R>") {
		t.Errorf("entities not decoded: %q", got)
	}
}

func TestFragmentText_PlainText(t *testing.T) {
	t.Parallel()

	if got := FragmentText("no markup at all"); got != "no markup at all" {
		t.Errorf("got %q", got)
	}
}

func TestRenderDocs(t *testing.T) {
	t.Parallel()

	got := RenderDocs("Types that can receive **Objective-C** messages.")
	if !strings.Contains(got, "<strong>Objective-C</strong>") {
		t.Errorf("markdown not rendered: %q", got)
	}

	if RenderDocs("") != "" {
		t.Error("empty docs should render empty")
	}
}
