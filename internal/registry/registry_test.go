package registry

import (
	"fmt"
	"testing"

	"github.com/traitdex/traitdex/internal/impljs"
)

func objcMapping() *impljs.Mapping {
	m := impljs.NewMapping()
	m.Trait = "objc::Message"
	m.Set("objc", []string{"<section>a</section>", "<section>b</section>", "<section>c</section>"})
	m.Set("objc_foundation", []string{"<section>d</section>", "<section>e</section>", "<section>f</section>",
		"<section>g</section>", "<section>h</section>", "<section>i</section>"})
	return m
}

func TestPublish_SinkInstalled(t *testing.T) {
	t.Parallel()

	r := New()
	var got []*impljs.Mapping
	r.Install(func(m *impljs.Mapping) { got = append(got, m) })

	want := objcMapping()
	r.Publish(want)

	if len(got) != 1 {
		t.Fatalf("sink invoked %d times, want 1", len(got))
	}
	if !got[0].Equal(want) {
		t.Error("sink received a different mapping than was published")
	}
	if r.Pending() != 0 {
		t.Errorf("pending = %d, want 0", r.Pending())
	}
	if r.Published() != 1 {
		t.Errorf("published = %d, want 1", r.Published())
	}
}

func TestPublish_NoSink_Parks(t *testing.T) {
	t.Parallel()

	r := New()
	want := objcMapping()
	r.Publish(want)

	if r.Ready() {
		t.Error("registry reports ready with no sink installed")
	}
	if r.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", r.Pending())
	}
	if r.Published() != 0 {
		t.Errorf("published = %d, want 0: sink must not have been called", r.Published())
	}

	// The parked mapping is delivered intact once the sink installs.
	var got []*impljs.Mapping
	drained := r.Install(func(m *impljs.Mapping) { got = append(got, m) })
	if drained != 1 {
		t.Fatalf("drained = %d, want 1", drained)
	}
	if len(got) != 1 || !got[0].Equal(want) {
		t.Error("drained mapping differs from the published one")
	}
}

func TestPublish_NoDedup(t *testing.T) {
	t.Parallel()

	r := New()
	count := 0
	r.Install(func(m *impljs.Mapping) { count++ })

	m := objcMapping()
	r.Publish(m)
	r.Publish(m)

	if count != 2 {
		t.Errorf("sink invoked %d times, want 2: Publish must not deduplicate", count)
	}
}

func TestInstall_DrainsFIFO(t *testing.T) {
	t.Parallel()

	r := New()
	for i := 0; i < 5; i++ {
		m := impljs.NewMapping()
		m.Set(fmt.Sprintf("crate%d", i), []string{"<section></section>"})
		r.Publish(m)
	}
	if r.Pending() != 5 {
		t.Fatalf("pending = %d, want 5", r.Pending())
	}

	var order []string
	r.Install(func(m *impljs.Mapping) { order = append(order, m.Crates()[0]) })

	for i, crate := range order {
		if want := fmt.Sprintf("crate%d", i); crate != want {
			t.Errorf("drain position %d: got %s, want %s", i, crate, want)
		}
	}
	if r.Pending() != 0 {
		t.Errorf("pending = %d after drain, want 0", r.Pending())
	}
	if r.Published() != 5 {
		t.Errorf("published = %d, want 5", r.Published())
	}
}

func TestPublish_AfterInstall_Immediate(t *testing.T) {
	t.Parallel()

	r := New()
	r.Publish(objcMapping())

	count := 0
	r.Install(func(m *impljs.Mapping) { count++ })
	r.Publish(objcMapping())

	if count != 2 {
		t.Errorf("sink invoked %d times, want 2 (one drained, one direct)", count)
	}
}
