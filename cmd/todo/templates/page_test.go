package templates

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageText(t *testing.T) {
	p := &Page{
		Title:  "todos",
		Filter: "all",
		Items: []Item{
			{Pos: 1, ID: 1, Text: "milk"},
			{Pos: 2, ID: 2, Text: "eggs", Done: true},
		},
		Remaining: 1,
		Total:     1234,
	}
	assert.Equal(t, "== todos ==\n"+
		"  [ ] 1. milk\n"+
		"  [x] 2. eggs\n"+
		"1 item left of 1,234 todos | filter: all\n", PageText(p))
}

func TestPageTextEmpty(t *testing.T) {
	out := PageText(&Page{Title: "t", Filter: "done"})
	assert.Contains(t, out, "(nothing to show)")
	assert.Contains(t, out, "0 items left of 0 todos")
}

func TestPageHTMLEscapes(t *testing.T) {
	out := PageHTML(&Page{
		Title:  "<b>mine</b>",
		Filter: "all",
		Items:  []Item{{Pos: 1, ID: 7, Text: `a & "b"`, Done: true}},
	})
	assert.Contains(t, out, "<h1>&lt;b&gt;mine&lt;/b&gt;</h1>")
	assert.Contains(t, out, `<li data-id="7" class="completed">a &amp; &quot;b&quot;</li>`)
}
