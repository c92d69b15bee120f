// Package templates renders the to-do page as plain text or HTML through
// quicktemplate writers.
package templates

import (
	"io"

	"github.com/valyala/quicktemplate"
)

type Item struct {
	Pos  int
	ID   int
	Text string
	Done bool
}

type Page struct {
	Title     string
	Filter    string
	Items     []Item
	Remaining int
	Total     int
}

func StreamPage(qw *quicktemplate.Writer, p *Page) {
	qw.N().S("== ")
	qw.N().S(p.Title)
	qw.N().S(" ==\n")
	if len(p.Items) == 0 {
		qw.N().S("  (nothing to show)\n")
	}
	for _, it := range p.Items {
		qw.N().S("  ")
		qw.N().S(checkbox(it.Done))
		qw.N().S(" ")
		qw.N().D(it.Pos)
		qw.N().S(". ")
		qw.N().S(it.Text)
		qw.N().S("\n")
	}
	qw.N().S(counted(p.Remaining, "item", "items"))
	qw.N().S(" left of ")
	qw.N().S(counted(p.Total, "todo", "todos"))
	qw.N().S(" | filter: ")
	qw.N().S(p.Filter)
	qw.N().S("\n")
}

func WritePage(w io.Writer, p *Page) {
	qw := quicktemplate.AcquireWriter(w)
	StreamPage(qw, p)
	quicktemplate.ReleaseWriter(qw)
}

func PageText(p *Page) string {
	qb := quicktemplate.AcquireByteBuffer()
	WritePage(qb, p)
	s := string(qb.B)
	quicktemplate.ReleaseByteBuffer(qb)
	return s
}

// StreamPageHTML escapes every user-supplied string.
func StreamPageHTML(qw *quicktemplate.Writer, p *Page) {
	qw.N().S(`<section class="todoapp"><h1>`)
	qw.E().S(p.Title)
	qw.N().S(`</h1><ul class="todo-list">`)
	for _, it := range p.Items {
		qw.N().S(`<li data-id="`)
		qw.N().D(it.ID)
		qw.N().S(`"`)
		if it.Done {
			qw.N().S(` class="completed"`)
		}
		qw.N().S(`>`)
		qw.E().S(it.Text)
		qw.N().S(`</li>`)
	}
	qw.N().S(`</ul><footer><span class="todo-count">`)
	qw.N().S(counted(p.Remaining, "item", "items"))
	qw.N().S(` left</span><span class="filter">`)
	qw.E().S(p.Filter)
	qw.N().S(`</span></footer></section>`)
	qw.N().S("\n")
}

func WritePageHTML(w io.Writer, p *Page) {
	qw := quicktemplate.AcquireWriter(w)
	StreamPageHTML(qw, p)
	quicktemplate.ReleaseWriter(qw)
}

func PageHTML(p *Page) string {
	qb := quicktemplate.AcquireByteBuffer()
	WritePageHTML(qb, p)
	s := string(qb.B)
	quicktemplate.ReleaseByteBuffer(qb)
	return s
}
