package main

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/delaneyj/watchparty/cmd/todo/templates"
	"github.com/delaneyj/watchparty/observer"
)

var (
	errUnknownCommand = errors.New("unknown command")
	errBadPosition    = errors.New("no such position")
	errBadFilter      = errors.New("filter must be all, active or done")
)

var filters = []string{"all", "active", "done"}

type app struct {
	sys   *observer.System
	state *observer.Object

	visible   *observer.Computed[[]*observer.Object]
	remaining *observer.Computed[int]
	render    *observer.Watcher

	out   io.Writer
	html  bool
	logf  func(format string, args ...any)
	pages int
}

func initialState() map[string]any {
	return map[string]any{
		"title":  "todos",
		"filter": "all",
		"nextID": 1,
		"todos":  []any{},
	}
}

func newApp(sys *observer.System, out io.Writer, html bool, logf func(string, ...any)) *app {
	a := &app{
		sys:   sys,
		state: sys.ReactiveData(initialState),
		out:   out,
		html:  html,
		logf:  logf,
	}

	a.visible = observer.NewComputed(sys, func() []*observer.Object {
		filter := a.state.Get("filter").(string)
		var out []*observer.Object
		for _, it := range a.list().Items() {
			todo := it.(*observer.Object)
			done, _ := todo.Get("done").(bool)
			if filter == "all" || (filter == "done") == done {
				out = append(out, todo)
			}
		}
		return out
	}, observer.ComputedLabel("visible"))

	a.remaining = observer.NewComputed(sys, func() int {
		n := 0
		for _, it := range a.list().Items() {
			if done, _ := it.(*observer.Object).Get("done").(bool); !done {
				n++
			}
		}
		return n
	}, observer.ComputedLabel("remaining"))

	sys.Watch(func() any {
		return a.state.Get("filter")
	}, func(n, o any) error {
		a.logf("filter: %v -> %v", o, n)
		return nil
	}, observer.Label("filter"))

	a.render = sys.RegisterRender(a.page, a.patch, observer.Label("page"))
	return a
}

// list looks the sequence up on every call; a restore may replace it.
func (a *app) list() *observer.Array {
	l, _ := a.state.Get("todos").(*observer.Array)
	if l == nil {
		l = a.sys.ReactiveArray(nil)
	}
	return l
}

func (a *app) page() any {
	p := &templates.Page{
		Title:     fmt.Sprint(a.state.Get("title")),
		Filter:    fmt.Sprint(a.state.Get("filter")),
		Remaining: a.remaining.Value(),
		Total:     a.list().Len(),
	}
	for i, todo := range a.visible.Value() {
		id, _ := todo.Get("id").(int)
		done, _ := todo.Get("done").(bool)
		p.Items = append(p.Items, templates.Item{
			Pos:  i + 1,
			ID:   id,
			Text: fmt.Sprint(todo.Get("text")),
			Done: done,
		})
	}
	if a.html {
		return templates.PageHTML(p)
	}
	return templates.PageText(p)
}

func (a *app) patch(tree any) error {
	a.pages++
	_, err := io.WriteString(a.out, tree.(string))
	return err
}

// exec applies one command line as a single batch.
func (a *app) exec(line string) (err error) {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)
	a.sys.Batch(func() {
		err = a.apply(cmd, arg)
	})
	return err
}

func (a *app) apply(cmd, arg string) error {
	switch cmd {
	case "":
		return nil
	case "add":
		if arg == "" {
			return errors.New("add: text is required")
		}
		id, _ := a.state.Get("nextID").(int)
		a.list().Push(map[string]any{"id": id, "text": arg, "done": false})
		a.state.Set("nextID", id+1)
	case "toggle":
		todo, err := a.at(arg)
		if err != nil {
			return err
		}
		done, _ := todo.Get("done").(bool)
		todo.Set("done", !done)
	case "edit":
		pos, text, _ := strings.Cut(arg, " ")
		todo, err := a.at(pos)
		if err != nil {
			return err
		}
		todo.Set("text", strings.TrimSpace(text))
	case "remove":
		todo, err := a.at(arg)
		if err != nil {
			return err
		}
		a.removeWhere(func(o *observer.Object) bool { return o == todo })
	case "clear":
		a.removeWhere(func(o *observer.Object) bool {
			done, _ := o.Get("done").(bool)
			return done
		})
	case "toggle-all":
		all := a.remaining.Value() > 0
		for _, it := range a.list().Items() {
			it.(*observer.Object).Set("done", all)
		}
	case "filter":
		if !slices.Contains(filters, arg) {
			return errBadFilter
		}
		a.state.Set("filter", arg)
	case "title":
		a.state.Set("title", arg)
	case "sort":
		a.list().Sort(func(x, y any) int {
			return strings.Compare(
				fmt.Sprint(x.(*observer.Object).Get("text")),
				fmt.Sprint(y.(*observer.Object).Get("text")),
			)
		})
	default:
		return fmt.Errorf("%w %q", errUnknownCommand, cmd)
	}
	return nil
}

// at resolves a 1-based position in the visible list.
func (a *app) at(arg string) (*observer.Object, error) {
	pos, err := strconv.Atoi(arg)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", errBadPosition, arg)
	}
	visible := a.visible.Value()
	if pos < 1 || pos > len(visible) {
		return nil, fmt.Errorf("%w: %d", errBadPosition, pos)
	}
	return visible[pos-1], nil
}

func (a *app) removeWhere(match func(*observer.Object) bool) {
	l := a.list()
	items := l.Items()
	for i := len(items) - 1; i >= 0; i-- {
		if match(items[i].(*observer.Object)) {
			l.Splice(i, 1)
		}
	}
}
