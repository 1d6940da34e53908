package dom

import (
	"context"
	"io"
	"slices"
	"strings"
	"sync"

	"golang.org/x/net/html"

	"github.com/rcliao/formsync/internal/model"
)

// Event records an event dispatched on an HTMLDocument element.
type Event struct {
	Type   string
	DataID string
	ID     string
	Name   string
	Value  string
}

// EventHook observes dispatched events. Returning ErrNavigated simulates a
// form framework that reloads the page in response.
type EventHook func(ev Event) error

// HTMLDocument is a Document over a parsed HTML tree. It is used for
// offline pages and tests.
type HTMLDocument struct {
	mu     sync.Mutex
	root   *html.Node
	hook   EventHook
	events []Event
}

// ParseHTML parses r into a document.
func ParseHTML(r io.Reader) (*HTMLDocument, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	return &HTMLDocument{root: root}, nil
}

// OnEvent installs the event hook.
func (d *HTMLDocument) OnEvent(h EventHook) {
	d.mu.Lock()
	d.hook = h
	d.mu.Unlock()
}

// Events returns every event dispatched so far.
func (d *HTMLDocument) Events() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.events)
}

// Render writes the current tree as HTML.
func (d *HTMLDocument) Render(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return html.Render(w, d.root)
}

func (d *HTMLDocument) ByDataID(_ context.Context, id string) ([]Element, error) {
	return d.collect(func(n *html.Node) bool { return attr(n, "data-id") == id && hasAttr(n, "data-id") }), nil
}

func (d *HTMLDocument) ByID(_ context.Context, id string) (Element, error) {
	els := d.collect(func(n *html.Node) bool { return hasAttr(n, "id") && attr(n, "id") == id })
	if len(els) == 0 {
		return nil, nil
	}
	return els[0], nil
}

func (d *HTMLDocument) ByName(_ context.Context, name string) ([]Element, error) {
	return d.collect(func(n *html.Node) bool { return hasAttr(n, "name") && attr(n, "name") == name }), nil
}

func (d *HTMLDocument) collect(match func(*html.Node) bool) []Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Element
	walk(d.root, func(n *html.Node) {
		if n.Type == html.ElementNode && match(n) {
			out = append(out, &htmlElement{doc: d, n: n})
		}
	})
	return out
}

// Forms reads every <form> as a raw capture. Radio and checkbox groups
// collapse to one field: the checked value for radios, the list of checked
// values for checkbox groups.
func (d *HTMLDocument) Forms(_ context.Context) ([]model.RawForm, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var forms []model.RawForm
	walk(d.root, func(n *html.Node) {
		if n.Type != html.ElementNode || n.Data != "form" {
			return
		}
		forms = append(forms, readForm(d.root, n))
	})
	return forms, nil
}

func readForm(root, form *html.Node) model.RawForm {
	rf := model.RawForm{FormAction: attr(form, "action"), FormID: attr(form, "id")}
	index := map[string]int{}

	walk(form, func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		kind := kindOf(n)
		if kind == KindOther {
			return
		}
		id := logicalID(n)
		if id == "" {
			return
		}
		f := model.RawField{
			DataID:   id,
			Name:     attr(n, "name"),
			ID:       attr(n, "id"),
			Type:     controlType(n),
			Required: hasAttr(n, "required"),
			Label:    labelFor(root, attr(n, "id")),
		}
		switch kind {
		case KindCheckable:
			if i, ok := index[id]; ok {
				if hasAttr(n, "checked") {
					prev := rf.Fields[i].FieldValue
					if f.Type == "checkbox" {
						rf.Fields[i].FieldValue = model.List(append(prev.Strings(), attr(n, "value"))...)
					} else {
						rf.Fields[i].FieldValue = model.Scalar(attr(n, "value"))
					}
				}
				return
			}
			if hasAttr(n, "checked") {
				if f.Type == "checkbox" {
					f.FieldValue = model.List(attr(n, "value"))
				} else {
					f.FieldValue = model.Scalar(attr(n, "value"))
				}
			} else if f.Type == "checkbox" {
				f.FieldValue = model.List()
			}
		case KindSelect:
			selected := selectedOptions(n)
			if hasAttr(n, "multiple") {
				f.FieldValue = model.List(selected...)
			} else if len(selected) > 0 {
				f.FieldValue = model.Scalar(selected[0])
			} else {
				f.FieldValue = model.Scalar("")
			}
		default:
			v, _ := textValue(n)
			f.FieldValue = model.Scalar(v)
		}
		if i, ok := index[id]; ok {
			rf.Fields[i] = f
			return
		}
		index[id] = len(rf.Fields)
		rf.Fields = append(rf.Fields, f)
	})
	return rf
}

type htmlElement struct {
	doc *HTMLDocument
	n   *html.Node
}

func (e *htmlElement) Kind() Kind { return kindOf(e.n) }

func (e *htmlElement) Value(context.Context) (string, error) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	switch kindOf(e.n) {
	case KindSelect:
		sel := selectedOptions(e.n)
		if len(sel) > 0 {
			return sel[0], nil
		}
		return "", nil
	default:
		return textValue(e.n)
	}
}

func (e *htmlElement) Multiple(context.Context) (bool, error) {
	return e.n.Data == "select" && hasAttr(e.n, "multiple"), nil
}

func (e *htmlElement) SetValue(_ context.Context, v string) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	switch e.n.Data {
	case "textarea":
		for c := e.n.FirstChild; c != nil; {
			next := c.NextSibling
			e.n.RemoveChild(c)
			c = next
		}
		e.n.AppendChild(&html.Node{Type: html.TextNode, Data: v})
	case "select":
		for _, opt := range options(e.n) {
			setBool(opt, "selected", optionValue(opt) == v)
		}
	default:
		setAttr(e.n, "value", v)
	}
	return nil
}

func (e *htmlElement) SelectOptions(_ context.Context, values []string) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	for _, opt := range options(e.n) {
		setBool(opt, "selected", slices.Contains(values, optionValue(opt)))
	}
	return nil
}

func (e *htmlElement) Check(ctx context.Context) error {
	e.doc.mu.Lock()
	if controlType(e.n) == "radio" {
		name := attr(e.n, "name")
		walk(e.doc.root, func(n *html.Node) {
			if n != e.n && n.Type == html.ElementNode && controlType(n) == "radio" && name != "" && attr(n, "name") == name {
				setBool(n, "checked", false)
			}
		})
	}
	setBool(e.n, "checked", true)
	e.doc.mu.Unlock()
	return e.Dispatch(ctx, "click")
}

func (e *htmlElement) Dispatch(_ context.Context, event string) error {
	e.doc.mu.Lock()
	ev := Event{
		Type:   event,
		DataID: attr(e.n, "data-id"),
		ID:     attr(e.n, "id"),
		Name:   attr(e.n, "name"),
	}
	ev.Value, _ = textValue(e.n)
	e.doc.events = append(e.doc.events, ev)
	hook := e.doc.hook
	e.doc.mu.Unlock()

	if hook != nil {
		return hook(ev)
	}
	return nil
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func setBool(n *html.Node, key string, on bool) {
	if on {
		if !hasAttr(n, key) {
			n.Attr = append(n.Attr, html.Attribute{Key: key})
		}
		return
	}
	n.Attr = slices.DeleteFunc(n.Attr, func(a html.Attribute) bool { return a.Key == key })
}

func controlType(n *html.Node) string {
	switch n.Data {
	case "input":
		t := strings.ToLower(attr(n, "type"))
		if t == "" {
			return "text"
		}
		return t
	case "select":
		if hasAttr(n, "multiple") {
			return "select-multiple"
		}
		return "select-one"
	default:
		return n.Data
	}
}

func kindOf(n *html.Node) Kind {
	if n.Type != html.ElementNode {
		return KindOther
	}
	switch n.Data {
	case "select":
		return KindSelect
	case "textarea":
		return KindText
	case "input":
		switch controlType(n) {
		case "radio", "checkbox":
			return KindCheckable
		case "submit", "button", "reset", "image", "file":
			return KindOther
		}
		return KindText
	}
	return KindOther
}

func logicalID(n *html.Node) string {
	for _, k := range []string{"data-id", "id", "name"} {
		if v := attr(n, k); v != "" {
			return v
		}
	}
	return ""
}

func textValue(n *html.Node) (string, error) {
	if n.Data == "textarea" {
		var b strings.Builder
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				b.WriteString(c.Data)
			}
		}
		return b.String(), nil
	}
	return attr(n, "value"), nil
}

func options(sel *html.Node) []*html.Node {
	var out []*html.Node
	walk(sel, func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "option" {
			out = append(out, n)
		}
	})
	return out
}

func optionValue(opt *html.Node) string {
	if hasAttr(opt, "value") {
		return attr(opt, "value")
	}
	var b strings.Builder
	for c := opt.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return strings.TrimSpace(b.String())
}

func selectedOptions(sel *html.Node) []string {
	opts := options(sel)
	var out []string
	for _, o := range opts {
		if hasAttr(o, "selected") {
			out = append(out, optionValue(o))
		}
	}
	if len(out) == 0 && !hasAttr(sel, "multiple") && len(opts) > 0 {
		out = append(out, optionValue(opts[0]))
	}
	return out
}

func labelFor(root *html.Node, id string) string {
	if id == "" {
		return ""
	}
	var label string
	walk(root, func(n *html.Node) {
		if label != "" || n.Type != html.ElementNode || n.Data != "label" || attr(n, "for") != id {
			return
		}
		var b strings.Builder
		walk(n, func(c *html.Node) {
			if c.Type == html.TextNode {
				b.WriteString(c.Data)
			}
		})
		label = strings.TrimSpace(b.String())
	})
	return label
}
