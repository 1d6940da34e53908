package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/rcliao/formsync/internal/dom"
	"github.com/rcliao/formsync/internal/model"
)

// Page is a live tab. It implements dom.Document and dom.FormReader.
type Page struct {
	page   *rod.Page
	settle time.Duration
	nav    time.Duration

	// navs counts main-frame navigations; an interaction that moves it
	// has replaced the document.
	navs   atomic.Int64
	closed atomic.Bool
	cancel context.CancelFunc
}

// Attach wraps page and starts watching it for navigations.
func Attach(ctx context.Context, page *rod.Page, cfg Config) *Page {
	cfg.defaults()
	ctx, cancel := context.WithCancel(ctx)
	p := &Page{page: page, settle: cfg.Settle, nav: cfg.NavTimeout, cancel: cancel}

	wait := page.Context(ctx).EachEvent(
		func(e *proto.PageFrameNavigated) {
			if e.Frame != nil && e.Frame.ParentID == "" {
				p.navs.Add(1)
			}
		},
		func(e *proto.TargetTargetDestroyed) {
			if e.TargetID == page.TargetID {
				p.closed.Store(true)
			}
		},
	)
	go wait()
	return p
}

// Rod returns the underlying rod page.
func (p *Page) Rod() *rod.Page { return p.page }

// URL is the current document URL.
func (p *Page) URL() string {
	info, err := p.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// Navigations reports how many times the main frame has navigated.
func (p *Page) Navigations() int64 { return p.navs.Load() }

// WaitLoad waits for the current document to finish loading.
func (p *Page) WaitLoad(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.nav)
	defer cancel()
	return p.page.Context(ctx).WaitLoad()
}

// WaitNavigation blocks until the main frame navigates past seen, then
// waits for the new document to load.
func (p *Page) WaitNavigation(ctx context.Context, seen int64) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for p.navs.Load() == seen {
		if p.Closed() {
			return fmt.Errorf("browser: page closed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return p.WaitLoad(ctx)
}

// Closed reports whether the tab is gone.
func (p *Page) Closed() bool {
	if p.closed.Load() {
		return true
	}
	if _, err := p.page.Info(); err != nil {
		p.closed.Store(true)
	}
	return p.closed.Load()
}

// Close stops watching and closes the tab.
func (p *Page) Close() error {
	p.cancel()
	if p.closed.Swap(true) {
		return nil
	}
	return p.page.Close()
}

func (p *Page) ByDataID(ctx context.Context, id string) ([]dom.Element, error) {
	return p.query(ctx, attrSelector("data-id", id))
}

func (p *Page) ByID(ctx context.Context, id string) (dom.Element, error) {
	els, err := p.query(ctx, attrSelector("id", id))
	if err != nil || len(els) == 0 {
		return nil, err
	}
	return els[0], nil
}

func (p *Page) ByName(ctx context.Context, name string) ([]dom.Element, error) {
	return p.query(ctx, attrSelector("name", name))
}

func (p *Page) query(ctx context.Context, selector string) ([]dom.Element, error) {
	found, err := p.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, p.wrap(err)
	}
	out := make([]dom.Element, 0, len(found))
	for _, el := range found {
		res, err := el.Context(ctx).Eval(describeJS)
		if err != nil {
			return nil, p.wrap(err)
		}
		kind, multiple := describe(res.Value.Str())
		out = append(out, &element{page: p, el: el, kind: kind, multiple: multiple})
	}
	return out, nil
}

// Forms reads every form on the page.
func (p *Page) Forms(ctx context.Context) ([]model.RawForm, error) {
	res, err := p.page.Context(ctx).Eval(formsJS)
	if err != nil {
		return nil, p.wrap(err)
	}
	var forms []model.RawForm
	if err := json.Unmarshal([]byte(res.Value.Str()), &forms); err != nil {
		return nil, fmt.Errorf("browser: decode forms: %w", err)
	}
	return forms, nil
}

// interact runs fn, then waits for the page to settle. A main-frame
// navigation during that window is reported as dom.ErrNavigated.
func (p *Page) interact(ctx context.Context, fn func() error) error {
	before := p.navs.Load()
	err := fn()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.settle):
	}
	if p.navs.Load() != before {
		return dom.ErrNavigated
	}
	return p.wrap(err)
}

// wrap maps failures caused by a replaced document to dom.ErrNavigated.
func (p *Page) wrap(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "Cannot find context with specified id") ||
		strings.Contains(err.Error(), "Execution context was destroyed") {
		return dom.ErrNavigated
	}
	return err
}

type element struct {
	page     *Page
	el       *rod.Element
	kind     dom.Kind
	multiple bool
}

func (e *element) Kind() dom.Kind { return e.kind }

func (e *element) Value(ctx context.Context) (string, error) {
	res, err := e.el.Context(ctx).Eval(`() => String(this.value ?? "")`)
	if err != nil {
		return "", e.page.wrap(err)
	}
	return res.Value.Str(), nil
}

func (e *element) Multiple(context.Context) (bool, error) { return e.multiple, nil }

func (e *element) SetValue(ctx context.Context, v string) error {
	_, err := e.el.Context(ctx).Eval(`(v) => { this.value = v }`, v)
	return e.page.wrap(err)
}

func (e *element) SelectOptions(ctx context.Context, values []string) error {
	_, err := e.el.Context(ctx).Eval(`(vs) => { for (const o of this.options) o.selected = vs.includes(o.value) }`, values)
	return e.page.wrap(err)
}

// Check clicks the control unless it is already checked, since a click
// would clear a checked checkbox.
func (e *element) Check(ctx context.Context) error {
	res, err := e.el.Context(ctx).Eval(`() => this.checked === true`)
	if err != nil {
		return e.page.wrap(err)
	}
	if res.Value.Bool() {
		return nil
	}
	return e.page.interact(ctx, func() error {
		if err := e.el.Context(ctx).ScrollIntoView(); err != nil {
			return err
		}
		return e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
	})
}

func (e *element) Dispatch(ctx context.Context, event string) error {
	return e.page.interact(ctx, func() error {
		_, err := e.el.Context(ctx).Eval(`(t) => { this.dispatchEvent(new Event(t, {bubbles: true})) }`, event)
		return err
	})
}

// attrSelector builds [name="value"] with value escaped as a CSS string.
func attrSelector(name, value string) string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(name)
	b.WriteString(`="`)
	for _, r := range value {
		switch r {
		case '"', '\\':
			b.WriteRune('\\')
			b.WriteRune(r)
		case '\n':
			b.WriteString(`\a `)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteString(`"]`)
	return b.String()
}

const describeJS = `() => {
	const tag = this.tagName.toLowerCase();
	const type = (this.type || "").toLowerCase();
	return [tag, type, this.multiple === true ? "multiple" : ""].join("|");
}`

// describe decodes the "tag|type|multiple" string produced by describeJS.
func describe(s string) (dom.Kind, bool) {
	parts := strings.SplitN(s, "|", 3)
	for len(parts) < 3 {
		parts = append(parts, "")
	}
	tag, typ, multiple := parts[0], parts[1], parts[2] == "multiple"
	switch tag {
	case "select":
		return dom.KindSelect, multiple
	case "textarea":
		return dom.KindText, false
	case "input":
		switch typ {
		case "radio", "checkbox":
			return dom.KindCheckable, false
		case "submit", "button", "reset", "image", "file":
			return dom.KindOther, false
		}
		return dom.KindText, false
	}
	return dom.KindOther, false
}

// formsJS captures forms in the same shape dom.HTMLDocument.Forms does.
const formsJS = `() => {
	const skip = new Set(["submit", "button", "reset", "image", "file"]);
	const labelFor = (id) => {
		if (!id) return "";
		const l = document.querySelector('label[for="' + CSS.escape(id) + '"]');
		return l ? l.textContent.trim() : "";
	};
	const forms = [];
	for (const form of document.forms) {
		const out = {formAction: form.getAttribute("action") || "", formId: form.id || "", fields: []};
		const index = new Map();
		for (const el of form.querySelectorAll("input, select, textarea")) {
			const tag = el.tagName.toLowerCase();
			const type = tag === "select" ? (el.multiple ? "select-multiple" : "select-one") : (el.type || tag).toLowerCase();
			if (tag === "input" && skip.has(type)) continue;
			const id = el.getAttribute("data-id") || el.id || el.name;
			if (!id) continue;
			const field = {data_id: id, name: el.name || "", id: el.id || "", type: type, label: labelFor(el.id), required: el.required === true};
			if (type === "radio" || type === "checkbox") {
				if (index.has(id)) {
					const prev = out.fields[index.get(id)];
					if (el.checked) {
						prev.fieldValue = type === "checkbox" ? [...(prev.fieldValue || []), el.value] : el.value;
					}
					continue;
				}
				field.fieldValue = el.checked ? (type === "checkbox" ? [el.value] : el.value) : (type === "checkbox" ? [] : null);
			} else if (tag === "select") {
				const selected = Array.from(el.selectedOptions).map((o) => o.value);
				field.fieldValue = el.multiple ? selected : (selected[0] ?? "");
			} else {
				field.fieldValue = el.value;
			}
			if (index.has(id)) {
				out.fields[index.get(id)] = field;
				continue;
			}
			index.set(id, out.fields.length);
			out.fields.push(field);
		}
		forms.push(out);
	}
	return JSON.stringify(forms);
}`
