package engine

import (
	"context"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/formsync/internal/dom"
	"github.com/rcliao/formsync/internal/model"
	"github.com/rcliao/formsync/internal/store"
)

const action = "/app?PosseObjectId=1"

func newTestState(t *testing.T) *store.State {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), "https://forms.example")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return store.NewState(s, nil)
}

func parse(t *testing.T, body string) *dom.HTMLDocument {
	t.Helper()
	doc, err := dom.ParseHTML(strings.NewReader(`<html><body><form action="` + action + `">` + body + `</form></body></html>`))
	require.NoError(t, err)
	return doc
}

// countingDoc counts lookups to prove the document was not consulted.
type countingDoc struct {
	dom.Document
	lookups atomic.Int32
}

func (c *countingDoc) ByDataID(ctx context.Context, id string) ([]dom.Element, error) {
	c.lookups.Add(1)
	return c.Document.ByDataID(ctx, id)
}

type fakeForwarder struct{ sent []model.FieldValue }

func (f *fakeForwarder) Send(_ context.Context, fv model.FieldValue) error {
	f.sent = append(f.sent, fv)
	return nil
}

type fakePopups []model.PopupRegistration

func (p fakePopups) Open(context.Context) []model.PopupRegistration { return p }

func seed(t *testing.T, st *store.State, forms []model.RawForm, pending ...model.FieldValue) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.SetFormsData(ctx, forms))
	now := time.Now()
	require.NoError(t, st.SetResponse(ctx, &model.AssistantResponse{FilledFields: pending, Timestamp: &now}))
}

func capture(t *testing.T, st *store.State, doc *dom.HTMLDocument) {
	t.Helper()
	forms, err := doc.Forms(context.Background())
	require.NoError(t, err)
	require.NoError(t, st.SetFormsData(context.Background(), forms))
}

func TestWellsCountEndToEnd(t *testing.T) {
	ctx := context.Background()
	st := newTestState(t)
	doc := parse(t, `<input data-id="wells_count" value="3">`)
	capture(t, st, doc)
	seed(t, st, st.FormsData(ctx), model.FieldValue{DataID: "wells_count", FieldValue: model.Scalar("5")})

	e := New(Config{State: st, Document: doc})

	res, err := e.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"wells_count"}, res.Written)
	assert.Empty(t, st.Pending(ctx))

	els, err := dom.Find(ctx, doc, "wells_count")
	require.NoError(t, err)
	v, _ := els[0].Value(ctx)
	assert.Equal(t, "5", v)

	// Reload: recapture, then the same assignment is already satisfied.
	capture(t, st, doc)
	seed(t, st, st.FormsData(ctx), model.FieldValue{DataID: "wells_count", FieldValue: model.Scalar("5")})
	res, err = e.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"wells_count"}, res.Satisfied)
	assert.Empty(t, res.Written)
	assert.Empty(t, st.Pending(ctx))
}

func TestDrainIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := newTestState(t)
	doc := parse(t, `<input data-id="a" value="">`)
	seed(t, st, nil,
		model.FieldValue{DataID: "a", FieldValue: model.Scalar("x")},
		model.FieldValue{DataID: "elsewhere", FieldValue: model.Scalar("y")},
	)
	e := New(Config{State: st, Document: doc})

	_, err := e.Drain(ctx)
	require.NoError(t, err)
	firstQueue := st.Pending(ctx)
	var first strings.Builder
	require.NoError(t, doc.Render(&first))

	_, err = e.Drain(ctx)
	require.NoError(t, err)
	var second strings.Builder
	require.NoError(t, doc.Render(&second))

	assert.Equal(t, firstQueue, st.Pending(ctx))
	assert.Equal(t, first.String(), second.String())
	require.Len(t, firstQueue, 1)
	assert.Equal(t, "elsewhere", firstQueue[0].DataID)
}

func TestEqualityShortCircuit(t *testing.T) {
	ctx := context.Background()
	st := newTestState(t)
	forms := []model.RawForm{{FormAction: action, Fields: []model.RawField{
		{DataID: "uses", FieldValue: model.List("A", "B")},
	}}}
	seed(t, st, forms, model.FieldValue{DataID: "uses", FieldValue: model.List("A", "B")})

	doc := &countingDoc{Document: parse(t, `<select data-id="uses" multiple><option>A</option><option>B</option></select>`)}
	e := New(Config{State: st, Document: doc})

	res, err := e.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"uses"}, res.Satisfied)
	assert.Zero(t, doc.lookups.Load(), "document must not be touched")
	assert.Empty(t, st.Pending(ctx))

	// ["A"] vs ["A","B"] writes.
	forms[0].Fields[0].FieldValue = model.List("A")
	seed(t, st, forms, model.FieldValue{DataID: "uses", FieldValue: model.List("A", "B")})
	res, err = e.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"uses"}, res.Written)
	assert.Equal(t, int32(1), doc.lookups.Load())
}

func TestAtLeastOnceRemoval(t *testing.T) {
	ctx := context.Background()
	st := newTestState(t)
	doc := parse(t, `<input id="name">`)
	seed(t, st, nil, model.FieldValue{DataID: "name", FieldValue: model.Scalar("Ada")})
	e := New(Config{State: st, Document: doc})

	for i := 0; i < 3; i++ {
		_, err := e.Drain(ctx)
		require.NoError(t, err)
	}
	assert.Empty(t, st.Pending(ctx))

	// A late duplicate removal is a no-op.
	removed, err := st.RemovePending(ctx, "name")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestPopupRedirection(t *testing.T) {
	ctx := context.Background()
	st := newTestState(t)
	doc := parse(t, `<input data-id="present">`)
	seed(t, st, nil, model.FieldValue{DataID: "popup_only", FieldValue: model.Scalar("7")})

	fwd := &fakeForwarder{}
	e := New(Config{
		State:    st,
		Document: doc,
		Popups:   fakePopups{{Ref: "r1", ATarget: "lookup"}},
		Forward:  fwd,
	})

	res, err := e.Drain(ctx)
	require.NoError(t, err)
	require.Len(t, fwd.sent, 1)
	assert.Equal(t, "popup_only", fwd.sent[0].DataID)
	assert.Equal(t, []string{"popup_only"}, res.Forwarded)
	require.Len(t, st.Pending(ctx), 1, "opener must leave the assignment queued")
}

func TestPopupNeverForwards(t *testing.T) {
	ctx := context.Background()
	st := newTestState(t)
	seed(t, st, nil, model.FieldValue{DataID: "missing", FieldValue: model.Scalar("7")})

	fwd := &fakeForwarder{}
	e := New(Config{
		State:    st,
		Document: parse(t, ``),
		IsPopup:  true,
		Popups:   fakePopups{{Ref: "r1"}},
		Forward:  fwd,
	})
	res, err := e.Drain(ctx)
	require.NoError(t, err)
	assert.Empty(t, fwd.sent)
	assert.Equal(t, []string{"missing"}, res.Deferred)
}

func TestDrainStopsOnNavigation(t *testing.T) {
	ctx := context.Background()
	st := newTestState(t)
	doc := parse(t, `<select name="county"><option>A</option><option>B</option></select><input name="after">`)
	doc.OnEvent(func(ev dom.Event) error {
		if ev.Type == "change" {
			return dom.ErrNavigated
		}
		return nil
	})
	seed(t, st, nil,
		model.FieldValue{DataID: "county", FieldValue: model.Scalar("B")},
		model.FieldValue{DataID: "after", FieldValue: model.Scalar("z")},
	)
	e := New(Config{State: st, Document: doc})

	res, err := e.Drain(ctx)
	require.NoError(t, err)
	assert.True(t, res.Navigated)
	assert.Len(t, st.Pending(ctx), 2, "nothing is removed once the document is gone")
}

func TestApplyWriteRules(t *testing.T) {
	ctx := context.Background()
	st := newTestState(t)
	doc := parse(t, `
		<input type="checkbox" data-id="uses" value="irr">
		<input type="checkbox" data-id="uses" value="dom">
		<input type="checkbox" data-id="uses" value="mun">
		<select data-id="multi" multiple><option>A</option><option>B</option></select>
		<select data-id="single"><option>X</option><option>Y</option></select>
		<textarea data-id="notes"></textarea>
		<div data-id="label"></div>`)
	e := New(Config{State: st, Document: doc})

	apply := func(id string, v model.Value) string {
		t.Helper()
		got, err := e.Apply(ctx, model.FieldValue{DataID: id, FieldValue: v})
		require.NoError(t, err)
		return got
	}

	assert.Equal(t, "uses", apply("uses", model.List("IRR", "mun")))
	assert.Equal(t, "multi", apply("multi", model.Scalar("B")))
	assert.Equal(t, "single", apply("single", model.List("Y", "X")))
	assert.Equal(t, "notes", apply("notes", model.List("a", "b")))
	assert.Equal(t, "", apply("label", model.Scalar("x")))
	assert.Equal(t, "", apply("nowhere", model.Scalar("x")))

	forms, err := doc.Forms(ctx)
	require.NoError(t, err)
	got := map[string]model.Value{}
	for _, f := range forms[0].Fields {
		got[f.DataID] = f.FieldValue
	}
	assert.True(t, model.Equal(got["uses"], model.List("irr", "mun")))
	assert.True(t, model.Equal(got["multi"], model.List("B")))
	assert.True(t, model.Equal(got["single"], model.Scalar("Y")))
	assert.True(t, model.Equal(got["notes"], model.Scalar("a,b")))

	var changes int
	for _, ev := range doc.Events() {
		if ev.Type == "change" {
			changes++
		}
	}
	assert.Equal(t, 2, changes, "selects fire change, text inputs do not")
}

func TestHandleMessageRemovesOnlyOnSuccess(t *testing.T) {
	ctx := context.Background()
	st := newTestState(t)
	seed(t, st, nil,
		model.FieldValue{DataID: "here", FieldValue: model.Scalar("1")},
		model.FieldValue{DataID: "gone", FieldValue: model.Scalar("2")},
	)
	e := New(Config{State: st, Document: parse(t, `<input name="here">`), IsPopup: true})

	msg := func(id string) model.Message {
		return model.Message{Action: model.ActionPopulateFormField, Field: model.FieldValue{DataID: id, FieldValue: model.Scalar("v")}}
	}
	require.NoError(t, e.HandleMessage(ctx, msg("gone")))
	require.Len(t, st.Pending(ctx), 2)

	require.NoError(t, e.HandleMessage(ctx, msg("here")))
	pending := st.Pending(ctx)
	require.Len(t, pending, 1)
	assert.Equal(t, "gone", pending[0].DataID)

	require.NoError(t, e.HandleMessage(ctx, model.Message{Action: "other"}))
}
