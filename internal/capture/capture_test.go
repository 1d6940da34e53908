package capture

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/formsync/internal/dom"
	"github.com/rcliao/formsync/internal/model"
	"github.com/rcliao/formsync/internal/store"
)

func newTestState(t *testing.T) *store.State {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), "https://forms.example")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return store.NewState(s, nil)
}

func doc(t *testing.T, s string) *dom.HTMLDocument {
	t.Helper()
	d, err := dom.ParseHTML(strings.NewReader(s))
	require.NoError(t, err)
	return d
}

const opener = `<html><body>
<form id="elementstodisable" action="x"><input name="junk" value="1"></form>
<form action="/app?PosseObjectId=1">
  <input data-id="wells_count" value="3">
  <input data-id="unlisted" value="x">
</form></body></html>`

const popupPage = `<html><body>
<form action="/lookup?PosseFromObjectId=9"><input data-id="parcel" value="P-1"></form>
</body></html>`

func TestCaptureFiltersAndMarksRequired(t *testing.T) {
	schema := model.SchemaMapping{
		"wells_count": {IsRequired: true},
		"parcel":      {},
		"junk":        {},
	}
	forms, err := Forms(context.Background(), doc(t, opener), schema, Options{})
	require.NoError(t, err)
	require.Len(t, forms, 1, "ignored form dropped")
	require.Len(t, forms[0].Fields, 1)
	assert.Equal(t, "wells_count", forms[0].Fields[0].DataID)
	assert.True(t, forms[0].Fields[0].Required)
}

func TestCaptureKeepsDriftedIDs(t *testing.T) {
	page := `<html><body><form action="/app?PosseObjectId=1">
  <select data-id="field_name_2"><option value="a">A</option><option value="b" selected>B</option></select>
</form></body></html>`
	schema := model.SchemaMapping{"field_name_1": {IsRequired: true}}

	forms, err := Forms(context.Background(), doc(t, page), schema, Options{})
	require.NoError(t, err)
	require.Len(t, forms, 1)
	require.Len(t, forms[0].Fields, 1)
	f := forms[0].Fields[0]
	assert.Equal(t, "field_name_2", f.DataID)
	assert.Equal(t, "b", f.FieldValue.String())
	assert.True(t, f.Required)
}

func TestCaptureEmptySchemaKeepsAll(t *testing.T) {
	forms, err := Forms(context.Background(), doc(t, opener), nil, Options{IgnoreFormIDs: []string{}})
	require.NoError(t, err)
	assert.Len(t, forms, 2)
}

func TestCaptureMergesAcrossWindows(t *testing.T) {
	ctx := context.Background()
	st := newTestState(t)

	_, err := Capture(ctx, st, doc(t, opener), nil, Options{})
	require.NoError(t, err)
	_, err = Capture(ctx, st, doc(t, popupPage), nil, Options{})
	require.NoError(t, err)

	stored := st.FormsData(ctx)
	require.Len(t, stored, 2)
	assert.Equal(t, "/app?PosseObjectId=1", stored[0].FormAction)
	assert.Equal(t, "/lookup?PosseFromObjectId=9", stored[1].FormAction)

	// Recapturing the opener replaces its form in place.
	_, err = Capture(ctx, st, doc(t, strings.Replace(opener, `value="3"`, `value="4"`, 1)), nil, Options{})
	require.NoError(t, err)
	stored = st.FormsData(ctx)
	require.Len(t, stored, 2)
	assert.Equal(t, "4", stored[0].Fields[0].FieldValue.String())
}
