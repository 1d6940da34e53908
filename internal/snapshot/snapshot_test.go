package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/formsync/internal/model"
)

func TestPartialMatch(t *testing.T) {
	schema := model.SchemaMapping{"field_name_1": {IsRequired: true}}

	key, ok := PartialMatch(schema, "field_name_2")
	require.True(t, ok)
	assert.Equal(t, "field_name_1", key)

	_, ok = PartialMatch(schema, "other_name_1")
	assert.False(t, ok)
}

func TestPartialMatchWithoutUnderscore(t *testing.T) {
	schema := model.SchemaMapping{"wells": {}}
	key, ok := PartialMatch(schema, "wells")
	require.True(t, ok)
	assert.Equal(t, "wells", key)

	_, ok = PartialMatch(schema, "wellsx")
	assert.False(t, ok)
}

func TestResolvePrefersExact(t *testing.T) {
	schema := model.SchemaMapping{
		"a_b_1": {Label: "alias"},
		"a_b_2": {Label: "exact"},
	}
	e := Resolve(schema, "a_b_2")
	require.NotNil(t, e)
	assert.Equal(t, "exact", e.Label)

	e = Resolve(schema, "a_b_9")
	require.NotNil(t, e)
	assert.Equal(t, "alias", e.Label, "first key in sorted order wins")

	assert.Nil(t, Resolve(schema, "zzz"))
}

func TestBuildFiltersFormsByAction(t *testing.T) {
	forms := []model.RawForm{
		{FormAction: "/app?PosseObjectId=9", Fields: []model.RawField{{DataID: "wells_count", FieldValue: model.Scalar("3")}}},
		{FormAction: "/search", Fields: []model.RawField{{DataID: "q", FieldValue: model.Scalar("x")}}},
	}
	snap := Build(forms, model.SchemaMapping{}, DefaultOptions())
	require.Len(t, snap, 1)
	assert.Equal(t, "wells_count", snap[0].DataID)
}

func TestBuildDedupKeepsEarlierPosition(t *testing.T) {
	forms := []model.RawForm{
		{FormAction: "PosseObjectId", Fields: []model.RawField{
			{DataID: "a", FieldValue: model.Scalar("1")},
			{DataID: "b", FieldValue: model.Scalar("2")},
		}},
		{FormAction: "PosseFromObjectId", Fields: []model.RawField{
			{DataID: "c", FieldValue: model.Scalar("3")},
			{DataID: "a", FieldValue: model.Scalar("9")},
		}},
	}
	snap := Build(forms, nil, Options{})
	require.Len(t, snap, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{snap[0].DataID, snap[1].DataID, snap[2].DataID})
	assert.Equal(t, "9", snap[0].FieldValue.String())
}

func TestBuildMergesSchemaOverRaw(t *testing.T) {
	schema := model.SchemaMapping{"purpose_code_1": {IsRequired: true, Label: "Purpose"}}
	forms := []model.RawForm{{FormAction: "PosseObjectId", Fields: []model.RawField{
		{DataID: "purpose_code_7", FieldValue: model.List("IRR"), Label: "raw label"},
		{DataID: "unmapped", FieldValue: model.Scalar("x"), Label: "kept"},
	}}}

	snap := Build(forms, schema, DefaultOptions())
	require.Len(t, snap, 2)
	assert.True(t, snap[0].Required)
	assert.Equal(t, "Purpose", snap[0].Label)
	assert.Equal(t, "purpose_code_7", snap[0].DataID)
	assert.Nil(t, snap[1].Schema)
	assert.Equal(t, "kept", snap[1].Label)

	v, ok := snap.Lookup("purpose_code_7")
	require.True(t, ok)
	assert.True(t, model.Equal(v, model.List("IRR")))
}
