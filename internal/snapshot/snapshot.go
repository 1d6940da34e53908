// Package snapshot rebuilds the canonical list of form fields and their
// current values from raw captured forms and the static schema mapping.
package snapshot

import (
	"slices"
	"strings"

	"github.com/rcliao/formsync/internal/model"
)

// DefaultFormActions are the formAction substrings that mark forms
// belonging to the assisted application. Other forms on the page are
// unrelated sub-forms.
var DefaultFormActions = []string{"PosseObjectId", "PosseFromObjectId"}

// Options configures Build.
type Options struct {
	FormActions []string
}

// DefaultOptions returns the default snapshot options.
func DefaultOptions() Options {
	return Options{FormActions: DefaultFormActions}
}

// Build merges raw captured forms with the schema. Fields with the same
// data_id across forms collapse to one record: the later form's field wins
// but keeps the earlier position.
func Build(forms []model.RawForm, schema model.SchemaMapping, opts Options) model.Snapshot {
	if len(opts.FormActions) == 0 {
		opts = DefaultOptions()
	}

	var out model.Snapshot
	index := map[string]int{}
	for _, form := range forms {
		if !matchesAction(form.FormAction, opts.FormActions) {
			continue
		}
		for _, raw := range form.Fields {
			merged := model.MergeField(raw, Resolve(schema, raw.DataID))
			if i, ok := index[merged.DataID]; ok {
				out[i] = merged
				continue
			}
			index[merged.DataID] = len(out)
			out = append(out, merged)
		}
	}
	return out
}

func matchesAction(action string, wanted []string) bool {
	for _, w := range wanted {
		if strings.Contains(action, w) {
			return true
		}
	}
	return false
}

// Resolve finds the schema entry for dataID: exact key first, then a
// partial match on the prefix before the last underscore.
func Resolve(schema model.SchemaMapping, dataID string) *model.SchemaEntry {
	if e, ok := schema[dataID]; ok {
		return &e
	}
	key, ok := PartialMatch(schema, dataID)
	if !ok {
		return nil
	}
	e := schema[key]
	return &e
}

// PartialMatch returns the first schema key (in sorted order) sharing
// needle's prefix before its last "_". Ids without an underscore compare
// whole.
func PartialMatch(schema model.SchemaMapping, needle string) (string, bool) {
	prefix := beforeLastUnderscore(needle)
	keys := make([]string, 0, len(schema))
	for k := range schema {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if beforeLastUnderscore(k) == prefix {
			return k, true
		}
	}
	return "", false
}

func beforeLastUnderscore(s string) string {
	if i := strings.LastIndex(s, "_"); i >= 0 {
		return s[:i]
	}
	return s
}
