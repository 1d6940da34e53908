package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Value is a form field value: a single string or a list of strings
// (multi-selects, checkbox groups). The zero Value is null.
type Value struct {
	scalar string
	list   []string
	isList bool
	set    bool
}

// Scalar returns a single-string value.
func Scalar(s string) Value {
	return Value{scalar: s, set: true}
}

// List returns a multi-valued value.
func List(items ...string) Value {
	l := make([]string, len(items))
	copy(l, items)
	return Value{list: l, isList: true, set: true}
}

// IsNull reports whether the value was never set (absent or JSON null).
func (v Value) IsNull() bool { return !v.set }

// IsList reports whether the value is multi-valued.
func (v Value) IsList() bool { return v.isList }

// String returns the scalar, or the list joined with commas.
func (v Value) String() string {
	if v.isList {
		return strings.Join(v.list, ",")
	}
	return v.scalar
}

// Strings returns the value as a list. A scalar becomes a one-element list,
// null becomes nil.
func (v Value) Strings() []string {
	switch {
	case !v.set:
		return nil
	case v.isList:
		out := make([]string, len(v.list))
		copy(out, v.list)
		return out
	default:
		return []string{v.scalar}
	}
}

// First returns the first list element, or the scalar itself.
func (v Value) First() string {
	if v.isList {
		if len(v.list) == 0 {
			return ""
		}
		return v.list[0]
	}
	return v.scalar
}

// Empty reports whether the value carries no data: null, "", or [].
func (v Value) Empty() bool {
	if v.isList {
		return len(v.list) == 0
	}
	return v.scalar == ""
}

// Equal compares two values. When either side is a list both are compared
// as lists: same length and identical elements in order. Otherwise the
// comparison is strict, so null never equals "".
func Equal(a, b Value) bool {
	if a.isList || b.isList {
		if !a.set || !b.set {
			return false
		}
		al, bl := a.Strings(), b.Strings()
		if len(al) != len(bl) {
			return false
		}
		for i := range al {
			if al[i] != bl[i] {
				return false
			}
		}
		return true
	}
	return a.set == b.set && a.scalar == b.scalar
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch {
	case !v.set:
		return []byte("null"), nil
	case v.isList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	default:
		return json.Marshal(v.scalar)
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*v = Value{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	switch data[0] {
	case '[':
		var raw []any
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		items := make([]string, 0, len(raw))
		for _, r := range raw {
			items = append(items, stringify(r))
		}
		*v = Value{list: items, isList: true, set: true}
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Scalar(s)
	case '{':
		return fmt.Errorf("field value: unsupported object %s", data)
	default:
		// numbers and booleans captured from non-text controls
		*v = Scalar(string(data))
	}
	return nil
}

func stringify(r any) string {
	switch x := r.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return fmt.Sprintf("%v", x)
	default:
		b, _ := json.Marshal(x)
		return string(b)
	}
}
