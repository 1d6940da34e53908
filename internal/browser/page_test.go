package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rcliao/formsync/internal/dom"
)

func TestAttrSelector(t *testing.T) {
	assert.Equal(t, `[data-id="wells_count"]`, attrSelector("data-id", "wells_count"))
	assert.Equal(t, `[name="a\"b\\c"]`, attrSelector("name", `a"b\c`))
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		in       string
		kind     dom.Kind
		multiple bool
	}{
		{"input|text|", dom.KindText, false},
		{"input||", dom.KindText, false},
		{"input|checkbox|", dom.KindCheckable, false},
		{"input|radio|", dom.KindCheckable, false},
		{"input|submit|", dom.KindOther, false},
		{"select|select-multiple|multiple", dom.KindSelect, true},
		{"select|select-one|", dom.KindSelect, false},
		{"textarea|textarea|", dom.KindText, false},
		{"div||", dom.KindOther, false},
		{"", dom.KindOther, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			kind, multiple := describe(tt.in)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.multiple, multiple)
		})
	}
}
