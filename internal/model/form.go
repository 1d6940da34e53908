// Package model defines the form, assistant and popup data types shared by
// every window of a form-filling session.
package model

import (
	"encoding/json"
	"time"
)

// FieldValue assigns a value to a form control identified by its stable
// data_id. The same shape is used for pending assignments.
type FieldValue struct {
	DataID     string `json:"data_id"`
	FieldValue Value  `json:"fieldValue"`
}

// RawField is a field as captured from the live document.
type RawField struct {
	DataID     string `json:"data_id"`
	FieldValue Value  `json:"fieldValue"`
	Name       string `json:"name,omitempty"`
	ID         string `json:"id,omitempty"`
	Type       string `json:"type,omitempty"`
	Label      string `json:"label,omitempty"`
	Required   bool   `json:"required,omitempty"`
}

// RawForm is one captured <form> element.
type RawForm struct {
	FormAction string     `json:"formAction"`
	FormID     string     `json:"formId,omitempty"`
	Fields     []RawField `json:"fields"`
}

// SchemaEntry is the static display metadata for one data_id.
type SchemaEntry struct {
	IsRequired bool           `json:"is_required" yaml:"is_required"`
	Label      string         `json:"label,omitempty" yaml:"label,omitempty"`
	Type       string         `json:"type,omitempty" yaml:"type,omitempty"`
	Help       string         `json:"help,omitempty" yaml:"help,omitempty"`
	Options    []string       `json:"options,omitempty" yaml:"options,omitempty"`
	Extra      map[string]any `json:"extra,omitempty" yaml:",inline"`
}

// SchemaMapping maps data_id to schema metadata.
type SchemaMapping map[string]SchemaEntry

// Field is a snapshot record: the raw captured field merged with the
// schema entry that resolved for it. Schema values win on conflict.
type Field struct {
	RawField
	Schema *SchemaEntry `json:"schema,omitempty"`
}

// MergeField applies the schema-wins rule to a raw field.
func MergeField(raw RawField, entry *SchemaEntry) Field {
	f := Field{RawField: raw}
	if entry == nil {
		return f
	}
	e := *entry
	f.Schema = &e
	f.Required = e.IsRequired
	if e.Label != "" {
		f.Label = e.Label
	}
	if e.Type != "" {
		f.Type = e.Type
	}
	return f
}

// Snapshot is the rebuilt view of all known field values, in capture order.
type Snapshot []Field

// Lookup returns the current value for dataID, or a null Value.
func (s Snapshot) Lookup(dataID string) (Value, bool) {
	for _, f := range s {
		if f.DataID == dataID {
			return f.FieldValue, true
		}
	}
	return Value{}, false
}

// AssistantResponse is the payload returned by the assistant, cached
// verbatim with a generated timestamp. FilledFields is the PendingQueue.
type AssistantResponse struct {
	ResponseMessage string          `json:"response_message"`
	FilledFields    []FieldValue    `json:"filled_fields"`
	MissingFields   []FieldValue    `json:"missing_fields"`
	CurrentField    json.RawMessage `json:"current_field,omitempty"`
	Timestamp       *time.Time      `json:"timestamp,omitempty"`
}

// PopupRegistration records a popup opened by the main window.
type PopupRegistration struct {
	Ref     string `json:"ref"`
	ATarget string `json:"aTarget"`
	AAnchor string `json:"aAnchor"`
	AURL    string `json:"aURL"`
	AWidth  string `json:"aWidth"`
	AHeight string `json:"aHeight"`
}

// ConversationEntry is one chat message in the persisted conversation log.
type ConversationEntry struct {
	ID        string    `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
}

// Conversation roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ActionPopulateFormField is the only cross-window action.
const ActionPopulateFormField = "populateFormField"

// Message is sent from the opener to a popup.
type Message struct {
	Action string     `json:"action"`
	Field  FieldValue `json:"field"`
}
