// Package dom defines the capability boundary between the population engine
// and a live document: finding controls by logical id, writing them, and
// dispatching interaction events. HTMLDocument implements it over an
// in-memory golang.org/x/net/html tree.
package dom

import (
	"context"
	"errors"

	"github.com/rcliao/formsync/internal/model"
)

// ErrNavigated is returned when a write or event caused the document to
// navigate (typically a full reload by the form framework). Nothing more
// can be done in this document; the next load resumes from the store.
var ErrNavigated = errors.New("document navigated")

// Kind classifies a form control.
type Kind int

const (
	KindOther Kind = iota
	KindText
	KindSelect
	KindCheckable
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindSelect:
		return "select"
	case KindCheckable:
		return "checkable"
	default:
		return "other"
	}
}

// Element is one form control.
type Element interface {
	Kind() Kind
	// Value is the control's value attribute (the selected value for selects).
	Value(ctx context.Context) (string, error)
	// Multiple reports a <select multiple>.
	Multiple(ctx context.Context) (bool, error)

	// SetValue writes the value directly, without any event.
	SetValue(ctx context.Context, v string) error
	// SelectOptions marks each option selected iff its value is in values.
	SelectOptions(ctx context.Context, values []string) error
	// Check puts a radio or checkbox into the checked state through a
	// genuine user interaction. It may return ErrNavigated.
	Check(ctx context.Context) error
	// Dispatch fires a DOM event on the element. It may return ErrNavigated.
	Dispatch(ctx context.Context, event string) error
}

// Document finds controls in one browsing context.
type Document interface {
	// ByDataID returns every element carrying data-id=id.
	ByDataID(ctx context.Context, id string) ([]Element, error)
	// ByID returns the element with the given id, or nil.
	ByID(ctx context.Context, id string) (Element, error)
	// ByName returns every element with the given name attribute.
	ByName(ctx context.Context, name string) ([]Element, error)
}

// FormReader reads every form of a document as raw captured data.
type FormReader interface {
	Forms(ctx context.Context) ([]model.RawForm, error)
}

// Find locates the controls for a logical id: data-id attribute matches
// first, then the element id, then the name attribute.
func Find(ctx context.Context, doc Document, id string) ([]Element, error) {
	els, err := doc.ByDataID(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(els) > 0 {
		return els, nil
	}
	el, err := doc.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if el != nil {
		return []Element{el}, nil
	}
	return doc.ByName(ctx, id)
}
