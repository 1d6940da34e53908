// Package engine applies pending field assignments to the document of the
// window it runs in, forwarding to the popup what it cannot find.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/rcliao/formsync/internal/dom"
	"github.com/rcliao/formsync/internal/model"
	"github.com/rcliao/formsync/internal/snapshot"
	"github.com/rcliao/formsync/internal/store"
)

// Forwarder sends an assignment to the open popup.
type Forwarder interface {
	Send(ctx context.Context, field model.FieldValue) error
}

// PopupLister reports the persisted popup registrations.
type PopupLister interface {
	Open(ctx context.Context) []model.PopupRegistration
}

// Config wires an Engine.
type Config struct {
	State    *store.State
	Schema   model.SchemaMapping
	Snapshot snapshot.Options
	Document dom.Document

	// IsPopup marks an engine running inside a popup window. Popups never
	// forward.
	IsPopup bool
	Popups  PopupLister
	Forward Forwarder

	Logger *slog.Logger
}

// Engine is the population engine of one window.
type Engine struct {
	cfg Config
	log *slog.Logger
}

// New creates an engine.
func New(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if len(cfg.Snapshot.FormActions) == 0 {
		cfg.Snapshot = snapshot.DefaultOptions()
	}
	return &Engine{cfg: cfg, log: cfg.Logger}
}

// Result summarises one drain pass.
type Result struct {
	Satisfied []string `json:"satisfied,omitempty"`
	Written   []string `json:"written,omitempty"`
	Forwarded []string `json:"forwarded,omitempty"`
	Deferred  []string `json:"deferred,omitempty"`
	Navigated bool     `json:"navigated,omitempty"`
}

// Drain attempts every pending assignment once. It is safe to call
// repeatedly: assignments whose value is already current are removed
// without touching the document, and an assignment leaves the queue only
// once applied. If a write navigates the document the pass stops at once
// and the remaining work is left for the next load.
func (e *Engine) Drain(ctx context.Context) (*Result, error) {
	res := &Result{}
	for _, pending := range e.cfg.State.Pending(ctx) {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		current := e.currentValue(ctx, pending.DataID)
		if model.Equal(current, pending.FieldValue) {
			e.log.Debug("field already populated", "data_id", pending.DataID)
			if _, err := e.cfg.State.RemovePending(ctx, pending.DataID); err != nil {
				return res, fmt.Errorf("remove %s: %w", pending.DataID, err)
			}
			res.Satisfied = append(res.Satisfied, pending.DataID)
			continue
		}

		e.log.Info("populating field", "data_id", pending.DataID)
		written, err := e.Apply(ctx, pending)
		if errors.Is(err, dom.ErrNavigated) {
			e.log.Info("document navigated during drain", "data_id", pending.DataID)
			res.Navigated = true
			return res, nil
		}
		if err != nil {
			e.log.Warn("populate field failed", "data_id", pending.DataID, "error", err)
			res.Deferred = append(res.Deferred, pending.DataID)
			continue
		}
		if written != "" {
			if _, err := e.cfg.State.RemovePending(ctx, written); err != nil {
				return res, fmt.Errorf("remove %s: %w", written, err)
			}
			res.Written = append(res.Written, written)
			continue
		}

		if e.shouldForward(ctx) {
			if err := e.cfg.Forward.Send(ctx, pending); err != nil {
				e.log.Warn("forward to popup failed", "data_id", pending.DataID, "error", err)
				res.Deferred = append(res.Deferred, pending.DataID)
				continue
			}
			res.Forwarded = append(res.Forwarded, pending.DataID)
			continue
		}

		e.log.Debug("field not found, left pending", "data_id", pending.DataID)
		res.Deferred = append(res.Deferred, pending.DataID)
	}
	return res, nil
}

func (e *Engine) shouldForward(ctx context.Context) bool {
	if e.cfg.IsPopup || e.cfg.Forward == nil || e.cfg.Popups == nil {
		return false
	}
	return len(e.cfg.Popups.Open(ctx)) > 0
}

func (e *Engine) currentValue(ctx context.Context, dataID string) model.Value {
	snap := snapshot.Build(e.cfg.State.FormsData(ctx), e.cfg.Schema, e.cfg.Snapshot)
	v, _ := snap.Lookup(dataID)
	return v
}

// HandleMessage answers a message from the opener: the field is written
// locally and, only if the write happened, removed from the shared queue.
func (e *Engine) HandleMessage(ctx context.Context, msg model.Message) error {
	if msg.Action != model.ActionPopulateFormField {
		e.log.Debug("ignoring message", "action", msg.Action)
		return nil
	}
	e.log.Info("received field", "data_id", msg.Field.DataID)
	written, err := e.Apply(ctx, msg.Field)
	if err != nil {
		return err
	}
	if written == "" {
		return nil
	}
	_, err = e.cfg.State.RemovePending(ctx, written)
	return err
}

// Apply writes one assignment into the document. It returns the data_id
// when the field was found and written, or "" when no control matched.
func (e *Engine) Apply(ctx context.Context, field model.FieldValue) (string, error) {
	els, err := dom.Find(ctx, e.cfg.Document, field.DataID)
	if err != nil {
		return "", err
	}
	if len(els) == 0 {
		e.log.Debug("form field not found in this page", "data_id", field.DataID)
		return "", nil
	}

	if len(els) > 1 {
		return field.DataID, e.checkGroup(ctx, els, field.FieldValue)
	}

	el := els[0]
	switch el.Kind() {
	case dom.KindCheckable:
		return field.DataID, e.checkGroup(ctx, els, field.FieldValue)
	case dom.KindSelect:
		return field.DataID, e.selectValue(ctx, el, field.FieldValue)
	case dom.KindText:
		if err := el.SetValue(ctx, field.FieldValue.String()); err != nil {
			return "", err
		}
		return field.DataID, nil
	default:
		e.log.Debug("matched element is not a form control", "data_id", field.DataID)
		return "", nil
	}
}

// checkGroup checks every checkable control whose value matches the
// assignment, ignoring case. A list assignment matches any of its items.
func (e *Engine) checkGroup(ctx context.Context, els []dom.Element, v model.Value) error {
	wanted := v.Strings()
	for _, el := range els {
		if el.Kind() != dom.KindCheckable {
			continue
		}
		val, err := el.Value(ctx)
		if err != nil {
			return err
		}
		if !slices.ContainsFunc(wanted, func(w string) bool { return strings.EqualFold(w, val) }) {
			continue
		}
		if err := el.Check(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) selectValue(ctx context.Context, el dom.Element, v model.Value) error {
	multiple, err := el.Multiple(ctx)
	if err != nil {
		return err
	}
	if multiple {
		err = el.SelectOptions(ctx, v.Strings())
	} else {
		err = el.SetValue(ctx, v.First())
	}
	if err != nil {
		return err
	}
	return el.Dispatch(ctx, "change")
}
