package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"

	"github.com/rcliao/formsync/internal/model"
)

// Session keys. The names are shared with the browser script that wrote
// the first generation of this data and must not change.
const (
	KeyFormsData    = "nrAiForm_formsData"
	KeyResponse     = "nrAiForm_apiResponse"
	KeyConversation = "nrAiForm_conversationHistory"
	KeyPopups       = "nrAiForm_popupsOpen"
)

// SessionKeys lists every key cleared when a session expires.
var SessionKeys = []string{KeyFormsData, KeyResponse, KeyConversation, KeyPopups}

// State is a typed view over the session keys of a Store. Reads never
// fail: a missing or unparsable value reads as empty.
type State struct {
	store Store
	log   *slog.Logger
}

// NewState wraps s. A nil logger uses slog.Default().
func NewState(s Store, log *slog.Logger) *State {
	if log == nil {
		log = slog.Default()
	}
	return &State{store: s, log: log}
}

// Store returns the underlying store.
func (st *State) Store() Store { return st.store }

func (st *State) read(ctx context.Context, key string, dst any) bool {
	raw, err := st.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			st.log.Debug("store read failed", "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		st.log.Debug("stored value unparsable", "key", key, "error", err)
		return false
	}
	return true
}

func (st *State) write(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return st.store.Set(ctx, key, string(b))
}

// FormsData returns the raw captured forms.
func (st *State) FormsData(ctx context.Context) []model.RawForm {
	var forms []model.RawForm
	st.read(ctx, KeyFormsData, &forms)
	return forms
}

// SetFormsData replaces the raw captured forms.
func (st *State) SetFormsData(ctx context.Context, forms []model.RawForm) error {
	return st.write(ctx, KeyFormsData, forms)
}

// MergeFormsData upserts forms by formAction, so forms captured in a popup
// sit beside the opener's.
func (st *State) MergeFormsData(ctx context.Context, forms []model.RawForm) error {
	return st.store.Update(ctx, KeyFormsData, func(old string, ok bool) (string, bool, error) {
		var existing []model.RawForm
		if ok {
			if err := json.Unmarshal([]byte(old), &existing); err != nil {
				st.log.Debug("stored forms unparsable, replacing", "error", err)
				existing = nil
			}
		}
		merged := model.Upsert(existing, forms, model.ByFormAction)
		b, err := json.Marshal(merged)
		return string(b), false, err
	})
}

// Response returns the cached assistant response, or nil.
func (st *State) Response(ctx context.Context) *model.AssistantResponse {
	var resp model.AssistantResponse
	if !st.read(ctx, KeyResponse, &resp) {
		return nil
	}
	return &resp
}

// SetResponse caches resp, replacing the pending queue wholesale.
func (st *State) SetResponse(ctx context.Context, resp *model.AssistantResponse) error {
	return st.write(ctx, KeyResponse, resp)
}

// Pending returns a copy of the pending queue.
func (st *State) Pending(ctx context.Context) []model.FieldValue {
	resp := st.Response(ctx)
	if resp == nil {
		return nil
	}
	return slices.Clone(resp.FilledFields)
}

// RemovePending removes the first pending assignment for dataID. It
// reports whether an entry was removed; removing an absent entry is not an
// error.
func (st *State) RemovePending(ctx context.Context, dataID string) (bool, error) {
	removed := false
	err := st.store.Update(ctx, KeyResponse, func(old string, ok bool) (string, bool, error) {
		if !ok {
			return "", false, ErrUnchanged
		}
		var resp model.AssistantResponse
		if err := json.Unmarshal([]byte(old), &resp); err != nil {
			st.log.Debug("stored response unparsable", "error", err)
			return "", false, ErrUnchanged
		}
		idx := slices.IndexFunc(resp.FilledFields, func(f model.FieldValue) bool {
			return f.DataID == dataID
		})
		if idx == -1 {
			return "", false, ErrUnchanged
		}
		resp.FilledFields = slices.Delete(resp.FilledFields, idx, idx+1)
		b, err := json.Marshal(resp)
		if err != nil {
			return "", false, err
		}
		removed = true
		return string(b), false, nil
	})
	return removed, err
}

// Conversation returns the conversation log in stored order.
func (st *State) Conversation(ctx context.Context) []model.ConversationEntry {
	var log []model.ConversationEntry
	st.read(ctx, KeyConversation, &log)
	return log
}

// SetConversation replaces the conversation log.
func (st *State) SetConversation(ctx context.Context, entries []model.ConversationEntry) error {
	if entries == nil {
		entries = []model.ConversationEntry{}
	}
	return st.write(ctx, KeyConversation, entries)
}

// AppendConversation appends entries to the conversation log.
func (st *State) AppendConversation(ctx context.Context, entries ...model.ConversationEntry) error {
	return st.store.Update(ctx, KeyConversation, func(old string, ok bool) (string, bool, error) {
		var log []model.ConversationEntry
		if ok {
			if err := json.Unmarshal([]byte(old), &log); err != nil {
				st.log.Debug("stored conversation unparsable, restarting", "error", err)
				log = nil
			}
		}
		log = append(log, entries...)
		b, err := json.Marshal(log)
		return string(b), false, err
	})
}

// Popups returns the popup registry.
func (st *State) Popups(ctx context.Context) []model.PopupRegistration {
	var regs []model.PopupRegistration
	st.read(ctx, KeyPopups, &regs)
	return regs
}

// UpsertPopup registers reg, replacing any registration for the same target.
func (st *State) UpsertPopup(ctx context.Context, reg model.PopupRegistration) error {
	return st.store.Update(ctx, KeyPopups, func(old string, ok bool) (string, bool, error) {
		var regs []model.PopupRegistration
		if ok {
			if err := json.Unmarshal([]byte(old), &regs); err != nil {
				regs = nil
			}
		}
		regs = model.Upsert(regs, []model.PopupRegistration{reg}, model.ByTarget)
		b, err := json.Marshal(regs)
		return string(b), false, err
	})
}

// RemovePopups drops every registration with the given ref. The key is
// deleted once the registry is empty.
func (st *State) RemovePopups(ctx context.Context, ref string) error {
	return st.store.Update(ctx, KeyPopups, func(old string, ok bool) (string, bool, error) {
		if !ok {
			return "", false, ErrUnchanged
		}
		var regs []model.PopupRegistration
		if err := json.Unmarshal([]byte(old), &regs); err != nil {
			return "", true, nil
		}
		regs = slices.DeleteFunc(regs, func(p model.PopupRegistration) bool { return p.Ref == ref })
		if len(regs) == 0 {
			return "", true, nil
		}
		b, err := json.Marshal(regs)
		return string(b), false, err
	})
}

// Clear removes every session key.
func (st *State) Clear(ctx context.Context) error {
	for _, k := range SessionKeys {
		if err := st.store.Remove(ctx, k); err != nil {
			return err
		}
	}
	return nil
}
