// Package messenger carries field assignments from the main window to its
// popup. Delivery is fire-and-forget: the popup removes the assignment
// from the shared queue once it has written it.
package messenger

import (
	"context"
	"errors"
	"log/slog"

	"github.com/rcliao/formsync/internal/model"
	"github.com/rcliao/formsync/internal/popup"
)

// ErrNoPopup is returned by Send when no popup handle is live.
var ErrNoPopup = errors.New("no open popup")

// HandleSource yields the popup to post to.
type HandleSource interface {
	Current() (popup.Handle, bool)
}

// Messenger is the sending side, owned by the main window.
type Messenger struct {
	popups HandleSource
	log    *slog.Logger
}

// New creates a messenger posting to the current handle of popups.
func New(popups HandleSource, log *slog.Logger) *Messenger {
	if log == nil {
		log = slog.Default()
	}
	return &Messenger{popups: popups, log: log}
}

// Send posts a populateFormField message for field.
func (m *Messenger) Send(ctx context.Context, field model.FieldValue) error {
	h, ok := m.popups.Current()
	if !ok {
		return ErrNoPopup
	}
	m.log.Debug("sending field to popup", "data_id", field.DataID)
	return h.Post(ctx, model.Message{Action: model.ActionPopulateFormField, Field: field})
}

// Inbox is the receiving side of a popup. It also serves as an in-process
// popup.Handle for tests and offline runs.
type Inbox struct {
	ch     chan model.Message
	closed func() bool
}

// NewInbox creates an inbox buffering up to size messages. closed reports
// whether the popup window is gone; nil means never.
func NewInbox(size int, closed func() bool) *Inbox {
	if closed == nil {
		closed = func() bool { return false }
	}
	return &Inbox{ch: make(chan model.Message, size), closed: closed}
}

// Post queues msg, blocking while the buffer is full.
func (in *Inbox) Post(ctx context.Context, msg model.Message) error {
	select {
	case in.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Closed reports whether the popup has gone away.
func (in *Inbox) Closed() bool { return in.closed() }

// C returns the receive channel.
func (in *Inbox) C() <-chan model.Message { return in.ch }

// Handler processes one inbound message.
type Handler func(ctx context.Context, msg model.Message) error

// Listen feeds messages from in to handle until ctx is done. Handler errors
// are logged; the listener keeps going.
func Listen(ctx context.Context, in *Inbox, handle Handler, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-in.ch:
			if err := handle(ctx, msg); err != nil {
				log.Warn("handle popup message failed", "action", msg.Action, "data_id", msg.Field.DataID, "error", err)
			}
		}
	}
}
