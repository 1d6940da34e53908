// Package session wires the store, engine, popup registry, messenger and
// lifecycle manager for one window. A window is either the main window
// (the opener) or a popup; the role is fixed when the session is created.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/rcliao/formsync/internal/assistant"
	"github.com/rcliao/formsync/internal/capture"
	"github.com/rcliao/formsync/internal/dom"
	"github.com/rcliao/formsync/internal/engine"
	"github.com/rcliao/formsync/internal/lifecycle"
	"github.com/rcliao/formsync/internal/messenger"
	"github.com/rcliao/formsync/internal/model"
	"github.com/rcliao/formsync/internal/popup"
	"github.com/rcliao/formsync/internal/snapshot"
	"github.com/rcliao/formsync/internal/store"
)

// ErrNoAssistant is returned by Send when no assistant client is set.
var ErrNoAssistant = errors.New("no assistant configured")

// Page is a loaded document: something to capture and to write into.
type Page interface {
	dom.Document
	dom.FormReader
}

// Config configures a Session.
type Config struct {
	State     *store.State
	Schema    model.SchemaMapping
	Snapshot  snapshot.Options
	Capture   capture.Options
	Assistant assistant.Client

	IsPopup      bool
	Expiry       time.Duration
	PollInterval time.Duration

	// Restore receives the conversation of a live session on load.
	Restore lifecycle.RestoreFunc
	Now     func() time.Time
	Logger  *slog.Logger
}

// Session is the context object of one window.
type Session struct {
	cfg       Config
	log       *slog.Logger
	registry  *popup.Registry
	messenger *messenger.Messenger
	lifecycle *lifecycle.Manager
}

// New creates a session.
func New(cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	log := cfg.Logger.With("role", role(cfg.IsPopup))
	reg := popup.New(cfg.State, cfg.PollInterval, log)
	return &Session{
		cfg:       cfg,
		log:       log,
		registry:  reg,
		messenger: messenger.New(reg, log),
		lifecycle: &lifecycle.Manager{
			State:   cfg.State,
			Expiry:  cfg.Expiry,
			Restore: cfg.Restore,
			Logger:  log,
			Now:     cfg.Now,
		},
	}
}

func role(isPopup bool) string {
	if isPopup {
		return "popup"
	}
	return "opener"
}

// Registry returns the popup registry.
func (s *Session) Registry() *popup.Registry { return s.registry }

// State returns the session state.
func (s *Session) State() *store.State { return s.cfg.State }

// Engine returns a population engine bound to doc.
func (s *Session) Engine(doc dom.Document) *engine.Engine {
	return engine.New(engine.Config{
		State:    s.cfg.State,
		Schema:   s.cfg.Schema,
		Snapshot: s.cfg.Snapshot,
		Document: doc,
		IsPopup:  s.cfg.IsPopup,
		Popups:   s.registry,
		Forward:  s.messenger,
		Logger:   s.log,
	})
}

// LoadResult reports what a document load did.
type LoadResult struct {
	Outcome  string         `json:"outcome,omitempty"`
	Relinked bool           `json:"relinked,omitempty"`
	Drain    *engine.Result `json:"drain"`
}

// Load runs the document-load sequence: capture the page, expire or
// restore the session, relink surviving popups and drain the queue. Every
// window expires a stale session before draining; only the main window
// relinks. opener may be nil when popups cannot be reopened.
func (s *Session) Load(ctx context.Context, page Page, opener popup.Opener) (*LoadResult, error) {
	opts := s.cfg.Capture
	opts.Logger = s.log
	if _, err := capture.Capture(ctx, s.cfg.State, page, s.cfg.Schema, opts); err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}

	out, err := s.lifecycle.MaybeExpire(ctx)
	if err != nil {
		return nil, err
	}
	res := &LoadResult{Outcome: out.String()}

	if !s.cfg.IsPopup && opener != nil {
		res.Relinked, err = s.registry.Relink(ctx, opener)
		if err != nil {
			s.log.Warn("relink popup failed", "error", err)
		}
	}

	drained, err := s.Engine(page).Drain(ctx)
	if err != nil {
		return nil, fmt.Errorf("drain: %w", err)
	}
	res.Drain = drained
	return res, nil
}

// Send runs one chat turn: the assistant sees the stored snapshot and
// conversation, its response replaces the pending queue, and the queue is
// drained into page when one is given. A failed request leaves the store
// untouched.
func (s *Session) Send(ctx context.Context, message string, page dom.Document) (*model.AssistantResponse, *engine.Result, error) {
	if s.cfg.Assistant == nil {
		return nil, nil, ErrNoAssistant
	}
	st := s.cfg.State
	snap := snapshot.Build(st.FormsData(ctx), s.cfg.Schema, s.cfg.Snapshot)
	req := assistant.BuildRequest(message, snap, st.Conversation(ctx), st.Response(ctx))

	sent := s.cfg.Now()
	resp, err := s.cfg.Assistant.Complete(ctx, req)
	if err != nil {
		return nil, nil, fmt.Errorf("assistant: %w", err)
	}

	ts := s.cfg.Now()
	resp.Timestamp = &ts
	if err := st.SetResponse(ctx, resp); err != nil {
		return nil, nil, fmt.Errorf("cache response: %w", err)
	}
	err = st.AppendConversation(ctx,
		model.ConversationEntry{ID: ulid.Make().String(), Timestamp: sent, Role: model.RoleUser, Content: message},
		model.ConversationEntry{ID: ulid.Make().String(), Timestamp: ts, Role: model.RoleAssistant, Content: resp.ResponseMessage},
	)
	if err != nil {
		return nil, nil, fmt.Errorf("append conversation: %w", err)
	}
	s.log.Info("assistant replied", "filled", len(resp.FilledFields), "missing", len(resp.MissingFields))

	if page == nil {
		return resp, nil, nil
	}
	drained, err := s.Engine(page).Drain(ctx)
	if err != nil {
		return resp, nil, fmt.Errorf("drain: %w", err)
	}
	return resp, drained, nil
}

// OpenPopup registers a popup opened by this window and watches its
// handle. An empty Ref is generated.
func (s *Session) OpenPopup(ctx context.Context, reg model.PopupRegistration, h popup.Handle) (model.PopupRegistration, error) {
	if reg.Ref == "" {
		reg.Ref = ulid.Make().String()
	}
	if err := s.registry.Register(ctx, reg); err != nil {
		return reg, fmt.Errorf("register popup: %w", err)
	}
	s.registry.Watch(reg.Ref, h)
	return reg, nil
}

// ClosePopup forgets a popup this window opened: its poll stops and its
// registration leaves the store.
func (s *Session) ClosePopup(ctx context.Context, ref string) {
	h, ok := s.registry.Handle(ref)
	if !ok {
		if err := s.cfg.State.RemovePopups(ctx, ref); err != nil {
			s.log.Warn("remove popup registration failed", "ref", ref, "error", err)
		}
		return
	}
	s.registry.OnPopupClosed(ctx, ref, h)
}

// Listen answers messages from the main window until ctx is done.
func (s *Session) Listen(ctx context.Context, in *messenger.Inbox, page dom.Document) error {
	return messenger.Listen(ctx, in, s.Engine(page).HandleMessage, s.log)
}

// Close stops every popup poll.
func (s *Session) Close() {
	s.registry.Close()
}
