package session

import (
	"context"
	"errors"
	"time"

	"github.com/rcliao/formsync/internal/dom"
	"github.com/rcliao/formsync/internal/popup"
)

// Window is a live page that can navigate and close on its own.
type Window interface {
	Page
	Navigations() int64
	WaitLoad(ctx context.Context) error
	Closed() bool
}

// Follow keeps w filled until it closes or ctx is done. Every navigation
// of w reruns Load. Between loads the main window drains only when a new
// assistant response reaches the store; a popup waits for its next load
// or for a message.
func (s *Session) Follow(ctx context.Context, w Window, opener popup.Opener, interval time.Duration) error {
	if interval <= 0 {
		interval = popup.DefaultPollInterval
	}

	seen := w.Navigations()
	if err := s.follow(ctx, w, opener); err != nil {
		return err
	}
	stamp := s.responseStamp(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if w.Closed() {
			s.log.Info("window closed")
			return nil
		}

		if n := w.Navigations(); n != seen {
			seen = n
			if err := w.WaitLoad(ctx); err != nil {
				s.log.Warn("wait load failed", "error", err)
			}
			if err := s.follow(ctx, w, opener); err != nil {
				return err
			}
			stamp = s.responseStamp(ctx)
			continue
		}

		if s.cfg.IsPopup {
			continue
		}
		if next := s.responseStamp(ctx); !next.Equal(stamp) {
			stamp = next
			res, err := s.Engine(w).Drain(ctx)
			if err != nil {
				return err
			}
			s.log.Info("new response drained", "written", res.Written, "forwarded", res.Forwarded, "deferred", res.Deferred)
		}
	}
}

// follow runs one Load. A document replaced while it was being read is
// picked up again on the next tick.
func (s *Session) follow(ctx context.Context, w Window, opener popup.Opener) error {
	res, err := s.Load(ctx, w, opener)
	if errors.Is(err, dom.ErrNavigated) {
		return nil
	}
	if err != nil {
		return err
	}
	s.log.Info("page loaded", "outcome", res.Outcome,
		"written", len(res.Drain.Written), "forwarded", len(res.Drain.Forwarded), "deferred", len(res.Drain.Deferred))
	return nil
}

func (s *Session) responseStamp(ctx context.Context) time.Time {
	if resp := s.cfg.State.Response(ctx); resp != nil && resp.Timestamp != nil {
		return *resp.Timestamp
	}
	return time.Time{}
}
