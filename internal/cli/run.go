package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/rcliao/formsync/internal/browser"
	"github.com/rcliao/formsync/internal/config"
	"github.com/rcliao/formsync/internal/messenger"
	"github.com/rcliao/formsync/internal/model"
	"github.com/rcliao/formsync/internal/popup"
	"github.com/rcliao/formsync/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Drive a Chrome window, filling forms as pages load",
		Long:  "Opens the page in Chrome as the main window and keeps it filled. Every load captures the forms and drains the pending queue, and so does each new assistant response. Popups opened by the page are adopted, reloaded the same way and receive the fields the main window cannot place.",
		Run:   runRun,
	}

	cmd.Flags().String("url", "", "Page to open (required)")
	cmd.Flags().String("remote-url", "", "DevTools WebSocket URL of a running Chrome")
	cmd.Flags().Bool("headless", true, "Run a launched Chrome headless")
	cmd.MarkFlagRequired("url")

	RootCmd.AddCommand(cmd)
}

func runRun(cmd *cobra.Command, args []string) {
	url, _ := cmd.Flags().GetString("url")
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	// One main window per store file.
	lock := flock.New(cfg.Store.Path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		exitErr("lock store", err)
	}
	if !locked {
		exitErr("lock store", fmt.Errorf("another main window is running on %s", cfg.Store.Path))
	}
	defer lock.Unlock()

	navTimeout, err := config.DurationOrDefault(cfg.Browser.NavTimeout, config.DefaultBrowserNavTimeout)
	if err != nil {
		exitErr("parse nav timeout", err)
	}
	poll, err := config.DurationOrDefault(cfg.Popup.PollInterval, config.DefaultPopupPollInterval)
	if err != nil {
		exitErr("parse poll interval", err)
	}

	s, st, err := openState()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	b, err := browser.Launch(ctx, browser.Config{
		RemoteURL:  cfg.Browser.RemoteURL,
		Headless:   cfg.Browser.Headless,
		Stealth:    cfg.Browser.Stealth,
		NavTimeout: navTimeout,
		Logger:     slog.Default(),
	})
	if err != nil {
		exitErr("launch browser", err)
	}
	defer b.Close()

	opener, err := newSession(st, false)
	if err != nil {
		exitErr("create session", err)
	}
	defer opener.Close()

	w := &windows{ctx: ctx, browser: b, state: st, poll: poll}
	go b.Popups(ctx, func(info *proto.TargetTargetInfo) {
		page, err := b.Adopt(ctx, info.TargetID)
		if err != nil {
			slog.Warn("adopt popup failed", "url", info.URL, "error", err)
			return
		}
		h, err := w.startPopup(page)
		if err != nil {
			slog.Warn("start popup session failed", "url", info.URL, "error", err)
			return
		}
		reg := model.PopupRegistration{ATarget: string(info.TargetID), AURL: info.URL}
		if _, err := opener.OpenPopup(ctx, reg, h); err != nil {
			slog.Warn("register popup failed", "url", info.URL, "error", err)
		}
	})

	page, err := b.Open(ctx, url)
	if err != nil {
		exitErr("open page", err)
	}
	defer page.Close()

	if err := opener.Follow(ctx, page, w, poll); err != nil && ctx.Err() == nil {
		exitErr("run", err)
	}
}

// windows starts popup sessions for tabs in the shared browser.
type windows struct {
	ctx     context.Context
	browser *browser.Browser
	state   *store.State
	poll    time.Duration
}

// OpenPopup reopens a registered popup after the main window reloaded.
func (w *windows) OpenPopup(ctx context.Context, reg model.PopupRegistration) (popup.Handle, error) {
	page, err := w.browser.Open(ctx, reg.AURL)
	if err != nil {
		return nil, err
	}
	return w.startPopup(page)
}

// startPopup follows page as a popup window, loading it on every
// navigation and applying fields from the main window until the tab closes.
func (w *windows) startPopup(page *browser.Page) (popup.Handle, error) {
	sess, err := newSession(w.state, true)
	if err != nil {
		return nil, err
	}

	inbox := messenger.NewInbox(64, page.Closed)
	ctx, cancel := context.WithCancel(w.ctx)
	go func() {
		defer cancel()
		defer sess.Close()
		if err := sess.Follow(ctx, page, nil, w.poll); err != nil && ctx.Err() == nil {
			slog.Warn("popup stopped", "url", page.URL(), "error", err)
		}
	}()
	go sess.Listen(ctx, inbox, page)
	return inbox, nil
}
