// Package browser drives a real Chrome through go-rod: pages are exposed
// as dom.Document and dom.FormReader so the population engine can write
// live forms.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Config configures Launch.
type Config struct {
	// RemoteURL is the DevTools WebSocket URL of a running Chrome. Empty
	// launches a local one.
	RemoteURL string
	Headless  bool
	// Stealth creates pages with go-rod/stealth evasions applied.
	Stealth bool
	// NavTimeout bounds navigation and load waits. Default: 30s.
	NavTimeout time.Duration
	// Settle is how long to wait after an interaction before deciding it
	// did not navigate. Default: 150ms.
	Settle time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.NavTimeout <= 0 {
		c.NavTimeout = 30 * time.Second
	}
	if c.Settle <= 0 {
		c.Settle = 150 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Browser is a connected Chrome.
type Browser struct {
	cfg  Config
	rod  *rod.Browser
	lnch *launcher.Launcher
}

// Launch starts (or connects to) Chrome.
func Launch(ctx context.Context, cfg Config) (*Browser, error) {
	cfg.defaults()
	log := cfg.Logger

	wsURL := cfg.RemoteURL
	var l *launcher.Launcher
	if wsURL != "" {
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l = launcher.New().Context(ctx).Headless(cfg.Headless)
		l = l.Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		log.Info("browser: launched local chrome", "url", wsURL, "headless", cfg.Headless)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		if l != nil {
			l.Kill()
		}
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	return &Browser{cfg: cfg, rod: b, lnch: l}, nil
}

// Rod returns the underlying rod browser.
func (b *Browser) Rod() *rod.Browser { return b.rod }

// Open creates a tab, navigates to url and waits for it to load.
func (b *Browser) Open(ctx context.Context, url string) (*Page, error) {
	var page *rod.Page
	var err error
	if b.cfg.Stealth {
		page, err = stealth.Page(b.rod)
	} else {
		page, err = b.rod.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	p := Attach(ctx, page, b.cfg)
	navCtx, cancel := context.WithTimeout(ctx, b.cfg.NavTimeout)
	defer cancel()
	if err := page.Context(navCtx).Navigate(url); err != nil {
		p.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(ctx); err != nil {
		b.cfg.Logger.Warn("browser: wait load timeout", "url", url, "error", err)
	}
	return p, nil
}

// Adopt wraps a tab Chrome opened by itself, such as a window.open popup.
func (b *Browser) Adopt(ctx context.Context, id proto.TargetTargetID) (*Page, error) {
	page, err := b.rod.PageFromTarget(id)
	if err != nil {
		return nil, fmt.Errorf("browser: attach target %s: %w", id, err)
	}
	p := Attach(ctx, page, b.cfg)
	if err := p.WaitLoad(ctx); err != nil {
		b.cfg.Logger.Warn("browser: popup wait load timeout", "target", id, "error", err)
	}
	return p, nil
}

// Popups calls fn for every new tab opened by another tab, until ctx is
// done. It blocks.
func (b *Browser) Popups(ctx context.Context, fn func(info *proto.TargetTargetInfo)) {
	if err := (proto.TargetSetDiscoverTargets{Discover: true}).Call(b.rod); err != nil {
		b.cfg.Logger.Warn("browser: target discovery failed", "error", err)
	}
	wait := b.rod.Context(ctx).EachEvent(func(e *proto.TargetTargetCreated) {
		info := e.TargetInfo
		if info.Type != "page" || info.OpenerID == "" {
			return
		}
		fn(info)
	})
	wait()
}

// Close disconnects and, for a launched Chrome, kills the process.
func (b *Browser) Close() error {
	err := b.rod.Close()
	if b.lnch != nil {
		b.lnch.Kill()
	}
	return err
}
