// Package popup tracks popups opened by the main window. Registrations are
// persisted so that every window sees them; live handles and their closure
// polls belong to the window that opened them.
package popup

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/rcliao/formsync/internal/model"
	"github.com/rcliao/formsync/internal/store"
)

// DefaultPollInterval is how often a watched popup is checked for closure.
const DefaultPollInterval = 500 * time.Millisecond

// Handle is a live reference to an open popup window.
type Handle interface {
	Closed() bool
	Post(ctx context.Context, msg model.Message) error
}

// Opener opens (or reattaches to) the popup described by reg.
type Opener interface {
	OpenPopup(ctx context.Context, reg model.PopupRegistration) (Handle, error)
}

// Registry is the popup registry of one window.
type Registry struct {
	state    *store.State
	interval time.Duration
	log      *slog.Logger

	mu      sync.Mutex
	handles map[string]Handle
	order   []string
	polls   map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a registry. A zero interval uses DefaultPollInterval.
func New(state *store.State, interval time.Duration, log *slog.Logger) *Registry {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		state:    state,
		interval: interval,
		log:      log,
		handles:  map[string]Handle{},
		polls:    map[string]context.CancelFunc{},
	}
}

// Register persists reg, replacing any registration for the same target.
func (r *Registry) Register(ctx context.Context, reg model.PopupRegistration) error {
	r.log.Info("popup registered", "ref", reg.Ref, "target", reg.ATarget)
	return r.state.UpsertPopup(ctx, reg)
}

// Open lists the persisted registrations.
func (r *Registry) Open(ctx context.Context) []model.PopupRegistration {
	return r.state.Popups(ctx)
}

// Watch attaches a live handle to ref and polls it until it closes. On
// closure the ref's registrations are removed and the poll stops.
func (r *Registry) Watch(ref string, h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cancel, ok := r.polls[ref]; ok {
		cancel()
	}
	if _, ok := r.handles[ref]; !ok {
		r.order = append(r.order, ref)
	}
	r.handles[ref] = h

	ctx, cancel := context.WithCancel(context.Background())
	var once sync.Once
	stop := func() { once.Do(cancel) }
	r.polls[ref] = stop

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer stop()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !h.Closed() {
					continue
				}
				r.OnPopupClosed(ctx, ref, h)
				return
			}
		}
	}()
}

// OnPopupClosed drops ref's live handle and persisted registrations. The
// handle argument guards against a newer Watch of the same ref.
func (r *Registry) OnPopupClosed(ctx context.Context, ref string, h Handle) {
	r.mu.Lock()
	if cur, ok := r.handles[ref]; ok && cur != h {
		r.mu.Unlock()
		return
	}
	delete(r.handles, ref)
	if stop, ok := r.polls[ref]; ok {
		stop()
		delete(r.polls, ref)
	}
	r.order = slices.DeleteFunc(r.order, func(o string) bool { return o == ref })
	r.mu.Unlock()

	r.log.Info("popup closed", "ref", ref)
	if err := r.state.RemovePopups(context.WithoutCancel(ctx), ref); err != nil {
		r.log.Warn("remove popup registration failed", "ref", ref, "error", err)
	}
}

// Handle returns the live handle for ref.
func (r *Registry) Handle(ref string) (Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[ref]
	return h, ok
}

// Current returns the most recently watched live handle.
func (r *Registry) Current() (Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.order) == 0 {
		return nil, false
	}
	h := r.handles[r.order[len(r.order)-1]]
	return h, h != nil
}

// Relink reattaches to a popup that survived a reload of this window: when
// registrations exist but no handle is live, the first registration is
// reopened and watched.
func (r *Registry) Relink(ctx context.Context, o Opener) (bool, error) {
	if _, ok := r.Current(); ok {
		return false, nil
	}
	regs := r.Open(ctx)
	if len(regs) == 0 {
		return false, nil
	}
	reg := regs[0]
	h, err := o.OpenPopup(ctx, reg)
	if err != nil {
		return false, err
	}
	r.log.Info("popup relinked", "ref", reg.Ref, "url", reg.AURL)
	r.Watch(reg.Ref, h)
	return true, nil
}

// Close stops every poll and waits for the pollers to exit.
func (r *Registry) Close() {
	r.mu.Lock()
	for ref, cancel := range r.polls {
		cancel()
		delete(r.polls, ref)
	}
	r.mu.Unlock()
	r.wg.Wait()
}
