// Package lifecycle expires stale sessions and restores live ones.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/rcliao/formsync/internal/model"
	"github.com/rcliao/formsync/internal/store"
)

// DefaultExpiry is how long a cached assistant response keeps a session
// alive.
const DefaultExpiry = time.Hour

// Outcome is the result of MaybeExpire.
type Outcome int

const (
	Restored Outcome = iota
	Expired
)

func (o Outcome) String() string {
	if o == Expired {
		return "expired"
	}
	return "restored"
}

// RestoreFunc receives the conversation log of a live session.
type RestoreFunc func(entries []model.ConversationEntry)

// Manager owns session expiry.
type Manager struct {
	State   *store.State
	Expiry  time.Duration
	Restore RestoreFunc
	Logger  *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

func (m *Manager) defaults() {
	if m.Expiry <= 0 {
		m.Expiry = DefaultExpiry
	}
	if m.Now == nil {
		m.Now = time.Now
	}
	if m.Logger == nil {
		m.Logger = slog.Default()
	}
}

// MaybeExpire clears every session key when the cached response is older
// than the expiry. Otherwise, including when there is no cached response,
// the conversation is restored.
func (m *Manager) MaybeExpire(ctx context.Context) (Outcome, error) {
	m.defaults()

	resp := m.State.Response(ctx)
	if resp != nil && resp.Timestamp != nil {
		age := m.Now().Sub(*resp.Timestamp)
		if age > m.Expiry {
			m.Logger.Info("session expired", "age", age.Round(time.Second), "expiry", m.Expiry)
			if err := m.State.Clear(ctx); err != nil {
				return Expired, fmt.Errorf("clear session: %w", err)
			}
			return Expired, nil
		}
	}

	entries := Conversation(m.State.Conversation(ctx))
	if m.Restore != nil {
		m.Restore(entries)
	}
	return Restored, nil
}

// Conversation orders entries chronologically, keeping one entry per
// timestamp.
func Conversation(entries []model.ConversationEntry) []model.ConversationEntry {
	seen := map[int64]bool{}
	out := make([]model.ConversationEntry, 0, len(entries))
	for _, e := range entries {
		k := e.Timestamp.UnixNano()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, e)
	}
	slices.SortStableFunc(out, func(a, b model.ConversationEntry) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return out
}
