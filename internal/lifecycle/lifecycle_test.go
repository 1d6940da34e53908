package lifecycle

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/formsync/internal/model"
	"github.com/rcliao/formsync/internal/store"
)

func newTestState(t *testing.T) *store.State {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), "https://forms.example")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return store.NewState(s, nil)
}

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func seedSession(t *testing.T, st *store.State, ts time.Time) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.SetFormsData(ctx, []model.RawForm{{FormAction: "PosseObjectId"}}))
	require.NoError(t, st.SetResponse(ctx, &model.AssistantResponse{ResponseMessage: "hi", Timestamp: &ts}))
	require.NoError(t, st.AppendConversation(ctx,
		model.ConversationEntry{Timestamp: ts, Role: model.RoleAssistant, Content: "second"},
		model.ConversationEntry{Timestamp: ts.Add(-time.Minute), Role: model.RoleUser, Content: "first"},
		model.ConversationEntry{Timestamp: ts, Role: model.RoleAssistant, Content: "dup"},
	))
	require.NoError(t, st.UpsertPopup(ctx, model.PopupRegistration{Ref: "p1", ATarget: "x"}))
}

func TestExpiredSessionClearsAllKeys(t *testing.T) {
	ctx := context.Background()
	st := newTestState(t)
	seedSession(t, st, base)

	restored := false
	m := &Manager{
		State:   st,
		Expiry:  time.Hour,
		Now:     func() time.Time { return base.Add(61 * time.Minute) },
		Restore: func([]model.ConversationEntry) { restored = true },
	}
	out, err := m.MaybeExpire(ctx)
	require.NoError(t, err)
	assert.Equal(t, Expired, out)
	assert.False(t, restored)

	for _, k := range store.SessionKeys {
		_, err := st.Store().Get(ctx, k)
		assert.ErrorIs(t, err, store.ErrNotFound, k)
	}
}

func TestLiveSessionRestoresConversation(t *testing.T) {
	ctx := context.Background()
	st := newTestState(t)
	seedSession(t, st, base)

	var got []model.ConversationEntry
	m := &Manager{
		State:   st,
		Now:     func() time.Time { return base.Add(59 * time.Minute) },
		Restore: func(e []model.ConversationEntry) { got = e },
	}
	out, err := m.MaybeExpire(ctx)
	require.NoError(t, err)
	assert.Equal(t, Restored, out)

	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Content)
	assert.Equal(t, "second", got[1].Content)

	for _, k := range store.SessionKeys {
		_, err := st.Store().Get(ctx, k)
		assert.NoError(t, err, k)
	}
}

func TestNoResponseRestores(t *testing.T) {
	called := false
	m := &Manager{State: newTestState(t), Restore: func([]model.ConversationEntry) { called = true }}
	out, err := m.MaybeExpire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Restored, out)
	assert.True(t, called)
}
