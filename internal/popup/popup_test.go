package popup

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/rcliao/formsync/internal/model"
	"github.com/rcliao/formsync/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestState(t *testing.T) *store.State {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), "https://forms.example")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return store.NewState(s, nil)
}

type fakeHandle struct {
	closed atomic.Bool
	polls  atomic.Int32
}

func (h *fakeHandle) Closed() bool {
	h.polls.Add(1)
	return h.closed.Load()
}

func (h *fakeHandle) Post(context.Context, model.Message) error { return nil }

func TestRegisterUpsertsByTarget(t *testing.T) {
	ctx := context.Background()
	r := New(newTestState(t), 0, nil)
	defer r.Close()

	require.NoError(t, r.Register(ctx, model.PopupRegistration{Ref: "p1", ATarget: "x", AURL: "/a"}))
	require.NoError(t, r.Register(ctx, model.PopupRegistration{Ref: "p2", ATarget: "x", AURL: "/b"}))

	regs := r.Open(ctx)
	require.Len(t, regs, 1)
	assert.Equal(t, "p2", regs[0].Ref)
	assert.Equal(t, "/b", regs[0].AURL)
}

func TestOnPopupClosedStopsPoll(t *testing.T) {
	ctx := context.Background()
	r := New(newTestState(t), 5*time.Millisecond, nil)
	defer r.Close()

	require.NoError(t, r.Register(ctx, model.PopupRegistration{Ref: "p1", ATarget: "x"}))
	h := &fakeHandle{}
	r.Watch("p1", h)
	require.Eventually(t, func() bool { return h.polls.Load() > 0 }, time.Second, 5*time.Millisecond)

	r.OnPopupClosed(ctx, "p1", h)
	assert.Empty(t, r.Open(ctx))
	_, ok := r.Current()
	assert.False(t, ok)

	time.Sleep(20 * time.Millisecond)
	n := h.polls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, h.polls.Load(), "poll cancelled with the registration")
}

func TestWatchRemovesRegistrationOnClose(t *testing.T) {
	ctx := context.Background()
	st := newTestState(t)
	r := New(st, 5*time.Millisecond, nil)
	defer r.Close()

	require.NoError(t, r.Register(ctx, model.PopupRegistration{Ref: "p1", ATarget: "x"}))
	h := &fakeHandle{}
	r.Watch("p1", h)

	cur, ok := r.Current()
	require.True(t, ok)
	assert.Same(t, h, cur)

	h.closed.Store(true)
	require.Eventually(t, func() bool { return len(r.Open(ctx)) == 0 }, time.Second, 5*time.Millisecond)

	_, ok = r.Current()
	assert.False(t, ok)
	_, err := st.Store().Get(ctx, store.KeyPopups)
	assert.ErrorIs(t, err, store.ErrNotFound, "empty registry deletes the key")

	// The poll stops after closure.
	n := h.polls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, h.polls.Load())
}

func TestCloseCancelsPolls(t *testing.T) {
	r := New(newTestState(t), time.Millisecond, nil)
	r.Watch("a", &fakeHandle{})
	r.Watch("b", &fakeHandle{})
	r.Close()
	r.Close()
}

type fakeOpener struct {
	opened []model.PopupRegistration
	err    error
}

func (o *fakeOpener) OpenPopup(_ context.Context, reg model.PopupRegistration) (Handle, error) {
	if o.err != nil {
		return nil, o.err
	}
	o.opened = append(o.opened, reg)
	return &fakeHandle{}, nil
}

func TestRelink(t *testing.T) {
	ctx := context.Background()
	r := New(newTestState(t), time.Hour, nil)
	defer r.Close()

	o := &fakeOpener{}
	linked, err := r.Relink(ctx, o)
	require.NoError(t, err)
	assert.False(t, linked, "nothing registered")

	require.NoError(t, r.Register(ctx, model.PopupRegistration{Ref: "p1", ATarget: "x", AURL: "/lookup"}))
	linked, err = r.Relink(ctx, o)
	require.NoError(t, err)
	assert.True(t, linked)
	require.Len(t, o.opened, 1)
	assert.Equal(t, "/lookup", o.opened[0].AURL)

	linked, err = r.Relink(ctx, o)
	require.NoError(t, err)
	assert.False(t, linked, "already live")
}

func TestRelinkError(t *testing.T) {
	ctx := context.Background()
	r := New(newTestState(t), time.Hour, nil)
	defer r.Close()
	require.NoError(t, r.Register(ctx, model.PopupRegistration{Ref: "p1"}))

	_, err := r.Relink(ctx, &fakeOpener{err: errors.New("boom")})
	assert.Error(t, err)
}
