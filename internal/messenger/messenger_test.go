package messenger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/formsync/internal/model"
	"github.com/rcliao/formsync/internal/popup"
)

type single struct{ h popup.Handle }

func (s single) Current() (popup.Handle, bool) { return s.h, s.h != nil }

func TestSendWrapsField(t *testing.T) {
	ctx := context.Background()
	in := NewInbox(1, nil)
	m := New(single{in}, nil)

	require.NoError(t, m.Send(ctx, model.FieldValue{DataID: "a", FieldValue: model.Scalar("1")}))
	msg := <-in.C()
	assert.Equal(t, model.ActionPopulateFormField, msg.Action)
	assert.Equal(t, "a", msg.Field.DataID)
}

func TestSendWithoutPopup(t *testing.T) {
	m := New(single{}, nil)
	err := m.Send(context.Background(), model.FieldValue{DataID: "a"})
	assert.ErrorIs(t, err, ErrNoPopup)
}

func TestPostHonoursContext(t *testing.T) {
	in := NewInbox(0, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, in.Post(ctx, model.Message{}), context.DeadlineExceeded)
}

func TestListenContinuesAfterHandlerError(t *testing.T) {
	in := NewInbox(2, nil)
	ctx, cancel := context.WithCancel(context.Background())

	var mu sync.Mutex
	var seen []string
	done := make(chan error)
	go func() {
		done <- Listen(ctx, in, func(_ context.Context, msg model.Message) error {
			mu.Lock()
			seen = append(seen, msg.Field.DataID)
			mu.Unlock()
			return errors.New("not here")
		}, nil)
	}()

	require.NoError(t, in.Post(ctx, model.Message{Field: model.FieldValue{DataID: "a"}}))
	require.NoError(t, in.Post(ctx, model.Message{Field: model.FieldValue{DataID: "b"}}))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
