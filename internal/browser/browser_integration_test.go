//go:build integration

package browser_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rcliao/formsync/internal/browser"
	"github.com/rcliao/formsync/internal/dom"
	"github.com/rcliao/formsync/internal/model"
	"github.com/rcliao/formsync/internal/session"
	"github.com/rcliao/formsync/internal/store"
)

const formPage = `<html><body>
<form action="/app?PosseObjectId=1" method="get">
  <input data-id="wells_count" value="3">
  <select data-id="county" onchange="this.form.submit()">
    <option value="">-</option><option value="ADA">Ada</option>
  </select>
  <input type="checkbox" data-id="uses" value="IRR">
  <input type="checkbox" data-id="uses" value="DOM">
</form></body></html>`

func TestPopulateLivePage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, formPage)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	b, err := browser.Launch(ctx, browser.Config{Headless: true})
	require.NoError(t, err)
	defer b.Close()

	page, err := b.Open(ctx, srv.URL)
	require.NoError(t, err)
	defer page.Close()

	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), srv.URL)
	require.NoError(t, err)
	defer s.Close()
	st := store.NewState(s, nil)

	now := time.Now()
	require.NoError(t, st.SetResponse(ctx, &model.AssistantResponse{
		FilledFields: []model.FieldValue{
			{DataID: "wells_count", FieldValue: model.Scalar("5")},
			{DataID: "uses", FieldValue: model.List("DOM")},
			{DataID: "county", FieldValue: model.Scalar("ADA")},
		},
		Timestamp: &now,
	}))

	sess := session.New(session.Config{State: st})
	defer sess.Close()

	res, err := sess.Load(ctx, page, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"wells_count", "uses"}, res.Drain.Written)
	require.True(t, res.Drain.Navigated, "county change submits the form")

	require.NoError(t, page.WaitLoad(ctx))
	els, err := dom.Find(ctx, page, "county")
	require.NoError(t, err)
	require.Len(t, els, 1)
}
