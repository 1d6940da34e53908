package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/rcliao/formsync/internal/engine"
	"github.com/rcliao/formsync/internal/messenger"
	"github.com/rcliao/formsync/internal/model"
	"github.com/rcliao/formsync/internal/session"
	"github.com/rcliao/formsync/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "fill",
		Short: "Load an HTML page through capture, expiry and drain",
		Long:  "Loads an HTML page as the main window, optionally with an open popup page, and applies pending assignments to both. The filled pages can be written back out.",
		Run:   runFill,
	}

	cmd.Flags().String("page", "", "Main window HTML file (required)")
	cmd.Flags().StringP("out", "o", "", "Write the filled main page here")
	cmd.Flags().String("popup", "", "Popup HTML file")
	cmd.Flags().String("popup-out", "", "Write the filled popup page here")
	cmd.MarkFlagRequired("page")

	RootCmd.AddCommand(cmd)
}

type fillResult struct {
	Opener *session.LoadResult `json:"opener"`
	Popup  *session.LoadResult `json:"popup,omitempty"`
	// Delivered lists forwarded fields the popup wrote.
	Delivered []string           `json:"delivered,omitempty"`
	Pending   []model.FieldValue `json:"pending"`
}

func runFill(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	pagePath, _ := cmd.Flags().GetString("page")
	out, _ := cmd.Flags().GetString("out")
	popupPath, _ := cmd.Flags().GetString("popup")
	popupOut, _ := cmd.Flags().GetString("popup-out")

	doc, err := readDocument(pagePath)
	if err != nil {
		exitErr("read page", err)
	}

	s, st, err := openState()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	opener, err := newSession(st, false)
	if err != nil {
		exitErr("create session", err)
	}
	defer opener.Close()

	res := fillResult{}
	if popupPath == "" {
		if res.Opener, err = opener.Load(ctx, doc, nil); err != nil {
			exitErr("load page", err)
		}
	} else {
		popupDoc, err := readDocument(popupPath)
		if err != nil {
			exitErr("read popup", err)
		}
		popupSession, err := newSession(st, true)
		if err != nil {
			exitErr("create popup session", err)
		}
		defer popupSession.Close()

		inbox := messenger.NewInbox(64, nil)
		reg, err := opener.OpenPopup(ctx, model.PopupRegistration{ATarget: "popup", AURL: popupPath}, inbox)
		if err != nil {
			exitErr("open popup", err)
		}
		if res.Opener, err = opener.Load(ctx, doc, nil); err != nil {
			opener.ClosePopup(ctx, reg.Ref)
			exitErr("load page", err)
		}
		res.Delivered = deliver(ctx, st, popupSession.Engine(popupDoc), inbox)
		// The popup's own load captures its forms and drains what is left.
		res.Popup, err = popupSession.Load(ctx, popupDoc, nil)
		// The offline popup ends with this run.
		opener.ClosePopup(ctx, reg.Ref)
		if err != nil {
			exitErr("load popup", err)
		}

		if popupOut != "" {
			if err := writeDocument(popupOut, popupDoc); err != nil {
				exitErr("write popup", err)
			}
		}
	}

	if out != "" {
		if err := writeDocument(out, doc); err != nil {
			exitErr("write page", err)
		}
	}

	res.Pending = st.Pending(ctx)
	if res.Pending == nil {
		res.Pending = []model.FieldValue{}
	}
	printJSON(res)
}

// deliver hands every message already posted to the popup to its engine
// and reports the fields it wrote.
func deliver(ctx context.Context, st *store.State, e *engine.Engine, inbox *messenger.Inbox) []string {
	var delivered []string
	for {
		select {
		case msg := <-inbox.C():
			before := len(st.Pending(ctx))
			if err := e.HandleMessage(ctx, msg); err != nil {
				exitErr("popup message", err)
			}
			if len(st.Pending(ctx)) < before {
				delivered = append(delivered, msg.Field.DataID)
			}
		default:
			return delivered
		}
	}
}
