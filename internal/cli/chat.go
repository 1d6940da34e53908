package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/formsync/internal/dom"
	"github.com/rcliao/formsync/internal/engine"
	"github.com/rcliao/formsync/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Send one message to the assistant and apply its answer",
		Long:  "Sends a message with the stored form snapshot and conversation to the assistant, caches the response as the pending queue and drains it. With --page the page is loaded first and filled afterwards.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runChat,
	}

	cmd.Flags().String("page", "", "HTML file to load and fill")
	cmd.Flags().StringP("out", "o", "", "Write the filled page here")
	cmd.Flags().String("assistant-url", "", "Assistant endpoint")
	cmd.Flags().String("mock-response", "", "Answer from this JSON file instead of calling the assistant")

	RootCmd.AddCommand(cmd)
}

type chatResult struct {
	Response *model.AssistantResponse `json:"response"`
	Drain    *engine.Result           `json:"drain,omitempty"`
}

func runChat(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	message := strings.TrimSpace(strings.Join(args, " "))
	if message == "" {
		exitErr("chat", fmt.Errorf("message is required"))
	}
	pagePath, _ := cmd.Flags().GetString("page")
	out, _ := cmd.Flags().GetString("out")

	s, st, err := openState()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	sess, err := newSession(st, false)
	if err != nil {
		exitErr("create session", err)
	}
	defer sess.Close()

	var page *dom.HTMLDocument
	if pagePath != "" {
		if page, err = readDocument(pagePath); err != nil {
			exitErr("read page", err)
		}
		if _, err := sess.Load(ctx, page, nil); err != nil {
			exitErr("load page", err)
		}
	}

	var target dom.Document
	if page != nil {
		target = page
	}
	resp, drained, err := sess.Send(ctx, message, target)
	if err != nil {
		exitErr("chat", err)
	}

	if page != nil && out != "" {
		if err := writeDocument(out, page); err != nil {
			exitErr("write page", err)
		}
	}
	printJSON(chatResult{Response: resp, Drain: drained})
}
