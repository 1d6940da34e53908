package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/formsync/internal/lifecycle"
)

func init() {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the conversation in chronological order",
		Run:   runHistory,
	}

	RootCmd.AddCommand(cmd)
}

func runHistory(cmd *cobra.Command, args []string) {
	s, st, err := openState()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	printJSON(lifecycle.Conversation(st.Conversation(cmd.Context())))
}
