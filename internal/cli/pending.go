package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/formsync/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "Show assignments waiting to be applied",
		Run:   runPending,
	}

	RootCmd.AddCommand(cmd)
}

func runPending(cmd *cobra.Command, args []string) {
	s, st, err := openState()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	pending := st.Pending(cmd.Context())
	if pending == nil {
		pending = []model.FieldValue{}
	}
	printJSON(pending)
}
