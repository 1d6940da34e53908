package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear every session key of the origin",
		Run:   runReset,
	}

	RootCmd.AddCommand(cmd)
}

func runReset(cmd *cobra.Command, args []string) {
	s, st, err := openState()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if err := st.Clear(cmd.Context()); err != nil {
		exitErr("reset", err)
	}

	fmt.Printf(`{"ok":true,"origin":%q}`+"\n", s.Origin())
}
