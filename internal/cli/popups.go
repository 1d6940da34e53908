package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/formsync/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "popups",
		Short: "Show registered popups",
		Run:   runPopups,
	}

	RootCmd.AddCommand(cmd)
}

func runPopups(cmd *cobra.Command, args []string) {
	s, st, err := openState()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	regs := st.Popups(cmd.Context())
	if regs == nil {
		regs = []model.PopupRegistration{}
	}
	printJSON(regs)
}
