package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/formsync/internal/model"
	"github.com/rcliao/formsync/internal/snapshot"
)

func init() {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Show the current field snapshot merged with the schema",
		Run:   runSnapshot,
	}

	RootCmd.AddCommand(cmd)
}

func runSnapshot(cmd *cobra.Command, args []string) {
	mapping, err := loadSchema()
	if err != nil {
		exitErr("load schema", err)
	}

	s, st, err := openState()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	snap := snapshot.Build(st.FormsData(cmd.Context()), mapping, snapshot.Options{FormActions: cfg.Snapshot.FormActions})
	if snap == nil {
		snap = model.Snapshot{}
	}
	printJSON(snap)
}
