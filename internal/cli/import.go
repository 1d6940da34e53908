package cli

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/formsync/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import stored keys from JSON",
		Long:  "Import stored keys from JSON on stdin, in the format export prints. Entries land in the current origin; entries exported from another origin are moved into it unless --same-origin is set. Nothing is written if any entry fails.",
		Run:   runImport,
	}

	cmd.Flags().Bool("same-origin", false, "Skip entries exported from other origins")

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) {
	sameOrigin, _ := cmd.Flags().GetBool("same-origin")

	var entries []store.Entry
	if err := json.NewDecoder(os.Stdin).Decode(&entries); err != nil {
		exitErr("parse json", err)
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	res, err := s.Import(cmd.Context(), entries, sameOrigin)
	if err != nil {
		exitErr("import", err)
	}
	printJSON(struct {
		Origin string `json:"origin"`
		*store.ImportResult
	}{s.Origin(), res})
}
