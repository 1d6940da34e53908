package cli

import (
	"time"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored keys of the origin",
		Run:   runList,
	}

	cmd.Flags().Bool("keys-only", false, "Only output key names")

	RootCmd.AddCommand(cmd)
}

type listRow struct {
	Key       string    `json:"key"`
	Version   int       `json:"version"`
	Bytes     int       `json:"bytes"`
	UpdatedAt time.Time `json:"updated_at"`
}

func runList(cmd *cobra.Command, args []string) {
	keysOnly, _ := cmd.Flags().GetBool("keys-only")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	entries, err := s.Entries(cmd.Context())
	if err != nil {
		exitErr("list", err)
	}

	if keysOnly {
		keys := make([]string, 0, len(entries))
		for _, e := range entries {
			keys = append(keys, e.Key)
		}
		printJSON(keys)
		return
	}

	rows := make([]listRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, listRow{Key: e.Key, Version: e.Version, Bytes: len(e.Value), UpdatedAt: e.UpdatedAt})
	}
	printJSON(rows)
}
