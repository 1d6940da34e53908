package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "origins",
		Short: "List every origin with stored session keys",
		Run:   runOrigins,
	}

	RootCmd.AddCommand(cmd)
}

func runOrigins(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	stats, err := s.Stats(cmd.Context())
	if err != nil {
		exitErr("list origins", err)
	}

	printJSON(stats.Origins)
}
