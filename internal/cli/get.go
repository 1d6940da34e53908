package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "get KEY",
		Short: "Print a raw stored value",
		Args:  cobra.ExactArgs(1),
		Run:   runGet,
	}

	RootCmd.AddCommand(cmd)
}

func runGet(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	v, err := s.Get(cmd.Context(), args[0])
	if err != nil {
		exitErr("get", err)
	}

	var parsed any
	if json.Unmarshal([]byte(v), &parsed) == nil {
		printJSON(parsed)
		return
	}
	fmt.Println(v)
}
