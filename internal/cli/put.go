package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "put KEY [value]",
		Short: "Write a raw stored value",
		Long:  "Write a raw stored value. The value can be a positional arg or piped via stdin.",
		Args:  cobra.RangeArgs(1, 2),
		Run:   runPut,
	}

	RootCmd.AddCommand(cmd)
}

func runPut(cmd *cobra.Command, args []string) {
	key := args[0]

	var value string
	if len(args) > 1 {
		value = args[1]
	} else {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				exitErr("read stdin", err)
			}
			value = string(b)
		}
	}

	if strings.TrimSpace(value) == "" {
		exitErr("put", fmt.Errorf("value is required (positional arg or stdin)"))
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if err := s.Set(cmd.Context(), key, strings.TrimSpace(value)); err != nil {
		exitErr("put", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"origin":%q,"key":%q}`+"\n", s.Origin(), key)
}
