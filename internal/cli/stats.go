package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/formsync/internal/store"
)

type statsResult struct {
	*store.Stats
	Origin      string `json:"origin"`
	Pending     int    `json:"pending"`
	Popups      int    `json:"popups"`
	Messages    int    `json:"messages"`
	ResponseAge string `json:"response_age,omitempty"`
}

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show database and session statistics",
		Run:   runStats,
	}

	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) {
	s, st, err := openState()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	ctx := cmd.Context()
	stats, err := s.Stats(ctx)
	if err != nil {
		exitErr("stats", err)
	}

	out := statsResult{
		Stats:    stats,
		Origin:   s.Origin(),
		Pending:  len(st.Pending(ctx)),
		Popups:   len(st.Popups(ctx)),
		Messages: len(st.Conversation(ctx)),
	}
	if resp := st.Response(ctx); resp != nil && resp.Timestamp != nil {
		out.ResponseAge = time.Since(*resp.Timestamp).Round(time.Second).String()
	}
	printJSON(out)
}
