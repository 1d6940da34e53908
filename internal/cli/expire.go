package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/rcliao/formsync/internal/config"
	"github.com/rcliao/formsync/internal/lifecycle"
)

func init() {
	cmd := &cobra.Command{
		Use:   "expire",
		Short: "Clear the session if its assistant response is stale",
		Run:   runExpire,
	}

	RootCmd.AddCommand(cmd)
}

func runExpire(cmd *cobra.Command, args []string) {
	expiry, err := config.DurationOrDefault(cfg.Cache.Expire, config.DefaultCacheExpire)
	if err != nil {
		exitErr("parse expiry", err)
	}

	s, st, err := openState()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	m := &lifecycle.Manager{State: st, Expiry: expiry, Logger: slog.Default()}
	out, err := m.MaybeExpire(cmd.Context())
	if err != nil {
		exitErr("expire", err)
	}

	fmt.Printf(`{"ok":true,"outcome":%q}`+"\n", out)
}
