// Package cli implements the formsync CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/formsync/internal/assistant"
	"github.com/rcliao/formsync/internal/capture"
	"github.com/rcliao/formsync/internal/config"
	"github.com/rcliao/formsync/internal/logger"
	"github.com/rcliao/formsync/internal/model"
	"github.com/rcliao/formsync/internal/schema"
	"github.com/rcliao/formsync/internal/session"
	"github.com/rcliao/formsync/internal/snapshot"
	"github.com/rcliao/formsync/internal/store"
)

var cfg *config.Config

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "formsync",
	Short: "Populate forms from an assistant across a window and its popups",
	Long:  "Keeps a queue of assistant-proposed field values in a shared SQLite store and applies them to the main window and its popups as they load.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(cmd)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c
		logger.Setup(cfg.Log.Level)
		return nil
	},
	SilenceUsage: true,
}

func init() {
	f := RootCmd.PersistentFlags()
	f.String("config", "", "Config file (default ~/.formsync/config.yaml)")
	f.StringP("db", "d", "", "Database path (default ~/.formsync/formsync.db)")
	f.String("origin", "", "Origin the session keys are scoped to")
	f.String("log-level", "", "Log level: debug, info, warn or error")
	f.String("schema", "", "Schema mapping file (YAML or JSON)")
	f.String("schema-name", "", "Schema to use from the schema file")
	f.String("expire", "", "Session expiry, e.g. 1h")
}

func openStore() (*store.SQLiteStore, error) {
	return store.NewSQLiteStore(cfg.Store.Path, cfg.Store.Origin)
}

func openState() (*store.SQLiteStore, *store.State, error) {
	s, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	return s, store.NewState(s, slog.Default()), nil
}

func loadSchema() (model.SchemaMapping, error) {
	return schema.Load(cfg.Schema.Path, cfg.Schema.Name)
}

func newAssistant() (assistant.Client, error) {
	if cfg.Assistant.MockResponse != "" {
		return assistant.FileClient{Path: cfg.Assistant.MockResponse}, nil
	}
	if cfg.Assistant.URL == "" {
		return nil, nil
	}
	timeout, err := config.DurationOrDefault(cfg.Assistant.Timeout, config.DefaultAssistantTimeout)
	if err != nil {
		return nil, err
	}
	return assistant.NewHTTPClient(cfg.Assistant.URL, timeout), nil
}

// newSession builds a window session from the loaded config.
func newSession(st *store.State, isPopup bool) (*session.Session, error) {
	mapping, err := loadSchema()
	if err != nil {
		return nil, err
	}
	expiry, err := config.DurationOrDefault(cfg.Cache.Expire, config.DefaultCacheExpire)
	if err != nil {
		return nil, err
	}
	poll, err := config.DurationOrDefault(cfg.Popup.PollInterval, config.DefaultPopupPollInterval)
	if err != nil {
		return nil, err
	}
	client, err := newAssistant()
	if err != nil {
		return nil, err
	}
	return session.New(session.Config{
		State:        st,
		Schema:       mapping,
		Snapshot:     snapshot.Options{FormActions: cfg.Snapshot.FormActions},
		Capture:      capture.Options{IgnoreFormIDs: cfg.Capture.IgnoreFormIDs},
		Assistant:    client,
		IsPopup:      isPopup,
		Expiry:       expiry,
		PollInterval: poll,
		Restore:      logRestore,
	}), nil
}

func logRestore(entries []model.ConversationEntry) {
	if len(entries) > 0 {
		slog.Info("conversation restored", "messages", len(entries))
	}
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
