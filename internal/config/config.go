// Package config loads formsync settings from defaults, a YAML file,
// FORMSYNC_* environment variables and command flags, in that order.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	DefaultLogLevel          = "info"
	DefaultStoreOrigin       = "default"
	DefaultCacheExpire       = "1h"
	DefaultPopupPollInterval = "500ms"
	DefaultSchemaName        = "waterFormSchema"
	DefaultAssistantTimeout  = "30s"
	DefaultBrowserNavTimeout = "30s"
	DefaultBrowserHeadless   = true
	DefaultBrowserStealth    = true
)

var (
	DefaultFormActions   = []string{"PosseObjectId", "PosseFromObjectId"}
	DefaultIgnoreFormIDs = []string{"elementstodisable", "possedocumentchangeform"}
)

type Config struct {
	Log       LogConfig       `koanf:"log"`
	Store     StoreConfig     `koanf:"store"`
	Cache     CacheConfig     `koanf:"cache"`
	Popup     PopupConfig     `koanf:"popup"`
	Snapshot  SnapshotConfig  `koanf:"snapshot"`
	Capture   CaptureConfig   `koanf:"capture"`
	Schema    SchemaConfig    `koanf:"schema"`
	Assistant AssistantConfig `koanf:"assistant"`
	Browser   BrowserConfig   `koanf:"browser"`
}

type LogConfig struct {
	Level string `koanf:"level"`
}

type StoreConfig struct {
	Path   string `koanf:"path"`
	Origin string `koanf:"origin"`
}

type CacheConfig struct {
	Expire string `koanf:"expire"`
}

type PopupConfig struct {
	PollInterval string `koanf:"poll_interval"`
}

type SnapshotConfig struct {
	FormActions []string `koanf:"form_actions"`
}

type CaptureConfig struct {
	IgnoreFormIDs []string `koanf:"ignore_form_ids"`
}

type SchemaConfig struct {
	Path string `koanf:"path"`
	Name string `koanf:"name"`
}

type AssistantConfig struct {
	URL          string `koanf:"url"`
	Timeout      string `koanf:"timeout"`
	MockResponse string `koanf:"mock_response"`
}

type BrowserConfig struct {
	RemoteURL  string `koanf:"remote_url"`
	Headless   bool   `koanf:"headless"`
	Stealth    bool   `koanf:"stealth"`
	NavTimeout string `koanf:"nav_timeout"`
}

// flagKeys maps command flag names onto config keys. Flags not listed are
// command arguments, not settings.
var flagKeys = map[string]string{
	"log-level":     "log.level",
	"db":            "store.path",
	"origin":        "store.origin",
	"expire":        "cache.expire",
	"schema":        "schema.path",
	"schema-name":   "schema.name",
	"assistant-url": "assistant.url",
	"mock-response": "assistant.mock_response",
	"remote-url":    "browser.remote_url",
	"headless":      "browser.headless",
}

// Home returns the formsync directory, ~/.formsync.
func Home() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".formsync"
	}
	return filepath.Join(home, ".formsync")
}

// Load resolves the configuration. cmd may be nil to skip flags.
func Load(cmd *cobra.Command) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"log.level":               DefaultLogLevel,
		"store.path":              filepath.Join(Home(), "formsync.db"),
		"store.origin":            DefaultStoreOrigin,
		"cache.expire":            DefaultCacheExpire,
		"popup.poll_interval":     DefaultPopupPollInterval,
		"snapshot.form_actions":   DefaultFormActions,
		"capture.ignore_form_ids": DefaultIgnoreFormIDs,
		"schema.name":             DefaultSchemaName,
		"assistant.timeout":       DefaultAssistantTimeout,
		"browser.headless":        DefaultBrowserHeadless,
		"browser.stealth":         DefaultBrowserStealth,
		"browser.nav_timeout":     DefaultBrowserNavTimeout,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	configPath := ""
	if cmd != nil {
		if flag := cmd.Flags().Lookup("config"); flag != nil {
			configPath = strings.TrimSpace(flag.Value.String())
		}
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, err
		}
	} else {
		globalPath := filepath.Join(Home(), "config.yaml")
		if err := k.Load(file.Provider(globalPath), yaml.Parser()); err != nil {
			slog.Debug("global config not found or invalid", "path", globalPath, "error", err)
		}
	}

	// FORMSYNC_POPUP_POLL_INTERVAL -> popup.poll_interval: only the first
	// underscore separates the section.
	k.Load(env.Provider("FORMSYNC_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "FORMSYNC_")), "_", ".", 1)
	}), nil)

	if cmd != nil {
		k.Load(posflag.ProviderWithFlag(cmd.Flags(), ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(cmd.Flags(), f)
		}), nil)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DurationOrDefault parses value, or def when value is blank. Every
// duration formsync reads is an interval or timeout, so it must be positive.
func DurationOrDefault(value, def string) (time.Duration, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		s = strings.TrimSpace(def)
	}
	if s == "" {
		return 0, fmt.Errorf("duration is empty")
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", s)
	}
	return d, nil
}
