package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment variable names.
const (
	envPrefix     = "LAPBOARD_"
	envConfigFile = "LAPBOARD_CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if LAPBOARD_CONFIG is set
//  3. env (prefix LAPBOARD_)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(envConfigFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// LAPBOARD_CACHE_TTL_MS -> cache_ttl_ms (flat keys, underscores kept).
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, strings.ToLower(envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}
	k.Delete("config")

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case strings.TrimSpace(c.UpstreamURL) == "":
		return fmt.Errorf("%w: upstream_url must not be empty", ErrInvalidConfig)
	case c.CacheTTLMS <= 0:
		return fmt.Errorf("%w: cache_ttl_ms must be positive", ErrInvalidConfig)
	case c.UpstreamPageSize <= 0:
		return fmt.Errorf("%w: upstream_page_size must be positive", ErrInvalidConfig)
	case c.UpstreamTimeoutMS <= 0:
		return fmt.Errorf("%w: upstream_timeout_ms must be positive", ErrInvalidConfig)
	case c.RosterDriver != DriverPostgres && c.RosterDriver != DriverSQLite:
		return fmt.Errorf("%w: %w: %q (want %q or %q)", ErrInvalidConfig, ErrUnsupportedDriver, c.RosterDriver, DriverPostgres, DriverSQLite)
	case c.EmptyRosterPolicy != "none" && c.EmptyRosterPolicy != "all":
		return fmt.Errorf("%w: empty_roster_policy must be \"none\" or \"all\"", ErrInvalidConfig)
	case c.UnparsedPreviewLimit <= 0:
		return fmt.Errorf("%w: unparsed_preview_limit must be positive", ErrInvalidConfig)
	case c.NotifyTelegramToken != "" && len(c.NotifyTelegramChatIDs) == 0:
		return fmt.Errorf("%w: notify_telegram_chat_ids must be set with notify_telegram_token", ErrInvalidConfig)
	}
	return nil
}
