package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.base_url", typ: kString, env: "BARRISTER_SERVER_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Server.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.BaseURL },
	},
	{
		key: "auth.api_token", typ: kString, env: "BARRISTER_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Auth.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.Token },
	},
	{
		key: "auth.allowed_domains", typ: kString, env: "BARRISTER_AUTH_ALLOWED_DOMAINS",
		apply:   func(cfg *Config, v any) { cfg.Auth.AllowedDomains = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.AllowedDomains },
	},
	{
		key: "retry.max_retries", typ: kInt, env: "BARRISTER_RETRY_MAX_RETRIES",
		apply:   func(cfg *Config, v any) { cfg.Retry.MaxRetries = v.(int) },
		extract: func(cfg Config) any { return cfg.Retry.MaxRetries },
	},
	{
		key: "retry.base_delay", typ: kString, env: "BARRISTER_RETRY_BASE_DELAY",
		apply:   func(cfg *Config, v any) { cfg.Retry.BaseDelay = v.(string) },
		extract: func(cfg Config) any { return cfg.Retry.BaseDelay },
	},
	{
		key: "retry.max_delay", typ: kString, env: "BARRISTER_RETRY_MAX_DELAY",
		apply:   func(cfg *Config, v any) { cfg.Retry.MaxDelay = v.(string) },
		extract: func(cfg Config) any { return cfg.Retry.MaxDelay },
	},
	{
		key: "retry.jitter", typ: kBool, env: "BARRISTER_RETRY_JITTER",
		apply:   func(cfg *Config, v any) { cfg.Retry.Jitter = v.(bool) },
		extract: func(cfg Config) any { return cfg.Retry.Jitter },
	},
	{
		key: "breaker.failure_threshold", typ: kInt, env: "BARRISTER_BREAKER_FAILURE_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Breaker.FailureThreshold = v.(int) },
		extract: func(cfg Config) any { return cfg.Breaker.FailureThreshold },
	},
	{
		key: "breaker.recovery_time", typ: kString, env: "BARRISTER_BREAKER_RECOVERY_TIME",
		apply:   func(cfg *Config, v any) { cfg.Breaker.RecoveryTime = v.(string) },
		extract: func(cfg Config) any { return cfg.Breaker.RecoveryTime },
	},
	{
		key: "storage.data_dir", typ: kString, env: "BARRISTER_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "BARRISTER_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
