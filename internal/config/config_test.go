package config

import (
	"errors"
	"strings"
	"testing"
)

// memBackend is an in-memory ConfigBackend for tests.
type memBackend struct {
	data map[string]any
}

func (m *memBackend) GetString(key string) (string, bool, error) {
	v, ok := m.data[key]
	if !ok {
		return "", false, nil
	}
	if s, isStr := v.(string); isStr {
		return s, true, nil
	}
	return "", true, errors.New("not a string")
}

func (m *memBackend) GetInt(key string) (int, bool, error) {
	v, ok := m.data[key]
	if !ok {
		return 0, false, nil
	}
	if i, isInt := v.(int); isInt {
		return i, true, nil
	}
	return 0, true, errors.New("not an int")
}

func (m *memBackend) SetString(key, val string) error { m.data[key] = val; return nil }
func (m *memBackend) SetInt(key string, val int) error {
	m.data[key] = val
	return nil
}
func (m *memBackend) Delete(key string) error { delete(m.data, key); return nil }

type memSecrets struct {
	data map[string]string
}

func (m *memSecrets) Get(service, account string) (string, error) {
	v, ok := m.data[service+"/"+account]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func (m *memSecrets) Set(service, account, value string) error {
	m.data[service+"/"+account] = value
	return nil
}

func emptyBackend() *memBackend { return &memBackend{data: map[string]any{}} }
func emptySecrets() *memSecrets { return &memSecrets{data: map[string]string{}} }

func TestLoadDefaults(t *testing.T) {
	cfg, err := loadWith(emptyBackend(), emptySecrets())
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}

	if cfg.Server.BaseURL != "http://localhost:8787" {
		t.Errorf("BaseURL = %q", cfg.Server.BaseURL)
	}
	if cfg.Retry.MaxRetries != 3 || cfg.Retry.BaseDelay != "1s" || cfg.Retry.MaxDelay != "30s" || !cfg.Retry.Jitter {
		t.Errorf("Retry defaults = %+v", cfg.Retry)
	}
	if cfg.Breaker.FailureThreshold != 5 || cfg.Breaker.RecoveryTime != "30s" {
		t.Errorf("Breaker defaults = %+v", cfg.Breaker)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
	if cfg.Auth.Token != "" {
		t.Errorf("Token = %q, want empty without a secret", cfg.Auth.Token)
	}
}

func TestLoadBackendValues(t *testing.T) {
	b := &memBackend{data: map[string]any{
		"server.base_url":           "https://research.internal.example.com",
		"retry.max_retries":         5,
		"retry.jitter":              "false",
		"breaker.failure_threshold": 2,
		"auth.allowed_domains":      "example.com, legal.example.com",
		"log.level":                 "debug",
	}}

	cfg, err := loadWith(b, emptySecrets())
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}

	if cfg.Server.BaseURL != "https://research.internal.example.com" {
		t.Errorf("BaseURL = %q", cfg.Server.BaseURL)
	}
	if cfg.Retry.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d", cfg.Retry.MaxRetries)
	}
	if cfg.Retry.Jitter {
		t.Error("Jitter not overridden by backend")
	}
	if cfg.Breaker.FailureThreshold != 2 {
		t.Errorf("FailureThreshold = %d", cfg.Breaker.FailureThreshold)
	}
	if got := cfg.Auth.Domains(); len(got) != 2 || got[0] != "example.com" || got[1] != "legal.example.com" {
		t.Errorf("Domains = %v", got)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want backend value", cfg.Log.Level)
	}
}

func TestEnvOverridesBackend(t *testing.T) {
	b := &memBackend{data: map[string]any{
		"server.base_url":   "https://backend.example.com",
		"retry.max_retries": 7,
	}}
	t.Setenv("BARRISTER_SERVER_BASE_URL", "https://env.example.com")
	t.Setenv("BARRISTER_RETRY_MAX_RETRIES", "9")

	cfg, err := loadWith(b, emptySecrets())
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}

	if cfg.Server.BaseURL != "https://env.example.com" {
		t.Errorf("BaseURL = %q, want env value", cfg.Server.BaseURL)
	}
	if cfg.Retry.MaxRetries != 9 {
		t.Errorf("MaxRetries = %d, want env value", cfg.Retry.MaxRetries)
	}
}

func TestTokenPrecedence(t *testing.T) {
	sec := &memSecrets{data: map[string]string{"barrister/api_token": "from-store"}}

	cfg, err := loadWith(emptyBackend(), sec)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Auth.Token != "from-store" {
		t.Errorf("Token = %q, want secret store fallback", cfg.Auth.Token)
	}

	t.Setenv("BARRISTER_API_TOKEN", "from-env")
	cfg, err = loadWith(emptyBackend(), sec)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Auth.Token != "from-env" {
		t.Errorf("Token = %q, want env to win over secret store", cfg.Auth.Token)
	}
}

func TestDomainsEmptyMeansUnrestricted(t *testing.T) {
	var a AuthConfig
	if got := a.Domains(); got != nil {
		t.Errorf("Domains() = %v, want nil", got)
	}
	a.AllowedDomains = " , "
	if got := a.Domains(); len(got) != 0 {
		t.Errorf("Domains() = %v, want empty", got)
	}
}

func TestShowAllSkipsSecrets(t *testing.T) {
	cfg, _ := loadWith(emptyBackend(), emptySecrets())
	cfg.Auth.Token = "super-secret"

	for _, info := range ShowAll(cfg) {
		if strings.Contains(info.Value, "super-secret") {
			t.Errorf("secret leaked through key %s", info.Key)
		}
		if info.Key == "auth.api_token" {
			t.Error("secret key listed in ShowAll")
		}
	}
}

func TestSetKeyRejectsUnknownAndSecret(t *testing.T) {
	if err := SetKey("no.such.key", "x"); err == nil {
		t.Error("SetKey accepted an unknown key")
	}
	if err := SetKey("auth.api_token", "x"); err == nil {
		t.Error("SetKey accepted a secret key")
	}
}

func TestValidKeys(t *testing.T) {
	keys := ValidKeys()
	if len(keys) == 0 {
		t.Fatal("no valid keys")
	}
	for _, k := range keys {
		if k == "auth.api_token" {
			t.Error("secret key listed as settable")
		}
	}
}
