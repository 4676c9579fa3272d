package config

import "strings"

type Config struct {
	Server  ServerConfig
	Auth    AuthConfig
	Retry   RetryConfig
	Breaker BreakerConfig
	Storage StorageConfig
	Log     LogConfig
}

type ServerConfig struct {
	BaseURL string
}

type AuthConfig struct {
	Token          string
	AllowedDomains string
}

// Domains returns the allow-list as a slice. Empty means no restriction.
func (a AuthConfig) Domains() []string {
	if strings.TrimSpace(a.AllowedDomains) == "" {
		return nil
	}
	parts := strings.Split(a.AllowedDomains, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if d := strings.TrimSpace(p); d != "" {
			out = append(out, d)
		}
	}
	return out
}

type RetryConfig struct {
	MaxRetries int
	BaseDelay  string
	MaxDelay   string
	Jitter     bool
}

type BreakerConfig struct {
	FailureThreshold int
	RecoveryTime     string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			BaseURL: "http://localhost:8787",
		},
		Retry: RetryConfig{
			MaxRetries: 3,
			BaseDelay:  "1s",
			MaxDelay:   "30s",
			Jitter:     true,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			RecoveryTime:     "30s",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and the platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.barrister.app) and the
// API token falls back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/barrister/config.json
// and the token falls back to a secrets file under $XDG_DATA_HOME.
//
// Environment variables (BARRISTER_*) override backend values on all
// platforms. A missing token is not an error here: unauthenticated commands
// work without one, and `barrister login` stores one.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), platformSecrets{})
}

// secretStore abstracts the platform secret mechanism for testing.
type secretStore interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

const (
	secretService = "barrister"
	tokenAccount  = "api_token"
)

func loadWith(b ConfigBackend, sec secretStore) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Auth.Token == "" {
		if tok, err := sec.Get(secretService, tokenAccount); err == nil && tok != "" {
			cfg.Auth.Token = tok
		}
	}

	return cfg, nil
}

// StoreToken persists the API token in the platform secret store so it
// survives across sessions without living in the plain config file.
func StoreToken(token string) error {
	return platformSecrets{}.Set(secretService, tokenAccount, token)
}

// platformSecrets reads and writes the platform secret store.
type platformSecrets struct{}

func (platformSecrets) Get(service, account string) (string, error) {
	out, err := secretExec(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (platformSecrets) Set(service, account, value string) error {
	return secretStoreExec(service, account, value)
}
