package main

import (
	"fmt"
	"time"

	"github.com/barrister-ai/barrister/internal/api"
	"github.com/barrister-ai/barrister/internal/auth"
	"github.com/barrister-ai/barrister/internal/config"
	"github.com/barrister-ai/barrister/internal/resilience"
)

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// clientFor builds the resilient API client from configuration: retry
// policy, per-endpoint circuit breakers, and a retry tracker whose activity
// is surfaced on stderr.
func clientFor(cfg config.Config) *api.Client {
	retry := resilience.RetryConfig{
		MaxRetries: cfg.Retry.MaxRetries,
		BaseDelay:  parseDurationOr(cfg.Retry.BaseDelay, time.Second),
		MaxDelay:   parseDurationOr(cfg.Retry.MaxDelay, 30*time.Second),
		Jitter:     cfg.Retry.Jitter,
	}
	breakers := resilience.NewBreakerSet(
		cfg.Breaker.FailureThreshold,
		parseDurationOr(cfg.Breaker.RecoveryTime, 30*time.Second),
	)
	tracker := resilience.NewTracker(retry.MaxRetries)
	tracker.Subscribe(func(key string, e resilience.TrackerEntry) {
		switch {
		case e.MaxRetriesExceeded:
			printWarning("%s: giving up after %d retries", key, e.RetryCount)
		case e.IsRetrying:
			printStep("%s: retrying (attempt %d)", key, e.RetryCount+1)
		}
	})

	return api.NewClient(api.ClientConfig{
		BaseURL:  cfg.Server.BaseURL,
		Token:    cfg.Auth.Token,
		Retry:    retry,
		Breakers: breakers,
		Tracker:  tracker,
	})
}

// newResearchClient loads config and builds the client. Declared as a var so
// tests can substitute a client pointed at a local server.
var newResearchClient = func() (*api.Client, config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, config.Config{}, fmt.Errorf("loading config: %w", err)
	}
	return clientFor(cfg), cfg, nil
}

func newSession(client *api.Client, cfg config.Config) *auth.Session {
	s := auth.NewSession(client, auth.TokenStoreFunc(config.StoreToken), cfg.Auth.Domains())
	s.Restore(cfg.Auth.Token)
	return s
}
