package sdk

import (
	"strings"
	"sync"

	"github.com/kelseyhightower/envconfig"
)

const (
	defaultAPIURL  = "https://api.loopkit.ai"
	defaultAppURL  = "https://loopkit.ai"
	defaultVersion = "1"

	envPrefix = "loopkit"
)

// Config carries the merged client configuration plus the current session.
//
// Values returned from ConfigStore are copies: mutating one never affects the
// stored configuration, which changes only through Initialize, Update, and
// Reset.
type Config struct {
	APIKey       string   `envconfig:"API_KEY"`
	APIURL       string   `envconfig:"API_URL"`
	Version      string   `envconfig:"VERSION"`
	AppURL       string   `envconfig:"APP_URL"`
	ClientID     string   `envconfig:"CLIENT_ID"`
	ClientSecret string   `envconfig:"CLIENT_SECRET"`
	Verbose      bool     `envconfig:"VERBOSE"`
	Session      *Session `ignored:"true"`
}

// clone returns a deep copy so callers cannot reach the stored session.
func (c Config) clone() Config {
	out := c
	if c.Session != nil {
		sess := *c.Session
		out.Session = &sess
	}
	return out
}

// ConfigStore is the single owner of mutable client state. All reads return
// copies and all writes happen under the lock, so concurrent refreshes are
// last-writer-wins rather than lost updates.
//
// Construct isolated stores with NewConfigStore for tests; DefaultStore
// returns the shared process-wide instance.
type ConfigStore struct {
	mu  sync.RWMutex
	cfg *Config
}

// NewConfigStore returns an empty, uninitialized store.
func NewConfigStore() *ConfigStore {
	return &ConfigStore{}
}

var defaultStore = NewConfigStore()

// DefaultStore returns the process-wide configuration store. Every call
// returns the same instance.
func DefaultStore() *ConfigStore {
	return defaultStore
}

// Initialize merges the partial configuration over built-in defaults and
// stores the result, overwriting any prior configuration. Empty URL and
// version fields fall back to defaults; identity fields (APIKey, ClientID,
// ClientSecret) are stored as given. It always succeeds and returns the
// stored configuration.
func (s *ConfigStore) Initialize(partial Config) Config {
	merged := partial.clone()
	merged.APIURL = normalizeURL(merged.APIURL, defaultAPIURL)
	merged.AppURL = normalizeURL(merged.AppURL, defaultAppURL)
	if strings.TrimSpace(merged.Version) == "" {
		merged.Version = defaultVersion
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = &merged
	return merged.clone()
}

// InitializeFromEnv reads LOOPKIT_* environment variables (LOOPKIT_API_KEY,
// LOOPKIT_API_URL, LOOPKIT_CLIENT_ID, ...) and initializes the store with
// them, applying the usual defaults for anything unset.
func (s *ConfigStore) InitializeFromEnv() (Config, error) {
	var partial Config
	if err := envconfig.Process(envPrefix, &partial); err != nil {
		return Config{}, err
	}
	return s.Initialize(partial), nil
}

// Config returns a copy of the current configuration, or ErrNotInitialized
// if Initialize has not been called since the last Reset. The copy is
// detached from the store, so it also serves as the read-only view.
func (s *ConfigStore) Config() (Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cfg == nil {
		return Config{}, ErrNotInitialized
	}
	return s.cfg.clone(), nil
}

// Update applies a mutation to a copy of the current configuration and
// swaps it in, returning the updated configuration. Fields the mutation does
// not touch are preserved.
func (s *ConfigStore) Update(apply func(*Config)) (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg == nil {
		return Config{}, ErrNotInitialized
	}
	updated := s.cfg.clone()
	apply(&updated)
	s.cfg = &updated
	return updated.clone(), nil
}

// APIURL returns the configured API base URL.
func (s *ConfigStore) APIURL() (string, error) {
	cfg, err := s.Config()
	if err != nil {
		return "", err
	}
	return cfg.APIURL, nil
}

// AppURL returns the configured application URL.
func (s *ConfigStore) AppURL() (string, error) {
	cfg, err := s.Config()
	if err != nil {
		return "", err
	}
	return cfg.AppURL, nil
}

// APIKey returns the current bearer credential.
func (s *ConfigStore) APIKey() (string, error) {
	cfg, err := s.Config()
	if err != nil {
		return "", err
	}
	return cfg.APIKey, nil
}

// Initialized reports whether the store holds a configuration. It never
// fails.
func (s *ConfigStore) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg != nil
}

// Reset clears the store back to uninitialized. Idempotent.
func (s *ConfigStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = nil
}

// normalizeURL trims whitespace and the trailing slash, falling back to the
// default for empty input. Initialize never fails, so no URL validation
// happens here.
func normalizeURL(raw, fallback string) string {
	trimmed := strings.TrimSuffix(strings.TrimSpace(raw), "/")
	if trimmed == "" {
		return fallback
	}
	return trimmed
}
