package sdk

import (
	"errors"
	"testing"
)

func TestDefaultStoreSingleton(t *testing.T) {
	if DefaultStore() != DefaultStore() {
		t.Fatal("DefaultStore must return the same instance on every call")
	}
}

func TestConfigRequiresInitialize(t *testing.T) {
	store := NewConfigStore()
	if store.Initialized() {
		t.Fatal("fresh store must not report initialized")
	}
	if _, err := store.Config(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("Config() error = %v, want ErrNotInitialized", err)
	}
	if _, err := store.APIURL(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("APIURL() error = %v, want ErrNotInitialized", err)
	}
	if _, err := store.AppURL(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("AppURL() error = %v, want ErrNotInitialized", err)
	}
	if _, err := store.APIKey(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("APIKey() error = %v, want ErrNotInitialized", err)
	}
	if _, err := store.Update(func(c *Config) { c.APIKey = "x" }); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("Update() error = %v, want ErrNotInitialized", err)
	}
}

func TestInitializeAppliesDefaults(t *testing.T) {
	store := NewConfigStore()
	cfg := store.Initialize(Config{})

	if cfg.APIURL != defaultAPIURL {
		t.Errorf("apiURL = %q, want %q", cfg.APIURL, defaultAPIURL)
	}
	if cfg.Version != "1" {
		t.Errorf("version = %q, want 1", cfg.Version)
	}
	if cfg.AppURL != defaultAppURL {
		t.Errorf("appURL = %q, want %q", cfg.AppURL, defaultAppURL)
	}
	if cfg.ClientID != "" {
		t.Errorf("clientID = %q, want empty (identity fields get no defaults)", cfg.ClientID)
	}
}

func TestInitializeTrimsTrailingSlash(t *testing.T) {
	store := NewConfigStore()
	cfg := store.Initialize(Config{APIURL: "https://api.example.com/ "})
	if cfg.APIURL != "https://api.example.com" {
		t.Fatalf("apiURL = %q, want trimmed", cfg.APIURL)
	}
}

func TestUpdatePreservesOtherFields(t *testing.T) {
	store := NewConfigStore()
	store.Initialize(Config{APIKey: "k1", ClientID: "c1"})

	updated, err := store.Update(func(c *Config) { c.APIKey = "k2" })
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.APIKey != "k2" {
		t.Errorf("apiKey = %q, want k2", updated.APIKey)
	}
	if updated.ClientID != "c1" {
		t.Errorf("clientID = %q, want c1 (unchanged)", updated.ClientID)
	}
	if updated.APIURL != defaultAPIURL || updated.Version != "1" {
		t.Errorf("defaults changed by update: %+v", updated)
	}
}

func TestResetIsIdempotent(t *testing.T) {
	store := NewConfigStore()
	store.Initialize(Config{APIKey: "k"})
	store.Reset()
	store.Reset()

	if store.Initialized() {
		t.Fatal("store must not report initialized after reset")
	}
	if _, err := store.Config(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("Config() after reset = %v, want ErrNotInitialized", err)
	}
}

func TestConfigCopiesAreDetached(t *testing.T) {
	store := NewConfigStore()
	store.Initialize(Config{APIKey: "k", Session: &Session{AccessToken: "tok"}})

	cfg, err := store.Config()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	cfg.APIKey = "mutated"
	cfg.Session.AccessToken = "mutated"

	fresh, err := store.Config()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if fresh.APIKey != "k" || fresh.Session.AccessToken != "tok" {
		t.Fatalf("mutating a returned copy leaked into the store: %+v", fresh)
	}
}

func TestInitializeFromEnv(t *testing.T) {
	t.Setenv("LOOPKIT_API_URL", "https://api.test.example")
	t.Setenv("LOOPKIT_CLIENT_ID", "env-client")
	t.Setenv("LOOPKIT_VERBOSE", "true")

	store := NewConfigStore()
	cfg, err := store.InitializeFromEnv()
	if err != nil {
		t.Fatalf("initialize from env: %v", err)
	}
	if cfg.APIURL != "https://api.test.example" {
		t.Errorf("apiURL = %q", cfg.APIURL)
	}
	if cfg.ClientID != "env-client" {
		t.Errorf("clientID = %q", cfg.ClientID)
	}
	if !cfg.Verbose {
		t.Error("verbose not read from env")
	}
	if cfg.Version != "1" || cfg.AppURL != defaultAppURL {
		t.Errorf("defaults not applied over env config: %+v", cfg)
	}
}
