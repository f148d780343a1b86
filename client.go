package sdk

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// ClientConfig wires a Client. Everything is optional; the zero value
// produces a client bound to the process-wide store.
type ClientConfig struct {
	Store      *ConfigStore
	HTTPClient *http.Client
	Retry      RetryConfig
	Telemetry  TelemetryHooks
	Logger     *zerolog.Logger
	UserAgent  string
}

// Client groups the auth surface and the authenticated executor behind one
// handle. Domain collaborators are constructed with a URI fragment via
// Collection and speak only the verb methods; they never touch the session
// or refresh logic directly.
type Client struct {
	Store *ConfigStore
	Auth  *TokenIssuer

	exec *Executor
}

// NewClient returns a client whose executor refreshes expired sessions
// through the same issuer it exposes as Auth.
func NewClient(cfg ClientConfig) *Client {
	store := cfg.Store
	if store == nil {
		store = DefaultStore()
	}
	issuer := NewTokenIssuer(TokenIssuerConfig{
		Store:      store,
		HTTPClient: cfg.HTTPClient,
		Telemetry:  cfg.Telemetry,
		UserAgent:  cfg.UserAgent,
	})
	exec := NewExecutor(ExecutorConfig{
		Store:      store,
		HTTPClient: cfg.HTTPClient,
		Refresher:  issuer,
		Retry:      cfg.Retry,
		Telemetry:  cfg.Telemetry,
		Logger:     cfg.Logger,
		UserAgent:  cfg.UserAgent,
	})
	return &Client{Store: store, Auth: issuer, exec: exec}
}

// Executor exposes the client's authenticated executor.
func (c *Client) Executor() *Executor { return c.exec }

// Collection returns an accessor scoped to one resource fragment, e.g.
// client.Collection("/agents").Get(ctx, "/"+id).
func (c *Client) Collection(base string) *Collection {
	return &Collection{base: normalizeFragment(base), exec: c.exec}
}

// Collection is the boundary handed to domain collaborators: a URI fragment
// plus the shared executor. Responses come back as Result envelopes.
type Collection struct {
	base string
	exec *Executor
}

// Get issues a GET under the collection fragment.
func (c *Collection) Get(ctx context.Context, path string) (Result, error) {
	return c.exec.Get(ctx, c.base+normalizeFragment(path))
}

// Post issues a POST under the collection fragment.
func (c *Collection) Post(ctx context.Context, path string, payload any) (Result, error) {
	return c.exec.Post(ctx, c.base+normalizeFragment(path), payload)
}

// Put issues a PUT under the collection fragment.
func (c *Collection) Put(ctx context.Context, path string, payload any) (Result, error) {
	return c.exec.Put(ctx, c.base+normalizeFragment(path), payload)
}

// Delete issues a DELETE under the collection fragment.
func (c *Collection) Delete(ctx context.Context, path string, payload any) (Result, error) {
	return c.exec.Delete(ctx, c.base+normalizeFragment(path), payload)
}

func normalizeFragment(fragment string) string {
	trimmed := strings.TrimSuffix(strings.TrimSpace(fragment), "/")
	if trimmed == "" || strings.HasPrefix(trimmed, "/") {
		return trimmed
	}
	return "/" + trimmed
}
