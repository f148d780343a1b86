package sdk

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/loopkit/loopkit-go/routes"
)

// grantRequest is the JSON body the signin endpoint accepts for the
// password, client, and refresh grants.
type grantRequest struct {
	GrantType    string `json:"grant_type"`
	Email        string `json:"email,omitempty"`
	Password     string `json:"password,omitempty"`
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// TokenIssuerConfig wires a TokenIssuer to a store and transport.
type TokenIssuerConfig struct {
	// Store defaults to DefaultStore().
	Store *ConfigStore
	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
	// Telemetry hooks are optional.
	Telemetry TelemetryHooks
	// UserAgent overrides the default SDK user agent.
	UserAgent string
}

// TokenIssuer performs the grant flows against the remote token endpoints
// and writes the resulting session into the configuration store.
//
// Its internal executor is always constructed with SkipTokenRefresh: the
// refresh itself performs an HTTP call, and letting that call re-enter the
// expiry check would recurse on the same expired session.
type TokenIssuer struct {
	store      *ConfigStore
	exec       *Executor
	httpClient *http.Client
	userAgent  string

	// refreshMu serializes Refresh so concurrent expired requests coalesce
	// into a single token endpoint call.
	refreshMu sync.Mutex
}

// NewTokenIssuer returns an issuer bound to the given store.
func NewTokenIssuer(cfg TokenIssuerConfig) *TokenIssuer {
	store := cfg.Store
	if store == nil {
		store = DefaultStore()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	return &TokenIssuer{
		store: store,
		exec: NewExecutor(ExecutorConfig{
			Store:            store,
			HTTPClient:       httpClient,
			SkipTokenRefresh: true,
			Telemetry:        cfg.Telemetry,
			UserAgent:        ua,
		}),
		httpClient: httpClient,
		userAgent:  ua,
	}
}

// SignInWithPassword exchanges user credentials for a session using the
// password grant.
func (t *TokenIssuer) SignInWithPassword(ctx context.Context, email, password, clientID string) (Config, error) {
	if strings.TrimSpace(email) == "" || strings.TrimSpace(password) == "" {
		return Config{}, &APIError{Status: 400, Code: "invalid_request", Message: "email and password required"}
	}
	return t.signIn(ctx, grantRequest{
		GrantType: "password",
		Email:     email,
		Password:  password,
		ClientID:  clientID,
	}, AuthTypePassword)
}

// SignInWithClient exchanges client credentials for a session using the
// client grant. Client sessions carry no refresh token.
func (t *TokenIssuer) SignInWithClient(ctx context.Context, clientID, clientSecret string) (Config, error) {
	if strings.TrimSpace(clientID) == "" || strings.TrimSpace(clientSecret) == "" {
		return Config{}, &APIError{Status: 400, Code: "invalid_request", Message: "client id and secret required"}
	}
	return t.signIn(ctx, grantRequest{
		GrantType:    "client",
		ClientID:     clientID,
		ClientSecret: clientSecret,
	}, AuthTypeClient)
}

// RefreshToken exchanges a refresh token for a new session using the refresh
// grant. When token is empty, the refresh token of the stored session is
// used; ErrMissingRefreshToken is returned if neither is available.
func (t *TokenIssuer) RefreshToken(ctx context.Context, token string) (Config, error) {
	resolved := strings.TrimSpace(token)
	if resolved == "" {
		cfg, err := t.store.Config()
		if err != nil {
			return Config{}, err
		}
		if cfg.Session != nil {
			resolved = cfg.Session.RefreshToken
		}
	}
	if resolved == "" {
		return Config{}, ErrMissingRefreshToken
	}
	return t.signIn(ctx, grantRequest{
		GrantType:    "refresh",
		RefreshToken: resolved,
	}, AuthTypeRefresh)
}

// RefreshOAuthToken renews an OAuth session with a form-encoded
// refresh_token grant against the OAuth token endpoint. Provider failures
// surface as raw *OAuthError: OAuth callers need the structured
// error/error_description fields intact, so no normalization happens here.
func (t *TokenIssuer) RefreshOAuthToken(ctx context.Context, refreshToken string) (Config, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return Config{}, ErrMissingRefreshToken
	}
	cfg, err := t.store.Config()
	if err != nil {
		return Config{}, err
	}
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	if cfg.ClientID != "" {
		form.Set("client_id", cfg.ClientID)
	}
	tok, err := postOAuthForm(ctx, t.httpClient, oauthTokenURL(cfg), form, t.userAgent)
	if err != nil {
		return Config{}, err
	}
	return t.applySession(sessionFromToken(tok, AuthTypeOAuth))
}

// Refresh renews the stored session, dispatching on the auth type that
// produced it: oauth sessions go through RefreshOAuthToken, everything else
// through RefreshToken.
//
// Concurrent callers coalesce: the expiry is re-checked under the lock, and
// callers that arrive while a refresh is in flight return the already
// renewed configuration without a second token request.
func (t *TokenIssuer) Refresh(ctx context.Context) (Config, error) {
	t.refreshMu.Lock()
	defer t.refreshMu.Unlock()

	cfg, err := t.store.Config()
	if err != nil {
		return Config{}, err
	}
	if cfg.Session == nil {
		return Config{}, ErrNoSession
	}
	if !cfg.Session.Expired() {
		return cfg, nil
	}
	if cfg.Session.AuthType == AuthTypeOAuth {
		return t.RefreshOAuthToken(ctx, cfg.Session.RefreshToken)
	}
	return t.RefreshToken(ctx, cfg.Session.RefreshToken)
}

// SignOut invalidates the token server-side and resets the configuration
// store. The key parameter overrides the stored API key; ErrMissingAPIKey is
// returned when neither resolves.
func (t *TokenIssuer) SignOut(ctx context.Context, apiKey string) error {
	cfg, err := t.store.Config()
	if err != nil {
		return err
	}
	key := strings.TrimSpace(apiKey)
	if key == "" {
		key = strings.TrimSpace(cfg.APIKey)
	}
	if key == "" {
		return ErrMissingAPIKey
	}
	res, err := t.exec.Delete(ctx, signOutURL(cfg), map[string]string{"token": key})
	if err != nil {
		return err
	}
	if res.Err != nil {
		return normalizeAuthError(res.Err)
	}
	t.store.Reset()
	return nil
}

// signIn posts a JSON grant to the signin endpoint and installs the
// resulting session. API failures are normalized so callers never see a
// shapeless error.
func (t *TokenIssuer) signIn(ctx context.Context, grant grantRequest, authType AuthType) (Config, error) {
	cfg, err := t.store.Config()
	if err != nil {
		return Config{}, err
	}
	res, err := t.exec.Post(ctx, signInURL(cfg), grant)
	if err != nil {
		return Config{}, err
	}
	if res.Err != nil {
		return Config{}, normalizeAuthError(res.Err)
	}
	var tok tokenResponse
	if err := res.Decode(&tok); err != nil {
		return Config{}, err
	}
	return t.applySession(sessionFromToken(tok, authType))
}

// applySession installs the session as the live credential: the access token
// becomes the API key every authenticated request sends.
func (t *TokenIssuer) applySession(sess *Session) (Config, error) {
	return t.store.Update(func(c *Config) {
		c.APIKey = sess.AccessToken
		c.Session = sess
	})
}

// The signin and signout endpoints live directly under the API base URL,
// outside the versioned prefix, so the issuer hands the executor absolute
// URLs.
func signInURL(cfg Config) string {
	return strings.TrimSuffix(cfg.APIURL, "/") + routes.AuthSignIn
}

func signOutURL(cfg Config) string {
	return strings.TrimSuffix(cfg.APIURL, "/") + routes.AuthSignOut
}

func oauthTokenURL(cfg Config) string {
	return strings.TrimSuffix(cfg.APIURL, "/") + "/v" + cfg.Version + routes.AuthToken
}

// postOAuthForm performs a raw form-encoded POST against the OAuth token
// endpoint, bypassing the executor's JSON envelope handling: OAuth errors
// must reach the caller in their original shape.
func postOAuthForm(ctx context.Context, client *http.Client, endpoint string, form url.Values, userAgent string) (tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return tokenResponse{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return tokenResponse{}, &TransportError{
			Kind:    classifyTransportErrorKind(err),
			Message: "oauth token request failed",
			Cause:   err,
		}
	}
	//nolint:errcheck // best-effort cleanup on return
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return tokenResponse{}, &TransportError{Kind: TransportErrorConnection, Message: "read oauth token response", Cause: err}
	}
	if resp.StatusCode >= 400 {
		return tokenResponse{}, decodeOAuthError(resp.StatusCode, body)
	}
	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return tokenResponse{}, &TransportError{Kind: TransportErrorDecode, Message: "decode oauth token response", Cause: err}
	}
	return tok, nil
}
