package sdk

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/loopkit/loopkit-go/routes"
)

// codeVerifierBytes is the entropy behind each PKCE code verifier: 96 random
// bytes base64url-encode to the 128-character maximum RFC 7636 §4.1 allows.
const codeVerifierBytes = 96

// PKCEFlowConfig configures an authorization-code + PKCE flow. Fields left
// empty fall back to the store's configuration (ClientID, AppURL, APIURL,
// Version).
type PKCEFlowConfig struct {
	ClientID    string
	RedirectURI string
	AppURL      string
	APIURL      string
	APIVersion  string
	// Scopes are comma-joined into the authorization request. Required for
	// URL generation.
	Scopes []string
	// State is an optional anti-CSRF token, round-tripped unchanged.
	State string

	// Store supplies defaults and receives the authenticated configuration.
	// Defaults to DefaultStore().
	Store *ConfigStore
	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// PKCEFlow drives the OAuth2 authorization-code flow with PKCE (RFC 7636):
// challenge generation, authorization URL construction, and the
// code-for-token exchange. The exchange talks to the OAuth token endpoint
// directly rather than through the executor, so provider errors surface in
// their original shape.
type PKCEFlow struct {
	clientID    string
	redirectURI string
	appURL      string
	apiURL      string
	apiVersion  string
	scopes      []string
	state       string

	store      *ConfigStore
	httpClient *http.Client
}

// AuthorizationRequest pairs the authorization URL with the verifier the
// caller must hold on to for the exchange.
type AuthorizationRequest struct {
	URL          string
	CodeVerifier string
}

// NewPKCEFlow validates the configuration after applying store fallbacks.
// Missing client ID, API URL, or API version is a construction error.
func NewPKCEFlow(cfg PKCEFlowConfig) (*PKCEFlow, error) {
	store := cfg.Store
	if store == nil {
		store = DefaultStore()
	}
	f := &PKCEFlow{
		clientID:    strings.TrimSpace(cfg.ClientID),
		redirectURI: strings.TrimSpace(cfg.RedirectURI),
		appURL:      normalizeURL(cfg.AppURL, ""),
		apiURL:      normalizeURL(cfg.APIURL, ""),
		apiVersion:  strings.TrimSpace(cfg.APIVersion),
		scopes:      cfg.Scopes,
		state:       cfg.State,
		store:       store,
		httpClient:  cfg.HTTPClient,
	}
	if f.httpClient == nil {
		f.httpClient = http.DefaultClient
	}
	if stored, err := store.Config(); err == nil {
		if f.clientID == "" {
			f.clientID = stored.ClientID
		}
		if f.appURL == "" {
			f.appURL = stored.AppURL
		}
		if f.apiURL == "" {
			f.apiURL = stored.APIURL
		}
		if f.apiVersion == "" {
			f.apiVersion = stored.Version
		}
	}
	if f.clientID == "" {
		return nil, fmt.Errorf("sdk: pkce flow: client id is required")
	}
	if f.apiURL == "" {
		return nil, fmt.Errorf("sdk: pkce flow: api url is required")
	}
	if f.apiVersion == "" {
		return nil, fmt.Errorf("sdk: pkce flow: api version is required")
	}
	return f, nil
}

// AuthorizationURLAndVerifier mints a fresh verifier/challenge pair and
// builds the authorization URL on the app origin. Every call produces a
// distinct verifier; nothing is cached. Scopes and a redirect URI are
// required to construct a valid request.
func (f *PKCEFlow) AuthorizationURLAndVerifier() (AuthorizationRequest, error) {
	if len(f.scopes) == 0 {
		return AuthorizationRequest{}, fmt.Errorf("sdk: pkce flow: at least one scope is required")
	}
	if f.redirectURI == "" {
		return AuthorizationRequest{}, fmt.Errorf("sdk: pkce flow: redirect uri is required")
	}
	if f.appURL == "" {
		return AuthorizationRequest{}, fmt.Errorf("sdk: pkce flow: app url is required")
	}
	verifier, err := generateCodeVerifier()
	if err != nil {
		return AuthorizationRequest{}, err
	}
	q := url.Values{}
	q.Set("client_id", f.clientID)
	q.Set("redirect_uri", f.redirectURI)
	q.Set("response_type", "code")
	q.Set("code_challenge", codeChallengeS256(verifier))
	q.Set("code_challenge_method", "S256")
	q.Set("scope", strings.Join(f.scopes, ","))
	if f.state != "" {
		q.Set("state", f.state)
	}
	return AuthorizationRequest{
		URL:          f.appURL + routes.OAuthAuthorize + "?" + q.Encode(),
		CodeVerifier: verifier,
	}, nil
}

// AuthenticateWithCodeAndVerifier exchanges the authorization code and the
// verifier from the matching AuthorizationURLAndVerifier call for a session,
// merges it into the stored configuration, and returns the result. Provider
// failures bubble up as raw *OAuthError.
func (f *PKCEFlow) AuthenticateWithCodeAndVerifier(ctx context.Context, code, codeVerifier string) (Config, error) {
	if f.redirectURI == "" {
		return Config{}, fmt.Errorf("sdk: pkce flow: redirect uri is required")
	}
	if strings.TrimSpace(code) == "" || strings.TrimSpace(codeVerifier) == "" {
		return Config{}, fmt.Errorf("sdk: pkce flow: code and code verifier are required")
	}

	form := url.Values{}
	form.Set("client_id", f.clientID)
	form.Set("redirect_uri", f.redirectURI)
	form.Set("code", code)
	form.Set("code_verifier", codeVerifier)
	form.Set("grant_type", "authorization_code")

	endpoint := f.apiURL + "/v" + f.apiVersion + routes.AuthToken
	tok, err := postOAuthForm(ctx, f.httpClient, endpoint, form, defaultUserAgent)
	if err != nil {
		return Config{}, err
	}
	sess := sessionFromToken(tok, AuthTypeOAuth)

	if f.store.Initialized() {
		return f.store.Update(func(c *Config) {
			c.APIKey = sess.AccessToken
			c.Session = sess
		})
	}
	return f.store.Initialize(Config{
		APIKey:   sess.AccessToken,
		APIURL:   f.apiURL,
		Version:  f.apiVersion,
		AppURL:   f.appURL,
		ClientID: f.clientID,
		Session:  sess,
	}), nil
}

// generateCodeVerifier returns a cryptographically random 128-character
// base64url string (alphabet [A-Za-z0-9_-], no padding).
func generateCodeVerifier() (string, error) {
	buf := make([]byte, codeVerifierBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("sdk: pkce flow: generate code verifier: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// codeChallengeS256 derives the S256 challenge: base64url(SHA256(verifier)).
func codeChallengeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
