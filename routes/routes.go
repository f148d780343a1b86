// Package routes provides shared API route constants used across the SDK so
// the issuer, executor, and PKCE flow cannot drift apart on endpoint paths.
package routes

const (
	// AuthSignIn accepts the JSON grant flows (password, client, refresh).
	// Unversioned: it lives directly under the API base URL.
	AuthSignIn = "/auth/signin"

	// AuthSignOut invalidates a token server-side.
	AuthSignOut = "/auth/signout"

	// AuthToken is the OAuth token endpoint (form-encoded authorization_code
	// and refresh_token grants), mounted under the versioned prefix.
	AuthToken = "/auth/token" // #nosec G101 -- route path, not a credential

	// OAuthAuthorize is the authorization page path on the app URL.
	OAuthAuthorize = "/oauth"
)
