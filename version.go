package sdk

// Version is the published SDK version.
// 0.4.0: Breaking - Refresh coalesces concurrent callers behind one in-flight
// token request; previously each expired caller minted its own refresh.
// 0.3.0: Add PKCEFlow (authorization-code + PKCE) and oauth2.TokenSource
// adapter.
// 0.2.0: Breaking - split AuthenticatedClient/raw behavior into the
// SkipTokenRefresh executor mode; TokenIssuer always constructs its internal
// executor in that mode.
const Version = "0.4.0"
