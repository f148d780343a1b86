// Package headers defines HTTP header constants used by the Loopkit SDK.
// This is the single source of truth for header names on outbound requests.
package headers

const (
	// RequestID is the header for request correlation / idempotency.
	// The executor stamps every request so retries can be deduplicated.
	RequestID = "X-Loopkit-Request-Id"

	// ClientVersion reports the SDK version to the API.
	ClientVersion = "X-Loopkit-Client-Version"
)
