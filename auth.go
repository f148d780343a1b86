// Package sdk provides the Loopkit Go SDK: credential acquisition through the
// password, client-credentials, refresh-token, and authorization-code+PKCE
// grant flows, a process-wide configuration/session store, and an
// authenticated request executor that transparently refreshes expired
// sessions.
package sdk

import (
	"net/http"
	"strings"
)

type authStrategy interface {
	Apply(req *http.Request)
}

type bearerAuth struct {
	token string
}

func (b bearerAuth) Apply(req *http.Request) {
	token := strings.TrimSpace(b.token)
	if token == "" {
		return
	}
	// Tolerate callers that stored the credential with the scheme attached.
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	req.Header.Set("Authorization", "Bearer "+token)
}
