package sdk

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthType records which grant flow produced a session. It determines how a
// future refresh is performed: oauth sessions refresh against the OAuth token
// endpoint, everything else against the JSON signin endpoint.
type AuthType string

const (
	AuthTypePassword AuthType = "password"
	AuthTypeClient   AuthType = "client"
	AuthTypeRefresh  AuthType = "refresh"
	AuthTypeOAuth    AuthType = "oauth"
)

// Session holds the credential currently attached to outbound requests.
//
// Sub, IssuedAt, and ExpiresAt are epoch-millisecond values kept as strings,
// tolerant of absent or malformed input from the token endpoint.
type Session struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token,omitempty"`
	AuthType     AuthType `json:"auth_type"`
	Sub          string   `json:"sub,omitempty"`
	IssuedAt     string   `json:"iat,omitempty"`
	ExpiresAt    string   `json:"exp,omitempty"`
}

// Expired reports whether the session's expiry instant is in the past.
//
// The check fails open: a missing, empty, or non-numeric ExpiresAt is treated
// as not expired so a malformed timestamp never blocks legitimate requests.
func (s *Session) Expired() bool {
	if s == nil {
		return false
	}
	return isExpiredTimestamp(s.ExpiresAt)
}

// isExpiredTimestamp reports whether an epoch-millisecond string is in the
// past. Empty or unparseable input returns false.
func isExpiredTimestamp(ts string) bool {
	trimmed := strings.TrimSpace(ts)
	if trimmed == "" {
		return false
	}
	ms, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return false
	}
	return ms < time.Now().UnixMilli()
}

// backfillFromClaims fills Sub, IssuedAt, and ExpiresAt from the access
// token's JWT claims when the token endpoint response omitted them. The token
// is decoded without signature verification; the server already vouched for
// it by issuing it over TLS.
func (s *Session) backfillFromClaims() {
	if s == nil || s.AccessToken == "" {
		return
	}
	if s.Sub != "" && s.IssuedAt != "" && s.ExpiresAt != "" {
		return
	}
	var claims jwt.RegisteredClaims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(s.AccessToken, &claims); err != nil {
		return
	}
	if s.Sub == "" {
		s.Sub = claims.Subject
	}
	if s.IssuedAt == "" && claims.IssuedAt != nil {
		s.IssuedAt = strconv.FormatInt(claims.IssuedAt.Time.UnixMilli(), 10)
	}
	if s.ExpiresAt == "" && claims.ExpiresAt != nil {
		s.ExpiresAt = strconv.FormatInt(claims.ExpiresAt.Time.UnixMilli(), 10)
	}
}

// epochMillis tolerates both JSON strings and numbers for the iat/exp fields
// the token endpoints return.
type epochMillis string

func (e *epochMillis) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" || trimmed == "" {
		*e = ""
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*e = epochMillis(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*e = epochMillis(n.String())
	return nil
}

func (e epochMillis) String() string { return string(e) }

// tokenResponse mirrors the token endpoints' success body.
type tokenResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int64       `json:"expires_in"`
	Sub          string      `json:"sub"`
	Iat          epochMillis `json:"iat"`
	Exp          epochMillis `json:"exp"`
}

// sessionFromToken assembles a Session from a token endpoint response,
// deriving the expiry from expires_in and the JWT claims when the explicit
// fields are absent.
func sessionFromToken(tok tokenResponse, authType AuthType) *Session {
	sess := &Session{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		AuthType:     authType,
		Sub:          tok.Sub,
		IssuedAt:     tok.Iat.String(),
		ExpiresAt:    tok.Exp.String(),
	}
	if sess.ExpiresAt == "" && tok.ExpiresIn > 0 {
		expiry := time.Now().UnixMilli() + tok.ExpiresIn*1000
		sess.ExpiresAt = strconv.FormatInt(expiry, 10)
	}
	sess.backfillFromClaims()
	return sess
}
