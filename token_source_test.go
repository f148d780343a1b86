package sdk

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func TestTokenSourceReturnsLiveToken(t *testing.T) {
	exp := time.Now().Add(time.Hour).UnixMilli()
	store := NewConfigStore()
	store.Initialize(Config{Session: &Session{
		AccessToken:  "live-token",
		RefreshToken: "live-refresh",
		AuthType:     AuthTypePassword,
		ExpiresAt:    strconv.FormatInt(exp, 10),
	}})

	tok, err := NewTokenSource(context.Background(), store, nil).Token()
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if tok.AccessToken != "live-token" || tok.RefreshToken != "live-refresh" || tok.TokenType != "Bearer" {
		t.Fatalf("token = %+v", tok)
	}
	if !tok.Expiry.Equal(time.UnixMilli(exp)) {
		t.Fatalf("expiry = %v, want %v", tok.Expiry, time.UnixMilli(exp))
	}
}

func TestTokenSourceRequiresSession(t *testing.T) {
	store := NewConfigStore()
	store.Initialize(Config{})
	if _, err := NewTokenSource(context.Background(), store, nil).Token(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("error = %v, want ErrNoSession", err)
	}
}

func TestTokenSourceRefreshesExpiredSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/signin" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(tokenJSON("renewed-token", "renewed-refresh")))
	}))
	defer server.Close()

	store := NewConfigStore()
	store.Initialize(Config{APIURL: server.URL, Session: expiredSession(AuthTypePassword)})
	issuer := NewTokenIssuer(TokenIssuerConfig{Store: store})

	tok, err := NewTokenSource(context.Background(), store, issuer).Token()
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if tok.AccessToken != "renewed-token" {
		t.Fatalf("access token = %q, want the renewed token", tok.AccessToken)
	}
}
