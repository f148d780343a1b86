package sdk

import (
	"context"
	"strconv"
	"time"

	"golang.org/x/oauth2"
)

// storeTokenSource adapts the live session to oauth2.TokenSource so the SDK
// plugs into oauth2-aware HTTP stacks. Token reads through the store and
// refreshes an expired session via the issuer.
type storeTokenSource struct {
	ctx    context.Context
	store  *ConfigStore
	issuer *TokenIssuer
}

// NewTokenSource returns an oauth2.TokenSource backed by the store. The
// context bounds any refresh calls the source has to make; issuer may be nil
// when the caller never expects the session to expire.
func NewTokenSource(ctx context.Context, store *ConfigStore, issuer *TokenIssuer) oauth2.TokenSource {
	if store == nil {
		store = DefaultStore()
	}
	return &storeTokenSource{ctx: ctx, store: store, issuer: issuer}
}

func (s *storeTokenSource) Token() (*oauth2.Token, error) {
	cfg, err := s.store.Config()
	if err != nil {
		return nil, err
	}
	if cfg.Session == nil {
		return nil, ErrNoSession
	}
	if cfg.Session.Expired() && s.issuer != nil {
		cfg, err = s.issuer.Refresh(s.ctx)
		if err != nil {
			return nil, err
		}
	}
	tok := &oauth2.Token{
		AccessToken:  cfg.Session.AccessToken,
		RefreshToken: cfg.Session.RefreshToken,
		TokenType:    "Bearer",
	}
	if ms, err := strconv.ParseInt(cfg.Session.ExpiresAt, 10, 64); err == nil {
		tok.Expiry = time.UnixMilli(ms)
	}
	return tok, nil
}
