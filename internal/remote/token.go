package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/timmy/legisync/internal/cache"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// TokenProvider supplies bearer tokens for remote calls.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// TokenConfig holds OAuth2 client-credentials settings.
type TokenConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	// Skew is subtracted from the token lifetime before caching.
	Skew time.Duration
	// DefaultTTL is used when the token endpoint returns no expiry.
	DefaultTTL time.Duration
}

// CachedTokenProvider fetches client-credentials tokens and keeps them in an
// injected cache until shortly before they expire.
type CachedTokenProvider struct {
	source     func(ctx context.Context) (*oauth2.Token, error)
	cache      cache.TokenCache
	key        string
	skew       time.Duration
	defaultTTL time.Duration
	now        func() time.Time
}

// NewTokenProvider creates a CachedTokenProvider.
func NewTokenProvider(cfg *TokenConfig, tokenCache cache.TokenCache) *CachedTokenProvider {
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	return newCachedTokenProvider(cc.Token, tokenCache, "token:"+cfg.ClientID, cfg.Skew, cfg.DefaultTTL)
}

func newCachedTokenProvider(
	source func(ctx context.Context) (*oauth2.Token, error),
	tokenCache cache.TokenCache,
	key string,
	skew, defaultTTL time.Duration,
) *CachedTokenProvider {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &CachedTokenProvider{
		source:     source,
		cache:      tokenCache,
		key:        key,
		skew:       skew,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// Token returns a cached token or fetches a fresh one.
func (p *CachedTokenProvider) Token(ctx context.Context) (string, error) {
	if cached, ok, err := p.cache.Get(ctx, p.key); err == nil && ok {
		return cached, nil
	}

	tok, err := p.source(ctx)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}

	ttl := p.defaultTTL
	if !tok.Expiry.IsZero() {
		ttl = tok.Expiry.Sub(p.now()) - p.skew
	}
	// A failed cache write only costs an extra token request next time.
	_ = p.cache.Set(ctx, p.key, tok.AccessToken, ttl)

	return tok.AccessToken, nil
}
