// File: internal/session/provider.go
// Description: Identity provider contract and the HTTP implementation. The
// provider owns credential issuance and its own cache; the Manager layers the
// refresh and probe policies on top.

package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	jsoniter "github.com/json-iterator/go"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/avelichko7/textlens/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrAuthDenied is returned when no credential can be issued: a silent probe
// found nothing cached, or the user refused an interactive sign-in.
var ErrAuthDenied = errors.New("authentication denied or unavailable")

// Provider issues, evicts and revokes credentials.
type Provider interface {
	// Token returns a credential. With interactive=false only a cached or
	// silently refreshable credential is returned; with interactive=true the
	// provider may prompt the user to sign in.
	Token(ctx context.Context, interactive bool) (string, error)
	// RemoveCachedToken evicts the given credential from the provider's cache
	// without revoking it remotely. Evicting an unknown token is a no-op.
	RemoveCachedToken(ctx context.Context, token string) error
	// Revoke invalidates the credential remotely. Best effort.
	Revoke(ctx context.Context, token string) error
}

const (
	tokenCacheKey   = "token"
	defaultTokenTTL = 5 * time.Minute
	// expiryMargin keeps a token out of the cache for its last stretch so a
	// cached hit is never already expired by the time it reaches the backend.
	expiryMargin = 30 * time.Second
)

// parserUnverified inspects token claims without checking the signature. The
// expiry is only used to bound the local cache, never to grant access.
var parserUnverified = new(jwt.Parser)

// HTTPProvider implements Provider against an HTTP identity service.
type HTTPProvider struct {
	cfg    config.IdentityConfig
	client *http.Client
	cache  *gocache.Cache
	log    *zap.Logger
}

// NewHTTPProvider builds a provider for the configured identity endpoints.
func NewHTTPProvider(cfg config.IdentityConfig, logger *zap.Logger) *HTTPProvider {
	return &HTTPProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		cache:  gocache.New(defaultTokenTTL, time.Minute),
		log:    logger.Named("identity"),
	}
}

type tokenRequest struct {
	Interactive bool `json:"interactive"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// Token returns a cached credential when present, otherwise asks the identity
// service for a fresh one.
func (p *HTTPProvider) Token(ctx context.Context, interactive bool) (string, error) {
	if cached, ok := p.cache.Get(tokenCacheKey); ok {
		if token, ok := cached.(string); ok && token != "" {
			return token, nil
		}
	}

	body, err := json.Marshal(tokenRequest{Interactive: interactive})
	if err != nil {
		return "", fmt.Errorf("failed to encode token request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TokenURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("identity service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", ErrAuthDenied
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("identity service returned status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if tr.Token == "" {
		return "", ErrAuthDenied
	}

	p.cache.Set(tokenCacheKey, tr.Token, p.cacheTTL(tr.Token))
	return tr.Token, nil
}

// cacheTTL bounds the cache lifetime by the token's own expiry claim when one
// is present and parseable.
func (p *HTTPProvider) cacheTTL(token string) time.Duration {
	parsed, _, err := parserUnverified.ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return defaultTokenTTL
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return defaultTokenTTL
	}
	ttl := time.Until(exp.Time) - expiryMargin
	if ttl <= 0 {
		return time.Second
	}
	if ttl > defaultTokenTTL {
		return defaultTokenTTL
	}
	return ttl
}

// RemoveCachedToken evicts the credential from the local cache if it is the
// one currently held. Unknown tokens are ignored.
func (p *HTTPProvider) RemoveCachedToken(_ context.Context, token string) error {
	cached, ok := p.cache.Get(tokenCacheKey)
	if !ok {
		return nil
	}
	if held, _ := cached.(string); held == token || token == "" {
		p.cache.Delete(tokenCacheKey)
	}
	return nil
}

// Revoke invalidates the credential remotely and drops the local copy.
func (p *HTTPProvider) Revoke(ctx context.Context, token string) error {
	p.cache.Delete(tokenCacheKey)
	if p.cfg.RevokeURL == "" || token == "" {
		return nil
	}

	body, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return fmt.Errorf("failed to encode revoke request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.RevokeURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("revoke request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	if resp.StatusCode >= 400 {
		return fmt.Errorf("revoke endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
