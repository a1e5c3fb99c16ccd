// File: internal/session/manager.go
// Description: Session Manager. Owns the refresh policy (evict then reissue
// after a credential is rejected downstream) and the auth probe used by the
// overlay and the CHECK_AUTH message handler.

package session

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/avelichko7/textlens/api/schemas"
	"github.com/avelichko7/textlens/internal/storage"
)

// AccountProber validates a credential against the backend and reports the
// subscription attached to it. Satisfied by the backend client.
type AccountProber interface {
	Me(ctx context.Context, token string) (schemas.Subscription, error)
}

// Manager coordinates the identity provider, the backend probe and the
// cached plan snapshot.
type Manager struct {
	provider Provider
	prober   AccountProber
	cache    *storage.Cache
	probes   singleflight.Group
	log      *zap.Logger
}

// NewManager builds a Manager.
func NewManager(provider Provider, prober AccountProber, cache *storage.Cache, logger *zap.Logger) *Manager {
	return &Manager{
		provider: provider,
		prober:   prober,
		cache:    cache,
		log:      logger.Named("session"),
	}
}

// GetToken returns a credential for a backend call.
//
// With forceRefresh the cached credential (if any) is first evicted from the
// provider so the subsequent interactive issuance cannot return the same
// rejected token. Eviction with nothing cached is a no-op, not an error.
func (m *Manager) GetToken(ctx context.Context, forceRefresh bool) (string, error) {
	if forceRefresh {
		stale, err := m.provider.Token(ctx, false)
		if err == nil && stale != "" {
			if err := m.provider.RemoveCachedToken(ctx, stale); err != nil {
				m.log.Debug("Failed to evict cached credential", zap.Error(err))
			}
		}
	}

	token, err := m.provider.Token(ctx, true)
	if err != nil {
		return "", err
	}
	return token, nil
}

// CheckAuth probes the session silently. The credential is fetched without
// prompting and validated against the backend; any failure along the way,
// network errors included, reports an unauthenticated session and clears the
// cached plan so the overlay never paints entitlements it cannot back up.
// Concurrent probes from multiple surfaces collapse into one.
func (m *Manager) CheckAuth(ctx context.Context) schemas.AuthStatus {
	result, _, _ := m.probes.Do("check_auth", func() (any, error) {
		return m.checkAuth(ctx), nil
	})
	return result.(schemas.AuthStatus)
}

func (m *Manager) checkAuth(ctx context.Context) schemas.AuthStatus {
	token, err := m.provider.Token(ctx, false)
	if err != nil || token == "" {
		m.cache.ClearPlanID()
		return schemas.AuthStatus{}
	}

	sub, err := m.prober.Me(ctx, token)
	if err != nil {
		m.log.Debug("Auth probe rejected by backend", zap.Error(err))
		m.cache.ClearPlanID()
		return schemas.AuthStatus{}
	}

	m.cache.SetSubscription(sub)
	return schemas.AuthStatus{Authenticated: true, PlanID: sub.PlanID}
}

// Revoke signs the user out: remote revoke, local eviction, cached plan
// cleared. Revoking an already signed-out session succeeds.
func (m *Manager) Revoke(ctx context.Context) error {
	defer m.cache.ClearPlanID()

	token, err := m.provider.Token(ctx, false)
	if err != nil || token == "" {
		return nil
	}
	if err := m.provider.RemoveCachedToken(ctx, token); err != nil {
		m.log.Debug("Failed to evict credential during revoke", zap.Error(err))
	}
	return m.provider.Revoke(ctx, token)
}
