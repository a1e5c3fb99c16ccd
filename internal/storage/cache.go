// File: internal/storage/cache.go
package storage

import (
	"go.uber.org/zap"

	"github.com/avelichko7/textlens/api/schemas"
)

// Keys of the persisted snapshots. They mirror the names the surfaces already
// share, so an upgrade keeps existing state readable.
const (
	KeyProfile          = "lastProfileData"
	KeySubscription     = "lastSubscriptionData"
	KeyAISettings       = "lastAISettings"
	KeyHistory          = "lastHistoryPage"
	KeyUserPlan         = "user_plan"
	KeyPendingHighlight = "pending_highlight"
)

// Cache wraps a Store with typed accessors for the last-known account
// snapshots. Reads are optimistic: surfaces paint the cached value instantly
// and overwrite it once a live fetch resolves. Staleness is acceptable;
// a live fetch always supersedes.
type Cache struct {
	store Store
	log   *zap.Logger
}

// NewCache wraps the store.
func NewCache(store Store, logger *zap.Logger) *Cache {
	return &Cache{store: store, log: logger.Named("cache")}
}

// Profile returns the cached profile snapshot, if any.
func (c *Cache) Profile() (schemas.Profile, bool) {
	var p schemas.Profile
	ok, err := c.store.Get(KeyProfile, &p)
	if err != nil {
		c.log.Debug("Failed to read cached profile", zap.Error(err))
		return schemas.Profile{}, false
	}
	return p, ok
}

// SetProfile stores a fresh profile snapshot, last-writer-wins.
func (c *Cache) SetProfile(p schemas.Profile) {
	if err := c.store.Set(KeyProfile, p); err != nil {
		c.log.Warn("Failed to cache profile", zap.Error(err))
	}
}

// Subscription returns the cached subscription snapshot, if any.
func (c *Cache) Subscription() (schemas.Subscription, bool) {
	var s schemas.Subscription
	ok, err := c.store.Get(KeySubscription, &s)
	if err != nil {
		c.log.Debug("Failed to read cached subscription", zap.Error(err))
		return schemas.Subscription{}, false
	}
	return s, ok
}

// SetSubscription stores a fresh subscription snapshot and the derived plan id
// used for instant overlay paint.
func (c *Cache) SetSubscription(s schemas.Subscription) {
	if err := c.store.Set(KeySubscription, s); err != nil {
		c.log.Warn("Failed to cache subscription", zap.Error(err))
	}
	if err := c.store.Set(KeyUserPlan, s.PlanID); err != nil {
		c.log.Warn("Failed to cache plan id", zap.Error(err))
	}
}

// PlanID returns the cached plan tier, if any.
func (c *Cache) PlanID() (string, bool) {
	var plan string
	ok, err := c.store.Get(KeyUserPlan, &plan)
	if err != nil || plan == "" {
		return "", false
	}
	return plan, ok
}

// ClearPlanID drops the cached plan tier. Called whenever an auth probe fails.
func (c *Cache) ClearPlanID() {
	if err := c.store.Delete(KeyUserPlan); err != nil {
		c.log.Debug("Failed to clear cached plan id", zap.Error(err))
	}
}

// AISettings returns the cached AI settings snapshot, if any.
func (c *Cache) AISettings() (schemas.AISettings, bool) {
	var s schemas.AISettings
	ok, err := c.store.Get(KeyAISettings, &s)
	if err != nil {
		return schemas.AISettings{}, false
	}
	return s, ok
}

// SetAISettings stores a fresh AI settings snapshot.
func (c *Cache) SetAISettings(s schemas.AISettings) {
	if err := c.store.Set(KeyAISettings, s); err != nil {
		c.log.Warn("Failed to cache AI settings", zap.Error(err))
	}
}

// History returns the cached history page, if any.
func (c *Cache) History() (schemas.HistoryPage, bool) {
	var h schemas.HistoryPage
	ok, err := c.store.Get(KeyHistory, &h)
	if err != nil {
		return schemas.HistoryPage{}, false
	}
	return h, ok
}

// SetHistory stores a fresh history page snapshot.
func (c *Cache) SetHistory(h schemas.HistoryPage) {
	if err := c.store.Set(KeyHistory, h); err != nil {
		c.log.Warn("Failed to cache history page", zap.Error(err))
	}
}
