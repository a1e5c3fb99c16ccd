// File: internal/runtime/content.go
// Description: The in-page content runtime. Hosts one overlay session per
// page, reacts to OPEN_OVERLAY messages, and consumes the pending-highlight
// slot when a page finishes loading.

package runtime

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/avelichko7/textlens/api/schemas"
	"github.com/avelichko7/textlens/internal/bus"
	"github.com/avelichko7/textlens/internal/config"
	"github.com/avelichko7/textlens/internal/locator"
	"github.com/avelichko7/textlens/internal/overlay"
	"github.com/avelichko7/textlens/internal/storage"
)

// ViewFactory builds a View for each opened overlay.
type ViewFactory func() overlay.View

// Content wires the content-context behavior.
type Content struct {
	router   *bus.Router
	cache    *storage.Cache
	slot     *locator.PendingSlot
	replayer *locator.Replayer
	views    ViewFactory
	cfg      config.OverlayConfig
	log      *zap.Logger

	mu      sync.Mutex
	active  *overlay.Session
	stop    chan struct{}
	done    sync.WaitGroup
	started bool
}

// NewContent builds the content runtime.
func NewContent(router *bus.Router, cache *storage.Cache, slot *locator.PendingSlot, replayer *locator.Replayer, views ViewFactory, cfg config.OverlayConfig, logger *zap.Logger) *Content {
	return &Content{
		router:   router,
		cache:    cache,
		slot:     slot,
		replayer: replayer,
		views:    views,
		cfg:      cfg,
		log:      logger.Named("content"),
	}
}

// Start begins consuming OPEN_OVERLAY messages.
func (c *Content) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.stop = make(chan struct{})
	c.mu.Unlock()

	overlays, unsub := c.router.Subscribe(schemas.MsgOpenOverlay)

	c.done.Add(1)
	go func() {
		defer c.done.Done()
		defer unsub()
		for {
			select {
			case <-c.stop:
				return
			case <-ctx.Done():
				return
			case env, ok := <-overlays:
				if !ok {
					return
				}
				req, ok := env.Payload.(schemas.OverlayRequest)
				if !ok {
					c.log.Warn("Malformed OPEN_OVERLAY payload", zap.String("envelope_id", env.ID))
					continue
				}
				c.OpenOverlay(ctx, req.Text, req.PageURL)
			}
		}
	}()
}

// OpenOverlay opens the overlay for a selection, closing any previous one.
// There is at most one overlay per page.
func (c *Content) OpenOverlay(ctx context.Context, text, pageURL string) *overlay.Session {
	session := overlay.NewSession(c.router, c.cache, c.views(), c.cfg, c.log)

	c.mu.Lock()
	previous := c.active
	c.active = session
	c.mu.Unlock()

	if previous != nil {
		previous.Close()
	}
	session.Open(ctx, text, pageURL)
	return session
}

// PageLoaded consumes the pending-highlight slot for the given page. The
// record is applied at most once: a successful replay clears it, a miss after
// the retry budget leaves the page untouched and the record cleared, and a
// record for another page stays put.
func (c *Content) PageLoaded(ctx context.Context, pageURL string, load func(context.Context) (*html.Node, error)) (*locator.Handle, bool) {
	pending, ok := c.slot.Peek(pageURL)
	if !ok {
		return nil, false
	}

	handle, found := c.replayer.Replay(ctx, load, pending.Text)
	// Consumed either way: replaying the same stale record on every future
	// visit would be worse than giving up.
	c.slot.Clear()
	if !found {
		c.log.Info("Pending highlight target not found", zap.String("url", pageURL))
		return nil, false
	}
	return handle, true
}

// Stop shuts the runtime down, closing the active overlay.
func (c *Content) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.started = false
	close(c.stop)
	active := c.active
	c.active = nil
	c.mu.Unlock()

	c.done.Wait()
	if active != nil {
		active.Close()
	}
}
