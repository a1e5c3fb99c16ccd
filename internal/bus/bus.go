// internal/bus/bus.go
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/avelichko7/textlens/api/schemas"
)

// ErrSurfaceGone is returned when a targeted delivery names a surface that has
// detached (tab closed, popup dismissed). Callers treat it as non-fatal.
var ErrSurfaceGone = errors.New("surface is no longer attached")

// Handler answers a request/response message. A handler must not block on the
// router itself.
type Handler func(ctx context.Context, env schemas.Envelope) (any, error)

// entry pairs a delivery channel with its detach signal. Detaching closes gone
// so in-flight senders back off; the envelope channel itself is closed only
// during Shutdown, never under a live sender.
type entry struct {
	ch   chan schemas.Envelope
	gone chan struct{}
}

// Router is the typed channel between the three execution contexts. The
// contexts share no memory by convention; everything they exchange travels
// through Post (fire-and-forget fan-out), Request (request/response) or
// SendToSurface (targeted, best-effort, FIFO per surface).
type Router struct {
	logger *zap.Logger

	mu          sync.RWMutex
	subscribers map[schemas.MessageType][]*entry
	handlers    map[schemas.MessageType]Handler
	surfaces    map[schemas.SurfaceID]*entry
	bufferSize  int

	shutdownChan chan struct{}
	shutdownOnce sync.Once
	isShutdown   bool
	shutdownMu   sync.Mutex
}

// New initializes the Router. bufferSize applies to subscriber and surface
// channels; zero means unbuffered.
func New(logger *zap.Logger, bufferSize int) *Router {
	if bufferSize < 0 {
		bufferSize = 0
	}
	return &Router{
		logger:       logger.Named("bus"),
		subscribers:  make(map[schemas.MessageType][]*entry),
		handlers:     make(map[schemas.MessageType]Handler),
		surfaces:     make(map[schemas.SurfaceID]*entry),
		bufferSize:   bufferSize,
		shutdownChan: make(chan struct{}),
	}
}

func (r *Router) envelope(msgType schemas.MessageType, surface schemas.SurfaceID, payload any) schemas.Envelope {
	return schemas.Envelope{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Type:      msgType,
		Surface:   surface,
		Payload:   payload,
	}
}

// Post sends a fire-and-forget message to every subscriber of the type.
// Blocks while subscriber buffers are full; a subscriber that unsubscribes
// mid-delivery is skipped.
func (r *Router) Post(ctx context.Context, msgType schemas.MessageType, payload any) error {
	r.shutdownMu.Lock()
	if r.isShutdown {
		r.shutdownMu.Unlock()
		return fmt.Errorf("cannot post message: router is shut down")
	}
	r.shutdownMu.Unlock()

	env := r.envelope(msgType, "", payload)
	r.logger.Debug("Posting message", zap.String("type", string(msgType)), zap.String("id", env.ID))

	r.mu.RLock()
	subs, ok := r.subscribers[msgType]
	if !ok || len(subs) == 0 {
		r.mu.RUnlock()
		return nil // No one is listening.
	}
	subsCopy := make([]*entry, len(subs))
	copy(subsCopy, subs)
	r.mu.RUnlock()

	for _, sub := range subsCopy {
		select {
		case sub.ch <- env:
		case <-sub.gone:
			// Unsubscribed while we were blocked on its buffer.
		case <-ctx.Done():
			return ctx.Err()
		case <-r.shutdownChan:
			return fmt.Errorf("failed to post message: router is shutting down")
		}
	}
	return nil
}

// Subscribe returns a channel receiving the given message types and a function
// that unsubscribes it. Unsubscribing stops delivery but leaves the channel
// open; only Shutdown closes channels, so a sender blocked on a full buffer
// can never hit a closing channel.
func (r *Router) Subscribe(msgTypes ...schemas.MessageType) (<-chan schemas.Envelope, func()) {
	if len(msgTypes) == 0 {
		panic("must subscribe to at least one message type")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isShutdownLocked() {
		closed := make(chan schemas.Envelope)
		close(closed)
		return closed, func() {}
	}

	sub := &entry{
		ch:   make(chan schemas.Envelope, r.bufferSize),
		gone: make(chan struct{}),
	}
	subscribed := make([]schemas.MessageType, len(msgTypes))
	copy(subscribed, msgTypes)
	for _, t := range subscribed {
		r.subscribers[t] = append(r.subscribers[t], sub)
	}

	var unsubOnce sync.Once
	unsubscribe := func() {
		unsubOnce.Do(func() {
			r.mu.Lock()
			for _, t := range subscribed {
				subs := r.subscribers[t]
				for i, s := range subs {
					if s == sub {
						r.subscribers[t] = append(subs[:i], subs[i+1:]...)
						break
					}
				}
			}
			r.mu.Unlock()
			close(sub.gone)
		})
	}
	return sub.ch, unsubscribe
}

// Handle registers the single request handler for a message type.
// Registering twice for the same type replaces the handler.
func (r *Router) Handle(msgType schemas.MessageType, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[msgType] = h
}

// Request dispatches a request/response message to its registered handler and
// returns the handler's answer. Mirrors sendMessage-with-callback semantics:
// exactly one responder, no ordering relative to fire-and-forget traffic.
func (r *Router) Request(ctx context.Context, msgType schemas.MessageType, payload any) (any, error) {
	r.shutdownMu.Lock()
	if r.isShutdown {
		r.shutdownMu.Unlock()
		return nil, fmt.Errorf("cannot send request: router is shut down")
	}
	r.shutdownMu.Unlock()

	r.mu.RLock()
	h, ok := r.handlers[msgType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no handler registered for %s", msgType)
	}

	env := r.envelope(msgType, "", payload)
	return h(ctx, env)
}

// AttachSurface registers a UI surface and returns its receive channel plus a
// detach function. Messages sent to the surface after detach are dropped with
// ErrSurfaceGone at the sender, including senders already blocked on a full
// buffer when the detach fires.
func (r *Router) AttachSurface(id schemas.SurfaceID) (<-chan schemas.Envelope, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sur := &entry{
		ch:   make(chan schemas.Envelope, r.bufferSize),
		gone: make(chan struct{}),
	}
	r.surfaces[id] = sur

	var detachOnce sync.Once
	detach := func() {
		detachOnce.Do(func() {
			r.mu.Lock()
			if cur, ok := r.surfaces[id]; ok && cur == sur {
				delete(r.surfaces, id)
			}
			r.mu.Unlock()
			close(sur.gone)
		})
	}
	return sur.ch, detach
}

// SendToSurface delivers one message to a specific surface. Delivery is
// best-effort: a detached surface yields ErrSurfaceGone, even when the detach
// lands while the sender is blocked. For a single sender and surface,
// deliveries are FIFO.
func (r *Router) SendToSurface(ctx context.Context, id schemas.SurfaceID, msgType schemas.MessageType, payload any) error {
	r.mu.RLock()
	sur, ok := r.surfaces[id]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSurfaceGone, id)
	}

	env := r.envelope(msgType, id, payload)
	select {
	case sur.ch <- env:
		return nil
	case <-sur.gone:
		return fmt.Errorf("%w: %s", ErrSurfaceGone, id)
	case <-ctx.Done():
		return ctx.Err()
	case <-r.shutdownChan:
		return fmt.Errorf("failed to deliver to surface: router is shutting down")
	}
}

// Shutdown stops the router. Subsequent Post/Request/SendToSurface calls fail;
// the channels of still-registered subscribers and surfaces are closed.
// Channels already released by unsubscribe/detach are left to the collector.
func (r *Router) Shutdown() {
	r.shutdownOnce.Do(func() {
		r.shutdownMu.Lock()
		r.isShutdown = true
		r.shutdownMu.Unlock()
		close(r.shutdownChan)

		r.mu.Lock()
		defer r.mu.Unlock()

		closed := make(map[*entry]bool)
		for _, subs := range r.subscribers {
			for _, sub := range subs {
				if !closed[sub] {
					closed[sub] = true
					close(sub.ch)
				}
			}
		}
		r.subscribers = make(map[schemas.MessageType][]*entry)

		for id, sur := range r.surfaces {
			if !closed[sur] {
				closed[sur] = true
				close(sur.ch)
			}
			delete(r.surfaces, id)
		}
		r.logger.Debug("Router shut down")
	})
}

func (r *Router) isShutdownLocked() bool {
	r.shutdownMu.Lock()
	defer r.shutdownMu.Unlock()
	return r.isShutdown
}
