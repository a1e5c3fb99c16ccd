// File: internal/overlay/overlay.go
// Description: In-page overlay state machine. One Session per opened overlay,
// owning what used to be page-global state: auth view, result view, the poll
// ticker and the stream subscription. Rendering is delegated to a View.

package overlay

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/avelichko7/textlens/api/schemas"
	"github.com/avelichko7/textlens/internal/bus"
	"github.com/avelichko7/textlens/internal/config"
	"github.com/avelichko7/textlens/internal/storage"
)

// View renders overlay state. Implementations must tolerate being called from
// the session's goroutines.
type View interface {
	// RenderAuth paints the auth header. Called once per auth-state
	// transition, never repeatedly for an unchanged state.
	RenderAuth(status schemas.AuthStatus)
	// RenderLoading shows the placeholder while a request is in flight.
	RenderLoading()
	// RenderStream shows the accumulated result text so far. The first call
	// replaces the placeholder, later calls extend the text.
	RenderStream(text string)
	// RenderComplete shows the final result.
	RenderComplete(text string)
	// RenderError shows a failure view. LOGIN_REQUIRED renders an inline
	// sign-in prompt, CREDITS_EXHAUSTED an upgrade prompt, anything else a
	// generic message with no retry affordance.
	RenderError(code schemas.ErrorCode, message string)
}

type resultState int

const (
	resultIdle resultState = iota
	resultLoading
	resultStreaming
	resultShown
)

// Session is one open overlay. Not reusable after Close.
type Session struct {
	router *bus.Router
	cache  *storage.Cache
	view   View
	cfg    config.OverlayConfig
	log    *zap.Logger

	mu        sync.Mutex
	open      bool
	surface   schemas.SurfaceID
	selection string
	sourceURL string

	authKnown bool
	auth      schemas.AuthStatus

	result     resultState
	text       strings.Builder
	firstChunk bool

	stop    chan struct{}
	detach  func()
	done    sync.WaitGroup
	closeMu sync.Once
}

// NewSession builds a Session for one overlay instance.
func NewSession(router *bus.Router, cache *storage.Cache, view View, cfg config.OverlayConfig, logger *zap.Logger) *Session {
	return &Session{
		router:  router,
		cache:   cache,
		view:    view,
		cfg:     cfg,
		log:     logger.Named("overlay"),
		surface: schemas.SurfaceID("overlay-" + uuid.NewString()),
	}
}

// Surface returns the delivery address for this overlay's stream events.
func (s *Session) Surface() schemas.SurfaceID {
	return s.surface
}

// Open shows the overlay for the given selection. The cached plan paints
// instantly; the authoritative auth state follows asynchronously and a poll
// ticker keeps it fresh while the overlay stays open.
func (s *Session) Open(ctx context.Context, selection, sourceURL string) {
	s.mu.Lock()
	if s.open {
		s.mu.Unlock()
		return
	}
	s.open = true
	s.selection = selection
	s.sourceURL = sourceURL
	s.result = resultIdle
	s.text.Reset()
	s.firstChunk = true
	s.stop = make(chan struct{})

	// Instant paint from the cached plan. Provisional: the probe below
	// overwrites it on any transition.
	var status schemas.AuthStatus
	if plan, ok := s.cache.PlanID(); ok {
		status = schemas.AuthStatus{Authenticated: true, PlanID: plan}
		s.auth = status
		s.authKnown = true
	}

	events, detach := s.router.AttachSurface(s.surface)
	s.detach = detach
	s.mu.Unlock()

	// Rendered outside the lock, like every other render call, so a View that
	// calls back into the session cannot deadlock.
	s.view.RenderAuth(status)

	s.done.Add(2)
	go s.consumeStream(events)
	go s.pollAuth(ctx)
}

// PickMode starts a simplification in the given mode. Locked modes redirect
// to the settings surface instead of issuing a request; an unauthenticated
// session renders the sign-in prompt.
func (s *Session) PickMode(ctx context.Context, mode schemas.Mode) {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return
	}
	if !(s.authKnown && s.auth.Authenticated) {
		s.mu.Unlock()
		s.view.RenderError(schemas.CodeLoginRequired, "")
		return
	}
	if !mode.Unlocked(s.auth.PlanID) {
		s.mu.Unlock()
		s.log.Info("Mode locked on current plan, redirecting to settings",
			zap.String("mode", string(mode)), zap.String("plan", s.auth.PlanID))
		if err := s.router.Post(ctx, schemas.MsgOpenSettings, nil); err != nil {
			s.log.Warn("Failed to open settings", zap.Error(err))
		}
		return
	}

	s.result = resultLoading
	s.text.Reset()
	s.firstChunk = true
	cmd := schemas.SimplifyCommand{
		Request: schemas.SelectionRequest{
			Text:      s.selection,
			Mode:      mode,
			SourceURL: s.sourceURL,
		},
		Surface: s.surface,
	}
	s.mu.Unlock()

	s.view.RenderLoading()
	if err := s.router.Post(ctx, schemas.MsgSimplify, cmd); err != nil {
		s.log.Warn("Failed to dispatch simplify request", zap.Error(err))
		s.view.RenderError(schemas.CodeGeneric, "")
	}
}

// Close tears the overlay down. The poll ticker and the stream subscription
// stop on every path; a running backend request is abandoned, not cancelled.
func (s *Session) Close() {
	s.closeMu.Do(func() {
		s.mu.Lock()
		if !s.open {
			s.mu.Unlock()
			return
		}
		s.open = false
		close(s.stop)
		detach := s.detach
		s.mu.Unlock()

		if detach != nil {
			detach()
		}
		s.done.Wait()
	})
}

// consumeStream applies stream events for this surface in arrival order.
func (s *Session) consumeStream(events <-chan schemas.Envelope) {
	defer s.done.Done()
	for {
		select {
		case <-s.stop:
			return
		case env, ok := <-events:
			if !ok {
				return
			}
			event, ok := env.Payload.(schemas.StreamEvent)
			if !ok {
				s.log.Warn("Unexpected payload on overlay surface", zap.String("type", string(env.Type)))
				continue
			}
			s.applyEvent(event)
		}
	}
}

func (s *Session) applyEvent(event schemas.StreamEvent) {
	s.mu.Lock()
	switch event.Kind {
	case schemas.EventStart:
		s.result = resultStreaming
		s.mu.Unlock()

	case schemas.EventChunk:
		if s.firstChunk {
			// The placeholder is replaced exactly once; everything after
			// extends the text.
			s.firstChunk = false
			s.text.Reset()
		}
		s.text.WriteString(event.Chunk)
		text := s.text.String()
		s.mu.Unlock()
		s.view.RenderStream(text)

	case schemas.EventComplete:
		s.result = resultShown
		text := s.text.String()
		s.mu.Unlock()
		s.view.RenderComplete(text)

	case schemas.EventError:
		s.result = resultShown
		if event.Code == schemas.CodeLoginRequired {
			// The session just learned it is signed out; the overlay stays
			// open with an inline prompt.
			s.auth = schemas.AuthStatus{}
			s.authKnown = true
		}
		s.mu.Unlock()
		s.view.RenderError(event.Code, event.Message)

	default:
		s.mu.Unlock()
	}
}

// pollAuth refreshes the auth header: one authoritative probe immediately,
// then one per tick. The view is only repainted when the state changes.
func (s *Session) pollAuth(ctx context.Context) {
	defer s.done.Done()

	s.probeOnce(ctx)

	interval := s.cfg.AuthPollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.probeOnce(ctx)
		}
	}
}

func (s *Session) probeOnce(ctx context.Context) {
	reply, err := s.router.Request(ctx, schemas.MsgCheckAuth, nil)
	if err != nil {
		s.log.Debug("Auth probe failed", zap.Error(err))
		return
	}
	status, ok := reply.(schemas.AuthStatus)
	if !ok {
		return
	}

	s.mu.Lock()
	changed := !s.authKnown || status != s.auth
	s.auth = status
	s.authKnown = true
	s.mu.Unlock()

	if changed {
		s.view.RenderAuth(status)
	}
}
