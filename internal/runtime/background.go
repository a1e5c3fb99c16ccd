// File: internal/runtime/background.go
// Description: The persistent background runtime. It answers auth probes,
// opens the settings surface on request and spawns one orchestrator run per
// SIMPLIFY message. The sender of a SIMPLIFY gets an immediate ack; results
// arrive on the surface named in the command.

package runtime

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/avelichko7/textlens/api/schemas"
	"github.com/avelichko7/textlens/internal/bus"
)

// AuthChecker answers silent auth probes. Satisfied by the session manager.
type AuthChecker interface {
	CheckAuth(ctx context.Context) schemas.AuthStatus
}

// Streamer runs one simplification request to completion. Satisfied by the
// stream orchestrator.
type Streamer interface {
	Run(ctx context.Context, req schemas.SelectionRequest, surface schemas.SurfaceID)
}

// SurfaceOpener opens the settings surface. In the extension this is a new
// tab; in the CLI it is a no-op or a printed hint.
type SurfaceOpener interface {
	OpenSettings(ctx context.Context) error
}

// NopOpener discards settings-open requests.
type NopOpener struct{}

func (NopOpener) OpenSettings(context.Context) error { return nil }

// Background wires the background-context message handlers.
type Background struct {
	router *bus.Router
	auth   AuthChecker
	stream Streamer
	opener SurfaceOpener
	log    *zap.Logger

	mu       sync.Mutex
	inflight sync.WaitGroup
	stop     chan struct{}
	started  bool
}

// NewBackground builds the background runtime.
func NewBackground(router *bus.Router, auth AuthChecker, streamer Streamer, opener SurfaceOpener, logger *zap.Logger) *Background {
	if opener == nil {
		opener = NopOpener{}
	}
	return &Background{
		router: router,
		auth:   auth,
		stream: streamer,
		opener: opener,
		log:    logger.Named("background"),
	}
}

// Start registers the handlers and begins consuming SIMPLIFY messages. The
// context bounds every spawned request.
func (b *Background) Start(ctx context.Context) {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return
	}
	b.started = true
	b.stop = make(chan struct{})
	b.mu.Unlock()

	b.router.Handle(schemas.MsgCheckAuth, func(ctx context.Context, _ schemas.Envelope) (any, error) {
		return b.auth.CheckAuth(ctx), nil
	})

	simplifies, unsubSimplify := b.router.Subscribe(schemas.MsgSimplify)
	settings, unsubSettings := b.router.Subscribe(schemas.MsgOpenSettings)

	b.inflight.Add(1)
	go func() {
		defer b.inflight.Done()
		defer unsubSimplify()
		defer unsubSettings()
		for {
			select {
			case <-b.stop:
				return
			case <-ctx.Done():
				return
			case env, ok := <-simplifies:
				if !ok {
					return
				}
				b.handleSimplify(ctx, env)
			case _, ok := <-settings:
				if !ok {
					return
				}
				if err := b.opener.OpenSettings(ctx); err != nil {
					b.log.Warn("Failed to open settings surface", zap.Error(err))
				}
			}
		}
	}()
}

// handleSimplify validates the command and spawns the run. The spawn is the
// ack; the message sender never blocks on the stream.
func (b *Background) handleSimplify(ctx context.Context, env schemas.Envelope) {
	cmd, ok := env.Payload.(schemas.SimplifyCommand)
	if !ok {
		b.log.Warn("Malformed SIMPLIFY payload", zap.String("envelope_id", env.ID))
		return
	}
	if err := cmd.Request.Validate(); err != nil {
		b.log.Warn("Rejected simplify request", zap.Error(err))
		return
	}

	b.log.Info("Starting simplification",
		zap.String("mode", string(cmd.Request.Mode)),
		zap.String("surface", string(cmd.Surface)),
		zap.Int("text_len", len(cmd.Request.Text)))

	b.inflight.Add(1)
	go func() {
		defer b.inflight.Done()
		b.stream.Run(ctx, cmd.Request, cmd.Surface)
	}()
}

// Stop shuts the runtime down and waits for in-flight requests. Requests are
// not cancelled, only awaited; there is no mid-stream abort.
func (b *Background) Stop() {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return
	}
	b.started = false
	close(b.stop)
	b.mu.Unlock()

	b.inflight.Wait()
}
