// File: internal/stream/orchestrator.go
// Description: Owns the lifecycle of one simplification request: credential,
// network call, chunked relay, error classification. Every outcome reaches the
// originating surface as a strictly ordered event sequence.

package stream

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/avelichko7/textlens/api/schemas"
	"github.com/avelichko7/textlens/internal/backend"
	"github.com/avelichko7/textlens/internal/bus"
)

// User-facing fallback strings. The structured code is canonical; these only
// fill the message field when the server gave nothing better.
const (
	msgRateLimited   = "Слишком быстро! Подождите пару секунд."
	msgLoginRequired = "Требуется вход в аккаунт."
	msgGeneric       = "Ошибка подключения."
)

const chunkBufferSize = 4 * 1024

// TokenSource provides credentials for backend calls.
type TokenSource interface {
	GetToken(ctx context.Context, forceRefresh bool) (string, error)
}

// Simplifier opens a streaming simplification against the backend.
type Simplifier interface {
	Simplify(ctx context.Context, token string, req schemas.SelectionRequest) (io.ReadCloser, error)
}

// Sender delivers stream events to a surface. Satisfied by the bus router.
type Sender interface {
	SendToSurface(ctx context.Context, id schemas.SurfaceID, msgType schemas.MessageType, payload any) error
}

// Orchestrator runs simplification requests. Safe for concurrent use;
// concurrent requests are independent, with no cross-request ordering.
type Orchestrator struct {
	tokens  TokenSource
	backend Simplifier
	sender  Sender
	log     *zap.Logger
}

// New builds an Orchestrator.
func New(tokens TokenSource, simplifier Simplifier, sender Sender, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		tokens:  tokens,
		backend: simplifier,
		sender:  sender,
		log:     logger.Named("stream"),
	}
}

// Run executes one request end to end. It blocks until the terminal event has
// been emitted; callers that want fire-and-forget run it in a goroutine.
// There is no cancellation once the stream starts: closing the overlay stops
// listening, not the request.
func (o *Orchestrator) Run(ctx context.Context, req schemas.SelectionRequest, surface schemas.SurfaceID) {
	o.run(ctx, uuid.NewString(), req, surface, 0)
}

func (o *Orchestrator) run(ctx context.Context, requestID string, req schemas.SelectionRequest, surface schemas.SurfaceID, retry int) {
	log := o.log.With(zap.String("request_id", requestID), zap.String("surface", string(surface)))

	token, err := o.tokens.GetToken(ctx, retry > 0)
	if err != nil {
		log.Info("Credential unavailable", zap.Error(err))
		o.emitError(ctx, requestID, surface, schemas.CodeLoginRequired, msgLoginRequired)
		return
	}

	body, err := o.backend.Simplify(ctx, token, req)
	if err != nil {
		var se *backend.StatusError
		if errors.As(err, &se) {
			o.classify(ctx, requestID, req, surface, retry, se, log)
			return
		}
		log.Warn("Simplify request failed", zap.Error(err))
		o.emitError(ctx, requestID, surface, schemas.CodeGeneric, msgGeneric)
		return
	}
	defer body.Close()

	o.relay(ctx, requestID, surface, body, log)
}

// classify translates a non-2xx response into either a transparent retry or a
// terminal error event.
func (o *Orchestrator) classify(ctx context.Context, requestID string, req schemas.SelectionRequest, surface schemas.SurfaceID, retry int, se *backend.StatusError, log *zap.Logger) {
	switch {
	case se.Status == http.StatusUnauthorized && retry == 0:
		// Expired credential: evict and reissue, then retry exactly once.
		// Invisible to the surface beyond the added latency.
		log.Info("Credential rejected, retrying with a fresh one")
		o.run(ctx, requestID, req, surface, 1)

	case se.Status == http.StatusPaymentRequired:
		// The server's own wording goes through verbatim.
		detail := se.Detail
		if detail == "" {
			detail = msgGeneric
		}
		o.emitError(ctx, requestID, surface, schemas.CodeCreditsExhausted, detail)

	case se.Status == http.StatusTooManyRequests:
		// Fixed message regardless of what the body said.
		o.emitError(ctx, requestID, surface, schemas.CodeRateLimited, msgRateLimited)

	default:
		log.Warn("Backend rejected request", zap.Int("status", se.Status), zap.String("detail", se.Detail))
		detail := se.Detail
		if detail == "" {
			detail = msgGeneric
		}
		o.emitError(ctx, requestID, surface, schemas.CodeGeneric, detail)
	}
}

// relay forwards the response body chunk by chunk in arrival order.
func (o *Orchestrator) relay(ctx context.Context, requestID string, surface schemas.SurfaceID, body io.Reader, log *zap.Logger) {
	o.emit(ctx, surface, schemas.MsgStreamStart, schemas.StreamEvent{
		Kind:      schemas.EventStart,
		RequestID: requestID,
	})

	reader := bufio.NewReader(body)
	buf := make([]byte, chunkBufferSize)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			o.emit(ctx, surface, schemas.MsgStreamChunk, schemas.StreamEvent{
				Kind:      schemas.EventChunk,
				RequestID: requestID,
				Chunk:     string(buf[:n]),
			})
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Warn("Stream interrupted", zap.Error(err))
			o.emitError(ctx, requestID, surface, schemas.CodeGeneric, msgGeneric)
			return
		}
	}

	o.emit(ctx, surface, schemas.MsgStreamComplete, schemas.StreamEvent{
		Kind:      schemas.EventComplete,
		RequestID: requestID,
	})
}

func (o *Orchestrator) emitError(ctx context.Context, requestID string, surface schemas.SurfaceID, code schemas.ErrorCode, message string) {
	o.emit(ctx, surface, schemas.MsgStreamError, schemas.StreamEvent{
		Kind:      schemas.EventError,
		RequestID: requestID,
		Message:   message,
		Code:      code,
	})
}

// emit is best-effort: a surface closed mid-stream is routine, the request
// keeps running to completion regardless.
func (o *Orchestrator) emit(ctx context.Context, surface schemas.SurfaceID, msgType schemas.MessageType, event schemas.StreamEvent) {
	err := o.sender.SendToSurface(ctx, surface, msgType, event)
	if err == nil {
		return
	}
	if errors.Is(err, bus.ErrSurfaceGone) {
		o.log.Debug("Surface gone, dropping stream event",
			zap.String("surface", string(surface)),
			zap.String("kind", string(event.Kind)))
		return
	}
	o.log.Warn("Failed to deliver stream event", zap.Error(err))
}
