// File: api/schemas/messages.go
// Description: Cross-context message contracts. The background worker, the content
// runtime and the transient UI surfaces share no memory; everything crossing a
// context boundary is one of the types defined here.

package schemas

import "time"

// MessageType identifies a cross-context message on the router.
type MessageType string

const (
	// MsgOpenOverlay asks the content runtime to open the overlay with the
	// currently selected text. Fire-and-forget.
	MsgOpenOverlay MessageType = "OPEN_OVERLAY"

	// MsgSimplify asks the background worker to start a simplification request.
	// Fire-and-forget; the worker acknowledges immediately and streams results
	// back to the originating surface.
	MsgSimplify MessageType = "SIMPLIFY"

	// MsgCheckAuth is a request/response probe for the current auth state.
	MsgCheckAuth MessageType = "CHECK_AUTH"

	// MsgOpenSettings asks the background worker to open the settings surface.
	MsgOpenSettings MessageType = "OPEN_SETTINGS"

	// Stream events, delivered best-effort to a specific surface.
	MsgStreamStart    MessageType = "STREAM_START"
	MsgStreamChunk    MessageType = "STREAM_CHUNK"
	MsgStreamComplete MessageType = "STREAM_COMPLETE"
	MsgStreamError    MessageType = "STREAM_ERROR"
)

// SurfaceID addresses a single UI surface (one overlay instance, one popup).
// Surfaces come and go; delivery to a gone surface is never an error upstream.
type SurfaceID string

// ErrorCode classifies a terminal stream failure for the UI.
// The structured code is canonical; UIs must not sniff message text.
type ErrorCode string

const (
	CodeLoginRequired    ErrorCode = "LOGIN_REQUIRED"
	CodeCreditsExhausted ErrorCode = "CREDITS_EXHAUSTED"
	CodeRateLimited      ErrorCode = "RATE_LIMITED"
	CodeGeneric          ErrorCode = "GENERIC"
)

// StreamEventKind tags a StreamEvent variant.
type StreamEventKind string

const (
	EventStart    StreamEventKind = "START"
	EventChunk    StreamEventKind = "CHUNK"
	EventComplete StreamEventKind = "COMPLETE"
	EventError    StreamEventKind = "ERROR"
)

// StreamEvent is one element of the per-request event sequence. For a single
// request the sequence is strictly Start, zero or more Chunk, then exactly one
// of Complete or Error. Nothing follows a terminal event.
type StreamEvent struct {
	Kind      StreamEventKind `json:"kind"`
	RequestID string          `json:"request_id"`
	Chunk     string          `json:"chunk,omitempty"`
	Message   string          `json:"message,omitempty"`
	Code      ErrorCode       `json:"code,omitempty"`
}

// Terminal reports whether no further events may follow this one.
func (e StreamEvent) Terminal() bool {
	return e.Kind == EventComplete || e.Kind == EventError
}

// OverlayRequest is the OPEN_OVERLAY message payload.
type OverlayRequest struct {
	Text    string `json:"text"`
	PageURL string `json:"page_url"`
}

// SimplifyCommand is the SIMPLIFY message payload: the request itself plus the
// surface the stream events should be delivered to.
type SimplifyCommand struct {
	Request SelectionRequest `json:"request"`
	Surface SurfaceID        `json:"surface"`
}

// AuthStatus is the CHECK_AUTH response payload.
type AuthStatus struct {
	Authenticated bool   `json:"authenticated"`
	PlanID        string `json:"plan_id,omitempty"`
}

// Envelope is the wire form of a routed message.
type Envelope struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Type      MessageType `json:"type"`
	Surface   SurfaceID   `json:"surface,omitempty"`
	Payload   any         `json:"payload,omitempty"`
}
